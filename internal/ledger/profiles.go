package ledger

import (
	"context"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opReadProfile   = "ledger.profile"
	opUpdateProfile = "ledger.update_profile"
)

func (s *Service) Profile(ctx context.Context, actorID string) (ActorProfile, error) {
	if err := s.ready(opReadProfile); err != nil {
		return ActorProfile{}, err
	}
	profile, err := load[ActorProfile](s.db.WithContext(ctx), CollectionActorProfiles, actorID)
	if err != nil {
		return ActorProfile{}, s.lookupFailure(opReadProfile, actorID, err)
	}
	return profile, nil
}

// UpdateProfile changes the contact details of the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, input ProfileInput) (ActorProfile, error) {
	if err := s.ready(opUpdateProfile); err != nil {
		return ActorProfile{}, err
	}
	if actor.ID == "" {
		return ActorProfile{}, &ValidationError{Field: "actor_id", Reason: "is required"}
	}

	input = input.normalized()
	if err := Validate(input); err != nil {
		return ActorProfile{}, err
	}

	var updated ActorProfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[ActorProfile](tx, CollectionActorProfiles, actor.ID)
		if err != nil {
			return s.lookupFailure(opUpdateProfile, actor.ID, err)
		}
		updated = existing
		updated.DisplayName = input.DisplayName
		updated.Phone = input.Phone
		updated.Address = input.Address
		updated.UpdatedAt = s.now()
		result := tx.Model(&updated).
			Select("display_name", "phone", "address", "updated_at").
			Updates(&updated)
		if result.Error != nil {
			return s.fail(opUpdateProfile, reasonUpdateFailed, result.Error,
				zap.String(fieldActorID, actor.ID))
		}
		return nil
	})
	if err != nil {
		return ActorProfile{}, s.settle(opUpdateProfile, err)
	}

	s.publish(CollectionActorProfiles, actor.ID, feed.EventUpdated, actor.ID)
	return updated, nil
}

// adjustCounter moves an informational profile counter by delta without going below zero.
// A missing profile is not an error.
func adjustCounter(tx *gorm.DB, actorID, column string, delta int) error {
	query := tx.Model(&ActorProfile{}).Where("id = ?", actorID)
	if delta < 0 {
		query = query.Where(column+" > 0")
	}
	return query.UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
}
