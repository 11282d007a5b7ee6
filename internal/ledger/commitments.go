package ledger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opCommitHelp = "ledger.commit_help"

// CommitHelp records a restaurant's pledge against a need and adds the restaurant to the
// need's responders. Both writes commit together.
func (s *Service) CommitHelp(ctx context.Context, actor Actor, needID string, pickupAt time.Time, quantity string) (HelpCommitment, error) {
	if err := s.ready(opCommitHelp); err != nil {
		return HelpCommitment{}, err
	}
	if err := requireRole(actor, RoleRestaurant); err != nil {
		return HelpCommitment{}, err
	}
	if strings.TrimSpace(needID) == "" {
		return HelpCommitment{}, &ValidationError{Field: "need_id", Reason: "is required"}
	}

	now := s.now()
	pickup := pickupInput{PickupAt: pickupAt.UTC(), Quantity: strings.TrimSpace(quantity)}
	if err := Validate(pickup); err != nil {
		return HelpCommitment{}, err
	}
	if err := validatePickup(pickup.PickupAt, now); err != nil {
		return HelpCommitment{}, err
	}

	id, err := s.newID(opCommitHelp)
	if err != nil {
		return HelpCommitment{}, err
	}

	var commitment HelpCommitment
	needChanged := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		need, err := load[Need](tx, CollectionNeeds, needID)
		if err != nil {
			return s.lookupFailure(opCommitHelp, needID, err)
		}

		commitment = HelpCommitment{
			ID:                id,
			NeedID:            need.ID,
			RestaurantID:      actor.ID,
			AssociationID:     need.OwnerID,
			CommittedQuantity: pickup.Quantity,
			PickupAt:          pickup.PickupAt,
			Status:            StatusPending,
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Create(&commitment).Error; err != nil {
			return s.fail(opCommitHelp, reasonInsertFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String("need_id", needID))
		}

		if need.AnsweredBy(actor.ID) {
			return nil
		}
		previous := need.Version
		need.RespondingActorIDs = append(slices.Clone(need.RespondingActorIDs), actor.ID)
		need.Version = previous + 1
		need.UpdatedAt = now
		if err := casUpdate(tx, &need, previous, "responding_actor_ids"); err != nil {
			return s.updateFailure(opCommitHelp, needID, err)
		}
		needChanged = true
		return nil
	})
	if err != nil {
		return HelpCommitment{}, s.settle(opCommitHelp, err)
	}

	s.publish(CollectionHelpCommitments, id, feed.EventInserted, commitment.RestaurantID, commitment.AssociationID)
	if needChanged {
		s.publish(CollectionNeeds, needID, feed.EventUpdated, commitment.AssociationID)
	}
	return commitment, nil
}
