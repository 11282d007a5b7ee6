package ledger

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateAnnouncement    = "ledger.create_announcement"
	opUpdateAnnouncement    = "ledger.update_announcement"
	opDeleteAnnouncement    = "ledger.delete_announcement"
	opReadAnnouncement      = "ledger.announcement"
	opAvailableAnnouncement = "ledger.available_announcements"
	opExpireAnnouncements   = "ledger.expire_announcements"

	columnAnnouncementCount = "announcement_count"
)

// CreateAnnouncement publishes a new offer for a restaurant and bumps its announcement counter.
func (s *Service) CreateAnnouncement(ctx context.Context, actor Actor, input AnnouncementInput) (Announcement, error) {
	if err := s.ready(opCreateAnnouncement); err != nil {
		return Announcement{}, err
	}
	if err := requireRole(actor, RoleRestaurant); err != nil {
		return Announcement{}, err
	}

	now := s.now()
	input = input.normalized()
	if err := input.validate(now); err != nil {
		return Announcement{}, err
	}

	id, err := s.newID(opCreateAnnouncement)
	if err != nil {
		return Announcement{}, err
	}

	announcement := Announcement{
		ID:             id,
		OwnerID:        actor.ID,
		OfferedItem:    input.OfferedItem,
		Quantity:       input.Quantity,
		Category:       input.Category,
		Description:    input.Description,
		ExpirationDate: input.ExpirationDate,
		State:          AnnouncementAvailable,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&announcement).Error; err != nil {
			return s.fail(opCreateAnnouncement, reasonInsertFailed, err,
				zap.String(fieldActorID, actor.ID))
		}
		if err := adjustCounter(tx, actor.ID, columnAnnouncementCount, 1); err != nil {
			return s.fail(opCreateAnnouncement, reasonCounterFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String(fieldDocumentID, id))
		}
		return nil
	})
	if err != nil {
		return Announcement{}, s.settle(opCreateAnnouncement, err)
	}

	s.publish(CollectionAnnouncements, id, feed.EventInserted, actor.ID)
	return announcement, nil
}

// UpdateAnnouncement rewrites the editable fields of an owned announcement.
// A fresh expiration date makes an expired announcement available again.
func (s *Service) UpdateAnnouncement(ctx context.Context, actor Actor, id string, input AnnouncementInput) (Announcement, error) {
	if err := s.ready(opUpdateAnnouncement); err != nil {
		return Announcement{}, err
	}
	if err := requireRole(actor, RoleRestaurant); err != nil {
		return Announcement{}, err
	}

	now := s.now()
	input = input.normalized()
	if err := input.validate(now); err != nil {
		return Announcement{}, err
	}

	var updated Announcement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[Announcement](tx, CollectionAnnouncements, id)
		if err != nil {
			return s.lookupFailure(opUpdateAnnouncement, id, err)
		}
		if existing.OwnerID != actor.ID {
			return ErrForbidden
		}

		updated = existing
		updated.OfferedItem = input.OfferedItem
		updated.Quantity = input.Quantity
		updated.Category = input.Category
		updated.Description = input.Description
		updated.ExpirationDate = input.ExpirationDate
		updated.State = AnnouncementAvailable
		updated.Version = existing.Version + 1
		updated.UpdatedAt = now

		err = casUpdate(tx, &updated, existing.Version,
			"offered_item", "quantity", "category", "description", "expiration_date", "state")
		if err != nil {
			return s.updateFailure(opUpdateAnnouncement, id, err)
		}
		return nil
	})
	if err != nil {
		return Announcement{}, s.settle(opUpdateAnnouncement, err)
	}

	s.publish(CollectionAnnouncements, id, feed.EventUpdated, actor.ID)
	return updated, nil
}

// DeleteAnnouncement removes an owned announcement. Reservations referencing it are kept.
func (s *Service) DeleteAnnouncement(ctx context.Context, actor Actor, id string) error {
	if err := s.ready(opDeleteAnnouncement); err != nil {
		return err
	}
	if err := requireRole(actor, RoleRestaurant); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[Announcement](tx, CollectionAnnouncements, id)
		if err != nil {
			return s.lookupFailure(opDeleteAnnouncement, id, err)
		}
		if existing.OwnerID != actor.ID {
			return ErrForbidden
		}
		result := tx.Where("id = ? AND version = ?", id, existing.Version).Delete(&Announcement{})
		if result.Error != nil {
			return s.fail(opDeleteAnnouncement, reasonDeleteFailed, result.Error,
				zap.String(fieldDocumentID, id))
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if err := adjustCounter(tx, actor.ID, columnAnnouncementCount, -1); err != nil {
			return s.fail(opDeleteAnnouncement, reasonCounterFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String(fieldDocumentID, id))
		}
		return nil
	})
	if err != nil {
		return s.settle(opDeleteAnnouncement, err)
	}

	s.publish(CollectionAnnouncements, id, feed.EventDeleted, actor.ID)
	return nil
}

// Announcement reads one announcement by id.
func (s *Service) Announcement(ctx context.Context, id string) (Announcement, error) {
	if err := s.ready(opReadAnnouncement); err != nil {
		return Announcement{}, err
	}
	announcement, err := load[Announcement](s.db.WithContext(ctx), CollectionAnnouncements, id)
	if err != nil {
		return Announcement{}, s.lookupFailure(opReadAnnouncement, id, err)
	}
	return announcement, nil
}

// AvailableAnnouncements lists every offer that can still be reserved, oldest first.
func (s *Service) AvailableAnnouncements(ctx context.Context) ([]Announcement, error) {
	if err := s.ready(opAvailableAnnouncement); err != nil {
		return nil, err
	}
	var candidates []Announcement
	err := s.db.WithContext(ctx).
		Where("state = ?", AnnouncementAvailable).
		Order("created_at ASC").Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, s.fail(opAvailableAnnouncement, reasonQueryFailed, err)
	}

	now := s.now()
	available := make([]Announcement, 0, len(candidates))
	for _, announcement := range candidates {
		if announcement.Reservable(now) {
			available = append(available, announcement)
		}
	}
	return available, nil
}

// ExpireAnnouncements moves available announcements past their expiration date to expired
// and reports how many were changed. Documents modified concurrently are left for the next sweep.
func (s *Service) ExpireAnnouncements(ctx context.Context) (int, error) {
	if err := s.ready(opExpireAnnouncements); err != nil {
		return 0, err
	}
	var candidates []Announcement
	err := s.db.WithContext(ctx).
		Where("state = ?", AnnouncementAvailable).
		Find(&candidates).Error
	if err != nil {
		return 0, s.fail(opExpireAnnouncements, reasonQueryFailed, err)
	}

	now := s.now()
	expired := 0
	for _, announcement := range candidates {
		if announcement.ExpirationDate.After(now) {
			continue
		}
		previous := announcement.Version
		announcement.State = AnnouncementExpired
		announcement.Version = previous + 1
		announcement.UpdatedAt = now
		err := casUpdate(s.db.WithContext(ctx), &announcement, previous, "state")
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return expired, s.fail(opExpireAnnouncements, reasonUpdateFailed, err,
				zap.String(fieldDocumentID, announcement.ID))
		}
		expired++
		s.publish(CollectionAnnouncements, announcement.ID, feed.EventUpdated, announcement.OwnerID)
	}
	return expired, nil
}

// lookupFailure passes not-found through and wraps every other read failure.
func (s *Service) lookupFailure(operation, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return s.fail(operation, reasonLookupFailed, err, zap.String(fieldDocumentID, id))
}

// updateFailure passes version conflicts through and wraps every other write failure.
func (s *Service) updateFailure(operation, id string, err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	return s.fail(operation, reasonUpdateFailed, err, zap.String(fieldDocumentID, id))
}
