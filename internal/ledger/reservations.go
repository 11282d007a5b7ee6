package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateReservation   = "ledger.create_reservation"
	opUpdateReservation   = "ledger.update_reservation"
	opReserveAnnouncement = "ledger.reserve_announcement"
	opReservationDetail   = "ledger.reservation_detail"
)

// ReservationDetail pairs a reservation with its announcement.
// Announcement is nil once the restaurant deleted the offer.
type ReservationDetail struct {
	Reservation  Reservation   `json:"reservation"`
	Announcement *Announcement `json:"announcement"`
}

func (s *Service) reservationPreconditions(operation string, actor Actor, announcementID string, pickupAt time.Time) (time.Time, error) {
	if err := s.ready(operation); err != nil {
		return time.Time{}, err
	}
	if err := requireRole(actor, RoleAssociation); err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(announcementID) == "" {
		return time.Time{}, &ValidationError{Field: "announcement_id", Reason: "is required"}
	}
	pickupAt = pickupAt.UTC()
	if err := validatePickup(pickupAt, s.now()); err != nil {
		return time.Time{}, err
	}
	return pickupAt, nil
}

// CreateReservation claims an available announcement for an association.
// Each association holds at most one reservation per announcement.
func (s *Service) CreateReservation(ctx context.Context, actor Actor, announcementID string, pickupAt time.Time) (Reservation, error) {
	pickupAt, err := s.reservationPreconditions(opCreateReservation, actor, announcementID, pickupAt)
	if err != nil {
		return Reservation{}, err
	}

	now := s.now()
	id := ReservationID(announcementID, actor.ID)
	var reservation Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		announcement, err := load[Announcement](tx, CollectionAnnouncements, announcementID)
		if err != nil {
			return s.lookupFailure(opCreateReservation, announcementID, err)
		}
		if !announcement.Reservable(now) {
			return ErrAnnouncementUnavailable
		}

		_, err = load[Reservation](tx, CollectionReservations, id)
		switch {
		case err == nil:
			return ErrReservationExists
		case !errors.Is(err, ErrNotFound):
			return s.lookupFailure(opCreateReservation, id, err)
		}

		reservation = Reservation{
			ID:             id,
			AnnouncementID: announcement.ID,
			RestaurantID:   announcement.OwnerID,
			AssociationID:  actor.ID,
			PickupAt:       pickupAt,
			Status:         StatusPending,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReservationExists
			}
			return s.fail(opCreateReservation, reasonInsertFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String(fieldDocumentID, id))
		}
		return nil
	})
	if err != nil {
		return Reservation{}, s.settle(opCreateReservation, err)
	}

	s.publish(CollectionReservations, id, feed.EventInserted, reservation.RestaurantID, reservation.AssociationID)
	return reservation, nil
}

// UpdateReservation moves the pickup slot of an existing reservation. The status returns to
// pending so the restaurant confirms the new slot.
func (s *Service) UpdateReservation(ctx context.Context, actor Actor, announcementID string, pickupAt time.Time) (Reservation, error) {
	pickupAt, err := s.reservationPreconditions(opUpdateReservation, actor, announcementID, pickupAt)
	if err != nil {
		return Reservation{}, err
	}

	id := ReservationID(announcementID, actor.ID)
	var updated Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[Reservation](tx, CollectionReservations, id)
		if err != nil {
			return s.lookupFailure(opUpdateReservation, id, err)
		}
		if existing.AssociationID != actor.ID {
			return ErrForbidden
		}
		if existing.Status.Terminal() {
			return ErrInvalidTransition
		}

		updated = existing
		updated.PickupAt = pickupAt
		updated.Status = StatusPending
		updated.Version = existing.Version + 1
		updated.UpdatedAt = s.now()
		if err := casUpdate(tx, &updated, existing.Version, "pickup_at", "status"); err != nil {
			return s.updateFailure(opUpdateReservation, id, err)
		}
		return nil
	})
	if err != nil {
		return Reservation{}, s.settle(opUpdateReservation, err)
	}

	s.publish(CollectionReservations, id, feed.EventUpdated, updated.RestaurantID, updated.AssociationID)
	return updated, nil
}

// ReserveAnnouncement creates the association's reservation, or moves its pickup slot when
// one already exists for the pair. An existing reservation is updated even after its
// announcement expired or was deleted.
func (s *Service) ReserveAnnouncement(ctx context.Context, actor Actor, announcementID string, pickupAt time.Time) (Reservation, error) {
	if err := s.ready(opReserveAnnouncement); err != nil {
		return Reservation{}, err
	}

	id := ReservationID(announcementID, actor.ID)
	_, err := load[Reservation](s.db.WithContext(ctx), CollectionReservations, id)
	switch {
	case err == nil:
		return s.updateExistingReservation(ctx, actor, announcementID, pickupAt)
	case !errors.Is(err, ErrNotFound):
		return Reservation{}, s.lookupFailure(opReserveAnnouncement, id, err)
	}

	reservation, err := s.CreateReservation(ctx, actor, announcementID, pickupAt)
	if errors.Is(err, ErrReservationExists) {
		return s.updateExistingReservation(ctx, actor, announcementID, pickupAt)
	}
	return reservation, err
}

func (s *Service) updateExistingReservation(ctx context.Context, actor Actor, announcementID string, pickupAt time.Time) (Reservation, error) {
	s.loggerOrDefault().Debug("reservation exists, updating pickup",
		zap.String("operation", opReserveAnnouncement),
		zap.String(fieldActorID, actor.ID),
		zap.String("announcement_id", announcementID))
	return s.UpdateReservation(ctx, actor, announcementID, pickupAt)
}

// ReservationDetail returns a reservation and its announcement to either party.
func (s *Service) ReservationDetail(ctx context.Context, actor Actor, id string) (ReservationDetail, error) {
	if err := s.ready(opReservationDetail); err != nil {
		return ReservationDetail{}, err
	}
	db := s.db.WithContext(ctx)
	reservation, err := load[Reservation](db, CollectionReservations, id)
	if err != nil {
		return ReservationDetail{}, s.lookupFailure(opReservationDetail, id, err)
	}
	if !isParty(actor, reservation.RestaurantID, reservation.AssociationID) {
		return ReservationDetail{}, ErrForbidden
	}

	detail := ReservationDetail{Reservation: reservation}
	announcement, err := load[Announcement](db, CollectionAnnouncements, reservation.AnnouncementID)
	switch {
	case err == nil:
		detail.Announcement = &announcement
	case !errors.Is(err, ErrNotFound):
		return ReservationDetail{}, s.lookupFailure(opReservationDetail, reservation.AnnouncementID, err)
	}
	return detail, nil
}

func isParty(actor Actor, restaurantID, associationID string) bool {
	if actor.ID == "" {
		return false
	}
	return actor.ID == restaurantID || actor.ID == associationID
}
