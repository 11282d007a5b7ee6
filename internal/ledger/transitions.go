package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const opTransitionStatus = "ledger.transition_status"

// exchange is a record that follows the pending/confirmed/refused/archived lifecycle.
type exchange interface {
	Record
	exchangeParties() (restaurantID, associationID string)
	exchangeStatus() Status
	exchangeVersion() int64
	advance(next Status, at time.Time)
}

func (r *Reservation) exchangeParties() (string, string) { return r.RestaurantID, r.AssociationID }
func (r *Reservation) exchangeStatus() Status            { return r.Status }
func (r *Reservation) exchangeVersion() int64            { return r.Version }

func (r *Reservation) advance(next Status, at time.Time) {
	r.Status = next
	r.Version++
	r.UpdatedAt = at
}

func (c *HelpCommitment) exchangeParties() (string, string) { return c.RestaurantID, c.AssociationID }
func (c *HelpCommitment) exchangeStatus() Status            { return c.Status }
func (c *HelpCommitment) exchangeVersion() int64            { return c.Version }

func (c *HelpCommitment) advance(next Status, at time.Time) {
	c.Status = next
	c.Version++
	c.UpdatedAt = at
}

// TransitionStatus moves a reservation or help commitment along its lifecycle on behalf of
// either party. Archiving an archived record returns it unchanged.
func (s *Service) TransitionStatus(ctx context.Context, actor Actor, kind Kind, recordID string, next Status) (Record, error) {
	if err := s.ready(opTransitionStatus); err != nil {
		return nil, err
	}
	if actor.ID == "" {
		return nil, &ValidationError{Field: "actor_id", Reason: "is required"}
	}
	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}

	var record exchange
	switch kind {
	case KindReservation:
		record = &Reservation{}
	case KindHelpCommitment:
		record = &HelpCommitment{}
	default:
		return nil, &ValidationError{Field: "kind", Reason: "must be reservation or help_commitment"}
	}
	collection := kind.collection()

	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", recordID).Take(record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Collection: collection, ID: recordID}
		}
		if err != nil {
			return s.fail(opTransitionStatus, reasonLookupFailed, err,
				zap.String(fieldDocumentID, recordID))
		}

		restaurantID, associationID := record.exchangeParties()
		if !isParty(actor, restaurantID, associationID) {
			return ErrForbidden
		}

		current := record.exchangeStatus()
		if current == StatusArchived && next == StatusArchived {
			return nil
		}
		if !current.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		previous := record.exchangeVersion()
		record.advance(next, s.now())
		if err := casUpdate(tx, record, previous, "status"); err != nil {
			return s.updateFailure(opTransitionStatus, recordID, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, s.settle(opTransitionStatus, err)
	}

	if changed {
		restaurantID, associationID := record.exchangeParties()
		s.publish(collection, recordID, feed.EventUpdated, restaurantID, associationID)
	}
	return record, nil
}
