package ledger

import (
	"cmp"
	"context"
	"slices"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateNeed = "ledger.create_need"
	opUpdateNeed = "ledger.update_need"
	opDeleteNeed = "ledger.delete_need"
	opReadNeed   = "ledger.need"
	opOpenNeeds  = "ledger.open_needs"

	columnNeedCount = "need_count"
)

func (s *Service) CreateNeed(ctx context.Context, actor Actor, input NeedInput) (Need, error) {
	if err := s.ready(opCreateNeed); err != nil {
		return Need{}, err
	}
	if err := requireRole(actor, RoleAssociation); err != nil {
		return Need{}, err
	}

	input = input.normalized()
	if err := Validate(input); err != nil {
		return Need{}, err
	}

	id, err := s.newID(opCreateNeed)
	if err != nil {
		return Need{}, err
	}

	now := s.now()
	need := Need{
		ID:                 id,
		OwnerID:            actor.ID,
		RequestedItem:      input.RequestedItem,
		Quantity:           input.Quantity,
		Category:           input.Category,
		Urgency:            input.Urgency,
		TargetAudience:     input.TargetAudience,
		RespondingActorIDs: []string{},
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&need).Error; err != nil {
			return s.fail(opCreateNeed, reasonInsertFailed, err,
				zap.String(fieldActorID, actor.ID))
		}
		if err := adjustCounter(tx, actor.ID, columnNeedCount, 1); err != nil {
			return s.fail(opCreateNeed, reasonCounterFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String(fieldDocumentID, id))
		}
		return nil
	})
	if err != nil {
		return Need{}, s.settle(opCreateNeed, err)
	}

	s.publish(CollectionNeeds, id, feed.EventInserted, actor.ID)
	return need, nil
}

// UpdateNeed rewrites the editable fields of an owned need. Responders are preserved.
func (s *Service) UpdateNeed(ctx context.Context, actor Actor, id string, input NeedInput) (Need, error) {
	if err := s.ready(opUpdateNeed); err != nil {
		return Need{}, err
	}
	if err := requireRole(actor, RoleAssociation); err != nil {
		return Need{}, err
	}

	input = input.normalized()
	if err := Validate(input); err != nil {
		return Need{}, err
	}

	now := s.now()
	var updated Need
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[Need](tx, CollectionNeeds, id)
		if err != nil {
			return s.lookupFailure(opUpdateNeed, id, err)
		}
		if existing.OwnerID != actor.ID {
			return ErrForbidden
		}

		updated = existing
		updated.RequestedItem = input.RequestedItem
		updated.Quantity = input.Quantity
		updated.Category = input.Category
		updated.Urgency = input.Urgency
		updated.TargetAudience = input.TargetAudience
		updated.Version = existing.Version + 1
		updated.UpdatedAt = now

		err = casUpdate(tx, &updated, existing.Version,
			"requested_item", "quantity", "category", "urgency", "target_audience")
		if err != nil {
			return s.updateFailure(opUpdateNeed, id, err)
		}
		return nil
	})
	if err != nil {
		return Need{}, s.settle(opUpdateNeed, err)
	}

	s.publish(CollectionNeeds, id, feed.EventUpdated, actor.ID)
	return updated, nil
}

func (s *Service) DeleteNeed(ctx context.Context, actor Actor, id string) error {
	if err := s.ready(opDeleteNeed); err != nil {
		return err
	}
	if err := requireRole(actor, RoleAssociation); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := load[Need](tx, CollectionNeeds, id)
		if err != nil {
			return s.lookupFailure(opDeleteNeed, id, err)
		}
		if existing.OwnerID != actor.ID {
			return ErrForbidden
		}
		result := tx.Where("id = ? AND version = ?", id, existing.Version).Delete(&Need{})
		if result.Error != nil {
			return s.fail(opDeleteNeed, reasonDeleteFailed, result.Error,
				zap.String(fieldDocumentID, id))
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if err := adjustCounter(tx, actor.ID, columnNeedCount, -1); err != nil {
			return s.fail(opDeleteNeed, reasonCounterFailed, err,
				zap.String(fieldActorID, actor.ID),
				zap.String(fieldDocumentID, id))
		}
		return nil
	})
	if err != nil {
		return s.settle(opDeleteNeed, err)
	}

	s.publish(CollectionNeeds, id, feed.EventDeleted, actor.ID)
	return nil
}

func (s *Service) Need(ctx context.Context, id string) (Need, error) {
	if err := s.ready(opReadNeed); err != nil {
		return Need{}, err
	}
	need, err := load[Need](s.db.WithContext(ctx), CollectionNeeds, id)
	if err != nil {
		return Need{}, s.lookupFailure(opReadNeed, id, err)
	}
	return need, nil
}

// OpenNeeds lists the needs a restaurant has not answered yet, most urgent first.
func (s *Service) OpenNeeds(ctx context.Context, actor Actor) ([]Need, error) {
	if err := s.ready(opOpenNeeds); err != nil {
		return nil, err
	}
	if err := requireRole(actor, RoleRestaurant); err != nil {
		return nil, err
	}

	var needs []Need
	err := s.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Find(&needs).Error
	if err != nil {
		return nil, s.fail(opOpenNeeds, reasonQueryFailed, err,
			zap.String(fieldActorID, actor.ID))
	}

	open := slices.DeleteFunc(needs, func(need Need) bool {
		return need.AnsweredBy(actor.ID)
	})
	slices.SortStableFunc(open, func(left, right Need) int {
		return cmp.Compare(left.Urgency.rank(), right.Urgency.rank())
	})
	return open, nil
}
