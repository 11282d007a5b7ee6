package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListForActor = "ledger.list_for_actor"
	opWatch        = "ledger.watch"
)

// RecordChange is one incremental notification of a Watch.
// Record is nil for deletions.
type RecordChange struct {
	Type   feed.EventType `json:"type"`
	ID     string         `json:"id"`
	Record Record         `json:"record,omitempty"`
}

// ListForActor returns every record of kind the actor is a party to, oldest first.
func (s *Service) ListForActor(ctx context.Context, actor Actor, kind Kind) ([]Record, error) {
	if err := s.ready(opListForActor); err != nil {
		return nil, err
	}
	column, err := partyColumn(actor, kind)
	if err != nil {
		return nil, err
	}
	records, err := listRecords(s.db.WithContext(ctx), kind, column, actor.ID)
	if err != nil {
		return nil, s.fail(opListForActor, reasonQueryFailed, err,
			zap.String(fieldActorID, actor.ID),
			zap.String("kind", string(kind)))
	}
	return records, nil
}

// Watch is a live ListForActor: a snapshot followed by changes to matching documents.
type Watch struct {
	Snapshot []Record

	changes      chan RecordChange
	subscription *feed.Subscription
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu  sync.Mutex
	err error
}

// Watch subscribes to changes before reading the snapshot, so no committed write is missed.
// A change may repeat a document already present in the snapshot.
func (s *Service) Watch(ctx context.Context, actor Actor, kind Kind) (*Watch, error) {
	if err := s.ready(opWatch); err != nil {
		return nil, err
	}
	column, err := partyColumn(actor, kind)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	subscription := s.feed.Subscribe(watchCtx, actor.ID)

	db := s.db.WithContext(watchCtx)
	snapshot, err := listRecords(db, kind, column, actor.ID)
	if err != nil {
		cancel()
		subscription.Close()
		return nil, s.fail(opWatch, reasonQueryFailed, err,
			zap.String(fieldActorID, actor.ID),
			zap.String("kind", string(kind)))
	}

	watch := &Watch{
		Snapshot:     snapshot,
		changes:      make(chan RecordChange),
		subscription: subscription,
		cancel:       cancel,
	}
	go s.follow(watchCtx, db, watch, actor, kind, column)
	return watch, nil
}

func (s *Service) follow(ctx context.Context, db *gorm.DB, watch *Watch, actor Actor, kind Kind, column string) {
	defer close(watch.changes)
	collection := kind.collection()
	for change := range watch.subscription.C() {
		if change.Collection != collection {
			continue
		}

		recordChange := RecordChange{Type: change.Type, ID: change.DocumentID}
		if change.Type != feed.EventDeleted {
			record, err := loadRecord(db, kind, change.DocumentID)
			switch {
			case errors.Is(err, ErrNotFound):
				recordChange.Type = feed.EventDeleted
			case err != nil:
				if ctx.Err() == nil {
					watch.setErr(s.fail(opWatch, reasonLookupFailed, err,
						zap.String(fieldActorID, actor.ID),
						zap.String(fieldDocumentID, change.DocumentID)))
				}
				return
			case partyOf(record, column) != actor.ID:
				continue
			default:
				recordChange.Record = record
			}
		}

		select {
		case watch.changes <- recordChange:
		case <-ctx.Done():
			return
		}
	}
	watch.setErr(watch.subscription.Err())
}

// Changes delivers notifications until the watch ends. The channel is closed when the
// context is cancelled, Close is called, or the watcher fell behind.
func (w *Watch) Changes() <-chan RecordChange {
	return w.changes
}

// Err reports why the change channel closed: feed.ErrLagged when the watcher fell behind,
// a *StoreError when a document could not be re-read, nil otherwise.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Watch) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.subscription.Close()
	})
}

func (w *Watch) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func partyColumn(actor Actor, kind Kind) (string, error) {
	if actor.ID == "" {
		return "", &ValidationError{Field: "actor_id", Reason: "is required"}
	}
	if !actor.Role.Valid() {
		return "", &ValidationError{Field: "role", Reason: "must be restaurant or association"}
	}
	switch kind {
	case KindAnnouncement, KindNeed:
		return "owner_id", nil
	case KindReservation, KindHelpCommitment:
		if actor.Role == RoleRestaurant {
			return "restaurant_id", nil
		}
		return "association_id", nil
	default:
		return "", &ValidationError{Field: "kind", Reason: "unknown record kind"}
	}
}

func partyOf(record Record, column string) string {
	switch typed := record.(type) {
	case Announcement:
		return typed.OwnerID
	case Need:
		return typed.OwnerID
	case Reservation:
		if column == "restaurant_id" {
			return typed.RestaurantID
		}
		return typed.AssociationID
	case HelpCommitment:
		if column == "restaurant_id" {
			return typed.RestaurantID
		}
		return typed.AssociationID
	}
	return ""
}

func listRecords(db *gorm.DB, kind Kind, column, actorID string) ([]Record, error) {
	query := db.Where(column+" = ?", actorID).Order("created_at ASC").Order("id ASC")
	switch kind {
	case KindAnnouncement:
		return findRecords[Announcement](query)
	case KindNeed:
		return findRecords[Need](query)
	case KindReservation:
		return findRecords[Reservation](query)
	case KindHelpCommitment:
		return findRecords[HelpCommitment](query)
	}
	return nil, &ValidationError{Field: "kind", Reason: "unknown record kind"}
}

func findRecords[T Record](query *gorm.DB) ([]Record, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row)
	}
	return records, nil
}

func loadRecord(db *gorm.DB, kind Kind, id string) (Record, error) {
	collection := kind.collection()
	switch kind {
	case KindAnnouncement:
		return loadAs[Announcement](db, collection, id)
	case KindNeed:
		return loadAs[Need](db, collection, id)
	case KindReservation:
		return loadAs[Reservation](db, collection, id)
	case KindHelpCommitment:
		return loadAs[HelpCommitment](db, collection, id)
	}
	return nil, &ValidationError{Field: "kind", Reason: "unknown record kind"}
}

func loadAs[T Record](db *gorm.DB, collection, id string) (Record, error) {
	document, err := load[T](db, collection, id)
	if err != nil {
		return nil, err
	}
	return document, nil
}
