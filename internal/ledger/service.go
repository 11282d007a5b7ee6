package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

const (
	opServiceNew          = "ledger.service.new"
	reasonMissingDatabase = "missing_database"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonLookupFailed    = "lookup_failed"
	reasonCounterFailed   = "counter_failed"
	reasonIDFailed        = "id_generation_failed"
	reasonTransaction     = "transaction_failed"
	fieldActorID          = "actor_id"
	fieldDocumentID       = "document_id"
)

// ChangeFeed is the live-subscription capability of the document store.
type ChangeFeed interface {
	Publish(change feed.Change)
	Subscribe(ctx context.Context, partyID string) *feed.Subscription
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Feed       ChangeFeed
	Logger     *zap.Logger
}

// Service is the exchange ledger.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	feed       ChangeFeed
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	changeFeed := cfg.Feed
	if changeFeed == nil {
		changeFeed = feed.NewDispatcher(0)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		feed:       changeFeed,
		logger:     logger,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newStoreError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (s *Service) newID(operation string) (string, error) {
	if s.idProvider == nil {
		return "", s.fail(operation, reasonIDFailed, errMissingIDProvider)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return "", s.fail(operation, reasonIDFailed, err)
	}
	return id, nil
}

// fail logs a store failure once and converts it to a *StoreError.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newStoreError(operation, reason, err)
}

// settle passes ledger outcomes through and converts anything else into a *StoreError.
func (s *Service) settle(operation string, err error) error {
	if err == nil || domainError(err) {
		return err
	}
	return s.fail(operation, reasonTransaction, err)
}

func (s *Service) publish(collection, documentID string, eventType feed.EventType, partyIDs ...string) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(feed.Change{
		Collection: collection,
		DocumentID: documentID,
		Type:       eventType,
		PartyIDs:   partyIDs,
		Timestamp:  s.now(),
	})
}

func requireRole(actor Actor, role Role) error {
	if actor.ID == "" {
		return &ValidationError{Field: "actor_id", Reason: "is required"}
	}
	if actor.Role != role {
		return ErrWrongRole
	}
	return nil
}

// load reads one document by id inside tx.
func load[T any](tx *gorm.DB, collection, id string) (T, error) {
	var document T
	err := tx.Where("id = ?", id).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document, &NotFoundError{Collection: collection, ID: id}
	}
	return document, err
}

// casUpdate writes the selected columns of document only while the stored row
// still carries the expected version. document must already hold the next version.
func casUpdate(tx *gorm.DB, document any, expected int64, columns ...string) error {
	columns = append(columns, "version", "updated_at")
	result := tx.Model(document).
		Where("version = ?", expected).
		Select(columns).
		Updates(document)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("ledger service error", attrs...)
}
