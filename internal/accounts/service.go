package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates another account already signs in with the email.
	ErrEmailTaken = errors.New("accounts: email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")

	errMissingDatabase = errors.New("database handle is required")
)

// DuplicateRegistrationError reports a registration number already used by another actor.
type DuplicateRegistrationError struct {
	RegistrationNumber string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("accounts: registration number %q already registered", e.RegistrationNumber)
}

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const maxPasswordBytes = 72

const (
	opServiceNew   = "accounts.service.new"
	opRegister     = "accounts.register"
	opAuthenticate = "accounts.authenticate"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// RegistrationInput is the sign-up form of a restaurant or association.
type RegistrationInput struct {
	Email              string      `json:"email" validate:"required,email,max=320"`
	Password           string      `json:"password" validate:"required,min=8,max=72"`
	Role               ledger.Role `json:"role" validate:"required,role"`
	DisplayName        string      `json:"display_name" validate:"required,max=255"`
	RegistrationNumber string      `json:"registration_number" validate:"required,max=64"`
	Phone              string      `json:"phone" validate:"max=64"`
	Address            string      `json:"address" validate:"max=512"`
}

func (in RegistrationInput) normalized() RegistrationInput {
	in.Email = normalizeEmail(in.Email)
	in.Role = ledger.Role(strings.TrimSpace(string(in.Role)))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.RegistrationNumber = strings.TrimSpace(in.RegistrationNumber)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ledger.IDProvider
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
	Logger   *zap.Logger
}

// Service registers actors and verifies their credentials.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider ledger.IDProvider
	hashCost   int
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ledger.NewUUIDProvider()
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
		hashCost:   hashCost,
		logger:     logger,
	}, nil
}

// Register creates the credential and the actor profile together.
func (s *Service) Register(ctx context.Context, input RegistrationInput) (ledger.ActorProfile, error) {
	input = input.normalized()
	if err := ledger.Validate(input); err != nil {
		return ledger.ActorProfile{}, err
	}
	// validator counts runes; bcrypt rejects anything past 72 bytes.
	if len(input.Password) > maxPasswordBytes {
		return ledger.ActorProfile{}, &ledger.ValidationError{Field: "password", Reason: "exceeds 72 bytes"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return ledger.ActorProfile{}, s.fail(opRegister, "hash_failed", err)
	}
	actorID, err := s.idProvider.NewID()
	if err != nil {
		return ledger.ActorProfile{}, s.fail(opRegister, "id_generation_failed", err)
	}

	now := s.now().UTC()
	profile := ledger.ActorProfile{
		ID:                 actorID,
		Role:               input.Role,
		Email:              input.Email,
		DisplayName:        input.DisplayName,
		Phone:              input.Phone,
		Address:            input.Address,
		RegistrationNumber: input.RegistrationNumber,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	credential := Credential{
		ActorID:      actorID,
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ledger.ActorProfile{}).
			Where("registration_number = ?", input.RegistrationNumber).
			Count(&count).Error; err != nil {
			return s.fail(opRegister, "registration_lookup_failed", err)
		}
		if count > 0 {
			return &DuplicateRegistrationError{RegistrationNumber: input.RegistrationNumber}
		}
		if err := tx.Model(&Credential{}).Where("email = ?", input.Email).Count(&count).Error; err != nil {
			return s.fail(opRegister, "email_lookup_failed", err)
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(&credential).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return s.fail(opRegister, "credential_insert_failed", err)
		}
		if err := tx.Create(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &DuplicateRegistrationError{RegistrationNumber: input.RegistrationNumber}
			}
			return s.fail(opRegister, "profile_insert_failed", err)
		}
		return nil
	})
	if err != nil {
		var duplicate *DuplicateRegistrationError
		var serviceErr *ServiceError
		if errors.As(err, &duplicate) || errors.Is(err, ErrEmailTaken) || errors.As(err, &serviceErr) {
			return ledger.ActorProfile{}, err
		}
		return ledger.ActorProfile{}, s.fail(opRegister, "transaction_failed", err)
	}

	s.logger.Info("actor registered",
		zap.String("actor_id", actorID),
		zap.String("role", string(input.Role)))
	return profile, nil
}

// Authenticate returns the actor behind an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (ledger.Actor, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return ledger.Actor{}, ErrInvalidCredentials
	}

	db := s.db.WithContext(ctx)
	var credential Credential
	err := db.Where("email = ?", email).Take(&credential).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return ledger.Actor{}, s.fail(opAuthenticate, "credential_lookup_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(password)); err != nil {
		return ledger.Actor{}, ErrInvalidCredentials
	}

	var profile ledger.ActorProfile
	err = db.Where("id = ?", credential.ActorID).Take(&profile).Error
	if err != nil {
		return ledger.Actor{}, s.fail(opAuthenticate, "profile_lookup_failed", err,
			zap.String("actor_id", credential.ActorID))
	}
	return profile.Actor(), nil
}

func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("accounts service error", attrs...)
	return newServiceError(operation, reason, err)
}
