package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"go.uber.org/zap"
)

var (
	errMissingLedger   = errors.New("seed: ledger service required")
	errMissingAccounts = errors.New("seed: accounts service required")
)

type Config struct {
	Ledger   *ledger.Service
	Accounts *accounts.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Report counts what a seeding run wrote.
type Report struct {
	AccountsCreated int
	AccountsSkipped int
	Announcements   int
	Needs           int
}

type Seeder struct {
	ledger   *ledger.Service
	accounts *accounts.Service
	now      func() time.Time
	logger   *zap.Logger
}

func NewSeeder(cfg Config) (*Seeder, error) {
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	if cfg.Accounts == nil {
		return nil, errMissingAccounts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{ledger: cfg.Ledger, accounts: cfg.Accounts, now: clock, logger: logger}, nil
}

// Apply registers every fixture account and publishes its documents.
// Accounts already registered by email or registration number are skipped together with their documents,
// so applying the same file twice writes nothing the second time.
func (s *Seeder) Apply(ctx context.Context, fixtures Fixtures) (Report, error) {
	var report Report
	for _, account := range fixtures.Accounts {
		profile, err := s.accounts.Register(ctx, accounts.RegistrationInput{
			Email:              account.Email,
			Password:           account.Password,
			Role:               ledger.Role(account.Role),
			DisplayName:        account.DisplayName,
			RegistrationNumber: account.RegistrationNumber,
			Phone:              account.Phone,
			Address:            account.Address,
		})
		var duplicate *accounts.DuplicateRegistrationError
		if errors.Is(err, accounts.ErrEmailTaken) || errors.As(err, &duplicate) {
			report.AccountsSkipped++
			s.logger.Info("seed account already registered",
				zap.String("email", account.Email),
				zap.String("registration_number", account.RegistrationNumber))
			continue
		}
		if err != nil {
			return report, fmt.Errorf("register %s: %w", account.Email, err)
		}
		report.AccountsCreated++
		actor := profile.Actor()

		for _, announcement := range account.Announcements {
			_, err := s.ledger.CreateAnnouncement(ctx, actor, ledger.AnnouncementInput{
				OfferedItem:    announcement.OfferedItem,
				Quantity:       announcement.Quantity,
				Category:       announcement.Category,
				Description:    announcement.Description,
				ExpirationDate: s.now().Add(announcement.ExpiresIn),
			})
			if err != nil {
				return report, fmt.Errorf("announcement %q of %s: %w", announcement.OfferedItem, account.Email, err)
			}
			report.Announcements++
		}

		for _, need := range account.Needs {
			_, err := s.ledger.CreateNeed(ctx, actor, ledger.NeedInput{
				RequestedItem:  need.RequestedItem,
				Quantity:       need.Quantity,
				Category:       need.Category,
				Urgency:        ledger.Urgency(need.Urgency),
				TargetAudience: need.TargetAudience,
			})
			if err != nil {
				return report, fmt.Errorf("need %q of %s: %w", need.RequestedItem, account.Email, err)
			}
			report.Needs++
		}
	}

	s.logger.Info("seed applied",
		zap.Int("accounts_created", report.AccountsCreated),
		zap.Int("accounts_skipped", report.AccountsSkipped),
		zap.Int("announcements", report.Announcements),
		zap.Int("needs", report.Needs))
	return report, nil
}
