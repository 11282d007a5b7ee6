package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	restaurant       = Actor{ID: "restaurant-1", Role: RoleRestaurant}
	otherRestaurant  = Actor{ID: "restaurant-2", Role: RoleRestaurant}
	association      = Actor{ID: "association-1", Role: RoleAssociation}
	otherAssociation = Actor{ID: "association-2", Role: RoleAssociation}
)

var testEpoch = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("doc-%04d", g.next), nil
}

type testLedger struct {
	service *Service
	db      *gorm.DB
	clock   *testClock
	feed    *feed.Dispatcher
}

func newTestLedger(t *testing.T) testLedger {
	return newTestLedgerWithLogger(t, nil)
}

func newTestLedgerWithLogger(t *testing.T, logger *zap.Logger) testLedger {
	t.Helper()

	dsn := fmt.Sprintf("file:foodshare_ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: testEpoch}
	dispatcher := feed.NewDispatcher(16)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequentialIDs{},
		Feed:       dispatcher,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to construct ledger service: %v", err)
	}

	for _, actor := range []Actor{restaurant, otherRestaurant, association, otherAssociation} {
		profile := ActorProfile{
			ID:                 actor.ID,
			Role:               actor.Role,
			Email:              actor.ID + "@example.org",
			DisplayName:        actor.ID,
			RegistrationNumber: "REG-" + actor.ID,
			CreatedAt:          testEpoch,
			UpdatedAt:          testEpoch,
		}
		if err := db.Create(&profile).Error; err != nil {
			t.Fatalf("failed to seed profile %s: %v", actor.ID, err)
		}
	}

	return testLedger{service: service, db: db, clock: clock, feed: dispatcher}
}

func breadInput(expiresIn time.Duration) AnnouncementInput {
	return AnnouncementInput{
		OfferedItem:    "bread",
		Quantity:       "10",
		Category:       "bakery",
		Description:    "day-old baguettes",
		ExpirationDate: testEpoch.Add(expiresIn),
	}
}

func soupNeed(urgency Urgency) NeedInput {
	return NeedInput{
		RequestedItem:  "soup",
		Quantity:       "40 portions",
		Category:       "prepared_meals",
		Urgency:        urgency,
		TargetAudience: "night shelter",
	}
}

func (l testLedger) mustAnnouncement(t *testing.T, actor Actor, input AnnouncementInput) Announcement {
	t.Helper()
	announcement, err := l.service.CreateAnnouncement(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("unexpected create announcement error: %v", err)
	}
	return announcement
}

func (l testLedger) mustNeed(t *testing.T, actor Actor, input NeedInput) Need {
	t.Helper()
	need, err := l.service.CreateNeed(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("unexpected create need error: %v", err)
	}
	return need
}

func (l testLedger) mustProfile(t *testing.T, actorID string) ActorProfile {
	t.Helper()
	var profile ActorProfile
	if err := l.db.Where("id = ?", actorID).Take(&profile).Error; err != nil {
		t.Fatalf("failed to load profile %s: %v", actorID, err)
	}
	return profile
}

func (l testLedger) countReservations(t *testing.T, announcementID, associationID string) int64 {
	t.Helper()
	var count int64
	err := l.db.Model(&Reservation{}).
		Where("announcement_id = ? AND association_id = ?", announcementID, associationID).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count reservations: %v", err)
	}
	return count
}
