package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAnnouncementThenReadReturnsAvailableDocument(t *testing.T) {
	fixture := newTestLedger(t)
	input := breadInput(72 * time.Hour)

	created := fixture.mustAnnouncement(t, restaurant, input)
	stored, err := fixture.service.Announcement(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}

	if stored.State != AnnouncementAvailable {
		t.Fatalf("expected available state, got %s", stored.State)
	}
	if stored.OwnerID != restaurant.ID {
		t.Fatalf("expected owner %s, got %s", restaurant.ID, stored.OwnerID)
	}
	if stored.OfferedItem != input.OfferedItem || stored.Quantity != input.Quantity ||
		stored.Category != input.Category || stored.Description != input.Description {
		t.Fatalf("stored fields differ from input: %#v", stored)
	}
	if !stored.ExpirationDate.Equal(input.ExpirationDate) {
		t.Fatalf("expected expiration %s, got %s", input.ExpirationDate, stored.ExpirationDate)
	}
	if !stored.CreatedAt.Equal(testEpoch) {
		t.Fatalf("expected server-assigned created_at %s, got %s", testEpoch, stored.CreatedAt)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
	if profile := fixture.mustProfile(t, restaurant.ID); profile.AnnouncementCount != 1 {
		t.Fatalf("expected announcement_count 1, got %d", profile.AnnouncementCount)
	}
}

func TestCreateAnnouncementRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*AnnouncementInput)
		field  string
	}{
		{name: "missing item", mutate: func(in *AnnouncementInput) { in.OfferedItem = "   " }, field: "offered_item"},
		{name: "missing quantity", mutate: func(in *AnnouncementInput) { in.Quantity = "" }, field: "quantity"},
		{name: "unknown category", mutate: func(in *AnnouncementInput) { in.Category = "furniture" }, field: "category"},
		{name: "missing expiration", mutate: func(in *AnnouncementInput) { in.ExpirationDate = time.Time{} }, field: "expiration_date"},
		{name: "expiration now", mutate: func(in *AnnouncementInput) { in.ExpirationDate = testEpoch }, field: "expiration_date"},
		{name: "expiration past", mutate: func(in *AnnouncementInput) { in.ExpirationDate = testEpoch.Add(-time.Hour) }, field: "expiration_date"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newTestLedger(t)
			input := breadInput(24 * time.Hour)
			testCase.mutate(&input)

			_, err := fixture.service.CreateAnnouncement(context.Background(), restaurant, input)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validation.Field != testCase.field {
				t.Fatalf("expected field %s, got %s", testCase.field, validation.Field)
			}

			var count int64
			fixture.db.Model(&Announcement{}).Count(&count)
			if count != 0 {
				t.Fatalf("expected no write, found %d announcements", count)
			}
		})
	}
}

func TestCreateAnnouncementRequiresRestaurant(t *testing.T) {
	fixture := newTestLedger(t)
	_, err := fixture.service.CreateAnnouncement(context.Background(), association, breadInput(time.Hour))
	if !errors.Is(err, ErrWrongRole) {
		t.Fatalf("expected ErrWrongRole, got %v", err)
	}
}

func TestUpdateAndDeleteAnnouncementEnforceOwnership(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	announcement := fixture.mustAnnouncement(t, restaurant, breadInput(24*time.Hour))

	if _, err := fixture.service.UpdateAnnouncement(ctx, otherRestaurant, announcement.ID, breadInput(48*time.Hour)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on update, got %v", err)
	}
	if err := fixture.service.DeleteAnnouncement(ctx, otherRestaurant, announcement.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}

	stored, err := fixture.service.Announcement(ctx, announcement.ID)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("expected untouched announcement, got version %d", stored.Version)
	}
}

func TestUpdateAnnouncementBumpsVersionAndRevivesExpired(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	announcement := fixture.mustAnnouncement(t, restaurant, breadInput(time.Hour))

	fixture.clock.Advance(2 * time.Hour)
	expired, err := fixture.service.ExpireAnnouncements(ctx)
	if err != nil {
		t.Fatalf("unexpected expire error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired announcement, got %d", expired)
	}

	input := breadInput(24 * time.Hour)
	input.Quantity = "6"
	updated, err := fixture.service.UpdateAnnouncement(ctx, restaurant, announcement.ID, input)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.State != AnnouncementAvailable {
		t.Fatalf("expected available state after new expiration, got %s", updated.State)
	}
	if updated.Version != 3 {
		t.Fatalf("expected version 3 after expire and update, got %d", updated.Version)
	}

	stored, err := fixture.service.Announcement(ctx, announcement.ID)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if stored.Quantity != "6" || stored.State != AnnouncementAvailable {
		t.Fatalf("update not persisted: %#v", stored)
	}
}

func TestDeleteAnnouncementKeepsReservationsAsOrphans(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	announcement := fixture.mustAnnouncement(t, restaurant, breadInput(72*time.Hour))
	reservation, err := fixture.service.CreateReservation(ctx, association, announcement.ID, testEpoch.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected reservation error: %v", err)
	}

	if err := fixture.service.DeleteAnnouncement(ctx, restaurant, announcement.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := fixture.service.Announcement(ctx, announcement.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if profile := fixture.mustProfile(t, restaurant.ID); profile.AnnouncementCount != 0 {
		t.Fatalf("expected announcement_count 0, got %d", profile.AnnouncementCount)
	}

	detail, err := fixture.service.ReservationDetail(ctx, association, reservation.ID)
	if err != nil {
		t.Fatalf("unexpected detail error: %v", err)
	}
	if detail.Announcement != nil {
		t.Fatalf("expected orphaned reservation without announcement")
	}
	if detail.Reservation.Status != StatusPending {
		t.Fatalf("expected reservation to survive, got status %s", detail.Reservation.Status)
	}
}

func TestDeleteMissingAnnouncementReturnsNotFound(t *testing.T) {
	fixture := newTestLedger(t)
	err := fixture.service.DeleteAnnouncement(context.Background(), restaurant, "missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Collection != CollectionAnnouncements || notFound.ID != "missing" {
		t.Fatalf("unexpected not found details: %#v", notFound)
	}
}

func TestAvailableAnnouncementsSkipsExpiredOffers(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	short := fixture.mustAnnouncement(t, restaurant, breadInput(time.Hour))
	fixture.clock.Advance(time.Second)
	long := fixture.mustAnnouncement(t, otherRestaurant, breadInput(48*time.Hour))

	available, err := fixture.service.AvailableAnnouncements(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(available) != 2 || available[0].ID != short.ID || available[1].ID != long.ID {
		t.Fatalf("expected both announcements oldest first, got %#v", available)
	}

	fixture.clock.Advance(2 * time.Hour)
	available, err = fixture.service.AvailableAnnouncements(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(available) != 1 || available[0].ID != long.ID {
		t.Fatalf("expected only the unexpired announcement, got %#v", available)
	}
}

func TestExpireAnnouncementsMarksPastOffers(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	short := fixture.mustAnnouncement(t, restaurant, breadInput(time.Hour))
	long := fixture.mustAnnouncement(t, restaurant, breadInput(48*time.Hour))

	fixture.clock.Advance(time.Hour)
	expired, err := fixture.service.ExpireAnnouncements(ctx)
	if err != nil {
		t.Fatalf("unexpected expire error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired announcement, got %d", expired)
	}

	stored, _ := fixture.service.Announcement(ctx, short.ID)
	if stored.State != AnnouncementExpired {
		t.Fatalf("expected expired state, got %s", stored.State)
	}
	stored, _ = fixture.service.Announcement(ctx, long.ID)
	if stored.State != AnnouncementAvailable {
		t.Fatalf("expected long announcement to stay available, got %s", stored.State)
	}

	again, err := fixture.service.ExpireAnnouncements(ctx)
	if err != nil {
		t.Fatalf("unexpected expire error: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected second sweep to change nothing, got %d", again)
	}
}
