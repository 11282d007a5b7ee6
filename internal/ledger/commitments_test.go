package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCommitHelpAddsResponderOnce(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	need := fixture.mustNeed(t, association, soupNeed(UrgencyUrgent))

	first, err := fixture.service.CommitHelp(ctx, restaurant, need.ID, testEpoch.Add(time.Hour), "10 portions")
	if err != nil {
		t.Fatalf("unexpected first commit error: %v", err)
	}
	if first.Status != StatusPending || first.AssociationID != association.ID || first.RestaurantID != restaurant.ID {
		t.Fatalf("unexpected commitment: %#v", first)
	}

	stored, err := fixture.service.Need(ctx, need.ID)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !stored.AnsweredBy(restaurant.ID) {
		t.Fatalf("expected restaurant in responders, got %v", stored.RespondingActorIDs)
	}
	sizeAfterFirst := len(stored.RespondingActorIDs)

	if _, err := fixture.service.CommitHelp(ctx, restaurant, need.ID, testEpoch.Add(2*time.Hour), "5 portions"); err != nil {
		t.Fatalf("unexpected second commit error: %v", err)
	}
	stored, err = fixture.service.Need(ctx, need.ID)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(stored.RespondingActorIDs) != sizeAfterFirst {
		t.Fatalf("expected responder set size %d, got %v", sizeAfterFirst, stored.RespondingActorIDs)
	}

	if _, err := fixture.service.CommitHelp(ctx, otherRestaurant, need.ID, testEpoch.Add(time.Hour), "3"); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	stored, _ = fixture.service.Need(ctx, need.ID)
	if len(stored.RespondingActorIDs) != sizeAfterFirst+1 {
		t.Fatalf("expected second restaurant to join the set, got %v", stored.RespondingActorIDs)
	}
}

func TestCommitHelpRejectsInvalidRequests(t *testing.T) {
	fixture := newTestLedger(t)
	ctx := context.Background()
	need := fixture.mustNeed(t, association, soupNeed(UrgencyUrgent))

	if _, err := fixture.service.CommitHelp(ctx, association, need.ID, testEpoch.Add(time.Hour), "1"); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("expected ErrWrongRole, got %v", err)
	}
	if _, err := fixture.service.CommitHelp(ctx, restaurant, need.ID, testEpoch.Add(time.Hour), "  "); !fieldError(err, "committed_quantity") {
		t.Fatalf("expected committed_quantity validation error, got %v", err)
	}
	if _, err := fixture.service.CommitHelp(ctx, restaurant, need.ID, testEpoch, "1"); !fieldError(err, "pickup_at") {
		t.Fatalf("expected pickup_at validation error, got %v", err)
	}
	if _, err := fixture.service.CommitHelp(ctx, restaurant, "missing", testEpoch.Add(time.Hour), "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var count int64
	fixture.db.Model(&HelpCommitment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no commitment written, got %d", count)
	}
}
