package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/feed"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
)

type streamEvent struct {
	name string
	data string
}

type eventReader struct {
	scanner *bufio.Scanner
}

func (r *eventReader) next(t *testing.T) streamEvent {
	t.Helper()
	var event streamEvent
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			event.data += strings.TrimPrefix(line, "data:")
		case line == "" && event.name != "":
			return event
		}
	}
	t.Fatalf("stream ended before next event: %v", r.scanner.Err())
	return event
}

// nextNamed skips heartbeats until an event with the given name arrives.
func (r *eventReader) nextNamed(t *testing.T, name string) streamEvent {
	t.Helper()
	for {
		event := r.next(t)
		if event.name == name {
			return event
		}
		if event.name != streamEventHeartbeat {
			t.Fatalf("expected %s event, got %s: %s", name, event.name, event.data)
		}
	}
}

func openStream(t *testing.T, server *httptest.Server, kind, token string) *eventReader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/records/"+kind+"/stream?access_token="+token, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() { _ = response.Body.Close() })
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status %d", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected content type %q", contentType)
	}
	return &eventReader{scanner: bufio.NewScanner(response.Body)}
}

func TestRecordStreamSendsSnapshotThenChanges(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.handler)
	t.Cleanup(server.Close)

	restaurantToken := api.register(t, "oven@example.com", ledger.RoleRestaurant, "RC-10")
	existing := api.do(t, http.MethodPost, "/announcements", restaurantToken, breadAnnouncement())
	var first ledger.Announcement
	decode(t, existing, &first)

	reader := openStream(t, server, "announcement", restaurantToken)

	snapshot := reader.nextNamed(t, streamEventSnapshot)
	var items struct {
		Items []ledger.Announcement `json:"items"`
	}
	if err := json.Unmarshal([]byte(snapshot.data), &items); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if len(items.Items) != 1 || items.Items[0].ID != first.ID {
		t.Fatalf("unexpected snapshot %#v", items.Items)
	}

	created := api.do(t, http.MethodPost, "/announcements", restaurantToken, breadAnnouncement())
	var second ledger.Announcement
	decode(t, created, &second)

	change := reader.nextNamed(t, streamEventRecordChange)
	var payload struct {
		Type   feed.EventType      `json:"type"`
		ID     string              `json:"id"`
		Record ledger.Announcement `json:"record"`
	}
	if err := json.Unmarshal([]byte(change.data), &payload); err != nil {
		t.Fatalf("failed to decode change: %v", err)
	}
	if payload.Type != feed.EventInserted || payload.ID != second.ID || payload.Record.OwnerID != first.OwnerID {
		t.Fatalf("unexpected change %#v", payload)
	}
}

func TestRecordStreamSendsHeartbeats(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.handler)
	t.Cleanup(server.Close)

	associationToken := api.register(t, "pantry@example.com", ledger.RoleAssociation, "AS-10")
	reader := openStream(t, server, "need", associationToken)

	reader.nextNamed(t, streamEventSnapshot)
	if event := reader.next(t); event.name != streamEventHeartbeat {
		t.Fatalf("expected heartbeat, got %s", event.name)
	}
}

func TestRecordStreamRejectsUnknownKind(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "grill@example.com", ledger.RoleRestaurant, "RC-11")

	recorder := api.do(t, http.MethodGet, "/records/invoice/stream", token, nil)
	payload := expectError(t, recorder, http.StatusBadRequest, "validation_failed")
	if payload.Field != "kind" {
		t.Fatalf("expected kind field, got %#v", payload)
	}
}
