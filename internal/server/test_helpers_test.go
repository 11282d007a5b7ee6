package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/auth"
	"github.com/MarcoPoloResearchLab/foodshare/internal/database"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"
)

var testEpoch = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(delta time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(delta)
	c.mu.Unlock()
}

type testAPI struct {
	handler http.Handler
	ledger  *ledger.Service
	clock   *testClock
}

func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIWithLogger(t, zap.NewNop())
}

func newTestAPIWithLogger(t *testing.T, logger *zap.Logger) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:foodshare_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock := &testClock{current: testEpoch}
	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: ledger.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	accountService, err := accounts.NewService(accounts.ServiceConfig{
		Database: db,
		Clock:    clock.Now,
		HashCost: bcrypt.MinCost,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to build accounts: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "foodshare-auth",
		Audience:      "foodshare-api",
		TokenTTL:      time.Hour,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Ledger:            ledgerService,
		Accounts:          accountService,
		Tokens:            issuer,
		Logger:            logger,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testAPI{handler: handler, ledger: ledgerService, clock: clock}
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	api.handler.ServeHTTP(recorder, request)
	return recorder
}

// register signs up an actor and returns its access token.
func (api *testAPI) register(t *testing.T, email string, role ledger.Role, registrationNumber string) string {
	t.Helper()
	recorder := api.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":               email,
		"password":            "correct-horse",
		"role":                role,
		"display_name":        email,
		"registration_number": registrationNumber,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("registration of %s failed: %d %s", email, recorder.Code, recorder.Body.String())
	}
	var response authResponsePayload
	decode(t, recorder, &response)
	if response.AccessToken == "" || response.TokenType != "Bearer" {
		t.Fatalf("unexpected auth response %#v", response)
	}
	return response.AccessToken
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
}

func expectError(t *testing.T, recorder *httptest.ResponseRecorder, status int, code string) errorPayload {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
	var payload errorPayload
	decode(t, recorder, &payload)
	if payload.Error != code {
		t.Fatalf("expected error %q, got %#v", code, payload)
	}
	return payload
}

func breadAnnouncement() map[string]any {
	return map[string]any{
		"offered_item":    "bread",
		"quantity":        "10 loaves",
		"category":        "bakery",
		"expiration_date": testEpoch.Add(72 * time.Hour),
	}
}
