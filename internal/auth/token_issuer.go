package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningSecret = errors.New("token issuer: signing secret must be provided")
	ErrMissingIssuer        = errors.New("token issuer: issuer must be provided")
	ErrMissingAudience      = errors.New("token issuer: audience must be provided")
	ErrInvalidTTL           = errors.New("token issuer: token ttl must be positive")
	ErrMissingToken         = errors.New("token issuer: token required")
	ErrInvalidToken         = errors.New("token issuer: invalid token")
	ErrExpiredToken         = errors.New("token issuer: token expired")
	ErrInvalidActor         = errors.New("token issuer: actor id and role required")
)

const bearerPrefix = "Bearer "

// ActorClaims is the payload of an access token.
type ActorClaims struct {
	Role ledger.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the access token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates HS256 access tokens for signed-in actors.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, ErrMissingAudience
	}
	if cfg.TokenTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// IssueToken produces a signed JWT for the actor and its lifetime in seconds.
func (i *TokenIssuer) IssueToken(actor ledger.Actor) (string, int64, error) {
	if strings.TrimSpace(actor.ID) == "" || !actor.Role.Valid() {
		return "", 0, ErrInvalidActor
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()

	claims := ActorClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken checks signature, issuer, audience and expiry and returns the actor.
func (i *TokenIssuer) ValidateToken(tokenString string) (ledger.Actor, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ledger.Actor{}, ErrMissingToken
	}

	claims := &ActorClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ledger.Actor{}, ErrExpiredToken
		}
		return ledger.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Role.Valid() {
		return ledger.Actor{}, ErrInvalidActor
	}
	return ledger.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// ValidateRequest reads the bearer token from the Authorization header, falling back to
// the access_token query parameter used by EventSource clients.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (ledger.Actor, error) {
	if r == nil {
		return ledger.Actor{}, ErrMissingToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		return i.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
	}
	return i.ValidateToken(r.URL.Query().Get("access_token"))
}
