package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/auth"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorContextKey = "foodshare_actor"

var (
	errMissingLedger       = errors.New("ledger service dependency required")
	errMissingAccounts     = errors.New("accounts service dependency required")
	errMissingTokenManager = errors.New("token manager dependency required")
)

// TokenManager issues access tokens at sign-in and resolves them on protected routes.
type TokenManager interface {
	IssueToken(actor ledger.Actor) (string, int64, error)
	ValidateRequest(r *http.Request) (ledger.Actor, error)
}

type Dependencies struct {
	Ledger   *ledger.Service
	Accounts *accounts.Service
	Tokens   TokenManager
	Logger   *zap.Logger

	// HeartbeatInterval defaults to 25s.
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		ledger:    deps.Ledger,
		accounts:  deps.Accounts,
		tokens:    deps.Tokens,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/profile", handler.handleGetProfile)
	protected.PATCH("/profile", handler.handleUpdateProfile)

	protected.POST("/announcements", handler.handleCreateAnnouncement)
	protected.GET("/announcements/available", handler.handleAvailableAnnouncements)
	protected.GET("/announcements/:id", handler.handleGetAnnouncement)
	protected.PATCH("/announcements/:id", handler.handleUpdateAnnouncement)
	protected.DELETE("/announcements/:id", handler.handleDeleteAnnouncement)
	protected.POST("/announcements/:id/reservation", handler.handleCreateReservation)
	protected.PUT("/announcements/:id/reservation", handler.handleUpdateReservation)

	protected.POST("/needs", handler.handleCreateNeed)
	protected.GET("/needs/open", handler.handleOpenNeeds)
	protected.GET("/needs/:id", handler.handleGetNeed)
	protected.PATCH("/needs/:id", handler.handleUpdateNeed)
	protected.DELETE("/needs/:id", handler.handleDeleteNeed)
	protected.POST("/needs/:id/commitments", handler.handleCommitHelp)

	protected.GET("/reservations/:id", handler.handleReservationDetail)
	protected.POST("/reservations/:id/status", handler.handleTransition(ledger.KindReservation))
	protected.POST("/commitments/:id/status", handler.handleTransition(ledger.KindHelpCommitment))

	protected.GET("/records/:kind", handler.handleListRecords)
	protected.GET("/records/:kind/stream", handler.handleRecordStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	ledger    *ledger.Service
	accounts  *accounts.Service
	tokens    TokenManager
	logger    *zap.Logger
	heartbeat time.Duration
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request accounts.RegistrationInput
	if !h.bindJSON(c, &request) {
		return
	}
	profile, err := h.accounts.Register(c.Request.Context(), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, profile.Actor())
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	actor, err := h.accounts.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, actor)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, actor ledger.Actor) {
	token, expiresIn, err := h.tokens.IssueToken(actor)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.String("actor_id", actor.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "token_issue_failed", Message: "could not issue access token"})
		return
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	actor, err := h.tokens.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized", Message: "a valid access token is required"})
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func currentActor(c *gin.Context) ledger.Actor {
	value, _ := c.Get(actorContextKey)
	actor, _ := value.(ledger.Actor)
	return actor
}

func (h *httpHandler) bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request", Message: "request body must be valid JSON"})
		return false
	}
	return true
}
