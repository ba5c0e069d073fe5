package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/auth"
	"github.com/MarcoPoloResearchLab/tabletally/internal/insights"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "tabletally_user_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingTrackerService   = errors.New("tracker service dependency required")
)

// SessionValidator authenticates a request from its cookie or bearer token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver maps validated claims to the user id that owns tracker records.
type UserResolver interface {
	ResolveUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// TrackerService is the tracker surface the HTTP handlers drive.
type TrackerService interface {
	ListEntities(ctx context.Context, viewerID string, kind sharing.Kind) ([]tracker.EntitySummary, error)
	MatchOutcome(ctx context.Context, viewerID string, matchID int64) (tracker.MatchResult, error)
	FinalizeMatch(ctx context.Context, viewerID string, matchID int64) (tracker.MatchResult, error)
	GameInsights(ctx context.Context, viewerID string, gameID int64, focus *sharing.Ref) (insights.Report, error)
	ShareEntity(ctx context.Context, ownerID string, request tracker.ShareRequest) (tracker.ShareChange, error)
	LinkShare(ctx context.Context, viewerID string, shareID, linkedEntityID int64) (tracker.ShareChange, error)
	UnlinkShare(ctx context.Context, viewerID string, shareID int64) (tracker.ShareChange, error)
	RevokeShare(ctx context.Context, ownerID string, shareID int64) (tracker.ShareChange, error)
	DeleteEntity(ctx context.Context, ownerID string, kind sharing.Kind, entityID int64) ([]tracker.ShareChange, error)
}

type Dependencies struct {
	Sessions SessionValidator
	Users    UserResolver
	Tracker  TrackerService
	Realtime *RealtimeDispatcher
	Logger   *zap.Logger
	Clock    func() time.Time
	// HeartbeatInterval spaces keep-alive events on idle streams; defaults to 25s.
	HeartbeatInterval time.Duration
	// AllowedOrigins may send credentialed cross-origin requests. Without any, every origin is
	// allowed but only without credentials.
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Tracker == nil {
		return nil, errMissingTrackerService
	}

	handler := &httpHandler{
		sessions:  deps.Sessions,
		users:     deps.Users,
		tracker:   deps.Tracker,
		realtime:  deps.Realtime,
		logger:    deps.Logger,
		clock:     deps.Clock,
		heartbeat: deps.HeartbeatInterval,
	}
	if handler.realtime == nil {
		handler.realtime = NewRealtimeDispatcher()
	}
	if handler.logger == nil {
		handler.logger = zap.NewNop()
	}
	if handler.clock == nil {
		handler.clock = time.Now
	}
	if handler.heartbeat <= 0 {
		handler.heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/entities/:kind", handler.handleListEntities)
	protected.DELETE("/entities/:kind/:id", handler.handleDeleteEntity)
	protected.GET("/matches/:id/outcome", handler.handleMatchOutcome)
	protected.POST("/matches/:id/finalize", handler.handleFinalizeMatch)
	protected.GET("/games/:id/insights", handler.handleGameInsights)
	protected.POST("/shares", handler.handleShareEntity)
	protected.POST("/shares/:id/link", handler.handleLinkShare)
	protected.DELETE("/shares/:id/link", handler.handleUnlinkShare)
	protected.DELETE("/shares/:id", handler.handleRevokeShare)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

type httpHandler struct {
	sessions  SessionValidator
	users     UserResolver
	tracker   TrackerService
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	clock     func() time.Time
	heartbeat time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.users.ResolveUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("user resolution failed", zap.String("subject", claims.Subject), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}
