package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/hubs/internal/auth"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/engagement"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "hubs_user_id"
	requestIDContextKey = "hubs_request_id"
	requestIDHeader     = "X-Request-ID"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingEngagement       = errors.New("engagement service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionValidator validates bearer tokens.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// UserResolver maps validated claims to a canonical voter id.
type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// EngagementService is the authoritative store behind the HTTP surface.
type EngagementService interface {
	CastVote(ctx context.Context, userID engagement.UserID, target content.Target, direction content.Direction) (engagement.VoteOutcome, error)
	ToggleBookmark(ctx context.Context, userID engagement.UserID, target content.Target) (engagement.BookmarkOutcome, error)
	RecordView(ctx context.Context, scope content.Target) error
	CollectionStats(ctx context.Context, collectionID content.ItemID) (engagement.CollectionStats, error)
	ListResources(ctx context.Context, userID engagement.UserID, collectionID content.ItemID) ([]engagement.ResourceEntry, error)
	ListAnswers(ctx context.Context, userID engagement.UserID, questionID content.ItemID) ([]engagement.AnswerEntry, error)
	ListBookmarks(ctx context.Context, userID engagement.UserID, kind content.Kind) ([]engagement.BookmarkEntry, error)
}

// Dependencies wires the router. Users is optional; without it the token subject is the voter id.
type Dependencies struct {
	SessionValidator SessionValidator
	Users            UserResolver
	Engagement       EngagementService
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the engagement endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Engagement == nil {
		return nil, errMissingEngagement
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:   deps.SessionValidator,
		users:      deps.Users,
		engagement: deps.Engagement,
		logger:     logger,
	}
	router.Use(handler.requestLogger)

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/engagement/votes", handler.handleCastVote)
	protected.POST("/engagement/bookmarks", handler.handleToggleBookmark)
	protected.POST("/engagement/views", handler.handleRecordView)
	protected.GET("/collections/:id/stats", handler.handleCollectionStats)
	protected.GET("/collections/:id/resources", handler.handleListResources)
	protected.GET("/questions/:id/answers", handler.handleListAnswers)
	protected.GET("/bookmarks", handler.handleListBookmarks)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions   SessionValidator
	users      UserResolver
	engagement EngagementService
	logger     *zap.Logger
}

func (h *httpHandler) requestLogger(c *gin.Context) {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		if generated, err := uuid.NewV7(); err == nil {
			requestID = generated.String()
		}
	}
	c.Set(requestIDContextKey, requestID)
	c.Header(requestIDHeader, requestID)

	started := time.Now()
	c.Next()

	h.logger.Info("request handled",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(started)))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		level := h.logger.Warn
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			level = h.logger.Info
		}
		level("token validation failed", zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rawUserID := claims.Subject
	if h.users != nil {
		rawUserID, err = h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
		if err != nil {
			h.logger.Error("failed to resolve user identity", zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
			return
		}
	}
	userID, err := engagement.NewUserID(rawUserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID.String())
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) currentUser(c *gin.Context) (engagement.UserID, bool) {
	userID, err := engagement.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	reason := "engagement_failed"
	switch {
	case errors.Is(err, engagement.ErrTargetNotFound):
		status = http.StatusNotFound
		reason = "not_found"
	case errors.Is(err, engagement.ErrUnsupportedKind):
		status = http.StatusBadRequest
		reason = "unsupported_kind"
	case errors.Is(err, content.ErrInvalidDirection):
		status = http.StatusBadRequest
		reason = "invalid_direction"
	}

	body := gin.H{"error": reason}
	var serviceErr *engagement.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("engagement request failed", zap.String("request_id", c.GetString(requestIDContextKey)), zap.Error(err))
	}
	c.JSON(status, body)
}
