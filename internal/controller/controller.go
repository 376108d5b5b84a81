package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/service"
	"github.com/krezhik/marketauth/internal/util"
)

// Controller binds the token and session services to HTTP routes. All
// semantics live in the services; handlers only translate requests and
// responses.
type Controller struct {
	log      *zap.SugaredLogger
	tokens   *service.TokenService
	sessions *service.SessionService
}

func NewController(log *zap.SugaredLogger, tokens *service.TokenService, sessions *service.SessionService) *Controller {
	return &Controller{
		log:      log,
		tokens:   tokens,
		sessions: sessions,
	}
}

// RegisterRoutes wires the handlers under the given group. requireUserID is
// the middleware enforcing the verified-user header on the routes that need
// an authenticated caller.
func (c *Controller) RegisterRoutes(g *echo.Group, requireUserID echo.MiddlewareFunc) {
	g.GET("/ping", c.CheckServer)

	auth := g.Group("/auth")
	auth.POST("/refresh", c.Refresh)
	auth.POST("/logout", c.Logout)

	verified := auth.Group("", requireUserID)
	verified.POST("/login", c.Login)
	verified.POST("/logout-all", c.LogoutAll)
	verified.GET("/sessions", c.ListSessions)
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/auth/login). Credentials were already verified upstream; this
// endpoint turns a verified user id into a session and token pair.
func (c *Controller) Login(ctx echo.Context) error {
	userID := ctx.Get(models.MwUserIDKey).(string)

	pair, err := c.tokens.IssueTokenPair(ctx.Request().Context(), userID, requestContext(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshSecret,
		ExpiresAt:    pair.ExpiresAt,
		SessionID:    pair.SessionID,
		DeviceInfo:   pair.DeviceInfo,
	})
}

// (POST /api/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.TokenRefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" || req.SessionID == "" {
		return util.NewResponseError(http.StatusBadRequest, "refresh_token and session_id are required")
	}

	pair, err := c.tokens.Refresh(ctx.Request().Context(), req.RefreshToken, req.SessionID, requestContext(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshSecret,
		ExpiresAt:    pair.ExpiresAt,
		SessionID:    pair.SessionID,
		DeviceInfo:   pair.DeviceInfo,
	})
}

// (POST /api/auth/logout). Revokes the session and, through the cascade,
// every refresh token bound to it. Idempotent.
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return util.NewResponseError(http.StatusBadRequest, "session_id is required")
	}

	if err := c.sessions.RevokeSession(ctx.Request().Context(), req.SessionID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// (POST /api/auth/logout-all).
func (c *Controller) LogoutAll(ctx echo.Context) error {
	userID := ctx.Get(models.MwUserIDKey).(string)

	var req models.LogoutAllRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "invalid request body")
	}

	revoked, err := c.sessions.RevokeAllUserSessions(ctx.Request().Context(), userID, req.ExcludeSessionID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.RevokedResponse{Revoked: revoked})
}

// (GET /api/auth/sessions).
func (c *Controller) ListSessions(ctx echo.Context) error {
	userID := ctx.Get(models.MwUserIDKey).(string)

	sessions, err := c.sessions.ListActiveSessions(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.SessionListResponse{Sessions: sessions})
}

func requestContext(ctx echo.Context) models.RequestContext {
	return models.RequestContext{
		UserAgent: ctx.Request().UserAgent(),
		IPAddress: ctx.RealIP(),
	}
}
