package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/present/rest/middleware"
	"github.com/totegamma/flock/internal/present/rest/presenter"
	"github.com/totegamma/flock/internal/usecase"
)

const maxBodyBytes = 64 << 10

// RealtimeSource subscribes to realtime channels.
type RealtimeSource interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Handler struct {
	identity     *usecase.IdentityUsecase
	authz        *usecase.AuthzUsecase
	notification *usecase.NotificationUsecase
	auth         *middleware.AuthMiddleware
	signal       RealtimeSource
	logger       *zap.Logger
}

func NewHandler(
	identity *usecase.IdentityUsecase,
	authz *usecase.AuthzUsecase,
	notification *usecase.NotificationUsecase,
	auth *middleware.AuthMiddleware,
	signal RealtimeSource,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		identity:     identity,
		authz:        authz,
		notification: notification,
		auth:         auth,
		signal:       signal,
		logger:       logger.With(zap.String("module", "rest")),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)

	api := e.Group("/api/v1", h.auth.IdentifySession, h.auth.RequireSession)
	api.POST("/identity/link", h.handleLink)
	api.GET("/me/role", h.handleMyRole)
	api.GET("/me/profile", h.handleMyProfile)
	api.PATCH("/me/profile", h.handleUpdateProfile)
	api.POST("/push/subscribe", h.handleSubscribe)
	api.GET("/notices", h.handleNotices)
	api.POST("/notices/:id/read", h.handleMarkRead)

	admin := api.Group("/admin", h.auth.RequireAdmin)
	admin.POST("/grants", h.handleGrant)
	admin.DELETE("/grants/:email", h.handleRevoke)
	admin.POST("/grants/migrate", h.handleMigrateGrant)
	admin.PUT("/profiles/:id/approval", h.handleApproval)
	admin.POST("/profiles/delete", h.handleDeleteProfiles)
	admin.POST("/profiles/merge", h.handleManualMerge)
	admin.POST("/merges/complete", h.handleCompleteMerge)
	admin.POST("/events", h.handleEvent)

	e.GET("/realtime", h.handleRealtime, h.auth.IdentifySession, h.auth.RequireSession)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// fail renders err and logs it when it is the server's fault.
func (h *Handler) fail(c echo.Context, err error) error {
	if presenter.Status(err) >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return presenter.Error(c, err)
}

// decodeBody decodes a JSON body, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

type claimRequest struct {
	Name      string `json:"name"`
	PhoneTail string `json:"phoneTail"`
	Birthdate string `json:"birthdate"`
}

type linkResponse struct {
	Status  string         `json:"status"`
	Profile domain.Profile `json:"profile"`
}

func (h *Handler) handleLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req claimRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	outcome, err := h.identity.Link(ctx, domain.IdentityClaim{
		SessionID: middleware.SessionUserID(ctx),
		TenantID:  middleware.SessionTenantID(ctx),
		Name:      req.Name,
		PhoneTail: req.PhoneTail,
		Birthdate: req.Birthdate,
	})
	if err != nil {
		return h.fail(c, err)
	}

	res := linkResponse{Status: outcome.Status.String(), Profile: outcome.Profile}
	if outcome.Status == usecase.LinkPendingCreated {
		return presenter.Accepted(c, res)
	}
	return presenter.OK(c, res)
}

func (h *Handler) handleMyRole(c echo.Context) error {
	ctx := c.Request().Context()

	grant, err := h.authz.ResolveRole(ctx, domain.RoleQuery{
		TenantID: middleware.SessionTenantID(ctx),
		UserID:   middleware.SessionUserID(ctx),
		Email:    middleware.SessionEmail(ctx),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, grant)
}

func (h *Handler) handleMyProfile(c echo.Context) error {
	ctx := c.Request().Context()

	profile, err := h.identity.GetProfile(ctx, middleware.SessionUserID(ctx))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, profile)
}

func (h *Handler) handleUpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()

	var patch domain.ProfilePatch
	if err := decodeBody(c, &patch); err != nil {
		return presenter.BadRequest(c, err)
	}

	profile, err := h.identity.UpdateProfile(ctx, middleware.SessionUserID(ctx), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, profile)
}

func (h *Handler) handleSubscribe(c echo.Context) error {
	ctx := c.Request().Context()

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	err = h.notification.Subscribe(ctx, middleware.SessionUserID(ctx), string(raw))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleNotices(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if q := c.QueryParam("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit")
		}
		limit = n
	}

	notices, err := h.notification.List(ctx, middleware.SessionUserID(ctx), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, notices)
}

func (h *Handler) handleMarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	err := h.notification.MarkRead(ctx, middleware.SessionUserID(ctx), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type grantRequest struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func (h *Handler) handleGrant(c echo.Context) error {
	ctx := c.Request().Context()

	var req grantRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	grant, err := h.authz.Grant(ctx, middleware.SessionActor(ctx), req.Email, req.Role)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, grant)
}

func (h *Handler) handleRevoke(c echo.Context) error {
	ctx := c.Request().Context()

	email, err := url.PathUnescape(c.Param("email"))
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid email")
	}

	if err := h.authz.Revoke(ctx, middleware.SessionActor(ctx), email); err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type migrateRequest struct {
	claimRequest
	Role domain.Role `json:"role"`
}

func (h *Handler) handleMigrateGrant(c echo.Context) error {
	ctx := c.Request().Context()

	var req migrateRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	grant, err := h.authz.MigrateGrant(ctx, middleware.SessionActor(ctx), domain.IdentityClaim{
		Name:      req.Name,
		PhoneTail: req.PhoneTail,
		Birthdate: req.Birthdate,
	}, req.Role)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, grant)
}

type approvalRequest struct {
	Approved *bool `json:"approved"`
}

func (h *Handler) handleApproval(c echo.Context) error {
	ctx := c.Request().Context()

	var req approvalRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Approved == nil {
		return presenter.BadRequestMessage(c, "approved is required")
	}

	profile, err := h.identity.SetApproval(ctx, middleware.SessionActor(ctx), c.Param("id"), *req.Approved)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, profile)
}

type deleteProfilesRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleDeleteProfiles(c echo.Context) error {
	ctx := c.Request().Context()

	var req deleteProfilesRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	deleted, err := h.identity.DeleteProfiles(ctx, middleware.SessionActor(ctx), req.IDs)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"deleted": deleted})
}

type mergeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handler) handleManualMerge(c echo.Context) error {
	ctx := c.Request().Context()

	var req mergeRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	profile, err := h.identity.ManualMerge(ctx, middleware.SessionActor(ctx), req.From, req.To)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, profile)
}

func (h *Handler) handleCompleteMerge(c echo.Context) error {
	ctx := c.Request().Context()

	var req mergeRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}

	profile, err := h.identity.CompleteMerge(ctx, middleware.SessionTenantID(ctx), req.From, req.To)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, profile)
}

type eventRequest struct {
	ID         string           `json:"id"`
	Kind       domain.EventKind `json:"kind"`
	ActorID    string           `json:"actorId"`
	ActorLabel string           `json:"actorLabel"`
	SubjectID  string           `json:"subjectId"`
	RelatedID  *string          `json:"relatedId"`
}

// handleEvent accepts content events from the content service. Grant and
// approval events are only raised internally. The subject must be a member of
// the session's tenant.
func (h *Handler) handleEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req eventRequest
	if err := decodeBody(c, &req); err != nil {
		return presenter.BadRequest(c, err)
	}
	switch req.Kind {
	case domain.EventContentPosted, domain.EventCommentAdded, domain.EventReactionAdded:
	default:
		return presenter.BadRequestMessage(c, "kind must be a content event")
	}

	tenantID := middleware.SessionTenantID(ctx)
	if req.SubjectID != "" {
		subject, err := h.identity.GetProfile(ctx, req.SubjectID)
		if err != nil {
			return h.fail(c, err)
		}
		if subject.TenantID != tenantID {
			return presenter.NotFound(c, "profile not found")
		}
	}

	report, err := h.notification.Notify(ctx, domain.Event{
		ID:         req.ID,
		Kind:       req.Kind,
		TenantID:   tenantID,
		ActorID:    req.ActorID,
		ActorLabel: req.ActorLabel,
		SubjectID:  req.SubjectID,
		RelatedID:  req.RelatedID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, report)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type string `json:"type"`
}

// handleRealtime streams the session's new notices over a websocket.
func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "realtime disabled"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	userID := middleware.SessionUserID(ctx)
	pubsub := h.signal.Subscribe(ctx, domain.NoticeChannel(userID))
	defer pubsub.Close()
	messages := pubsub.Channel()

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req realtimeRequest
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						h.logger.Debug("websocket closed", zap.Error(wsErr))
					}
				} else {
					h.logger.Debug("error reading message", zap.Error(err))
				}
				return
			}

			switch req.Type {
			case "h": // heartbeat
			default:
				h.logger.Info("unknown request type", zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			err := ws.WriteMessage(websocket.TextMessage, []byte(msg.Payload))
			if err != nil {
				h.logger.Debug("error writing message", zap.String("user", userID), zap.Error(err))
				return nil
			}
		}
	}
}
