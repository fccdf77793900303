package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/present/rest/presenter"
	"github.com/totegamma/flock/internal/service"
	"github.com/totegamma/flock/internal/usecase"
)

var tracer = otel.Tracer("auth")

// SessionVerifier checks a bearer token.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (service.Session, error)
}

// RoleResolver resolves the effective grant of a session.
type RoleResolver interface {
	ResolveRole(ctx context.Context, q domain.RoleQuery) (domain.Grant, error)
}

type AuthMiddleware struct {
	session SessionVerifier
	authz   RoleResolver
	logger  *zap.Logger
}

func NewAuthMiddleware(
	session SessionVerifier,
	authz RoleResolver,
	logger *zap.Logger,
) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		session: session,
		authz:   authz,
		logger:  logger.With(zap.String("module", "auth")),
	}
}

// IdentifySession puts the verified session into the request context. Requests
// without a valid token pass through anonymously.
func (s *AuthMiddleware) IdentifySession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifySession")
		defer span.End()

		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		token := ""
		if authHeader != "" {
			split := strings.Split(authHeader, " ")
			if len(split) != 2 {
				span.RecordError(fmt.Errorf("invalid authentication header"))
				goto skipCheckAuthorization
			}

			authType, value := split[0], split[1]
			if authType != "Bearer" {
				span.RecordError(fmt.Errorf("only Bearer is acceptable"))
				goto skipCheckAuthorization
			}
			token = value
		} else if c.IsWebSocket() {
			// Browsers cannot set headers on websocket upgrades.
			token = c.QueryParam("token")
		}

		if token != "" {
			session, err := s.session.Verify(ctx, token)
			if err != nil {
				span.RecordError(errors.Wrap(err, "AuthMiddleware.IdentifySession: s.session.Verify failed"))
				goto skipCheckAuthorization
			}

			ctx = context.WithValue(ctx, domain.SessionUserIdCtxKey, session.UserID)
			ctx = context.WithValue(ctx, domain.SessionEmailCtxKey, session.Email)
			ctx = context.WithValue(ctx, domain.SessionTenantCtxKey, session.TenantID)
			span.SetAttributes(attribute.String("SessionUserId", session.UserID))
		}

	skipCheckAuthorization:
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireSession rejects anonymous requests.
func (s *AuthMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if SessionUserID(c.Request().Context()) == "" {
			return presenter.Unauthorized(c)
		}
		return next(c)
	}
}

// RequireAdmin admits sessions whose resolved role is admin or higher within
// their own tenant, and records that role in the context.
func (s *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireAdmin")
		defer span.End()

		userID := SessionUserID(ctx)
		if userID == "" {
			return presenter.Unauthorized(c)
		}
		tenantID := SessionTenantID(ctx)

		grant, err := s.authz.ResolveRole(ctx, domain.RoleQuery{
			TenantID: tenantID,
			UserID:   userID,
			Email:    SessionEmail(ctx),
		})
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("role resolution failed", zap.String("user", userID), zap.Error(err))
			return presenter.Error(c, err)
		}

		if !grant.Role.IsAdmin() || grant.TenantID != tenantID {
			s.logger.Info("admin access denied",
				zap.String("user", userID),
				zap.String("role", string(grant.Role)),
			)
			return presenter.Forbidden(c)
		}

		ctx = context.WithValue(ctx, domain.SessionRoleCtxKey, grant.Role)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func SessionUserID(ctx context.Context) string {
	v, _ := ctx.Value(domain.SessionUserIdCtxKey).(string)
	return v
}

func SessionEmail(ctx context.Context) string {
	v, _ := ctx.Value(domain.SessionEmailCtxKey).(string)
	return v
}

func SessionTenantID(ctx context.Context) string {
	v, _ := ctx.Value(domain.SessionTenantCtxKey).(string)
	return v
}

// SessionActor describes the session for usecases that record who acted.
func SessionActor(ctx context.Context) domain.Actor {
	role, _ := ctx.Value(domain.SessionRoleCtxKey).(domain.Role)
	if role == "" {
		role = domain.RoleMember
	}
	label := SessionEmail(ctx)
	if domain.IsSyntheticEmail(label) {
		label = SessionUserID(ctx)
	}
	return domain.Actor{
		ID:       SessionUserID(ctx),
		Label:    label,
		TenantID: SessionTenantID(ctx),
		Role:     role,
	}
}

var _ SessionVerifier = (*service.SessionService)(nil)
var _ RoleResolver = (*usecase.AuthzUsecase)(nil)
