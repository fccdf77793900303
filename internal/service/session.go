package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("service")

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Email  string `json:"email,omitempty"`
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// Session is a verified session.
type Session struct {
	UserID   string
	Email    string
	TenantID string
}

// SessionService verifies HS256 session tokens issued by the identity provider.
type SessionService struct {
	secret []byte
	issuer string
}

func NewSessionService(secret, issuer string) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (s *SessionService) Verify(ctx context.Context, token string) (Session, error) {
	_, span := tracer.Start(ctx, "Session.Service.Verify")
	defer span.End()

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return Session{}, err
	}

	if claims.Subject == "" {
		err := fmt.Errorf("session token has no subject")
		span.RecordError(err)
		return Session{}, err
	}
	if claims.Tenant == "" {
		err := fmt.Errorf("session token has no tenant")
		span.RecordError(err)
		return Session{}, err
	}

	return Session{
		UserID:   claims.Subject,
		Email:    claims.Email,
		TenantID: claims.Tenant,
	}, nil
}

// Issue signs a session token. The identity provider normally does this; it is
// used by local tooling and tests.
func (s *SessionService) Issue(session Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Email:  session.Email,
		Tenant: session.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
