package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/domain"
)

type AuthzUsecase struct {
	grants    GrantRepository
	profiles  ProfileRepository
	notifier  Notifier
	bootstrap map[string]struct{}
	logger    *zap.Logger
}

func NewAuthzUsecase(
	grants GrantRepository,
	profiles ProfileRepository,
	notifier Notifier,
	bootstrapAdmins []string,
	logger *zap.Logger,
) *AuthzUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	bootstrap := make(map[string]struct{}, len(bootstrapAdmins))
	for _, email := range bootstrapAdmins {
		if normalized := domain.NormalizeEmail(email); normalized != "" {
			bootstrap[normalized] = struct{}{}
		}
	}
	return &AuthzUsecase{
		grants:    grants,
		profiles:  profiles,
		notifier:  notifier,
		bootstrap: bootstrap,
		logger:    logger.With(zap.String("module", "authz")),
	}
}

// IsBootstrapAdmin reports whether email is on the deploy-time allowlist.
func (uc *AuthzUsecase) IsBootstrapAdmin(email string) bool {
	_, ok := uc.bootstrap[domain.NormalizeEmail(email)]
	return ok
}

// ResolveRole determines the effective grant of a session. Precedence:
// allowlist (self-healed into the store), stored grant by email, legacy grant
// keyed by user id, baseline member. Privilege never comes from name matching.
func (uc *AuthzUsecase) ResolveRole(ctx context.Context, q domain.RoleQuery) (domain.Grant, error) {
	ctx, span := tracer.Start(ctx, "Authz.Usecase.ResolveRole")
	defer span.End()

	tenantID := q.TenantID
	email := domain.NormalizeEmail(q.Email)
	if domain.IsSyntheticEmail(email) {
		email = ""
		if q.UserID != "" {
			profile, err := uc.profiles.Get(ctx, q.UserID)
			switch {
			case err == nil:
				if !domain.IsSyntheticEmail(profile.Email) {
					email = domain.NormalizeEmail(profile.Email)
				}
				if tenantID == "" {
					tenantID = profile.TenantID
				}
			case !isNotFound(err):
				err = storeError("get session profile", err)
				span.RecordError(err)
				return domain.Grant{}, err
			}
		}
	}

	if email != "" {
		span.SetAttributes(attribute.String("Email", email))

		if _, ok := uc.bootstrap[email]; ok {
			return uc.selfHeal(ctx, email, tenantID), nil
		}

		grant, err := uc.grants.GetByEmail(ctx, email)
		if err == nil {
			return grant, nil
		}
		if !isNotFound(err) {
			err = storeError("get grant", err)
			span.RecordError(err)
			return domain.Grant{}, err
		}
		return domain.BaselineGrant(email, tenantID), nil
	}

	if q.UserID != "" {
		grant, found, err := uc.legacyLookup(ctx, q.UserID)
		if err != nil {
			span.RecordError(err)
			return domain.Grant{}, err
		}
		if found {
			return grant, nil
		}
	}

	return domain.BaselineGrant("", tenantID), nil
}

// selfHeal writes the top-tier grant for an allowlisted email. The write is
// skipped when the store already holds it, and a failing store never blocks
// the allowlisted operator.
func (uc *AuthzUsecase) selfHeal(ctx context.Context, email, tenantID string) domain.Grant {
	want := domain.Grant{Email: email, Role: domain.RoleSuperAdmin, TenantID: tenantID}

	current, err := uc.grants.GetByEmail(ctx, email)
	if err == nil && current == want {
		return want
	}
	if err != nil && !isNotFound(err) {
		uc.logger.Warn("bootstrap grant lookup failed", zap.String("email", email), zap.Error(err))
	}

	if err := uc.grants.Upsert(ctx, want); err != nil {
		uc.logger.Error("bootstrap grant self-heal failed", zap.String("email", email), zap.Error(err))
		return want
	}
	uc.logger.Info("bootstrap grant self-healed", zap.String("email", email), zap.String("tenant", tenantID))
	return want
}

// legacyLookup finds grants written when the email column held a user id.
func (uc *AuthzUsecase) legacyLookup(ctx context.Context, userID string) (domain.Grant, bool, error) {
	candidates, err := uc.grants.SearchByEmail(ctx, userID)
	if err != nil {
		return domain.Grant{}, false, storeError("search legacy grants", err)
	}
	for _, g := range candidates {
		if g.Email == userID {
			return g, true, nil
		}
	}
	for _, g := range candidates {
		if strings.Contains(g.Email, userID) {
			return g, true, nil
		}
	}
	return domain.Grant{}, false, nil
}

// Grant stores an explicit role for email in the actor's tenant. Grants held in
// another tenant are invisible, and only super admins may touch a super_admin.
func (uc *AuthzUsecase) Grant(ctx context.Context, actor domain.Actor, email string, role domain.Role) (domain.Grant, error) {
	ctx, span := tracer.Start(ctx, "Authz.Usecase.Grant")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Grant{}, domain.ValidationError{Field: "email", Reason: "is required"}
	}
	if !role.Valid() {
		return domain.Grant{}, domain.ValidationError{Field: "role", Reason: "unknown role " + string(role)}
	}
	if role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
		return domain.Grant{}, domain.ValidationError{Field: "role", Reason: "only super admins may grant super_admin"}
	}
	if uc.IsBootstrapAdmin(email) {
		return domain.Grant{}, domain.ValidationError{Field: "email", Reason: "bootstrap administrators cannot be changed"}
	}

	current, err := uc.grants.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if current.TenantID != actor.TenantID {
			return domain.Grant{}, domain.NotFoundError{Resource: "grant"}
		}
		if current.Role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
			return domain.Grant{}, domain.ValidationError{Field: "email", Reason: "only super admins may change super_admin"}
		}
	case !isNotFound(err):
		err = storeError("get grant", err)
		span.RecordError(err)
		return domain.Grant{}, err
	}

	grant := domain.Grant{Email: email, Role: role, TenantID: actor.TenantID}
	if err := uc.grants.Upsert(ctx, grant); err != nil {
		err = storeError("upsert grant", err)
		span.RecordError(err)
		return domain.Grant{}, err
	}

	uc.logger.Info("grant added",
		zap.String("actor", actor.ID),
		zap.String("email", email),
		zap.String("role", string(role)),
	)
	uc.notifyGrant(ctx, actor, domain.EventGrantAdded, email)
	return grant, nil
}

// Revoke deletes the grant of email. Allowlisted operators cannot be revoked.
func (uc *AuthzUsecase) Revoke(ctx context.Context, actor domain.Actor, email string) error {
	ctx, span := tracer.Start(ctx, "Authz.Usecase.Revoke")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.ValidationError{Field: "email", Reason: "is required"}
	}
	if uc.IsBootstrapAdmin(email) {
		return domain.ValidationError{Field: "email", Reason: "bootstrap administrators cannot be revoked"}
	}

	current, err := uc.grants.GetByEmail(ctx, email)
	if err != nil {
		err = storeError("get grant", err)
		span.RecordError(err)
		return err
	}
	if current.TenantID != actor.TenantID {
		return domain.NotFoundError{Resource: "grant"}
	}
	if current.Role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
		return domain.ValidationError{Field: "email", Reason: "only super admins may revoke super_admin"}
	}

	if err := uc.grants.Delete(ctx, email); err != nil {
		err = storeError("delete grant", err)
		span.RecordError(err)
		return err
	}

	uc.logger.Info("grant revoked", zap.String("actor", actor.ID), zap.String("email", email))
	uc.notifyGrant(ctx, actor, domain.EventGrantRevoked, email)
	return nil
}

// MigrateGrant grants role to the profile identified by name, phone tail and
// birthdate. The grant is keyed by that profile's email, synthetic or not.
func (uc *AuthzUsecase) MigrateGrant(ctx context.Context, actor domain.Actor, claim domain.IdentityClaim, role domain.Role) (domain.Grant, error) {
	ctx, span := tracer.Start(ctx, "Authz.Usecase.MigrateGrant")
	defer span.End()

	claim.TenantID = actor.TenantID
	if claim.SessionID == "" {
		claim.SessionID = actor.ID
	}
	if err := claim.Validate(); err != nil {
		return domain.Grant{}, err
	}

	candidates, err := uc.profiles.ListWithPhone(ctx, actor.TenantID)
	if err != nil {
		err = storeError("list candidates", err)
		span.RecordError(err)
		return domain.Grant{}, err
	}

	result := Match(claim, excludeProfile(candidates, claim.SessionID))
	switch result.Kind {
	case MatchNone:
		return domain.Grant{}, domain.NotFoundError{Resource: "profile"}
	case MatchAmbiguous:
		return domain.Grant{}, domain.AmbiguousMatchError{CandidateIDs: result.IDs()}
	}

	profile, _ := result.Profile()
	email := profile.Email
	if strings.TrimSpace(email) == "" {
		email = domain.SyntheticEmail(profile.ID)
	}
	return uc.Grant(ctx, actor, email, role)
}

func (uc *AuthzUsecase) notifyGrant(ctx context.Context, actor domain.Actor, kind domain.EventKind, email string) {
	if uc.notifier == nil {
		return
	}

	subjectID := ""
	profile, err := uc.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil:
		subjectID = profile.ID
	case !isNotFound(err):
		uc.logger.Warn("grant subject lookup failed", zap.String("email", email), zap.Error(err))
	}

	related := email
	event := domain.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		ActorLabel: actor.Label,
		SubjectID:  subjectID,
		RelatedID:  &related,
	}
	if _, err := uc.notifier.Notify(ctx, event); err != nil {
		uc.logger.Error("notification failed",
			zap.String("kind", string(kind)),
			zap.String("email", email),
			zap.Error(err),
		)
	}
}
