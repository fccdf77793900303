package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/domain"
)

var tracer = otel.Tracer("usecase")

// LinkStatus tells the session what linking did.
type LinkStatus int

const (
	LinkLinked LinkStatus = iota + 1
	LinkPendingCreated
)

func (s LinkStatus) String() string {
	switch s {
	case LinkLinked:
		return "linked"
	case LinkPendingCreated:
		return "pending"
	default:
		return "unknown"
	}
}

// LinkOutcome is the profile now bound to the session and how it got there.
type LinkOutcome struct {
	Status  LinkStatus     `json:"status"`
	Profile domain.Profile `json:"profile"`
}

type IdentityUsecase struct {
	profiles ProfileRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewIdentityUsecase(profiles ProfileRepository, notifier Notifier, logger *zap.Logger) *IdentityUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityUsecase{
		profiles: profiles,
		notifier: notifier,
		logger:   logger.With(zap.String("module", "identity")),
		now:      time.Now,
	}
}

// Link binds the session in claim to a known profile, or creates a pending one.
// A unique match is moved onto the session id and approved; an ambiguous match
// is refused without writing anything.
func (uc *IdentityUsecase) Link(ctx context.Context, claim domain.IdentityClaim) (LinkOutcome, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.Link")
	defer span.End()

	if err := claim.Validate(); err != nil {
		span.RecordError(err)
		return LinkOutcome{}, err
	}
	span.SetAttributes(attribute.String("SessionId", claim.SessionID), attribute.String("TenantId", claim.TenantID))

	candidates, err := uc.profiles.ListWithPhone(ctx, claim.TenantID)
	if err != nil {
		err = storeError("list candidates", err)
		span.RecordError(err)
		return LinkOutcome{}, err
	}

	// The session's own pending row must never approve itself.
	result := Match(claim, excludeProfile(candidates, claim.SessionID))
	span.SetAttributes(attribute.String("Match", result.Kind.String()))

	switch result.Kind {
	case MatchAmbiguous:
		err := domain.AmbiguousMatchError{CandidateIDs: result.IDs()}
		uc.logger.Warn("ambiguous identity claim",
			zap.String("session", claim.SessionID),
			zap.Strings("candidates", err.CandidateIDs),
		)
		span.RecordError(err)
		return LinkOutcome{}, err

	case MatchUnique:
		matched, _ := result.Profile()
		merged, err := uc.move(ctx, matched, claim.SessionID)
		if err != nil {
			span.RecordError(err)
			return LinkOutcome{}, err
		}
		uc.logger.Info("session linked",
			zap.String("session", claim.SessionID),
			zap.String("from", matched.ID),
		)
		return LinkOutcome{Status: LinkLinked, Profile: merged}, nil
	}

	existing, err := uc.profiles.Get(ctx, claim.SessionID)
	if err == nil {
		// The session already owns a row; leave it untouched.
		status := LinkPendingCreated
		if existing.IsApproved {
			status = LinkLinked
		}
		return LinkOutcome{Status: status, Profile: existing}, nil
	}
	if !isNotFound(err) {
		err = storeError("get session profile", err)
		span.RecordError(err)
		return LinkOutcome{}, err
	}

	now := uc.now()
	pending := domain.Profile{
		ID:            claim.SessionID,
		TenantID:      claim.TenantID,
		FullName:      claim.Name,
		Phone:         claim.PhoneTail,
		PhoneVerified: false,
		Birthdate:     claim.Birthdate,
		Email:         domain.SyntheticEmail(claim.SessionID),
		IsApproved:    false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.profiles.Upsert(ctx, pending); err != nil {
		err = storeError("create pending profile", err)
		span.RecordError(err)
		return LinkOutcome{}, err
	}

	uc.logger.Info("pending profile created", zap.String("session", claim.SessionID))
	return LinkOutcome{Status: LinkPendingCreated, Profile: pending}, nil
}

// move writes src under destID and then removes src. Stores implementing
// ProfileMover do both in one transaction; otherwise the two writes are not
// atomic and a failed delete is reported as MergeIncompleteError.
func (uc *IdentityUsecase) move(ctx context.Context, src domain.Profile, destID string) (domain.Profile, error) {
	merged := mergedProfile(src, destID)
	merged.UpdatedAt = uc.now()

	if mover, ok := uc.profiles.(ProfileMover); ok && src.ID != destID {
		if err := mover.Move(ctx, src.ID, merged); err != nil {
			return domain.Profile{}, storeError("move profile", err)
		}
		return merged, nil
	}

	if err := uc.profiles.Upsert(ctx, merged); err != nil {
		return domain.Profile{}, storeError("upsert merged profile", err)
	}

	if src.ID == destID {
		return merged, nil
	}

	if err := uc.profiles.Delete(ctx, src.ID); err != nil {
		uc.logger.Error("merge left a duplicate row",
			zap.String("from", src.ID),
			zap.String("to", destID),
			zap.Error(err),
		)
		return merged, domain.MergeIncompleteError{From: src.ID, To: destID, Err: storeError("delete merged profile", err)}
	}

	return merged, nil
}

func excludeProfile(profiles []domain.Profile, id string) []domain.Profile {
	out := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func mergedProfile(src domain.Profile, destID string) domain.Profile {
	merged := src
	merged.ID = destID
	if strings.TrimSpace(merged.Email) == "" {
		merged.Email = domain.SyntheticEmail(destID)
	}
	merged.IsApproved = true
	return merged
}

// CompleteMerge finishes a merge whose delete step failed. The old row is only
// removed once the destination is confirmed to hold its merged data.
func (uc *IdentityUsecase) CompleteMerge(ctx context.Context, tenantID, fromID, toID string) (domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.CompleteMerge")
	defer span.End()

	if fromID == "" || toID == "" || fromID == toID {
		return domain.Profile{}, domain.ValidationError{Field: "merge", Reason: "distinct from and to ids are required"}
	}

	dest, err := uc.profiles.Get(ctx, toID)
	if err != nil {
		if isNotFound(err) {
			return domain.Profile{}, domain.ValidationError{Field: "to", Reason: "destination profile does not exist; link again instead"}
		}
		err = storeError("get merge destination", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}
	if dest.TenantID != tenantID {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}

	src, err := uc.profiles.Get(ctx, fromID)
	if err != nil {
		if isNotFound(err) {
			return dest, nil
		}
		err = storeError("get merge source", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}

	if !sameIdentity(mergedProfile(src, toID), dest) {
		err := domain.ValidationError{Field: "to", Reason: "destination does not hold the merged data"}
		span.RecordError(err)
		return domain.Profile{}, err
	}

	if err := uc.profiles.Delete(ctx, fromID); err != nil {
		err = storeError("delete merged profile", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}

	uc.logger.Info("merge completed", zap.String("from", fromID), zap.String("to", toID))
	return dest, nil
}

func sameIdentity(a, b domain.Profile) bool {
	return a.ID == b.ID &&
		a.TenantID == b.TenantID &&
		a.FullName == b.FullName &&
		a.Phone == b.Phone &&
		a.Birthdate == b.Birthdate &&
		a.Email == b.Email &&
		a.IsApproved == b.IsApproved
}

// ManualMerge moves an administrator-chosen profile onto toID. It is the
// resolution path for claims the matcher found ambiguous.
func (uc *IdentityUsecase) ManualMerge(ctx context.Context, actor domain.Actor, fromID, toID string) (domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.ManualMerge")
	defer span.End()

	if fromID == "" || toID == "" {
		return domain.Profile{}, domain.ValidationError{Field: "merge", Reason: "from and to ids are required"}
	}

	src, err := uc.profiles.Get(ctx, fromID)
	if err != nil {
		err = storeError("get merge source", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}
	if src.TenantID != actor.TenantID {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}

	merged, err := uc.move(ctx, src, toID)
	if err != nil {
		span.RecordError(err)
		return merged, err
	}

	uc.logger.Info("manual merge",
		zap.String("actor", actor.ID),
		zap.String("from", fromID),
		zap.String("to", toID),
	)
	return merged, nil
}

// SetApproval changes a member's access and tells the member and the operators.
func (uc *IdentityUsecase) SetApproval(ctx context.Context, actor domain.Actor, profileID string, approved bool) (domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.SetApproval")
	defer span.End()

	profile, err := uc.profiles.Get(ctx, profileID)
	if err != nil {
		err = storeError("get profile", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}
	if profile.TenantID != actor.TenantID {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}
	if profile.IsApproved == approved {
		return profile, nil
	}

	profile.IsApproved = approved
	profile.UpdatedAt = uc.now()
	if err := uc.profiles.Upsert(ctx, profile); err != nil {
		err = storeError("update approval", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}

	uc.notify(ctx, domain.Event{
		ID:         uuid.NewString(),
		Kind:       domain.EventApprovalChanged,
		TenantID:   profile.TenantID,
		ActorID:    actor.ID,
		ActorLabel: actor.Label,
		SubjectID:  profile.ID,
		RelatedID:  &profile.ID,
	})

	return profile, nil
}

// UpdateProfile applies a self-service edit. A changed phone loses its
// verified flag.
func (uc *IdentityUsecase) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.UpdateProfile")
	defer span.End()

	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		return domain.Profile{}, domain.ValidationError{Field: "fullName", Reason: "must not be empty"}
	}

	profile, err := uc.profiles.Get(ctx, id)
	if err != nil {
		err = storeError("get profile", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}

	if patch.FullName != nil {
		profile.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Phone != nil && *patch.Phone != profile.Phone {
		profile.Phone = strings.TrimSpace(*patch.Phone)
		profile.PhoneVerified = false
	}
	if patch.Birthdate != nil {
		profile.Birthdate = strings.TrimSpace(*patch.Birthdate)
	}
	profile.UpdatedAt = uc.now()

	if err := uc.profiles.Upsert(ctx, profile); err != nil {
		err = storeError("update profile", err)
		span.RecordError(err)
		return domain.Profile{}, err
	}
	return profile, nil
}

// GetProfile returns a profile by id.
func (uc *IdentityUsecase) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	profile, err := uc.profiles.Get(ctx, id)
	if err != nil {
		return domain.Profile{}, storeError("get profile", err)
	}
	return profile, nil
}

// DeleteProfiles hard-deletes profiles of the actor's tenant.
func (uc *IdentityUsecase) DeleteProfiles(ctx context.Context, actor domain.Actor, ids []string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Identity.Usecase.DeleteProfiles")
	defer span.End()

	if len(ids) == 0 {
		return 0, domain.ValidationError{Field: "ids", Reason: "at least one id is required"}
	}

	deleted, err := uc.profiles.DeleteMany(ctx, actor.TenantID, ids)
	if err != nil {
		err = storeError("delete profiles", err)
		span.RecordError(err)
		return 0, err
	}

	uc.logger.Info("profiles deleted",
		zap.String("actor", actor.ID),
		zap.Int64("count", deleted),
	)
	return deleted, nil
}

func (uc *IdentityUsecase) notify(ctx context.Context, event domain.Event) {
	if uc.notifier == nil {
		return
	}
	if _, err := uc.notifier.Notify(ctx, event); err != nil {
		uc.logger.Error("notification failed",
			zap.String("kind", string(event.Kind)),
			zap.String("subject", event.SubjectID),
			zap.Error(err),
		)
	}
}
