package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/flock/internal/domain"
)

func legacyKim() domain.Profile {
	return domain.Profile{
		ID:        "legacy-kim",
		TenantID:  "t1",
		FullName:  "Kim Dong",
		Phone:     "010-5555-1234",
		Birthdate: "19900101",
		Email:     "kim@example.com",
	}
}

func TestIdentityLinkUniqueMovesProfile(t *testing.T) {
	repo := newMockProfileRepo(legacyKim())
	uc := NewIdentityUsecase(repo, nil, nil)

	out, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-1", TenantID: "t1", Name: "Kim Dong", PhoneTail: "1234", Birthdate: "900101",
	})
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, out.Status)
	assert.Equal(t, "session-1", out.Profile.ID)
	assert.True(t, out.Profile.IsApproved)

	stored, ok := repo.rows["session-1"]
	require.True(t, ok)
	assert.Equal(t, "010-5555-1234", stored.Phone)
	assert.Equal(t, "19900101", stored.Birthdate)
	assert.Equal(t, "kim@example.com", stored.Email)

	_, stillThere := repo.rows["legacy-kim"]
	assert.False(t, stillThere, "old row must be removed")
}

func TestIdentityLinkUniqueUsesTransactionalMove(t *testing.T) {
	repo := &mockMovingProfileRepo{mockProfileRepo: newMockProfileRepo(legacyKim())}
	uc := NewIdentityUsecase(repo, nil, nil)

	out, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-1", TenantID: "t1", Name: "Kim Dong", PhoneTail: "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, out.Status)
	assert.Equal(t, 1, repo.moves)
	assert.Empty(t, repo.upserts)
	assert.Empty(t, repo.deletes)
	assert.Len(t, repo.rows, 1)
}

func TestIdentityLinkMintsSyntheticEmailOnMove(t *testing.T) {
	p := legacyKim()
	p.Email = ""
	repo := newMockProfileRepo(p)
	uc := NewIdentityUsecase(repo, nil, nil)

	out, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-1", TenantID: "t1", Name: "Kim Dong", PhoneTail: "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1@anonymous.local", out.Profile.Email)
}

func TestIdentityLinkAmbiguousWritesNothing(t *testing.T) {
	repo := newMockProfileRepo(
		domain.Profile{ID: "a", TenantID: "t1", FullName: "Lee Soo", Phone: "010-1111-9999"},
		domain.Profile{ID: "b", TenantID: "t1", FullName: "Lee Soo", Phone: "010-2222-9999"},
	)
	uc := NewIdentityUsecase(repo, nil, nil)

	_, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-2", TenantID: "t1", Name: "Lee Soo", PhoneTail: "9999",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAmbiguousMatch))

	var amb domain.AmbiguousMatchError
	require.True(t, errors.As(err, &amb))
	assert.ElementsMatch(t, []string{"a", "b"}, amb.CandidateIDs)
	assert.Zero(t, repo.writes())
}

func TestIdentityLinkNoneCreatesPendingProfile(t *testing.T) {
	repo := newMockProfileRepo(legacyKim())
	uc := NewIdentityUsecase(repo, nil, nil)

	out, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-3", TenantID: "t1", Name: "Choi Min", PhoneTail: "7777", Birthdate: "850303",
	})
	require.NoError(t, err)
	assert.Equal(t, LinkPendingCreated, out.Status)
	assert.False(t, out.Profile.IsApproved)
	assert.False(t, out.Profile.PhoneVerified)
	assert.Equal(t, "session-3@anonymous.local", out.Profile.Email)
	assert.Len(t, repo.upserts, 1)
	assert.Len(t, repo.rows, 2)
}

func TestIdentityLinkNoneKeepsExistingSessionRow(t *testing.T) {
	existing := domain.Profile{ID: "session-4", TenantID: "t1", FullName: "Someone Else", IsApproved: true}
	repo := newMockProfileRepo(existing)
	uc := NewIdentityUsecase(repo, nil, nil)

	out, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-4", TenantID: "t1", Name: "Choi Min", PhoneTail: "7777",
	})
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, out.Status)
	assert.Equal(t, existing, out.Profile)
	assert.Zero(t, repo.writes())
}

func TestIdentityLinkRepeatedUnknownClaimStaysPending(t *testing.T) {
	repo := newMockProfileRepo()
	uc := NewIdentityUsecase(repo, nil, nil)
	claim := domain.IdentityClaim{SessionID: "stranger", TenantID: "t1", Name: "Nobody Known", PhoneTail: "4321"}

	first, err := uc.Link(context.Background(), claim)
	require.NoError(t, err)
	assert.Equal(t, LinkPendingCreated, first.Status)

	second, err := uc.Link(context.Background(), claim)
	require.NoError(t, err)
	assert.Equal(t, LinkPendingCreated, second.Status)
	assert.False(t, second.Profile.IsApproved)
	assert.False(t, repo.rows["stranger"].IsApproved)
	assert.Len(t, repo.upserts, 1)
}

func TestIdentityLinkPendingThenImportedLinks(t *testing.T) {
	repo := newMockProfileRepo()
	uc := NewIdentityUsecase(repo, nil, nil)
	claim := domain.IdentityClaim{SessionID: "s1", TenantID: "t1", Name: "Kim Dong", PhoneTail: "1234"}

	out, err := uc.Link(context.Background(), claim)
	require.NoError(t, err)
	require.Equal(t, LinkPendingCreated, out.Status)

	imported := legacyKim()
	imported.ID = "imported"
	repo.rows[imported.ID] = imported

	out, err = uc.Link(context.Background(), claim)
	require.NoError(t, err)
	assert.Equal(t, LinkLinked, out.Status)
	assert.True(t, out.Profile.IsApproved)
	assert.Equal(t, "010-5555-1234", repo.rows["s1"].Phone)
	assert.Equal(t, "kim@example.com", repo.rows["s1"].Email)
	_, stillThere := repo.rows["imported"]
	assert.False(t, stillThere)
}

func TestIdentityLinkValidatesBeforeStoreAccess(t *testing.T) {
	repo := newMockProfileRepo()
	repo.listErr = errors.New("must not be called")
	uc := NewIdentityUsecase(repo, nil, nil)

	_, err := uc.Link(context.Background(), domain.IdentityClaim{SessionID: "s", TenantID: "t1", Name: "Kim"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIdentityLinkStoreUnavailable(t *testing.T) {
	repo := newMockProfileRepo()
	repo.listErr = errStoreDown
	uc := NewIdentityUsecase(repo, nil, nil)

	_, err := uc.Link(context.Background(), domain.IdentityClaim{SessionID: "s", TenantID: "t1", Name: "Kim", PhoneTail: "1"})
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.True(t, errors.Is(err, errStoreDown))
}

func TestIdentityLinkMergeIncompleteThenComplete(t *testing.T) {
	repo := newMockProfileRepo(legacyKim())
	repo.deleteErr = errStoreDown
	uc := NewIdentityUsecase(repo, nil, nil)

	_, err := uc.Link(context.Background(), domain.IdentityClaim{
		SessionID: "session-1", TenantID: "t1", Name: "Kim Dong", PhoneTail: "1234",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMergeIncomplete))

	var inc domain.MergeIncompleteError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, "legacy-kim", inc.From)
	assert.Equal(t, "session-1", inc.To)
	assert.Len(t, repo.rows, 2, "both rows remain after a failed delete")

	repo.deleteErr = nil
	dest, err := uc.CompleteMerge(context.Background(), "t1", inc.From, inc.To)
	require.NoError(t, err)
	assert.Equal(t, "session-1", dest.ID)
	assert.Len(t, repo.rows, 1)

	// A second run finds the source gone and is a no-op.
	_, err = uc.CompleteMerge(context.Background(), "t1", inc.From, inc.To)
	assert.NoError(t, err)
}

func TestCompleteMergeRefusesWhenDestinationDiffers(t *testing.T) {
	repo := newMockProfileRepo(
		legacyKim(),
		domain.Profile{ID: "session-9", TenantID: "t1", FullName: "Not Kim"},
	)
	uc := NewIdentityUsecase(repo, nil, nil)

	_, err := uc.CompleteMerge(context.Background(), "t1", "legacy-kim", "session-9")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Zero(t, repo.writes())
}

func TestManualMerge(t *testing.T) {
	repo := newMockProfileRepo(legacyKim())
	uc := NewIdentityUsecase(repo, nil, nil)
	admin := domain.Actor{ID: "admin", TenantID: "t1", Role: domain.RoleAdmin}

	merged, err := uc.ManualMerge(context.Background(), admin, "legacy-kim", "session-7")
	require.NoError(t, err)
	assert.Equal(t, "session-7", merged.ID)
	assert.True(t, merged.IsApproved)

	other := domain.Actor{ID: "admin2", TenantID: "t2", Role: domain.RoleAdmin}
	_, err = uc.ManualMerge(context.Background(), other, "session-7", "session-8")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSetApprovalNotifies(t *testing.T) {
	repo := newMockProfileRepo(domain.Profile{ID: "m1", TenantID: "t1", FullName: "Member"})
	notifier := &mockNotifier{}
	uc := NewIdentityUsecase(repo, notifier, nil)
	admin := domain.Actor{ID: "admin", Label: "Admin", TenantID: "t1", Role: domain.RoleAdmin}

	p, err := uc.SetApproval(context.Background(), admin, "m1", true)
	require.NoError(t, err)
	assert.True(t, p.IsApproved)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.EventApprovalChanged, notifier.events[0].Kind)
	assert.Equal(t, "m1", notifier.events[0].SubjectID)

	// Unchanged approval neither writes nor notifies.
	_, err = uc.SetApproval(context.Background(), admin, "m1", true)
	require.NoError(t, err)
	assert.Len(t, notifier.events, 1)
	assert.Len(t, repo.upserts, 1)
}

func TestUpdateProfileResetsPhoneVerification(t *testing.T) {
	repo := newMockProfileRepo(domain.Profile{ID: "m1", TenantID: "t1", FullName: "Member", Phone: "0101", PhoneVerified: true})
	uc := NewIdentityUsecase(repo, nil, nil)

	phone := "0102"
	p, err := uc.UpdateProfile(context.Background(), "m1", domain.ProfilePatch{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "0102", p.Phone)
	assert.False(t, p.PhoneVerified)

	empty := " "
	_, err = uc.UpdateProfile(context.Background(), "m1", domain.ProfilePatch{FullName: &empty})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDeleteProfilesScopedToTenant(t *testing.T) {
	repo := newMockProfileRepo(
		domain.Profile{ID: "a", TenantID: "t1"},
		domain.Profile{ID: "b", TenantID: "t2"},
	)
	uc := NewIdentityUsecase(repo, nil, nil)
	admin := domain.Actor{ID: "admin", TenantID: "t1", Role: domain.RoleAdmin}

	n, err := uc.DeleteProfiles(context.Background(), admin, []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = uc.DeleteProfiles(context.Background(), admin, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
