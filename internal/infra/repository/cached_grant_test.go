package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/flock/internal/domain"
)

type stubGrantStore struct {
	rows  map[string]domain.Grant
	reads int
}

func (s *stubGrantStore) Upsert(ctx context.Context, grant domain.Grant) error {
	s.rows[grant.Email] = grant
	return nil
}

func (s *stubGrantStore) GetByEmail(ctx context.Context, email string) (domain.Grant, error) {
	s.reads++
	g, ok := s.rows[email]
	if !ok {
		return domain.Grant{}, domain.NotFoundError{Resource: "grant"}
	}
	return g, nil
}

func (s *stubGrantStore) SearchByEmail(ctx context.Context, fragment string) ([]domain.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) ListByRole(ctx context.Context, tenantID string, role domain.Role) ([]domain.Grant, error) {
	return nil, nil
}

func (s *stubGrantStore) Delete(ctx context.Context, email string) error {
	delete(s.rows, email)
	return nil
}

func TestCachedGrantRepositoryFallsBackWhenCacheDown(t *testing.T) {
	store := &stubGrantStore{rows: map[string]domain.Grant{}}
	// Nothing listens on port 1.
	repo := NewCachedGrantRepository(store, memcache.New("127.0.0.1:1"), nil)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Grant{Email: "a@x.com", Role: domain.RoleAdmin, TenantID: "t1"}))

	g, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, g.Role)
	assert.Equal(t, 1, store.reads)

	require.NoError(t, repo.Delete(ctx, "a@x.com"))
	_, err = repo.GetByEmail(ctx, "a@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGrantCacheKeyNormalizesEmail(t *testing.T) {
	assert.Equal(t, grantCacheKey("A@X.com "), grantCacheKey("a@x.com"))
	assert.NotEqual(t, grantCacheKey("a@x.com"), grantCacheKey("b@x.com"))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\`, escapeLike(`a%b_c\`))
}
