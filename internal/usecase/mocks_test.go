package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/totegamma/flock/internal/domain"
)

var errStoreDown = errors.New("connection refused")

type mockProfileRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.Profile
	upserts []domain.Profile
	deletes []string

	listErr   error
	getErr    error
	upsertErr error
	deleteErr error
}

func newMockProfileRepo(profiles ...domain.Profile) *mockProfileRepo {
	m := &mockProfileRepo{rows: map[string]domain.Profile{}}
	for _, p := range profiles {
		m.rows[p.ID] = p
	}
	return m
}

func (m *mockProfileRepo) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts) + len(m.deletes)
}

func (m *mockProfileRepo) sorted(keep func(domain.Profile) bool) []domain.Profile {
	out := []domain.Profile{}
	for _, p := range m.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockProfileRepo) ListWithPhone(ctx context.Context, tenantID string) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(p domain.Profile) bool { return p.TenantID == tenantID && p.Phone != "" }), nil
}

func (m *mockProfileRepo) ListApproved(ctx context.Context, tenantID string) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(func(p domain.Profile) bool { return p.TenantID == tenantID && p.IsApproved }), nil
}

func (m *mockProfileRepo) Get(ctx context.Context, id string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Profile{}, m.getErr
	}
	p, ok := m.rows[id]
	if !ok {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}
	return p, nil
}

func (m *mockProfileRepo) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if strings.EqualFold(p.Email, email) {
			return p, nil
		}
	}
	return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
}

func (m *mockProfileRepo) Upsert(ctx context.Context, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, profile)
	m.rows[profile.ID] = profile
	return nil
}

func (m *mockProfileRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, id)
	delete(m.rows, id)
	return nil
}

func (m *mockProfileRepo) DeleteMany(ctx context.Context, tenantID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for _, id := range ids {
		if p, ok := m.rows[id]; ok && p.TenantID == tenantID {
			delete(m.rows, id)
			m.deletes = append(m.deletes, id)
			n++
		}
	}
	return n, nil
}

// mockMovingProfileRepo adds the transactional move.
type mockMovingProfileRepo struct {
	*mockProfileRepo
	moves int
}

func (m *mockMovingProfileRepo) Move(ctx context.Context, fromID string, to domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.moves++
	delete(m.rows, fromID)
	m.rows[to.ID] = to
	return nil
}

type mockGrantRepo struct {
	mu      sync.Mutex
	rows    map[string]domain.Grant
	upserts int
	deletes int

	getErr    error
	upsertErr error
}

func newMockGrantRepo(grants ...domain.Grant) *mockGrantRepo {
	m := &mockGrantRepo{rows: map[string]domain.Grant{}}
	for _, g := range grants {
		m.rows[g.Email] = g
	}
	return m
}

func (m *mockGrantRepo) Upsert(ctx context.Context, grant domain.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.rows[grant.Email] = grant
	return nil
}

func (m *mockGrantRepo) GetByEmail(ctx context.Context, email string) (domain.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Grant{}, m.getErr
	}
	g, ok := m.rows[email]
	if !ok {
		return domain.Grant{}, domain.NotFoundError{Resource: "grant"}
	}
	return g, nil
}

func (m *mockGrantRepo) SearchByEmail(ctx context.Context, fragment string) ([]domain.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []domain.Grant
	for _, g := range m.rows {
		if strings.Contains(g.Email, fragment) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *mockGrantRepo) ListByRole(ctx context.Context, tenantID string, role domain.Role) ([]domain.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Grant
	for _, g := range m.rows {
		if g.TenantID == tenantID && g.Role == role {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *mockGrantRepo) Delete(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[email]; !ok {
		return domain.NotFoundError{Resource: "grant"}
	}
	m.deletes++
	delete(m.rows, email)
	return nil
}

type mockNoticeRepo struct {
	mu        sync.Mutex
	rows      map[string]domain.Notice
	insertErr error
}

func newMockNoticeRepo() *mockNoticeRepo {
	return &mockNoticeRepo{rows: map[string]domain.Notice{}}
}

func (m *mockNoticeRepo) InsertMany(ctx context.Context, notices []domain.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, n := range notices {
		if _, exists := m.rows[n.ID]; !exists {
			m.rows[n.ID] = n
		}
	}
	return nil
}

func (m *mockNoticeRepo) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notice
	for _, n := range m.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockNoticeRepo) MarkRead(ctx context.Context, recipientID, noticeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[noticeID]
	if !ok || n.RecipientID != recipientID {
		return domain.NotFoundError{Resource: "notice"}
	}
	n.IsRead = true
	m.rows[noticeID] = n
	return nil
}

func (m *mockNoticeRepo) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.rows {
		out = append(out, n.RecipientID)
	}
	sort.Strings(out)
	return out
}

type mockEndpointRepo struct {
	mu        sync.Mutex
	rows      map[string]string
	listErr   error
	deleteErr error
}

func newMockEndpointRepo(endpoints ...domain.PushEndpoint) *mockEndpointRepo {
	m := &mockEndpointRepo{rows: map[string]string{}}
	for _, e := range endpoints {
		m.rows[e.OwnerID] = e.Descriptor
	}
	return m
}

func (m *mockEndpointRepo) Upsert(ctx context.Context, endpoint domain.PushEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[endpoint.OwnerID] = endpoint.Descriptor
	return nil
}

func (m *mockEndpointRepo) ListByOwners(ctx context.Context, ownerIDs []string) ([]domain.PushEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.PushEndpoint
	for _, id := range ownerIDs {
		if d, ok := m.rows[id]; ok {
			out = append(out, domain.PushEndpoint{OwnerID: id, Descriptor: d})
		}
	}
	return out, nil
}

func (m *mockEndpointRepo) Delete(ctx context.Context, ownerID, descriptor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if m.rows[ownerID] == descriptor {
		delete(m.rows, ownerID)
	}
	return nil
}

func (m *mockEndpointRepo) has(ownerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[ownerID]
	return ok
}

// mockTransport answers by descriptor; unknown descriptors are delivered.
type mockTransport struct {
	outcomes map[string]domain.DeliveryOutcome
	panicOn  string
	calls    atomic.Int32
}

func (m *mockTransport) Send(ctx context.Context, endpoint domain.PushEndpoint, payload []byte) domain.DeliveryOutcome {
	m.calls.Add(1)
	if m.panicOn != "" && endpoint.Descriptor == m.panicOn {
		panic("transport exploded")
	}
	if o, ok := m.outcomes[endpoint.Descriptor]; ok {
		return o
	}
	return domain.DeliveryDelivered
}

type mockSignal struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (m *mockSignal) Publish(ctx context.Context, channel string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
	return m.err
}

type mockNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockNotifier) Notify(ctx context.Context, event domain.Event) (domain.DeliveryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return domain.DeliveryReport{}, nil
}
