package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Ids are assigned from
// per-table counters starting at 1.
type Store struct {
	mu          sync.RWMutex
	definitions map[int64]domain.CheckDefinition
	results     []domain.CheckResult
	addresses   map[int64]domain.NotificationAddress

	nextDef, nextResult, nextAddr int64
}

func New() *Store {
	return &Store{
		definitions: make(map[int64]domain.CheckDefinition),
		results:     make([]domain.CheckResult, 0, 128),
		addresses:   make(map[int64]domain.NotificationAddress),
	}
}

func (m *Store) Close() error { return nil }

// ---- DefinitionStore ----

func (m *Store) ListDefinitions(ctx context.Context, urlContains string) ([]domain.CheckDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CheckDefinition, 0, len(m.definitions))
	for _, d := range m.definitions {
		if urlContains != "" && !strings.Contains(d.URL, urlContains) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetDefinition(ctx context.Context, id int64) (*domain.CheckDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.definitions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &d, nil
}

func (m *Store) CreateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.urlTaken(d.URL, 0) {
		return repo.ErrDuplicateURL
	}
	m.nextDef++
	d.ID = m.nextDef
	cp := *d
	cp.EmailAddresses = nil
	m.definitions[d.ID] = cp
	return nil
}

func (m *Store) UpdateDefinition(ctx context.Context, d *domain.CheckDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[d.ID]; !ok {
		return repo.ErrNotFound
	}
	if m.urlTaken(d.URL, d.ID) {
		return repo.ErrDuplicateURL
	}
	cp := *d
	cp.EmailAddresses = nil
	m.definitions[d.ID] = cp
	return nil
}

func (m *Store) DeleteDefinition(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.definitions, id)

	kept := m.results[:0]
	for _, r := range m.results {
		if r.CheckID != id {
			kept = append(kept, r)
		}
	}
	m.results = kept
	for aid, a := range m.addresses {
		if a.CheckID == id {
			delete(m.addresses, aid)
		}
	}
	return nil
}

// urlTaken must be called with mu held.
func (m *Store) urlTaken(url string, except int64) bool {
	for id, d := range m.definitions {
		if id != except && d.URL == url {
			return true
		}
	}
	return false
}

// ---- ResultStore ----

func (m *Store) SaveResult(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[r.CheckID]; !ok {
		return repo.ErrNotFound
	}
	if r.TimeChecked.IsZero() {
		r.TimeChecked = time.Now().UTC()
	}
	m.nextResult++
	r.ID = m.nextResult
	m.results = append(m.results, *r)
	return nil
}

func (m *Store) ListResults(ctx context.Context, checkID int64) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CheckResult, 0, len(m.results))
	for _, r := range m.results {
		if checkID == 0 || r.CheckID == checkID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Store) LatestResults(ctx context.Context, urlContains string) ([]domain.LatestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[int64]domain.CheckResult)
	for _, r := range m.results {
		cur, ok := latest[r.CheckID]
		if !ok || !r.TimeChecked.Before(cur.TimeChecked) {
			latest[r.CheckID] = r
		}
	}

	out := make([]domain.LatestResult, 0, len(latest))
	for id, r := range latest {
		d, ok := m.definitions[id]
		if !ok {
			continue
		}
		if urlContains != "" && !strings.Contains(d.URL, urlContains) {
			continue
		}
		out = append(out, domain.LatestResult{
			ID:             d.ID,
			URL:            d.URL,
			Frequency:      d.Frequency,
			ExpectedStatus: d.ExpectedStatus,
			ExpectedString: d.ExpectedString,
			LastState:      r.State,
			LastChecked:    r.TimeChecked,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- AddressStore ----

func (m *Store) ListAddresses(ctx context.Context, checkID int64) ([]domain.NotificationAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.NotificationAddress, 0, len(m.addresses))
	for _, a := range m.addresses {
		if checkID == 0 || a.CheckID == checkID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetAddress(ctx context.Context, id int64) (*domain.NotificationAddress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &a, nil
}

func (m *Store) CreateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[a.CheckID]; !ok {
		return repo.ErrNotFound
	}
	m.nextAddr++
	a.ID = m.nextAddr
	m.addresses[a.ID] = *a
	return nil
}

func (m *Store) UpdateAddress(ctx context.Context, a *domain.NotificationAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addresses[a.ID]; !ok {
		return repo.ErrNotFound
	}
	if _, ok := m.definitions[a.CheckID]; !ok {
		return repo.ErrNotFound
	}
	m.addresses[a.ID] = *a
	return nil
}

func (m *Store) DeleteAddress(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.addresses[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.addresses, id)
	return nil
}

func (m *Store) Recipients(ctx context.Context, checkID int64) ([]string, error) {
	as, err := m.ListAddresses(ctx, checkID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.EmailAddress)
	}
	return out, nil
}
