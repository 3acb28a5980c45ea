package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "monitor.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx, false); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestSQLiteStore_DefinitionCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := &domain.CheckDefinition{URL: "https://example.com", Frequency: 30, ExpectedStatus: 200, ExpectedString: "OK"}
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("expected id")
	}

	dup := &domain.CheckDefinition{URL: "https://example.com", Frequency: 10, ExpectedStatus: 200}
	if err := s.CreateDefinition(ctx, dup); !errors.Is(err, repo.ErrDuplicateURL) {
		t.Fatalf("want ErrDuplicateURL, got %v", err)
	}

	got, err := s.GetDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if got.URL != d.URL || got.ExpectedString != "OK" || got.Frequency != 30 {
		t.Fatalf("unexpected definition: %+v", got)
	}

	d.ExpectedString = ""
	d.ExpectedStatus = 204
	if err := s.UpdateDefinition(ctx, d); err != nil {
		t.Fatalf("UpdateDefinition: %v", err)
	}
	got, _ = s.GetDefinition(ctx, d.ID)
	if got.ExpectedStatus != 204 || got.ExpectedString != "" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := s.UpdateDefinition(ctx, &domain.CheckDefinition{ID: 999, URL: "https://x", Frequency: 1}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.GetDefinition(ctx, 999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	_ = s.CreateDefinition(ctx, &domain.CheckDefinition{URL: "https://other.org", Frequency: 5, ExpectedStatus: 200})
	list, err := s.ListDefinitions(ctx, "other")
	if err != nil {
		t.Fatalf("ListDefinitions: %v", err)
	}
	if len(list) != 1 || list[0].URL != "https://other.org" {
		t.Fatalf("unexpected filtered list: %+v", list)
	}
	if all, _ := s.ListDefinitions(ctx, ""); len(all) != 2 {
		t.Fatalf("want 2 definitions, got %d", len(all))
	}
}

func TestSQLiteStore_ResultsAndLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := &domain.CheckDefinition{URL: "https://example.com", Frequency: 30, ExpectedStatus: 200}
	_ = s.CreateDefinition(ctx, d)
	idle := &domain.CheckDefinition{URL: "https://idle.example.com", Frequency: 30, ExpectedStatus: 200}
	_ = s.CreateDefinition(ctx, idle)

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	r1 := &domain.CheckResult{CheckID: d.ID, TimeChecked: base, StatusCode: 200, State: domain.StateSuccess}
	r2 := &domain.CheckResult{CheckID: d.ID, TimeChecked: base.Add(90 * time.Second), StatusCode: 0, State: domain.StateFailure}
	for _, r := range []*domain.CheckResult{r1, r2} {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}
	if r2.ID <= r1.ID {
		t.Fatalf("ids should increase: %d then %d", r1.ID, r2.ID)
	}

	rs, err := s.ListResults(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(rs) != 2 || !rs[0].TimeChecked.Equal(base) || rs[1].State != domain.StateFailure {
		t.Fatalf("unexpected results: %+v", rs)
	}

	latest, err := s.LatestResults(ctx, "")
	if err != nil {
		t.Fatalf("LatestResults: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("only checked definitions appear, got %+v", latest)
	}
	if latest[0].LastState != domain.StateFailure || !latest[0].LastChecked.Equal(r2.TimeChecked) {
		t.Fatalf("unexpected latest: %+v", latest[0])
	}

	if err := s.SaveResult(ctx, &domain.CheckResult{CheckID: 4242, State: domain.StateSuccess}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("result for unknown check: want ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := &domain.CheckDefinition{URL: "https://example.com", Frequency: 30, ExpectedStatus: 200}
	_ = s.CreateDefinition(ctx, d)
	a := &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "a@example.com"}
	if err := s.CreateAddress(ctx, a); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	_ = s.SaveResult(ctx, &domain.CheckResult{CheckID: d.ID, StatusCode: 200, State: domain.StateSuccess})

	if err := s.DeleteDefinition(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDefinition: %v", err)
	}
	if rs, _ := s.ListResults(ctx, 0); len(rs) != 0 {
		t.Fatalf("results not cascaded: %+v", rs)
	}
	if as, _ := s.ListAddresses(ctx, 0); len(as) != 0 {
		t.Fatalf("addresses not cascaded: %+v", as)
	}
	if err := s.DeleteDefinition(ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Addresses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: 77, EmailAddress: "x@example.com"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	d := &domain.CheckDefinition{URL: "https://example.com", Frequency: 30, ExpectedStatus: 200}
	_ = s.CreateDefinition(ctx, d)
	a := &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "a@example.com"}
	_ = s.CreateAddress(ctx, a)
	_ = s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "b@example.com"})

	a.EmailAddress = "a2@example.com"
	if err := s.UpdateAddress(ctx, a); err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	got, err := s.GetAddress(ctx, a.ID)
	if err != nil || got.EmailAddress != "a2@example.com" {
		t.Fatalf("GetAddress: %+v %v", got, err)
	}

	rcpts, err := s.Recipients(ctx, d.ID)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(rcpts) != 2 || rcpts[0] != "a2@example.com" {
		t.Fatalf("unexpected recipients: %v", rcpts)
	}

	if err := s.DeleteAddress(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAddress: %v", err)
	}
	if err := s.DeleteAddress(ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := &domain.CheckDefinition{URL: "https://example.com", Frequency: 1, ExpectedStatus: 200}
	_ = s.CreateDefinition(ctx, d)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := s.SaveResult(ctx, &domain.CheckResult{CheckID: d.ID, StatusCode: 200, State: domain.StateSuccess}); err != nil {
					t.Errorf("SaveResult: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if rs, _ := s.ListResults(ctx, d.ID); len(rs) != 80 {
		t.Fatalf("want 80 results, got %d", len(rs))
	}
}

func TestSQLiteStore_MigrateDropAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.CreateDefinition(ctx, &domain.CheckDefinition{URL: "https://example.com", Frequency: 1, ExpectedStatus: 200})

	if err := s.Migrate(ctx, true); err != nil {
		t.Fatalf("Migrate(dropAll): %v", err)
	}
	if all, _ := s.ListDefinitions(ctx, ""); len(all) != 0 {
		t.Fatalf("drop all should clear data, got %d", len(all))
	}
}
