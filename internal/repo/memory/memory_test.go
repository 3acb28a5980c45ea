package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/repo"
)

func addDef(t *testing.T, s *Store, url string) *domain.CheckDefinition {
	t.Helper()
	d := &domain.CheckDefinition{URL: url, Frequency: 30, ExpectedStatus: 200}
	if err := s.CreateDefinition(context.Background(), d); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}
	return d
}

func TestMemoryStore_CreateListAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := addDef(t, s, "https://example.com")
	b := addDef(t, s, "https://other.org")
	if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %d and %d", a.ID, b.ID)
	}

	all, err := s.ListDefinitions(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != a.ID {
		t.Fatalf("unexpected list: %+v", all)
	}

	filtered, _ := s.ListDefinitions(ctx, "other")
	if len(filtered) != 1 || filtered[0].URL != "https://other.org" {
		t.Fatalf("unexpected filtered list: %+v", filtered)
	}
}

func TestMemoryStore_DuplicateURL(t *testing.T) {
	s := New()
	addDef(t, s, "https://example.com")
	err := s.CreateDefinition(context.Background(), &domain.CheckDefinition{URL: "https://example.com", Frequency: 1})
	if !errors.Is(err, repo.ErrDuplicateURL) {
		t.Fatalf("want ErrDuplicateURL, got %v", err)
	}

	b := addDef(t, s, "https://b.example.com")
	b.URL = "https://example.com"
	if err := s.UpdateDefinition(context.Background(), b); !errors.Is(err, repo.ErrDuplicateURL) {
		t.Fatalf("update onto taken url: want ErrDuplicateURL, got %v", err)
	}
}

func TestMemoryStore_UpdateReplacesFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := addDef(t, s, "https://example.com")

	upd := &domain.CheckDefinition{ID: d.ID, URL: "https://example.com/v2", Frequency: 5, ExpectedStatus: 204}
	if err := s.UpdateDefinition(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.GetDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.URL != upd.URL || got.Frequency != 5 || got.ExpectedStatus != 204 || got.ExpectedString != "" {
		t.Fatalf("unexpected after update: %+v", got)
	}

	if err := s.UpdateDefinition(ctx, &domain.CheckDefinition{ID: 999}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := addDef(t, s, "https://example.com")
	keep := addDef(t, s, "https://keep.example.com")

	_ = s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "a@example.com"})
	_ = s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: keep.ID, EmailAddress: "k@example.com"})
	_ = s.SaveResult(ctx, &domain.CheckResult{CheckID: d.ID, StatusCode: 200, State: domain.StateSuccess})
	_ = s.SaveResult(ctx, &domain.CheckResult{CheckID: keep.ID, StatusCode: 200, State: domain.StateSuccess})

	if err := s.DeleteDefinition(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetDefinition(ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("definition should be gone, got %v", err)
	}
	if rs, _ := s.ListResults(ctx, 0); len(rs) != 1 || rs[0].CheckID != keep.ID {
		t.Fatalf("results not cascaded: %+v", rs)
	}
	if as, _ := s.ListAddresses(ctx, 0); len(as) != 1 || as[0].CheckID != keep.ID {
		t.Fatalf("addresses not cascaded: %+v", as)
	}
	if err := s.DeleteDefinition(ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SaveResultRequiresDefinition(t *testing.T) {
	s := New()
	err := s.SaveResult(context.Background(), &domain.CheckResult{CheckID: 42})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_LatestResults(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := addDef(t, s, "https://example.com")
	addDef(t, s, "https://never-checked.example.com")

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	_ = s.SaveResult(ctx, &domain.CheckResult{CheckID: d.ID, StatusCode: 200, State: domain.StateSuccess, TimeChecked: base})
	_ = s.SaveResult(ctx, &domain.CheckResult{CheckID: d.ID, StatusCode: 500, State: domain.StateFailure, TimeChecked: base.Add(time.Minute)})

	latest, err := s.LatestResults(ctx, "")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("only checked definitions should appear, got %+v", latest)
	}
	if latest[0].LastState != domain.StateFailure || !latest[0].LastChecked.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected latest row: %+v", latest[0])
	}
	if rows, _ := s.LatestResults(ctx, "nomatch"); len(rows) != 0 {
		t.Fatalf("filter should exclude rows, got %+v", rows)
	}
}

func TestMemoryStore_AddressesAndRecipients(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := addDef(t, s, "https://example.com")

	if err := s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: 77, EmailAddress: "x@example.com"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("address for missing check: want ErrNotFound, got %v", err)
	}

	a := &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "a@example.com"}
	if err := s.CreateAddress(ctx, a); err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	_ = s.CreateAddress(ctx, &domain.NotificationAddress{CheckID: d.ID, EmailAddress: "b@example.com"})

	a.EmailAddress = "a2@example.com"
	if err := s.UpdateAddress(ctx, a); err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	rcpts, err := s.Recipients(ctx, d.ID)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(rcpts) != 2 || rcpts[0] != "a2@example.com" || rcpts[1] != "b@example.com" {
		t.Fatalf("unexpected recipients: %v", rcpts)
	}

	if err := s.DeleteAddress(ctx, a.ID); err != nil {
		t.Fatalf("DeleteAddress: %v", err)
	}
	if _, err := s.GetAddress(ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
