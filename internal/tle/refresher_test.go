package tle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	catalogs []*Catalog
	errs     []error
	calls    int
}

func (f *fakeSource) FetchCatalog(ctx context.Context) (*Catalog, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.catalogs[i], nil
}

func testCatalog(t *testing.T, text string) *Catalog {
	t.Helper()
	cat := parseString(t, text)
	cat.FetchedAt = time.Now()
	return cat
}

func TestRefresherPublishes(t *testing.T) {
	store := NewStore()
	if store.Get() != nil {
		t.Fatal("new store should be empty")
	}
	if age := store.AgeSeconds(); age != -1 {
		t.Errorf("AgeSeconds() on empty store = %v, want -1", age)
	}

	want := testCatalog(t, issTLE)
	r := NewRefresher(&fakeSource{catalogs: []*Catalog{want}}, store, testLogger)

	got, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got != want || store.Get() != want {
		t.Error("refreshed catalog was not published")
	}
	if age := store.AgeSeconds(); age < 0 || age > 60 {
		t.Errorf("AgeSeconds() = %v, want a small non-negative age", age)
	}
}

func TestRefresherKeepsPreviousOnFailure(t *testing.T) {
	store := NewStore()
	first := testCatalog(t, issTLE)
	fetchErr := &FetchError{URL: "http://example.invalid", Err: ErrHTTPStatus, StatusCode: 503}

	src := &fakeSource{
		catalogs: []*Catalog{first, nil},
		errs:     []error{nil, fetchErr},
	}
	r := NewRefresher(src, store, testLogger)

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error: %v", err)
	}
	_, err := r.Refresh(context.Background())
	if !errors.Is(err, ErrHTTPStatus) {
		t.Errorf("second Refresh() = %v, want ErrHTTPStatus", err)
	}
	if store.Get() != first {
		t.Error("failed refresh replaced the previous catalog")
	}
}

func TestRefresherDiscardsCancelledResult(t *testing.T) {
	store := NewStore()
	src := &fakeSource{catalogs: []*Catalog{testCatalog(t, issTLE)}}
	r := NewRefresher(src, store, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Refresh() = %v, want context.Canceled", err)
	}
	if store.Get() != nil {
		t.Error("cancelled refresh must not publish")
	}
}

// A reader holding an old snapshot keeps seeing it unchanged after a
// refresh publishes a new one.
func TestRefresherRunNonPositiveInterval(t *testing.T) {
	store := NewStore()
	want := testCatalog(t, issTLE)
	src := &fakeSource{catalogs: []*Catalog{want}}
	r := NewRefresher(src, store, testLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx, 0)

	if store.Get() != want {
		t.Error("initial refresh was not published")
	}
	if src.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", src.calls)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	store := NewStore()
	old := testCatalog(t, issTLE)
	store.Set(old)

	held := store.Get()
	store.Set(testCatalog(t, starlinkTLE))

	if held.Len() != 1 || held.Records[0].NoradID != 25544 {
		t.Errorf("held snapshot changed: %+v", held.Records)
	}
	if store.Get().Records[0].NoradID != 44713 {
		t.Error("store did not switch to the new catalog")
	}
}
