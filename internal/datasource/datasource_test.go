package datasource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cats_bot/internal/fetcher"
	"cats_bot/internal/model"
	"cats_bot/internal/storage"
)

type fetchCall struct {
	query    string
	page     int
	pageSize int
}

// fakeAPI serves breeds sorted by name, like the Cat API does.
type fakeAPI struct {
	breeds []model.BreedDTO
	err    error
	// hold, when set, may return a channel the call waits on before answering.
	hold func(call fetchCall) <-chan struct{}

	mu    sync.Mutex
	calls []fetchCall
}

func (f *fakeAPI) FetchBreeds(_ context.Context, query string, page, pageSize int) ([]model.BreedDTO, error) {
	call := fetchCall{query: query, page: page, pageSize: pageSize}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.err
	f.mu.Unlock()

	if f.hold != nil {
		if ch := f.hold(call); ch != nil {
			<-ch
		}
	}
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var matched []model.BreedDTO
	for _, b := range f.breeds {
		if strings.Contains(strings.ToLower(b.Name), q) {
			matched = append(matched, b)
		}
	}
	slices.SortFunc(matched, func(a, b model.BreedDTO) int { return strings.Compare(a.Name, b.Name) })

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []model.BreedDTO{}, nil
	}
	return slices.Clone(matched[start:min(start+pageSize, len(matched))]), nil
}

func (f *fakeAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeAPI) recorded() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// spyStore records which calls reach the cache.
type spyStore struct {
	*storage.SQLite

	mu        sync.Mutex
	persisted [][]string
	fetched   []int
}

func (s *spyStore) Persist(ctx context.Context, dtos []model.BreedDTO) ([]model.Breed, error) {
	ids := make([]string, 0, len(dtos))
	for _, d := range dtos {
		ids = append(ids, d.ID)
	}
	s.mu.Lock()
	s.persisted = append(s.persisted, ids)
	s.mu.Unlock()
	return s.SQLite.Persist(ctx, dtos)
}

func (s *spyStore) FetchPage(ctx context.Context, query string, page, pageSize int) ([]model.Breed, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, page)
	s.mu.Unlock()
	return s.SQLite.FetchPage(ctx, query, page, pageSize)
}

func (s *spyStore) persistCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.persisted)
}

type failingStore struct {
	err error
}

func (f failingStore) FetchPage(context.Context, string, int, int) ([]model.Breed, error) {
	return nil, f.err
}

func (f failingStore) Persist(context.Context, []model.BreedDTO) ([]model.Breed, error) {
	return nil, f.err
}

var fiveBreeds = []model.BreedDTO{
	{ID: "pers", Name: "Persian"},
	{ID: "abys", Name: "Abyssinian"},
	{ID: "chau", Name: "Chausie"},
	{ID: "bali", Name: "Balinese"},
	{ID: "aege", Name: "Aegean"},
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *spyStore {
	t.Helper()
	db, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &spyStore{SQLite: db}
}

func names(breeds []model.Breed) []string {
	var out []string
	for _, b := range breeds {
		out = append(out, b.Name)
	}
	return out
}

type pageSummary struct {
	Names   []string
	Number  int
	HasMore bool
	Mode    model.DataSourceMode
}

func summarize(p model.Page[model.Breed]) pageSummary {
	return pageSummary{Names: names(p.Items), Number: p.Number, HasMore: p.HasMore, Mode: p.Mode}
}

func TestOnlinePaging(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{breeds: fiveBreeds}
	store := newTestStore(t)
	ds := New(api, store, 3, testLogger())

	first, err := ds.LoadInitialPage(ctx, "", model.ModeOnline)
	if err != nil {
		t.Fatalf("initial page: %v", err)
	}
	want := pageSummary{Names: []string{"Abyssinian", "Aegean", "Balinese"}, Number: 1, HasMore: true, Mode: model.ModeOnline}
	if diff := cmp.Diff(want, summarize(first)); diff != "" {
		t.Errorf("first page mismatch (-want +got):\n%s", diff)
	}
	if !first.IsReload() {
		t.Error("first page should be a reload")
	}

	second, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	want = pageSummary{Names: []string{"Chausie", "Persian"}, Number: 2, HasMore: false, Mode: model.ModeOnline}
	if diff := cmp.Diff(want, summarize(second)); diff != "" {
		t.Errorf("second page mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []fetchCall{{query: "", page: 1, pageSize: 3}, {query: "", page: 2, pageSize: 3}}
	if diff := cmp.Diff(wantCalls, api.recorded(), cmp.AllowUnexported(fetchCall{})); diff != "" {
		t.Errorf("api calls mismatch (-want +got):\n%s", diff)
	}

	cached, err := store.SQLite.FetchPage(ctx, "", 1, 10)
	if err != nil {
		t.Fatalf("fetch cache: %v", err)
	}
	wantCached := []string{"Abyssinian", "Aegean", "Balinese", "Chausie", "Persian"}
	if diff := cmp.Diff(wantCached, names(cached)); diff != "" {
		t.Errorf("cache mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyFollowUpPage(t *testing.T) {
	ctx := context.Background()
	breeds := append(slices.Clone(fiveBreeds), model.BreedDTO{ID: "siam", Name: "Siamese"})
	api := &fakeAPI{breeds: breeds}
	ds := New(api, newTestStore(t), 3, testLogger())

	if _, err := ds.LoadInitialPage(ctx, "", model.ModeOnline); err != nil {
		t.Fatalf("initial page: %v", err)
	}
	second, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if !second.HasMore {
		t.Error("a full page should report HasMore")
	}

	third, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("third page: %v", err)
	}
	want := pageSummary{Number: 3, Mode: model.ModeOnline}
	if diff := cmp.Diff(want, summarize(third)); diff != "" {
		t.Errorf("empty page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, ds.CurrentPage()); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}

	// The empty page is requested again rather than skipped.
	if _, err := ds.LoadNextPage(ctx); err != nil {
		t.Fatalf("retry page: %v", err)
	}
	calls := api.recorded()
	if diff := cmp.Diff(3, calls[len(calls)-1].page); diff != "" {
		t.Errorf("retried page mismatch (-want +got):\n%s", diff)
	}
}

func TestOfflineModeContinuity(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{breeds: fiveBreeds}
	store := newTestStore(t)
	if _, err := store.SQLite.Persist(ctx, fiveBreeds); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ds := New(api, store, 2, testLogger())

	first, err := ds.LoadInitialPage(ctx, "", model.ModeOffline)
	if err != nil {
		t.Fatalf("initial page: %v", err)
	}
	second, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("next page: %v", err)
	}

	got := []pageSummary{summarize(first), summarize(second)}
	want := []pageSummary{
		{Names: []string{"Abyssinian", "Aegean"}, Number: 1, HasMore: true, Mode: model.ModeOffline},
		{Names: []string{"Balinese", "Chausie"}, Number: 2, HasMore: true, Mode: model.ModeOffline},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	if len(api.recorded()) != 0 {
		t.Errorf("offline paging reached the API: %v", api.recorded())
	}
	if diff := cmp.Diff([]int{1, 2}, store.fetched); diff != "" {
		t.Errorf("cache pages mismatch (-want +got):\n%s", diff)
	}
}

func TestSwitchingModeRestartsListing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ds := New(&fakeAPI{breeds: fiveBreeds}, store, 2, testLogger())

	if _, err := ds.LoadInitialPage(ctx, "", model.ModeOnline); err != nil {
		t.Fatalf("initial page: %v", err)
	}
	if _, err := ds.LoadNextPage(ctx); err != nil {
		t.Fatalf("next page: %v", err)
	}

	offline, err := ds.LoadInitialPage(ctx, "", model.ModeOffline)
	if err != nil {
		t.Fatalf("offline page: %v", err)
	}
	want := pageSummary{Names: []string{"Abyssinian", "Aegean"}, Number: 1, HasMore: true, Mode: model.ModeOffline}
	if diff := cmp.Diff(want, summarize(offline)); diff != "" {
		t.Errorf("offline page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.ModeOffline, ds.Mode()); diff != "" {
		t.Errorf("mode mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, ds.CurrentPage()); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchFiltersBothModes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ds := New(&fakeAPI{breeds: fiveBreeds}, store, 5, testLogger())

	for _, mode := range []model.DataSourceMode{model.ModeOnline, model.ModeOffline} {
		t.Run(string(mode), func(t *testing.T) {
			page, err := ds.LoadInitialPage(ctx, "ae", mode)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff([]string{"Aegean"}, names(page.Items)); diff != "" {
				t.Errorf("search mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff("ae", ds.Query()); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNetworkErrorThenOfflineFallback(t *testing.T) {
	ctx := context.Background()
	netErr := &fetcher.NetworkError{Kind: fetcher.KindNetwork, Err: errors.New("no route to host")}
	api := &fakeAPI{breeds: fiveBreeds, err: netErr}
	store := newTestStore(t)
	if _, err := store.SQLite.Persist(ctx, fiveBreeds[:3]); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ds := New(api, store, 12, testLogger())

	_, err := ds.LoadInitialPage(ctx, "", model.ModeOnline)
	if !errors.Is(err, netErr) {
		t.Fatalf("expected the network error unchanged, got %v", err)
	}
	if !fetcher.IsOffline(err) {
		t.Error("expected an offline error")
	}
	if calls := store.persistCalls(); len(calls) != 0 {
		t.Errorf("failed fetch reached the cache: %v", calls)
	}

	page, err := ds.LoadInitialPage(ctx, "", model.ModeOffline)
	if err != nil {
		t.Fatalf("offline page: %v", err)
	}
	want := pageSummary{Names: []string{"Abyssinian", "Chausie", "Persian"}, Number: 1, Mode: model.ModeOffline}
	if diff := cmp.Diff(want, summarize(page)); diff != "" {
		t.Errorf("offline page mismatch (-want +got):\n%s", diff)
	}
}

func TestServerErrorPropagates(t *testing.T) {
	srvErr := &fetcher.NetworkError{Kind: fetcher.KindServer, StatusCode: 500, Err: errors.New("unexpected status 500")}
	ds := New(&fakeAPI{err: srvErr}, newTestStore(t), 12, testLogger())

	_, err := ds.LoadInitialPage(context.Background(), "", model.ModeOnline)
	var ne *fetcher.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if diff := cmp.Diff(500, ne.StatusCode); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if fetcher.IsOffline(err) {
		t.Error("a server error is not offline")
	}
}

func TestFailedReloadKeepsCursor(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{breeds: fiveBreeds}
	ds := New(api, newTestStore(t), 2, testLogger())

	if _, err := ds.LoadInitialPage(ctx, "", model.ModeOnline); err != nil {
		t.Fatalf("initial page: %v", err)
	}

	api.setErr(&fetcher.NetworkError{Kind: fetcher.KindNetwork, Err: errors.New("timeout")})
	if _, err := ds.LoadInitialPage(ctx, "bal", model.ModeOnline); err == nil {
		t.Fatal("expected reload to fail")
	}
	if diff := cmp.Diff("", ds.Query()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, ds.CurrentPage()); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}

	api.setErr(nil)
	next, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	if diff := cmp.Diff([]string{"Balinese", "Chausie"}, names(next.Items)); diff != "" {
		t.Errorf("next page mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistenceErrorPropagates(t *testing.T) {
	storeErr := &storage.PersistenceError{Op: "persist breeds", Err: errors.New("disk full")}

	tests := []struct {
		name string
		mode model.DataSourceMode
	}{
		{name: "online persist", mode: model.ModeOnline},
		{name: "offline read", mode: model.ModeOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := New(&fakeAPI{breeds: fiveBreeds}, failingStore{err: storeErr}, 12, testLogger())
			_, err := ds.LoadInitialPage(context.Background(), "", tt.mode)

			var pe *storage.PersistenceError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PersistenceError, got %v", err)
			}
			if fetcher.IsOffline(err) {
				t.Error("a store error is not offline")
			}
		})
	}
}

func TestSupersededNextPage(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{breeds: fiveBreeds}
	store := newTestStore(t)
	ds := New(api, store, 2, testLogger())

	if _, err := ds.LoadInitialPage(ctx, "", model.ModeOnline); err != nil {
		t.Fatalf("initial page: %v", err)
	}

	// The first page-2 request answers only after the second one finished.
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	api.hold = func(call fetchCall) <-chan struct{} {
		held := false
		once.Do(func() {
			held = true
			close(started)
		})
		if held {
			return release
		}
		return nil
	}

	type result struct {
		page model.Page[model.Breed]
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		p, err := ds.LoadNextPage(ctx)
		slow <- result{p, err}
	}()
	<-started

	fast, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	close(release)
	stale := <-slow

	if !errors.Is(stale.err, ErrCancelled) {
		t.Errorf("expected ErrCancelled for the superseded call, got %v", stale.err)
	}
	if diff := cmp.Diff([]string{"Balinese", "Chausie"}, names(fast.Items)); diff != "" {
		t.Errorf("second call page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, ds.CurrentPage()); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
	// Page 1 and the winning page 2; the superseded response is discarded.
	wantPersisted := [][]string{{"abys", "aege"}, {"bali", "chau"}}
	if diff := cmp.Diff(wantPersisted, store.persistCalls()); diff != "" {
		t.Errorf("persist calls mismatch (-want +got):\n%s", diff)
	}

	next, err := ds.LoadNextPage(ctx)
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if diff := cmp.Diff([]string{"Persian"}, names(next.Items)); diff != "" {
		t.Errorf("third page mismatch (-want +got):\n%s", diff)
	}
}

func TestSupersededSearch(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{breeds: fiveBreeds}
	api.hold = func(call fetchCall) <-chan struct{} {
		if call.query == "a" {
			close(started)
			return release
		}
		return nil
	}
	ds := New(api, newTestStore(t), 12, testLogger())

	slow := make(chan error, 1)
	go func() {
		_, err := ds.LoadInitialPage(ctx, "a", model.ModeOnline)
		slow <- err
	}()
	<-started

	page, err := ds.LoadInitialPage(ctx, "bal", model.ModeOnline)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	close(release)

	if err := <-slow; !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if diff := cmp.Diff([]string{"Balinese"}, names(page.Items)); diff != "" {
		t.Errorf("search page mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("bal", ds.Query()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newTestStore(t)
	ds := New(&fakeAPI{breeds: fiveBreeds}, store, 12, testLogger())

	_, err := ds.LoadInitialPage(ctx, "sib", model.ModeOnline)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("caller cancellation is not a superseded operation")
	}
	if diff := cmp.Diff("", ds.Query()); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if calls := store.persistCalls(); len(calls) != 0 {
		t.Errorf("cancelled call reached the cache: %v", calls)
	}
}

func TestDefaultPageSize(t *testing.T) {
	ds := New(&fakeAPI{}, newTestStore(t), 0, testLogger())
	if diff := cmp.Diff(DefaultPageSize, ds.PageSize()); diff != "" {
		t.Errorf("page size mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.ModeOnline, ds.Mode()); diff != "" {
		t.Errorf("mode mismatch (-want +got):\n%s", diff)
	}
}
