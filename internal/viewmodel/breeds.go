// Package viewmodel holds the presentation state of breed listings and
// favourites, independent of how they are rendered.
//
// A load replaced by a newer one returns datasource.ErrCancelled and leaves
// the state to the newer load. Callers drop that error without telling the
// user.
package viewmodel

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"cats_bot/internal/datasource"
	"cats_bot/internal/fetcher"
	"cats_bot/internal/model"
)

// Phase is the loading phase of a listing.
type Phase int

// Listing phases.
const (
	PhaseLoadingFirst Phase = iota
	PhaseLoadingMore
	PhaseLoaded
)

func (p Phase) String() string {
	switch p {
	case PhaseLoadingFirst:
		return "loading_first"
	case PhaseLoadingMore:
		return "loading_more"
	case PhaseLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// State is a snapshot of a listing.
type State struct {
	Phase         Phase
	HasMore       bool
	HasConnection bool
	Mode          model.DataSourceMode
	IsReload      bool

	// One-shot notices, cleared by ClearNotices.
	OfflineAlert     bool
	ReconnectedToast bool
}

// Pager is the paging side of a data source.
type Pager interface {
	LoadInitialPage(ctx context.Context, query string, mode model.DataSourceMode) (model.Page[model.Breed], error)
	LoadNextPage(ctx context.Context) (model.Page[model.Breed], error)
}

// FavouriteStore reads breeds and flips their favourite flag.
type FavouriteStore interface {
	GetBreed(ctx context.Context, id string) (*model.Breed, error)
	ListFavourites(ctx context.Context) ([]model.Breed, error)
	ToggleFavourite(ctx context.Context, b *model.Breed) error
}

// Breeds is the view-model of one breed listing.
type Breeds struct {
	pager Pager
	favs  FavouriteStore
	log   *slog.Logger

	mu        sync.Mutex
	gen       uint64 // bumped by every load; stale results are dropped
	query     string
	state     State
	breeds    []model.Breed
	observers []func(State)
}

// NewBreeds creates a listing in online mode, waiting for its first page.
func NewBreeds(pager Pager, favs FavouriteStore, log *slog.Logger) *Breeds {
	return &Breeds{
		pager: pager,
		favs:  favs,
		log:   log,
		state: State{
			Phase:         PhaseLoadingFirst,
			HasMore:       true,
			HasConnection: true,
			Mode:          model.ModeOnline,
		},
	}
}

// Subscribe registers fn to be called with every new state.
func (b *Breeds) Subscribe(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// SetQuery sets the search query used by the next first-page load.
func (b *Breeds) SetQuery(query string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query = query
}

// Query returns the current search query.
func (b *Breeds) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// State returns the current state.
func (b *Breeds) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Breeds returns the breeds listed so far.
func (b *Breeds) Breeds() []model.Breed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.breeds)
}

// ClearNotices resets the one-shot offline alert and reconnected toast.
func (b *Breeds) ClearNotices() {
	b.update(func(s *State) {
		s.OfflineAlert = false
		s.ReconnectedToast = false
	})
}

// LoadFirstPage reloads the listing in the current mode. When an online load
// cannot reach the API, the listing falls back to the local cache.
func (b *Breeds) LoadFirstPage(ctx context.Context) error {
	gen, query, mode := b.begin(PhaseLoadingFirst)

	page, err := b.pager.LoadInitialPage(ctx, query, mode)
	if errors.Is(err, datasource.ErrCancelled) {
		return err
	}
	if err != nil && mode == model.ModeOnline && fetcher.IsOffline(err) {
		b.log.Info("api unreachable, falling back to cache", "query", query, "error", err)
		if !b.commit(gen, func() { b.state.HasConnection = false }) {
			return datasource.ErrCancelled
		}

		page, err = b.pager.LoadInitialPage(ctx, query, model.ModeOffline)
		if errors.Is(err, datasource.ErrCancelled) {
			return err
		}
	}
	if err != nil {
		return b.fail(gen, err)
	}
	return b.apply(gen, page)
}

// LoadNextPageIfNeeded appends the next page when the listing is loaded and
// has more. It is a no-op otherwise.
func (b *Breeds) LoadNextPageIfNeeded(ctx context.Context) error {
	b.mu.Lock()
	if b.state.Phase != PhaseLoaded || !b.state.HasMore {
		b.mu.Unlock()
		return nil
	}
	b.gen++
	gen := b.gen
	b.state.Phase = PhaseLoadingMore
	b.publishLocked()

	page, err := b.pager.LoadNextPage(ctx)
	if errors.Is(err, datasource.ErrCancelled) {
		return err
	}
	if err != nil {
		return b.fail(gen, err)
	}
	return b.apply(gen, page)
}

// ActivateOfflineMode switches the listing to the local cache and reloads it.
// The mode changes once the cached page arrives.
func (b *Breeds) ActivateOfflineMode(ctx context.Context) error {
	gen, query, _ := b.begin(PhaseLoadingFirst)

	page, err := b.pager.LoadInitialPage(ctx, query, model.ModeOffline)
	if errors.Is(err, datasource.ErrCancelled) {
		return err
	}
	if err != nil {
		return b.fail(gen, err)
	}
	return b.apply(gen, page)
}

// AttemptNetworkRefresh reloads the listing from the API. Coming back from
// offline raises the reconnected toast; failing while offline raises the
// offline alert. A failure keeps the listing already shown.
func (b *Breeds) AttemptNetworkRefresh(ctx context.Context) error {
	b.mu.Lock()
	b.gen++
	gen, query := b.gen, b.query
	wasOffline := b.state.Mode == model.ModeOffline
	b.mu.Unlock()

	page, err := b.pager.LoadInitialPage(ctx, query, model.ModeOnline)
	if errors.Is(err, datasource.ErrCancelled) {
		return err
	}
	if err != nil {
		ok := b.commit(gen, func() {
			b.state.Phase = PhaseLoaded
			if fetcher.IsOffline(err) {
				b.state.HasConnection = false
			}
			if wasOffline {
				b.state.OfflineAlert = true
			}
		})
		if !ok {
			return datasource.ErrCancelled
		}
		return err
	}

	if wasOffline {
		b.log.Info("api reachable again", "query", query)
	}
	return b.commitPage(gen, page, func() {
		if wasOffline {
			b.state.ReconnectedToast = true
		}
	})
}

// ToggleFavourite flips the favourite flag of breed id and returns the
// updated breed. The listed copy is updated too.
func (b *Breeds) ToggleFavourite(ctx context.Context, id string) (model.Breed, error) {
	breed, err := toggleFavourite(ctx, b.favs, id)
	if err != nil {
		return model.Breed{}, err
	}

	b.mu.Lock()
	for i := range b.breeds {
		if b.breeds[i].ID == id {
			b.breeds[i].IsFavourited = breed.IsFavourited
		}
	}
	b.mu.Unlock()
	return breed, nil
}

// begin enters phase and starts a new load generation. It returns the
// generation with the query and mode to load with.
func (b *Breeds) begin(phase Phase) (uint64, string, model.DataSourceMode) {
	b.mu.Lock()
	b.gen++
	gen, query, mode := b.gen, b.query, b.state.Mode
	b.state.Phase = phase
	b.publishLocked()
	return gen, query, mode
}

// fail records a failed load of generation gen and returns err, or
// ErrCancelled if a newer load started meanwhile.
func (b *Breeds) fail(gen uint64, err error) error {
	ok := b.commit(gen, func() {
		b.state.Phase = PhaseLoaded
		if fetcher.IsOffline(err) {
			b.state.HasConnection = false
		}
	})
	if !ok {
		return datasource.ErrCancelled
	}
	return err
}

// apply shows page as the result of generation gen.
func (b *Breeds) apply(gen uint64, page model.Page[model.Breed]) error {
	return b.commitPage(gen, page, nil)
}

func (b *Breeds) commitPage(gen uint64, page model.Page[model.Breed], extra func()) error {
	ok := b.commit(gen, func() {
		if page.IsReload() {
			b.breeds = slices.Clone(page.Items)
		} else {
			b.breeds = append(b.breeds, page.Items...)
		}
		b.state.Phase = PhaseLoaded
		b.state.HasMore = page.HasMore
		b.state.Mode = page.Mode
		b.state.IsReload = page.IsReload()
		if page.Mode == model.ModeOnline {
			b.state.HasConnection = true
		}
		if extra != nil {
			extra()
		}
	})
	if !ok {
		b.log.Debug("dropping stale page", "page", page.Number, "mode", page.Mode)
		return datasource.ErrCancelled
	}
	return nil
}

// commit runs fn under the lock if gen is still the latest load, then
// notifies observers. It reports whether fn ran.
func (b *Breeds) commit(gen uint64, fn func()) bool {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return false
	}
	fn()
	b.publishLocked()
	return true
}

// update mutates the state and notifies observers.
func (b *Breeds) update(fn func(*State)) {
	b.mu.Lock()
	fn(&b.state)
	b.publishLocked()
}

// publishLocked releases b.mu and notifies observers of the state it held.
func (b *Breeds) publishLocked() {
	state := b.state
	observers := slices.Clone(b.observers)
	b.mu.Unlock()

	for _, notify := range observers {
		notify(state)
	}
}
