// Package datasource pages the breed catalogue from either the Cat API or
// the local cache behind a single cursor.
//
// Both backends are assumed to sort breeds by name. Switching modes in the
// middle of a listing relies on that; if the API ever orders differently,
// mixed listings will skip or repeat breeds.
package datasource

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"cats_bot/internal/model"
)

// DefaultPageSize is used when New is given a non-positive page size.
const DefaultPageSize = 12

// ErrCancelled is returned by an operation that a newer one replaced.
// Callers drop the result; it is never a user-facing error.
var ErrCancelled = errors.New("paging operation superseded")

// Fetcher loads breed pages from the remote API.
type Fetcher interface {
	FetchBreeds(ctx context.Context, query string, page, pageSize int) ([]model.BreedDTO, error)
}

// Store is the part of the local cache the data source needs.
type Store interface {
	FetchPage(ctx context.Context, query string, page, pageSize int) ([]model.Breed, error)
	Persist(ctx context.Context, dtos []model.BreedDTO) ([]model.Breed, error)
}

type cursor struct {
	page  int // last page delivered, 0 before the first
	query string
	mode  model.DataSourceMode
}

type operation struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// err reports why the operation stopped, or nil while it may continue.
func (op *operation) err() error {
	if op.ctx.Err() == nil {
		return nil
	}
	return context.Cause(op.ctx)
}

// DataSource owns the paging cursor of one listing. At most one paging
// operation runs at a time; starting another cancels it.
type DataSource struct {
	fetcher  Fetcher
	store    Store
	pageSize int
	log      *slog.Logger

	mu     sync.Mutex
	cur    cursor
	active *operation
}

// New creates a DataSource in online mode.
func New(fetcher Fetcher, store Store, pageSize int, log *slog.Logger) *DataSource {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &DataSource{
		fetcher:  fetcher,
		store:    store,
		pageSize: pageSize,
		log:      log,
		cur:      cursor{mode: model.ModeOnline},
	}
}

// PageSize returns the number of breeds requested per page.
func (d *DataSource) PageSize() int {
	return d.pageSize
}

// Mode returns the mode subsequent LoadNextPage calls will use.
func (d *DataSource) Mode() model.DataSourceMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur.mode
}

// Query returns the query of the current listing.
func (d *DataSource) Query() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur.query
}

// CurrentPage returns the number of the last page delivered, 0 if none.
func (d *DataSource) CurrentPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cur.page
}

// LoadInitialPage starts a new listing for query in the given mode and
// returns its first page. If the load fails, the previous listing's cursor
// is kept.
func (d *DataSource) LoadInitialPage(ctx context.Context, query string, mode model.DataSourceMode) (model.Page[model.Breed], error) {
	d.mu.Lock()
	prev := d.cur
	d.cur = cursor{query: query, mode: mode}
	op := d.startLocked(ctx)
	d.mu.Unlock()

	page, err := d.load(op, query, mode, 1)
	return d.finish(op, page, err, &prev)
}

// LoadNextPage returns the page after the last one delivered, from the
// backend of the current mode.
func (d *DataSource) LoadNextPage(ctx context.Context) (model.Page[model.Breed], error) {
	d.mu.Lock()
	cur := d.cur
	op := d.startLocked(ctx)
	d.mu.Unlock()

	page, err := d.load(op, cur.query, cur.mode, cur.page+1)
	return d.finish(op, page, err, nil)
}

func (d *DataSource) startLocked(ctx context.Context) *operation {
	if d.active != nil {
		d.active.cancel(ErrCancelled)
	}
	opCtx, cancel := context.WithCancelCause(ctx)
	op := &operation{id: uuid.New(), ctx: opCtx, cancel: cancel}
	d.active = op
	return op
}

// finish commits the outcome of op unless a newer operation replaced it.
func (d *DataSource) finish(op *operation, page model.Page[model.Breed], err error, rollback *cursor) (model.Page[model.Breed], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer op.cancel(nil)

	if d.active != op {
		d.log.Debug("paging operation superseded", "op_id", op.id)
		return model.Page[model.Breed]{}, ErrCancelled
	}
	d.active = nil

	if err != nil {
		if rollback != nil {
			d.cur = *rollback
		}
		return model.Page[model.Breed]{}, err
	}

	// An empty page leaves the cursor where it was.
	if len(page.Items) > 0 {
		d.cur.page = page.Number
	}
	return page, nil
}

func (d *DataSource) load(op *operation, query string, mode model.DataSourceMode, page int) (model.Page[model.Breed], error) {
	d.log.Debug("load page", "op_id", op.id, "mode", mode, "page", page, "query", query)

	if mode == model.ModeOffline {
		return d.loadFromStore(op, query, page)
	}
	return d.loadFromNetwork(op, query, page)
}

func (d *DataSource) loadFromNetwork(op *operation, query string, page int) (model.Page[model.Breed], error) {
	dtos, err := d.fetcher.FetchBreeds(op.ctx, query, page, d.pageSize)
	if cerr := op.err(); cerr != nil {
		return model.Page[model.Breed]{}, cerr
	}
	if err != nil {
		return model.Page[model.Breed]{}, err
	}

	breeds, err := d.store.Persist(op.ctx, dtos)
	if cerr := op.err(); cerr != nil {
		return model.Page[model.Breed]{}, cerr
	}
	if err != nil {
		return model.Page[model.Breed]{}, err
	}

	d.log.Debug("page loaded", "op_id", op.id, "mode", model.ModeOnline, "page", page, "count", len(breeds))
	return model.NewPage(breeds, page, d.pageSize, model.ModeOnline), nil
}

func (d *DataSource) loadFromStore(op *operation, query string, page int) (model.Page[model.Breed], error) {
	breeds, err := d.store.FetchPage(op.ctx, query, page, d.pageSize)
	if cerr := op.err(); cerr != nil {
		return model.Page[model.Breed]{}, cerr
	}
	if err != nil {
		return model.Page[model.Breed]{}, err
	}

	d.log.Debug("page loaded", "op_id", op.id, "mode", model.ModeOffline, "page", page, "count", len(breeds))
	return model.NewPage(breeds, page, d.pageSize, model.ModeOffline), nil
}
