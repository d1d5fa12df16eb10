package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"

	"cats_bot/internal/model"
	"cats_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Defaults for cache retention.
const (
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultPruneBatchSize = 1000
)

// SQLite's lower() only folds ASCII, so name search folds case in Go on
// both sides.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold_case", 1, foldCase)
}

func foldCase(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

const breedColumns = `id, name, origin, description, temperament, max_lifespan_years, image_url, is_favourited, persisted_at`

// Option configures a SQLite store.
type Option func(*SQLite)

// WithRetention sets how long a cached breed survives without a refresh.
func WithRetention(d time.Duration) Option {
	return func(s *SQLite) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithPruneBatchSize bounds the number of rows deleted per prune statement.
func WithPruneBatchSize(n int) Option {
	return func(s *SQLite) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source used for persisted_at and pruning.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) {
		s.now = now
	}
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db        *sql.DB
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLite{
		db:        db,
		retention: DefaultRetention,
		batchSize: DefaultPruneBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// FetchPage returns one page of cached breeds sorted by name. A non-blank
// query keeps only breeds whose name contains it, ignoring case.
func (s *SQLite) FetchPage(ctx context.Context, query string, page, pageSize int) ([]model.Breed, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	offset := max(page-1, 0) * pageSize

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+breedColumns+` FROM breeds
		 WHERE ? = '' OR instr(fold_case(name), ?) > 0
		 ORDER BY name COLLATE NOCASE, id
		 LIMIT ? OFFSET ?`,
		q, q, pageSize, offset,
	)
	if err != nil {
		return nil, wrapErr("fetch page", err)
	}
	defer func() { _ = rows.Close() }()

	breeds, err := scanBreeds(rows)
	return breeds, wrapErr("fetch page", err)
}

// Persist upserts dtos by id and returns the stored records in input order.
// Stale records are pruned first; a prune failure aborts the upsert.
func (s *SQLite) Persist(ctx context.Context, dtos []model.BreedDTO) ([]model.Breed, error) {
	if len(dtos) == 0 {
		return []model.Breed{}, nil
	}

	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}

	now := s.clock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("persist: begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]model.Breed, 0, len(dtos))
	for _, dto := range dtos {
		b, err := getBreed(ctx, tx, dto.ID)
		switch {
		case err == nil:
			b.Apply(dto, now)
			if err := updateBreed(ctx, tx, b); err != nil {
				return nil, wrapErr("persist: update "+dto.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			nb := model.NewBreed(dto, now)
			b = &nb
			if err := insertBreed(ctx, tx, b); err != nil {
				return nil, wrapErr("persist: insert "+dto.ID, err)
			}
		default:
			return nil, wrapErr("persist: lookup "+dto.ID, err)
		}
		out = append(out, *b)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("persist: commit", err)
	}
	return out, nil
}

// Prune deletes breeds not refreshed within the retention window, and breeds
// that were never stamped, in batches until a batch comes back short.
func (s *SQLite) Prune(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-s.retention).Format(timeLayout)

	total := 0
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM breeds WHERE id IN (
			   SELECT id FROM breeds
			   WHERE persisted_at IS NULL OR persisted_at < ?
			   LIMIT ?)`,
			cutoff, s.batchSize,
		)
		if err != nil {
			return total, wrapErr("prune", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, wrapErr("prune: rows affected", err)
		}
		total += int(n)
		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}

// GetBreed returns a single cached breed by id.
func (s *SQLite) GetBreed(ctx context.Context, id string) (*model.Breed, error) {
	b, err := getBreed(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapErr("get breed "+id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get breed "+id, err)
	}
	return b, nil
}

// ListFavourites returns every favourited breed sorted by name.
func (s *SQLite) ListFavourites(ctx context.Context) ([]model.Breed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+breedColumns+` FROM breeds
		 WHERE is_favourited = 1
		 ORDER BY name COLLATE NOCASE, id`,
	)
	if err != nil {
		return nil, wrapErr("list favourites", err)
	}
	defer func() { _ = rows.Close() }()

	breeds, err := scanBreeds(rows)
	return breeds, wrapErr("list favourites", err)
}

// ToggleFavourite flips the favourite flag of b and stores it immediately.
// On success b carries the stored value.
func (s *SQLite) ToggleFavourite(ctx context.Context, b *model.Breed) error {
	var fav int
	err := s.db.QueryRowContext(ctx,
		`UPDATE breeds SET is_favourited = 1 - is_favourited WHERE id = ? RETURNING is_favourited`,
		b.ID,
	).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return wrapErr("toggle favourite "+b.ID, ErrNotFound)
	}
	if err != nil {
		return wrapErr("toggle favourite "+b.ID, err)
	}
	b.IsFavourited = fav == 1
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getBreed(ctx context.Context, q querier, id string) (*model.Breed, error) {
	row := q.QueryRowContext(ctx, `SELECT `+breedColumns+` FROM breeds WHERE id = ?`, id)
	b, err := scanBreed(row)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func insertBreed(ctx context.Context, e execer, b *model.Breed) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO breeds (`+breedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, nullString(b.Origin), nullString(b.Description), nullString(b.Temperament),
		nullInt(b.MaxLifespanYears), nullString(b.ImageURL), boolToInt(b.IsFavourited), nullTime(b.PersistedAt),
	)
	return err
}

func updateBreed(ctx context.Context, e execer, b *model.Breed) error {
	_, err := e.ExecContext(ctx,
		`UPDATE breeds SET name = ?, origin = ?, description = ?, temperament = ?,
		   max_lifespan_years = ?, image_url = ?, persisted_at = ?
		 WHERE id = ?`,
		b.Name, nullString(b.Origin), nullString(b.Description), nullString(b.Temperament),
		nullInt(b.MaxLifespanYears), nullString(b.ImageURL), nullTime(b.PersistedAt), b.ID,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBreed(row scannable) (model.Breed, error) {
	var b model.Breed
	var origin, description, temperament, imageURL, persistedAt sql.NullString
	var lifespan sql.NullInt64
	var fav int
	err := row.Scan(&b.ID, &b.Name, &origin, &description, &temperament, &lifespan, &imageURL, &fav, &persistedAt)
	if err != nil {
		return b, err
	}
	b.Origin = origin.String
	b.Description = description.String
	b.Temperament = temperament.String
	b.ImageURL = imageURL.String
	b.IsFavourited = fav == 1
	if lifespan.Valid {
		v := int(lifespan.Int64)
		b.MaxLifespanYears = &v
	}
	if persistedAt.Valid {
		if t, err := time.Parse(timeLayout, persistedAt.String); err == nil {
			b.PersistedAt = &t
		}
	}
	return b, nil
}

func scanBreeds(rows *sql.Rows) ([]model.Breed, error) {
	var breeds []model.Breed
	for rows.Next() {
		b, err := scanBreed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breed: %w", err)
		}
		breeds = append(breeds, b)
	}
	return breeds, rows.Err()
}
