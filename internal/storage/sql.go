package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"price_tracker/internal/model"
	"price_tracker/migrations"
)

const timeLayout = "2006-01-02 15:04:05"

var listingColumns = []string{
	"id", "platform", "platform_id", "query_id", "name", "href", "img_href", "brand",
	"created_at", "last_updated", "last_confirmed",
}

// Option configures a SQL store.
type Option func(*SQL)

// WithLogger sets the logger used for non-fatal read warnings.
func WithLogger(log *slog.Logger) Option {
	return func(s *SQL) { s.log = log }
}

// WithClock overrides the clock used for created_at and last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *SQL) { s.now = now }
}

// SQL implements Storage on top of a single database connection.
//
// All methods hold mu for the whole statement, including row iteration, so
// the store behaves like a single global writer regardless of backend.
type SQL struct {
	mu          sync.Mutex
	db          *sql.DB
	dialect     string
	sb          sq.StatementBuilderType
	log         *slog.Logger
	now         func() time.Time
	initialized bool
}

var _ Storage = (*SQL)(nil)

func newSQL(db *sql.DB, dialect string, opts []Option) *SQL {
	s := &SQL{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// open creates a pool capped to one connection and verifies it is reachable.
func open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, driver, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnection, driver, err)
	}
	return db, nil
}

// Dialect reports which backend the store talks to.
func (s *SQL) Dialect() string {
	return s.dialect
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// InitializeSchema applies pending migrations. Repeat calls are no-ops.
func (s *SQL) InitializeSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if err := migrations.Run(s.db, s.dialect); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	s.initialized = true
	return nil
}

// AddTrackedQuery inserts a new active tracked query and returns its ID.
func (s *SQL) AddTrackedQuery(ctx context.Context, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.insert(ctx, s.sb.Insert("tracked_queries").
		Columns("query", "active").
		Values(text, boolToInt(true)))
	if err != nil {
		return 0, fmt.Errorf("%w: insert tracked query: %w", ErrDataAccess, err)
	}
	return id, nil
}

// ListTrackedQueries returns all tracked queries ordered by ID.
func (s *SQL) ListTrackedQueries(ctx context.Context) ([]model.TrackedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries, err := s.selectTrackedQueries(ctx, nil)
	if err != nil {
		return []model.TrackedQuery{}, s.readFailed("list tracked queries", err)
	}
	return queries, nil
}

// ListActiveTrackedQueries returns the active tracked queries ordered by ID.
func (s *SQL) ListActiveTrackedQueries(ctx context.Context) ([]model.TrackedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queries, err := s.selectTrackedQueries(ctx, sq.Eq{"active": boolToInt(true)})
	if err != nil {
		return []model.TrackedQuery{}, s.readFailed("list active tracked queries", err)
	}
	return queries, nil
}

// SetTrackedQueryActive toggles the active flag of a tracked query.
func (s *SQL) SetTrackedQueryActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, "tracked_queries", id, s.sb.Update("tracked_queries").
		Set("active", boolToInt(active)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set tracked query %d active: %w", id, err)
	}
	return nil
}

// FindListingID looks up the listing with the given identity triple.
func (s *SQL) FindListingID(ctx context.Context, key model.ListingKey) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.findListingID(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("%w: find listing: %w", ErrDataAccess, err)
	}
	return id, ok, nil
}

// InsertListing inserts a new listing and populates its ID and timestamps.
// It does not check for an existing row with the same key; see EnsureListing.
func (s *SQL) InsertListing(ctx context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertListing(ctx, l); err != nil {
		return fmt.Errorf("%w: insert listing: %w", ErrDataAccess, err)
	}
	return nil
}

// EnsureListing sets l.ID to the existing listing with the same key, or
// inserts l when there is none. The lookup and the insert happen under one
// lock hold, so concurrent callers never create duplicate keys.
func (s *SQL) EnsureListing(ctx context.Context, l *model.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.findListingID(ctx, l.Key())
	if err != nil {
		return false, fmt.Errorf("%w: find listing: %w", ErrDataAccess, err)
	}
	if ok {
		l.ID = id
		return false, nil
	}
	if err := s.insertListing(ctx, l); err != nil {
		return false, fmt.Errorf("%w: insert listing: %w", ErrDataAccess, err)
	}
	return true, nil
}

// TouchLastConfirmed records that the listing was seen again at the given time.
// Like every stored timestamp, at is kept in UTC truncated to whole seconds,
// so the value read back equals at.Truncate(time.Second).
func (s *SQL) TouchLastConfirmed(ctx context.Context, listingID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.update(ctx, "goods", listingID, s.sb.Update("goods").
		Set("last_confirmed", formatTime(at)).
		Set("last_updated", formatTime(s.now())).
		Where(sq.Eq{"id": listingID}))
	if err != nil {
		return fmt.Errorf("touch listing %d: %w", listingID, err)
	}
	return nil
}

// GetListing returns a single listing by its ID.
func (s *SQL) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := s.sb.Select(listingColumns...).From("goods").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %w", ErrDataAccess, err)
	}
	l, err := scanListing(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get listing: %w", ErrDataAccess, err)
	}
	return l, nil
}

// ListListings returns all listings ordered by ID.
func (s *SQL) ListListings(ctx context.Context) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listings, err := s.selectListings(ctx)
	if err != nil {
		return []model.Listing{}, s.readFailed("list listings", err)
	}
	return listings, nil
}

// InsertPriceObservation appends a price to the listing's history.
func (s *SQL) InsertPriceObservation(ctx context.Context, listingID int64, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insert(ctx, s.sb.Insert("prices").
		Columns("good_id", "price", "timestamp").
		Values(listingID, price, formatTime(at)))
	if err != nil {
		return fmt.Errorf("%w: insert price: %w", ErrDataAccess, err)
	}
	return nil
}

// InsertStockObservation appends an availability flag to the listing's history.
func (s *SQL) InsertStockObservation(ctx context.Context, listingID int64, inStock bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insert(ctx, s.sb.Insert("in_stock").
		Columns("good_id", "in_stock", "timestamp").
		Values(listingID, boolToInt(inStock), formatTime(at)))
	if err != nil {
		return fmt.Errorf("%w: insert stock: %w", ErrDataAccess, err)
	}
	return nil
}

// ListPriceHistory returns the prices of a listing in insertion order.
func (s *SQL) ListPriceHistory(ctx context.Context, listingID int64) ([]model.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.selectPrices(ctx, listingID)
	if err != nil {
		return []model.PriceObservation{}, s.readFailed("list price history", err)
	}
	return history, nil
}

// ListStockHistory returns the availability flags of a listing in insertion order.
func (s *SQL) ListStockHistory(ctx context.Context, listingID int64) ([]model.StockObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.selectStock(ctx, listingID)
	if err != nil {
		return []model.StockObservation{}, s.readFailed("list stock history", err)
	}
	return history, nil
}

// The helpers below expect mu to be held by the caller.

func (s *SQL) readFailed(op string, err error) error {
	s.log.Warn("storage read failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrDataAccess, op, err)
}

func (s *SQL) insert(ctx context.Context, b sq.InsertBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// update runs b and reports ErrNotFound when no row with id exists in table.
// MySQL counts changed rows only, so a zero count is double-checked.
func (s *SQL) update(ctx context.Context, table string, id int64, b sq.UpdateBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%w: build update: %w", ErrDataAccess, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataAccess, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", ErrDataAccess, err)
	}
	if n > 0 {
		return nil
	}

	query, args, err = s.sb.Select("COUNT(*)").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build count: %w", ErrDataAccess, err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return fmt.Errorf("%w: count rows: %w", ErrDataAccess, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) findListingID(ctx context.Context, key model.ListingKey) (int64, bool, error) {
	query, args, err := s.sb.Select("id").From("goods").
		Where(sq.Eq{
			"platform":    key.Source,
			"platform_id": key.SourceItemID,
			"query_id":    key.QueryID,
		}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *SQL) insertListing(ctx context.Context, l *model.Listing) error {
	now := s.now().UTC().Truncate(time.Second)
	var confirmed any
	if l.LastConfirmed != nil {
		confirmed = formatTime(*l.LastConfirmed)
	}

	id, err := s.insert(ctx, s.sb.Insert("goods").
		Columns("platform", "platform_id", "query_id", "name", "href", "img_href", "brand",
			"created_at", "last_updated", "last_confirmed").
		Values(l.Source, l.SourceItemID, l.QueryID, l.Name, l.Href, nullString(l.ImageHref), nullString(l.Brand),
			formatTime(now), formatTime(now), confirmed))
	if err != nil {
		return err
	}
	l.ID = id
	l.CreatedAt = now
	l.LastUpdated = now
	return nil
}

func (s *SQL) selectTrackedQueries(ctx context.Context, where sq.Sqlizer) ([]model.TrackedQuery, error) {
	b := s.sb.Select("id", "query", "active").From("tracked_queries").OrderBy("id")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	queries := []model.TrackedQuery{}
	for rows.Next() {
		var q model.TrackedQuery
		var active int
		if err := rows.Scan(&q.ID, &q.Text, &active); err != nil {
			return nil, fmt.Errorf("scan tracked query: %w", err)
		}
		q.Active = active == 1
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *SQL) selectListings(ctx context.Context) ([]model.Listing, error) {
	query, args, err := s.sb.Select(listingColumns...).From("goods").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *SQL) selectPrices(ctx context.Context, listingID int64) ([]model.PriceObservation, error) {
	query, args, err := s.sb.Select("id", "good_id", "price", "timestamp").From("prices").
		Where(sq.Eq{"good_id": listingID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	history := []model.PriceObservation{}
	for rows.Next() {
		var p model.PriceObservation
		var ts nullTime
		if err := rows.Scan(&p.ID, &p.ListingID, &p.Price, &ts); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Timestamp = ts.Time
		history = append(history, p)
	}
	return history, rows.Err()
}

func (s *SQL) selectStock(ctx context.Context, listingID int64) ([]model.StockObservation, error) {
	query, args, err := s.sb.Select("id", "good_id", "in_stock", "timestamp").From("in_stock").
		Where(sq.Eq{"good_id": listingID}).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	history := []model.StockObservation{}
	for rows.Next() {
		var o model.StockObservation
		var inStock int
		var ts nullTime
		if err := rows.Scan(&o.ID, &o.ListingID, &inStock, &ts); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		o.InStock = inStock == 1
		o.Timestamp = ts.Time
		history = append(history, o)
	}
	return history, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime renders t in UTC at one-second precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.Listing, error) {
	var l model.Listing
	var img, brand sql.NullString
	var created, updated, confirmed nullTime
	err := row.Scan(&l.ID, &l.Source, &l.SourceItemID, &l.QueryID, &l.Name, &l.Href, &img, &brand,
		&created, &updated, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.ImageHref = ptrString(img)
	l.Brand = ptrString(brand)
	l.CreatedAt = created.Time
	l.LastUpdated = updated.Time
	if confirmed.Valid {
		t := confirmed.Time
		l.LastConfirmed = &t
	}
	return &l, nil
}

// nullTime scans timestamps stored as text (SQLite) or DATETIME (MySQL).
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}
