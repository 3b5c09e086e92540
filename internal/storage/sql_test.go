package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"price_tracker/internal/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var ignoreListingTS = cmpopts.IgnoreFields(model.Listing{}, "CreatedAt", "LastUpdated", "LastConfirmed")

func newTestDB(t *testing.T) *SQL {
	t.Helper()
	s, err := NewSQLite(":memory:",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitializeSchema(context.Background()); err != nil {
		t.Fatalf("initialize schema: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func addQuery(t *testing.T, s *SQL, text string) int64 {
	t.Helper()
	id, err := s.AddTrackedQuery(context.Background(), text)
	if err != nil {
		t.Fatalf("add tracked query %q: %v", text, err)
	}
	return id
}

func TestInitializeSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for i := 0; i < 3; i++ {
		if err := s.InitializeSchema(ctx); err != nil {
			t.Fatalf("initialize schema call %d: %v", i, err)
		}
	}
	if _, err := s.AddTrackedQuery(ctx, "after re-init"); err != nil {
		t.Fatalf("add after re-init: %v", err)
	}
}

func TestTrackedQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	a := addQuery(t, s, "phone case")
	b := addQuery(t, s, "usb cable")
	c := addQuery(t, s, "charger")

	if err := s.SetTrackedQueryActive(ctx, b, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		name string
		list func(context.Context) ([]model.TrackedQuery, error)
		want []model.TrackedQuery
	}{
		{
			name: "all",
			list: s.ListTrackedQueries,
			want: []model.TrackedQuery{
				{ID: a, Text: "phone case", Active: true},
				{ID: b, Text: "usb cable", Active: false},
				{ID: c, Text: "charger", Active: true},
			},
		},
		{
			name: "active only",
			list: s.ListActiveTrackedQueries,
			want: []model.TrackedQuery{
				{ID: a, Text: "phone case", Active: true},
				{ID: c, Text: "charger", Active: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.list(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetTrackedQueryActive(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	id := addQuery(t, s, "phone case")

	tests := []struct {
		name    string
		id      int64
		active  bool
		wantErr error
	}{
		{name: "deactivate", id: id, active: false},
		{name: "deactivate again is not an error", id: id, active: false},
		{name: "reactivate", id: id, active: true},
		{name: "missing query", id: id + 100, active: true, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetTrackedQueryActive(ctx, tt.id, tt.active)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetTrackedQueryActive() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestListingIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q1 := addQuery(t, s, "phone case")
	q2 := addQuery(t, s, "cover")

	key := model.ListingKey{Source: "store-x", SourceItemID: "42", QueryID: q1}
	if _, ok, err := s.FindListingID(ctx, key); err != nil || ok {
		t.Fatalf("FindListingID() before insert = ok %v, err %v", ok, err)
	}

	l := model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q1, Name: "Case A", Href: "https://x/42"}
	if err := s.InsertListing(ctx, &l); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if l.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	id, ok, err := s.FindListingID(ctx, key)
	if err != nil || !ok {
		t.Fatalf("FindListingID() after insert = ok %v, err %v", ok, err)
	}
	if diff := cmp.Diff(l.ID, id); diff != "" {
		t.Errorf("found ID mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name        string
		listing     model.Listing
		wantCreated bool
		wantSameID  bool
	}{
		{
			name:       "same key reuses row",
			listing:    model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q1, Name: "Case A (renamed)", Href: "https://x/42"},
			wantSameID: true,
		},
		{
			name:        "other query is a new listing",
			listing:     model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q2, Name: "Case A", Href: "https://x/42"},
			wantCreated: true,
		},
		{
			name:        "other source is a new listing",
			listing:     model.Listing{Source: "store-y", SourceItemID: "42", QueryID: q1, Name: "Case A", Href: "https://y/42"},
			wantCreated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.listing
			created, err := s.EnsureListing(ctx, &got)
			if err != nil {
				t.Fatalf("ensure: %v", err)
			}
			if diff := cmp.Diff(tt.wantCreated, created); diff != "" {
				t.Errorf("created mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantSameID, got.ID == l.ID); diff != "" {
				t.Errorf("same ID mismatch (-want +got):\n%s", diff)
			}
		})
	}

	all, err := s.ListListings(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(3, len(all)); diff != "" {
		t.Errorf("listing count mismatch (-want +got):\n%s", diff)
	}
}

func TestGetListing(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := addQuery(t, s, "phone case")

	tests := []struct {
		name    string
		listing model.Listing
	}{
		{
			name: "with image and brand",
			listing: model.Listing{
				Source: "rozetka", SourceItemID: "1001", QueryID: q, Name: "Case B", Href: "https://r/1001",
				ImageHref: strPtr("https://r/1001.jpg"), Brand: strPtr("Spigen"),
			},
		},
		{
			name: "without optional fields",
			listing: model.Listing{
				Source: "olx", SourceItemID: "77", QueryID: q, Name: "Used case", Href: "https://o/77",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.listing
			if err := s.InsertListing(ctx, &l); err != nil {
				t.Fatalf("insert: %v", err)
			}

			got, err := s.GetListing(ctx, l.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.listing
			want.ID = l.ID
			if diff := cmp.Diff(want, *got, ignoreListingTS); diff != "" {
				t.Errorf("GetListing mismatch (-want +got):\n%s", diff)
			}
			if !got.CreatedAt.Equal(testNow) || !got.LastUpdated.Equal(testNow) {
				t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.LastUpdated, testNow)
			}
			if got.LastConfirmed != nil {
				t.Errorf("LastConfirmed = %v, want nil", got.LastConfirmed)
			}
		})
	}

	if _, err := s.GetListing(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetListing(missing) error = %v, want ErrNotFound", err)
	}
}

func TestHistories(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := addQuery(t, s, "phone case")

	l := model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q, Name: "Case A", Href: "https://x/42"}
	if err := s.InsertListing(ctx, &l); err != nil {
		t.Fatalf("insert: %v", err)
	}

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Minute)

	for _, p := range []struct {
		price float64
		at    time.Time
	}{{199.99, t1}, {179.99, t2}} {
		if err := s.InsertPriceObservation(ctx, l.ID, p.price, p.at); err != nil {
			t.Fatalf("insert price: %v", err)
		}
	}
	for _, o := range []struct {
		inStock bool
		at      time.Time
	}{{true, t1}, {false, t2}} {
		if err := s.InsertStockObservation(ctx, l.ID, o.inStock, o.at); err != nil {
			t.Fatalf("insert stock: %v", err)
		}
	}

	prices, err := s.ListPriceHistory(ctx, l.ID)
	if err != nil {
		t.Fatalf("price history: %v", err)
	}
	wantPrices := []model.PriceObservation{
		{ListingID: l.ID, Price: 199.99, Timestamp: t1},
		{ListingID: l.ID, Price: 179.99, Timestamp: t2},
	}
	if diff := cmp.Diff(wantPrices, prices, cmpopts.IgnoreFields(model.PriceObservation{}, "ID")); diff != "" {
		t.Errorf("price history mismatch (-want +got):\n%s", diff)
	}

	stock, err := s.ListStockHistory(ctx, l.ID)
	if err != nil {
		t.Fatalf("stock history: %v", err)
	}
	wantStock := []model.StockObservation{
		{ListingID: l.ID, InStock: true, Timestamp: t1},
		{ListingID: l.ID, InStock: false, Timestamp: t2},
	}
	if diff := cmp.Diff(wantStock, stock, cmpopts.IgnoreFields(model.StockObservation{}, "ID")); diff != "" {
		t.Errorf("stock history mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.ListPriceHistory(ctx, l.ID+1)
	if err != nil {
		t.Fatalf("empty history: %v", err)
	}
	if diff := cmp.Diff([]model.PriceObservation{}, empty); diff != "" {
		t.Errorf("expected empty history (-want +got):\n%s", diff)
	}
}

func TestTouchLastConfirmed(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := addQuery(t, s, "phone case")

	l := model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q, Name: "Case A", Href: "https://x/42"}
	if err := s.InsertListing(ctx, &l); err != nil {
		t.Fatalf("insert: %v", err)
	}

	seen := time.Date(2024, 3, 2, 8, 15, 0, 0, time.UTC)
	if err := s.TouchLastConfirmed(ctx, l.ID, seen); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// Touching with the same timestamp changes nothing but must not fail.
	if err := s.TouchLastConfirmed(ctx, l.ID, seen); err != nil {
		t.Fatalf("touch again: %v", err)
	}

	got, err := s.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastConfirmed == nil || !got.LastConfirmed.Equal(seen) {
		t.Errorf("LastConfirmed = %v, want %v", got.LastConfirmed, seen)
	}

	if err := s.TouchLastConfirmed(ctx, l.ID+100, seen); !errors.Is(err, ErrNotFound) {
		t.Errorf("touch missing listing error = %v, want ErrNotFound", err)
	}
}

func TestTimestampsTruncatedToSeconds(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := addQuery(t, s, "phone case")

	l := model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q, Name: "Case A", Href: "https://x/42"}
	if err := s.InsertListing(ctx, &l); err != nil {
		t.Fatalf("insert listing: %v", err)
	}

	seen := time.Date(2024, 3, 1, 10, 0, 0, 750_000_000, time.UTC)
	if err := s.TouchLastConfirmed(ctx, l.ID, seen); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.InsertPriceObservation(ctx, l.ID, 10, seen); err != nil {
		t.Fatalf("insert price: %v", err)
	}

	got, err := s.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	want := seen.Truncate(time.Second)
	if got.LastConfirmed == nil || !got.LastConfirmed.Equal(want) {
		t.Errorf("LastConfirmed = %v, want %v", got.LastConfirmed, want)
	}

	prices, err := s.ListPriceHistory(ctx, l.ID)
	if err != nil {
		t.Fatalf("price history: %v", err)
	}
	if len(prices) != 1 || !prices[0].Timestamp.Equal(want) {
		t.Errorf("price timestamps = %+v, want one at %v", prices, want)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	err := s.InsertPriceObservation(ctx, 12345, 10, testNow)
	if !errors.Is(err, ErrDataAccess) {
		t.Fatalf("insert price for missing listing error = %v, want ErrDataAccess", err)
	}

	l := model.Listing{Source: "store-x", SourceItemID: "1", QueryID: 999, Name: "orphan", Href: "https://x/1"}
	if err := s.InsertListing(ctx, &l); !errors.Is(err, ErrDataAccess) {
		t.Fatalf("insert listing for missing query error = %v, want ErrDataAccess", err)
	}
}

func TestEnsureListingConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := addQuery(t, s, "phone case")

	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := model.Listing{Source: "store-x", SourceItemID: "42", QueryID: q, Name: "Case A", Href: "https://x/42"}
			if _, err := s.EnsureListing(ctx, &l); err != nil {
				t.Errorf("ensure %d: %v", i, err)
				return
			}
			ids[i] = l.ID
		}(i)
	}
	wg.Wait()

	listings, err := s.ListListings(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(1, len(listings)); diff != "" {
		t.Fatalf("listing count mismatch (-want +got):\n%s", diff)
	}
	for i, id := range ids {
		if id != listings[0].ID {
			t.Errorf("worker %d got ID %d, want %d", i, id, listings[0].ID)
		}
	}
}

func TestReadFailureReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	addQuery(t, s, "phone case")

	if err := s.db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	queries, err := s.ListTrackedQueries(ctx)
	if !errors.Is(err, ErrDataAccess) {
		t.Errorf("ListTrackedQueries() error = %v, want ErrDataAccess", err)
	}
	if diff := cmp.Diff([]model.TrackedQuery{}, queries); diff != "" {
		t.Errorf("expected empty queries (-want +got):\n%s", diff)
	}

	listings, err := s.ListListings(ctx)
	if !errors.Is(err, ErrDataAccess) {
		t.Errorf("ListListings() error = %v, want ErrDataAccess", err)
	}
	if diff := cmp.Diff([]model.Listing{}, listings); diff != "" {
		t.Errorf("expected empty listings (-want +got):\n%s", diff)
	}
}

func TestSQLiteDSN(t *testing.T) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: ":memory:", want: ":memory:?" + pragmas},
		{dsn: "./data/tracker.db", want: "./data/tracker.db?" + pragmas},
		{dsn: "file:tracker.db?mode=rwc", want: "file:tracker.db?mode=rwc&" + pragmas},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, sqliteDSN(tt.dsn)); diff != "" {
				t.Errorf("sqliteDSN(%q) mismatch (-want +got):\n%s", tt.dsn, diff)
			}
		})
	}
}

func TestPragmasSurviveReconnect(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracker.db")
	s, err := NewSQLite(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// No idle connections: every statement below runs on a fresh connection.
	s.db.SetMaxIdleConns(0)

	for _, tt := range []struct {
		pragma string
		want   int
	}{
		{pragma: "foreign_keys", want: 1},
		{pragma: "busy_timeout", want: 5000},
	} {
		var got int
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+tt.pragma).Scan(&got); err != nil {
			t.Fatalf("read %s: %v", tt.pragma, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.pragma, diff)
		}
	}
}

func TestNullTimeScan(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	kyiv := time.FixedZone("EET", 2*60*60)

	tests := []struct {
		name    string
		value   any
		want    nullTime
		wantErr bool
	}{
		{name: "nil", value: nil, want: nullTime{}},
		{name: "time from mysql", value: want.In(kyiv), want: nullTime{Time: want, Valid: true}},
		{name: "bytes", value: []byte("2024-01-02 03:04:05"), want: nullTime{Time: want, Valid: true}},
		{name: "text layout", value: "2024-01-02 03:04:05", want: nullTime{Time: want, Valid: true}},
		{name: "rfc3339", value: "2024-01-02T05:04:05+02:00", want: nullTime{Time: want, Valid: true}},
		{name: "garbage text", value: "yesterday", wantErr: true},
		{name: "unsupported type", value: int64(1704164645), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got nullTime
			err := got.Scan(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Scan(%v) mismatch (-want +got):\n%s", tt.value, diff)
			}
			if got.Valid && got.Time.Location() != time.UTC {
				t.Errorf("Scan(%v) location = %v, want UTC", tt.value, got.Time.Location())
			}
		})
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQL)(nil)
