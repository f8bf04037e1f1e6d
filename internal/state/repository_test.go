package state

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/habitat-home/habitat-core/internal/property"
)

// setupTestDB creates an in-memory SQLite database with the cache tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE source_state (
			source_id TEXT NOT NULL,
			property TEXT NOT NULL,
			state TEXT NOT NULL,
			previous_state TEXT,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (source_id, property)
		) STRICT;
		CREATE TABLE source_collection_items (
			source_id TEXT NOT NULL,
			property TEXT NOT NULL,
			item_id TEXT NOT NULL,
			data TEXT NOT NULL,
			starts_at TEXT,
			ends_at TEXT,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (source_id, property, item_id)
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestUpsertStateRoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	want := map[string]any{
		"on":         true,
		"brightness": float64(80),
		"color":      map[string]any{"x": 0.4, "y": 0.38},
	}
	prev := map[string]any{"on": false}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := &Record{SourceID: "lr-light", Property: property.Illumination, State: want, PreviousState: prev, Timestamp: ts}
	if err := repo.UpsertState(ctx, rec); err != nil {
		t.Fatalf("UpsertState: %v", err)
	}

	got, err := repo.GetState(ctx, "lr-light", property.Illumination)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	// JSON round-trip fidelity: the state object must be deep-equal.
	if !reflect.DeepEqual(got.State, want) {
		t.Errorf("state = %+v, want %+v", got.State, want)
	}
	if !reflect.DeepEqual(got.PreviousState, prev) {
		t.Errorf("previous = %+v, want %+v", got.PreviousState, prev)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestUpsertStateLastWriteWins(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i, on := range []bool{false, true} {
		rec := &Record{
			SourceID:  "lr-light",
			Property:  property.Illumination,
			State:     map[string]any{"on": on},
			Timestamp: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
		}
		if err := repo.UpsertState(ctx, rec); err != nil {
			t.Fatalf("UpsertState: %v", err)
		}
	}

	states, err := repo.ListStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 1 {
		t.Fatalf("expected exactly one row per key, got %d", len(states))
	}
	if states[0].State["on"] != true {
		t.Errorf("last write did not win: %+v", states[0].State)
	}
}

func TestGetStateNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetState(context.Background(), "ghost", property.Illumination)
	if !errors.Is(err, ErrStateNotFound) {
		t.Errorf("got %v, want ErrStateNotFound", err)
	}
}

func TestStateKeysAreIndependentPerProperty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	illum := &Record{SourceID: "multi", Property: property.Illumination, State: map[string]any{"on": true}}
	power := &Record{SourceID: "multi", Property: property.Power, State: map[string]any{"power_w": float64(12)}}
	if err := repo.UpsertState(ctx, illum); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertState(ctx, power); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetState(ctx, "multi", property.Power)
	if err != nil {
		t.Fatal(err)
	}
	if _, hasOn := got.State["on"]; hasOn {
		t.Error("property keys bled into each other")
	}
}

func TestCollectionItems(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	day := func(d int) *time.Time {
		t := time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC)
		return &t
	}
	fetched := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	items := []CollectionItem{
		{SourceID: "cal", Property: property.Schedule, ItemID: "evt-1", Data: map[string]any{"title": "standup"}, StartsAt: day(2), EndsAt: day(2), FetchedAt: fetched},
		{SourceID: "cal", Property: property.Schedule, ItemID: "evt-2", Data: map[string]any{"title": "review"}, StartsAt: day(5), EndsAt: day(5), FetchedAt: fetched},
		{SourceID: "cal", Property: property.Schedule, ItemID: "evt-3", Data: map[string]any{"title": "retro"}, StartsAt: day(9), EndsAt: day(9), FetchedAt: fetched},
	}
	if err := repo.UpsertItems(ctx, items); err != nil {
		t.Fatalf("UpsertItems: %v", err)
	}

	// Re-upserting evt-2 replaces it by key.
	update := []CollectionItem{
		{SourceID: "cal", Property: property.Schedule, ItemID: "evt-2", Data: map[string]any{"title": "design review"}, StartsAt: day(5), FetchedAt: fetched.Add(time.Hour)},
	}
	if err := repo.UpsertItems(ctx, update); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListItems(ctx, "cal", property.Schedule, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	if all[1].Data["title"] != "design review" {
		t.Errorf("upsert by key did not replace: %+v", all[1].Data)
	}

	// Range query: only items starting within [day 4, day 6].
	ranged, err := repo.ListItems(ctx, "cal", property.Schedule, day(4), day(6))
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 || ranged[0].ItemID != "evt-2" {
		t.Errorf("range query = %+v", ranged)
	}
}

func TestPruneItems(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	old := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	fresh := old.Add(2 * time.Hour)

	if err := repo.UpsertItems(ctx, []CollectionItem{
		{SourceID: "cal", Property: property.Schedule, ItemID: "stale", Data: map[string]any{}, FetchedAt: old},
		{SourceID: "cal", Property: property.Schedule, ItemID: "live", Data: map[string]any{}, FetchedAt: fresh},
	}); err != nil {
		t.Fatal(err)
	}

	n, err := repo.PruneItems(ctx, "cal", property.Schedule, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneItems: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	left, err := repo.ListItems(ctx, "cal", property.Schedule, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ItemID != "live" {
		t.Errorf("remaining items = %+v", left)
	}
}
