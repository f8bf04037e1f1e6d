package space

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/habitat-home/habitat-core/internal/property"
)

// setupTestDB creates an in-memory SQLite database with the graph tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE spaces (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			slug TEXT NOT NULL,
			floor TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE sources (
			id TEXT PRIMARY KEY,
			space_id TEXT NOT NULL REFERENCES spaces(id) ON DELETE CASCADE,
			display_name TEXT NOT NULL,
			adapter_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(adapter_id, entity_id)
		) STRICT;
		CREATE TABLE source_properties (
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			property TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			mounting TEXT,
			features TEXT NOT NULL DEFAULT '[]',
			command_hints TEXT,
			PRIMARY KEY (source_id, property)
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

func TestSpaceCRUD(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	floor := "ground"
	sp := &Space{ID: "living_room", Name: "Living Room", Slug: "living-room", Floor: &floor}
	if err := repo.CreateSpace(ctx, sp); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if err := repo.CreateSpace(ctx, sp); !errors.Is(err, ErrSpaceExists) {
		t.Errorf("duplicate create = %v, want ErrSpaceExists", err)
	}

	got, err := repo.GetSpace(ctx, "living_room")
	if err != nil {
		t.Fatalf("GetSpace: %v", err)
	}
	if got.Name != "Living Room" || got.Floor == nil || *got.Floor != "ground" {
		t.Errorf("GetSpace = %+v", got)
	}

	got.Name = "Lounge"
	if err := repo.UpdateSpace(ctx, got); err != nil {
		t.Fatalf("UpdateSpace: %v", err)
	}
	again, _ := repo.GetSpace(ctx, "living_room")
	if again.Name != "Lounge" {
		t.Errorf("update not persisted: %+v", again)
	}

	if err := repo.DeleteSpace(ctx, "living_room"); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}
	if _, err := repo.GetSpace(ctx, "living_room"); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("after delete: %v, want ErrSpaceNotFound", err)
	}
	if err := repo.DeleteSpace(ctx, "living_room"); !errors.Is(err, ErrSpaceNotFound) {
		t.Errorf("double delete: %v, want ErrSpaceNotFound", err)
	}
}

func TestSourceRouteUniqueness(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateSpace(ctx, &Space{ID: "living_room", Name: "Living Room", Slug: "living-room"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateSource(ctx, &Source{ID: "lr-light", SpaceID: "living_room", Name: "Main Light", AdapterID: "hue-1", EntityID: "light-7"}); err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	// Same (adapter_id, entity_id) under a different source id must fail:
	// a physical device maps to exactly one source row.
	err := repo.CreateSource(ctx, &Source{ID: "other", SpaceID: "living_room", Name: "Dup", AdapterID: "hue-1", EntityID: "light-7"})
	if !errors.Is(err, ErrSourceExists) {
		t.Errorf("duplicate route = %v, want ErrSourceExists", err)
	}
}

func TestDeleteSpaceCascadesToSources(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateSpace(ctx, &Space{ID: "garage", Name: "Garage", Slug: "garage"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateSource(ctx, &Source{ID: "g-door", SpaceID: "garage", Name: "Door", AdapterID: "gdo-1", EntityID: "door-1"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertSourceProperty(ctx, &SourceProperty{SourceID: "g-door", Property: property.Access, Role: property.RolePrimary}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteSpace(ctx, "garage"); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}

	if _, err := repo.GetSource(ctx, "g-door"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("source survived space delete: %v", err)
	}
	props, err := repo.ListSourceProperties(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != 0 {
		t.Errorf("property assignments survived cascade: %+v", props)
	}
}

func TestUpsertSourcePropertyReplacesByKey(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateSpace(ctx, &Space{ID: "lr", Name: "LR", Slug: "lr"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateSource(ctx, &Source{ID: "lr-light", SpaceID: "lr", Name: "Light", AdapterID: "hue-1", EntityID: "l-1"}); err != nil {
		t.Fatal(err)
	}

	first := &SourceProperty{
		SourceID: "lr-light",
		Property: property.Illumination,
		Role:     property.RolePrimary,
		Features: []property.Feature{"dimmable"},
	}
	if err := repo.UpsertSourceProperty(ctx, first); err != nil {
		t.Fatalf("UpsertSourceProperty: %v", err)
	}

	second := &SourceProperty{
		SourceID:     "lr-light",
		Property:     property.Illumination,
		Role:         property.RoleAccent,
		Features:     []property.Feature{"dimmable", "color_temp"},
		CommandHints: map[string]any{"brightness": map[string]any{"step": float64(5)}},
	}
	if err := repo.UpsertSourceProperty(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	props, err := repo.ListSourceProperties(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != 1 {
		t.Fatalf("expected 1 assignment after upsert, got %d", len(props))
	}
	got := props[0]
	if got.Role != property.RoleAccent || len(got.Features) != 2 {
		t.Errorf("upsert did not replace: %+v", got)
	}
	if got.CommandHints == nil {
		t.Error("command hints lost in round-trip")
	}
}

func TestListSourcesOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.CreateSpace(ctx, &Space{ID: "lr", Name: "LR", Slug: "lr"}); err != nil {
		t.Fatal(err)
	}
	// Names deliberately reverse-alphabetical: order must be creation
	// order, not name order.
	for i, id := range []string{"z-src", "m-src", "a-src"} {
		if err := repo.CreateSource(ctx, &Source{ID: id, SpaceID: "lr", Name: id, AdapterID: "a-1", EntityID: string(rune('x' + i))}); err != nil {
			t.Fatal(err)
		}
	}

	sources, err := repo.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 3 {
		t.Fatalf("got %d sources", len(sources))
	}
	if sources[0].ID != "z-src" || sources[2].ID != "a-src" {
		t.Errorf("order = [%s %s %s], want creation order", sources[0].ID, sources[1].ID, sources[2].ID)
	}
}
