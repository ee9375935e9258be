package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database private to the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// Fixture holds the IDs of seeded rows, keyed by name and municipality
type Fixture struct {
	Candidates map[string]string
	Locations  map[string]string
}

// Seed loads two single-seat locations X and Y and the given candidates
// (national ID = name). Ranks follow argument order starting at 1.
func Seed(t *testing.T, store *database.Store, names ...string) Fixture {
	t.Helper()
	ctx := context.Background()

	_, err := store.UpsertLocations(ctx, []models.Location{
		{Department: "D1", Municipality: "X", Capacity: 1},
		{Department: "D1", Municipality: "Y", Capacity: 1},
	})
	if err != nil {
		t.Fatalf("Failed to seed locations: %v", err)
	}

	cands := make([]models.Candidate, 0, len(names))
	for i, n := range names {
		cands = append(cands, models.Candidate{NationalID: n, Name: n, Rank: i + 1})
	}
	if _, err := store.UpsertCandidates(ctx, cands); err != nil {
		t.Fatalf("Failed to seed candidates: %v", err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to read seed: %v", err)
	}

	f := Fixture{Candidates: map[string]string{}, Locations: map[string]string{}}
	for _, c := range snap.Candidates {
		f.Candidates[c.Name] = c.ID
	}
	for _, l := range snap.Locations {
		f.Locations[l.Municipality] = l.ID
	}
	return f
}

// Prefs builds a dense preference list from location IDs
func Prefs(ids ...string) []models.Preference {
	out := make([]models.Preference, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.Preference{LocationID: id, Position: i + 1})
	}
	return out
}
