package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/metrics"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T, names ...string) (*Service, *database.Store, testutil.Fixture) {
	t.Helper()
	store := database.NewStore(testutil.NewDB(t))
	f := testutil.Seed(t, store, names...)
	return New(store, zaptest.NewLogger(t), true), store, f
}

func occupancy(t *testing.T, s *Service) map[string]int {
	t.Helper()
	alloc, err := s.Allocation(context.Background())
	require.NoError(t, err)
	out := map[string]int{}
	for _, st := range alloc.Statuses {
		out[st.Municipality] = st.Occupied
	}
	return out
}

func TestSavePreferences_RecomputesOccupancy(t *testing.T) {
	s, _, f := newService(t, "A", "B")
	ctx := context.Background()

	assert.Equal(t, map[string]int{"X": 0, "Y": 0}, occupancy(t, s))

	_, err := s.SavePreferences(ctx, f.Candidates["A"], testutil.Prefs(f.Locations["X"]))
	require.NoError(t, err)
	_, err = s.SavePreferences(ctx, f.Candidates["B"], testutil.Prefs(f.Locations["X"], f.Locations["Y"]))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"X": 1, "Y": 1}, occupancy(t, s))

	alloc, err := s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.Locations["X"], alloc.Result.Placements[f.Candidates["A"]])
	assert.Equal(t, f.Locations["Y"], alloc.Result.Placements[f.Candidates["B"]])
}

func TestSavePreferences_Rejects(t *testing.T) {
	s, _, f := newService(t, "A", "B")
	ctx := context.Background()
	a, b := f.Candidates["A"], f.Candidates["B"]
	x, y := f.Locations["X"], f.Locations["Y"]

	cases := map[string]struct {
		id    string
		prefs []models.Preference
	}{
		"over rank": {a, testutil.Prefs(x, y)},
		"gap":       {b, []models.Preference{{LocationID: x, Position: 1}, {LocationID: y, Position: 3}}},
		"duplicate": {b, []models.Preference{{LocationID: x, Position: 1}, {LocationID: x, Position: 2}}},
		"unknown":   {b, testutil.Prefs("nowhere")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.SavePreferences(ctx, tc.id, tc.prefs)
			assert.ErrorIs(t, err, ErrInvalidPreferences)
		})
	}

	_, err := s.SavePreferences(ctx, "missing", nil)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTogglePreference(t *testing.T) {
	s, store, f := newService(t, "A", "B")
	ctx := context.Background()
	b := f.Candidates["B"]

	list, changed, err := s.TogglePreference(ctx, b, f.Locations["X"])
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, list.Position(f.Locations["X"]))

	_, changed, err = s.TogglePreference(ctx, b, f.Locations["Y"])
	require.NoError(t, err)
	assert.True(t, changed)

	a := f.Candidates["A"]
	_, _, err = s.TogglePreference(ctx, a, f.Locations["Y"])
	require.NoError(t, err)
	list, changed, err = s.TogglePreference(ctx, a, f.Locations["X"])
	require.NoError(t, err)
	assert.False(t, changed, "rank 1 allows one preference")
	assert.Equal(t, testutil.Prefs(f.Locations["Y"]), []models.Preference(list))

	// removing X renumbers Y
	list, changed, err = s.TogglePreference(ctx, b, f.Locations["X"])
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, testutil.Prefs(f.Locations["Y"]), []models.Preference(list))

	stored, err := store.GetPreferences(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, testutil.Prefs(f.Locations["Y"]), stored)

	_, _, err = s.TogglePreference(ctx, b, "nowhere")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSetRank_ChangesWinner(t *testing.T) {
	s, _, f := newService(t, "A", "B")
	ctx := context.Background()
	x := f.Locations["X"]

	_, err := s.SavePreferences(ctx, f.Candidates["A"], testutil.Prefs(x))
	require.NoError(t, err)
	_, err = s.SavePreferences(ctx, f.Candidates["B"], testutil.Prefs(x))
	require.NoError(t, err)

	alloc, err := s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, x, alloc.Result.Placements[f.Candidates["A"]])

	require.NoError(t, s.SetRank(ctx, f.Candidates["A"], 3))
	require.NoError(t, s.SetRank(ctx, f.Candidates["B"], 1))

	alloc, err = s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, x, alloc.Result.Placements[f.Candidates["B"]])
	assert.Equal(t, []string{f.Candidates["A"]}, alloc.Result.Unplaced)

	assert.ErrorIs(t, s.SetRank(ctx, f.Candidates["A"], 0), ErrInvalidRank)
	assert.ErrorIs(t, s.SetRank(ctx, f.Candidates["A"], 1), database.ErrRankTaken)
}

func TestFinalizedAssignment_ExcludedFromPass(t *testing.T) {
	s, _, f := newService(t, "A", "B")
	ctx := context.Background()
	x := f.Locations["X"]

	_, err := s.SavePreferences(ctx, f.Candidates["A"], testutil.Prefs(x))
	require.NoError(t, err)
	_, err = s.SavePreferences(ctx, f.Candidates["B"], testutil.Prefs(x))
	require.NoError(t, err)

	require.NoError(t, s.SetAssignment(ctx, f.Candidates["A"], x))

	// A no longer counts against X, so B takes the seat
	alloc, err := s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, x, alloc.Result.Placements[f.Candidates["B"]])
	assert.Equal(t, 1, alloc.Result.Occupancy[x])

	cleared, err := s.ResetAssignments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	alloc, err = s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, x, alloc.Result.Placements[f.Candidates["A"]])

	cleared, err = s.ResetAssignments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, cleared)
}

func TestCandidates_Search(t *testing.T) {
	s, _, f := newService(t, "Ana", "Bruno", "Carla")
	ctx := context.Background()

	require.NoError(t, s.SetAssignment(ctx, f.Candidates["Carla"], f.Locations["Y"]))
	_, err := s.SavePreferences(ctx, f.Candidates["Ana"], testutil.Prefs(f.Locations["X"]))
	require.NoError(t, err)

	all, err := s.Candidates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Ana", all[0].Name)
	assert.Equal(t, "X", all[0].ProvisionalMunicipality)

	got, err := s.Candidates(ctx, "  BRU ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bruno", got[0].Name)

	got, err = s.Candidates(ctx, "y")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Carla", got[0].Name)
	assert.Equal(t, "Y", got[0].AssignedMunicipality)
}

func TestStrict_RejectsDuplicateRanks(t *testing.T) {
	s, _, _ := newService(t, "A")
	ctx := context.Background()

	_, err := s.Import(ctx, []models.Candidate{{NationalID: "B", Name: "B", Rank: 1}}, nil)
	require.NoError(t, err, "the import itself succeeds")

	_, err = s.Allocation(ctx)
	assert.ErrorIs(t, err, ErrInconsistentData)

	_, err = s.Validate(ctx)
	assert.Error(t, err)

	list, err := s.Candidates(ctx, "")
	require.NoError(t, err, "listing still works on inconsistent data")
	assert.Len(t, list, 2)

	lenient := New(s.store, nil, false)
	alloc, err := lenient.Allocation(ctx)
	require.NoError(t, err)
	assert.Len(t, alloc.Statuses, 2)
}

func TestConcurrentMutations(t *testing.T) {
	s, _, f := newService(t, "A", "B", "C", "D")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, _, err := s.TogglePreference(ctx, id, f.Locations["X"])
				assert.NoError(t, err)
			}
		}(f.Candidates[name])
	}
	wg.Wait()

	// every candidate toggled X an odd number of times
	alloc, err := s.Allocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.Locations["X"], alloc.Result.Placements[f.Candidates["A"]])
	assert.Equal(t, 1, alloc.Result.Occupancy[f.Locations["X"]])
	assert.Len(t, alloc.Result.Unplaced, 3)
}

// partialImportStore writes the locations of an import and then fails
type partialImportStore struct {
	*database.Store
}

func (p partialImportStore) Import(ctx context.Context, _ []models.Candidate, locations []models.Location) (int, int, error) {
	if _, err := p.UpsertLocations(ctx, locations); err != nil {
		return 0, 0, err
	}
	return 0, 0, errors.New("candidate upsert failed")
}

func TestImport_FailureDropsPublishedResult(t *testing.T) {
	store := database.NewStore(testutil.NewDB(t))
	testutil.Seed(t, store, "A")
	s := New(partialImportStore{store}, zaptest.NewLogger(t), true)
	ctx := context.Background()

	alloc, err := s.Allocation(ctx)
	require.NoError(t, err)
	require.Len(t, alloc.Statuses, 2)

	_, err = s.Import(ctx,
		[]models.Candidate{{NationalID: "Z", Name: "Z", Rank: 2}},
		[]models.Location{{Department: "D2", Municipality: "W", Capacity: 3}},
	)
	require.ErrorContains(t, err, "candidate upsert failed")

	alloc, err = s.Allocation(ctx)
	require.NoError(t, err)
	assert.Len(t, alloc.Statuses, 3, "allocation reflects the stored locations")
}

func TestImport_Recomputes(t *testing.T) {
	s, _, _ := newService(t, "A")
	ctx := context.Background()

	res, err := s.Import(ctx,
		[]models.Candidate{{NationalID: "B", Name: "B", Rank: 2}},
		[]models.Location{{Department: "D2", Municipality: "W", Capacity: 3}},
	)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Candidates: 1, Locations: 1}, res)
	assert.Equal(t, map[string]int{"X": 0, "Y": 0, "W": 0}, occupancy(t, s))
}

func TestOccupiedSeatsGauge_KeyedByDepartment(t *testing.T) {
	s, _, f := newService(t, "A")
	ctx := context.Background()

	_, err := s.Import(ctx, nil, []models.Location{{Department: "D2", Municipality: "X", Capacity: 5}})
	require.NoError(t, err)
	_, err = s.SavePreferences(ctx, f.Candidates["A"], testutil.Prefs(f.Locations["X"]))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.OccupiedSeats.WithLabelValues("D1", "X")))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.OccupiedSeats.WithLabelValues("D2", "X")))
}
