package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arnavshah/plazas-api-go/pkg/allocator"
	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/metrics"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/preferences"
	"go.uber.org/zap"
)

var (
	ErrInvalidPreferences = errors.New("invalid preferences")
	ErrInvalidRank        = errors.New("rank must be positive")
	ErrInconsistentData   = errors.New("candidate or location data breaks allocation preconditions")
)

// Store is the persistence the service needs
type Store interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
	GetLocations(ctx context.Context) ([]models.Location, error)
	SavePreferences(ctx context.Context, candidateID string, prefs []models.Preference) error
	SetRank(ctx context.Context, candidateID string, rank int) error
	ClearAllAssignments(ctx context.Context) (int64, error)
	SetAssignment(ctx context.Context, candidateID, locationID string) error
	Import(ctx context.Context, candidates []models.Candidate, locations []models.Location) (int, int, error)
}

var _ Store = (*database.Store)(nil)

// Allocation is a published result of the greedy pass
type Allocation struct {
	Snapshot *models.Snapshot
	Result   *allocator.Result
	Statuses []models.LocationStatus
	At       time.Time
}

// Response renders the allocation for the API
func (a *Allocation) Response(withPlacements bool) models.AllocationResponse {
	resp := models.AllocationResponse{
		Locations:       a.Statuses,
		FillRate:        a.Result.FillRate(),
		FirstChoiceRate: a.Result.FirstChoiceRate(),
		ComputedAt:      a.At,
	}
	if withPlacements {
		resp.Placements = a.Result.Placements
		resp.Unplaced = a.Result.Unplaced
	}
	return resp
}

// Service serializes every mutation of candidates, locations and preferences
// and recomputes the allocation from a fresh snapshot after each one
type Service struct {
	store  Store
	log    *zap.Logger
	strict bool

	mu      sync.Mutex
	current *Allocation
}

// New creates a service. With strict set, a snapshot that breaks the
// allocation preconditions is rejected instead of published.
func New(store Store, log *zap.Logger, strict bool) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, strict: strict}
}

// Allocation returns the last published result, computing it on first use
func (s *Service) Allocation(ctx context.Context) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}
	return s.recomputeLocked(ctx, "read")
}

// Recompute forces a full recomputation
func (s *Service) Recompute(ctx context.Context) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputeLocked(ctx, "manual")
}

func (s *Service) recomputeLocked(ctx context.Context, trigger string) (*Allocation, error) {
	start := time.Now()
	metrics.RecomputeTotal.WithLabelValues(trigger).Inc()

	// a failed recompute must not leave an older result looking current
	s.current = nil

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		metrics.RecomputeFailures.WithLabelValues("snapshot").Inc()
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if s.strict {
		if err := allocator.CheckPreconditions(snap.Candidates, snap.Locations); err != nil {
			metrics.RecomputeFailures.WithLabelValues("preconditions").Inc()
			s.log.Error("allocation preconditions violated", zap.String("trigger", trigger), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrInconsistentData, err)
		}
	}

	res := allocator.Allocate(snap.Candidates, snap.Locations)
	alloc := &Allocation{
		Snapshot: snap,
		Result:   res,
		Statuses: allocator.Summarize(snap.Locations, res.Occupancy),
		At:       time.Now(),
	}
	s.current = alloc

	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	metrics.UnplacedCandidates.Set(float64(len(res.Unplaced)))
	metrics.OccupiedSeats.Reset()
	for _, st := range alloc.Statuses {
		metrics.OccupiedSeats.WithLabelValues(st.Department, st.Municipality).Set(float64(st.Occupied))
	}

	s.log.Debug("allocation recomputed",
		zap.String("trigger", trigger),
		zap.Int("candidates", len(snap.Candidates)),
		zap.Int("locations", len(snap.Locations)),
		zap.Int("placed", len(res.Placements)),
		zap.Int("unplaced", len(res.Unplaced)),
		zap.Duration("took", time.Since(start)),
	)
	return alloc, nil
}

// mutate runs fn and then recomputes, both under the service lock. The
// mutation's own error wins over a recompute error. A failed fn drops the
// published result, since it may have written part of its change.
func (s *Service) mutate(ctx context.Context, trigger string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		s.current = nil
		return err
	}
	if _, err := s.recomputeLocked(ctx, trigger); err != nil {
		s.log.Warn("recompute after mutation failed", zap.String("trigger", trigger), zap.Error(err))
	}
	return nil
}

// Candidate returns one candidate
func (s *Service) Candidate(ctx context.Context, id string) (*models.Candidate, error) {
	return s.store.GetCandidate(ctx, id)
}

func (s *Service) checkPreferences(ctx context.Context, cand *models.Candidate, list preferences.List) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
	}
	if len(list) > cand.Rank {
		return fmt.Errorf("%w: %d preferences exceed the limit of %d", ErrInvalidPreferences, len(list), cand.Rank)
	}

	locations, err := s.store.GetLocations(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(locations))
	for _, l := range locations {
		known[l.ID] = true
	}
	for _, p := range list {
		if !known[p.LocationID] {
			return fmt.Errorf("%w: unknown location %s", ErrInvalidPreferences, p.LocationID)
		}
	}
	return nil
}

// SavePreferences replaces a candidate's preference list after checking it
// is dense, within the candidate's rank and names known locations
func (s *Service) SavePreferences(ctx context.Context, candidateID string, prefs []models.Preference) (preferences.List, error) {
	list := preferences.List(prefs).Normalize()

	err := s.mutate(ctx, "preferences", func() error {
		cand, err := s.store.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := s.checkPreferences(ctx, cand, list); err != nil {
			return err
		}
		return s.store.SavePreferences(ctx, candidateID, list)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("preferences saved", zap.String("candidate_id", candidateID), zap.Int("count", len(list)))
	return list, nil
}

// TogglePreference adds or removes one location from the stored list. Adding
// past the candidate's rank is a no-op, reported through the boolean.
func (s *Service) TogglePreference(ctx context.Context, candidateID, locationID string) (preferences.List, bool, error) {
	var list preferences.List
	var changed bool

	err := s.mutate(ctx, "toggle", func() error {
		cand, err := s.store.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}

		current := preferences.List(cand.Preferences).Normalize()
		if current.Position(locationID) == 0 {
			locations, err := s.store.GetLocations(ctx)
			if err != nil {
				return err
			}
			found := false
			for _, l := range locations {
				if l.ID == locationID {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("location %s: %w", locationID, database.ErrNotFound)
			}
		}

		list, changed = current.Toggle(locationID, cand.Rank)
		if !changed {
			return nil
		}
		return s.store.SavePreferences(ctx, candidateID, list)
	})
	if err != nil {
		return nil, false, err
	}
	return list, changed, nil
}

// SetRank overwrites a candidate's rank
func (s *Service) SetRank(ctx context.Context, candidateID string, rank int) error {
	if rank <= 0 {
		return ErrInvalidRank
	}
	err := s.mutate(ctx, "rank", func() error {
		return s.store.SetRank(ctx, candidateID, rank)
	})
	if err == nil {
		s.log.Info("rank updated", zap.String("candidate_id", candidateID), zap.Int("rank", rank))
	}
	return err
}

// ResetAssignments clears every finalized assignment
func (s *Service) ResetAssignments(ctx context.Context) (int64, error) {
	var cleared int64
	err := s.mutate(ctx, "reset", func() error {
		var err error
		cleared, err = s.store.ClearAllAssignments(ctx)
		return err
	})
	if err == nil {
		s.log.Info("assignments reset", zap.Int64("cleared", cleared))
	}
	return cleared, err
}

// SetAssignment finalizes (or with an empty locationID clears) a candidate's location
func (s *Service) SetAssignment(ctx context.Context, candidateID, locationID string) error {
	err := s.mutate(ctx, "assignment", func() error {
		return s.store.SetAssignment(ctx, candidateID, locationID)
	})
	if err == nil {
		s.log.Info("assignment updated", zap.String("candidate_id", candidateID), zap.String("location_id", locationID))
	}
	return err
}

// ImportResult counts the rows written by Import
type ImportResult struct {
	Candidates int `json:"candidates"`
	Locations  int `json:"locations"`
}

// Import upserts locations and candidates in one serialized step
func (s *Service) Import(ctx context.Context, candidates []models.Candidate, locations []models.Location) (ImportResult, error) {
	var out ImportResult
	err := s.mutate(ctx, "import", func() error {
		var err error
		out.Candidates, out.Locations, err = s.store.Import(ctx, candidates, locations)
		return err
	})
	if err == nil {
		s.log.Info("data imported", zap.Int("candidates", out.Candidates), zap.Int("locations", out.Locations))
	}
	return out, err
}

// Candidates lists candidates by rank, filtered by a case-insensitive match
// on name, national ID or finalized location
func (s *Service) Candidates(ctx context.Context, query string) ([]models.CandidateView, error) {
	var snap *models.Snapshot
	var placements map[string]string

	alloc, err := s.Allocation(ctx)
	switch {
	case err == nil:
		snap, placements = alloc.Snapshot, alloc.Result.Placements
	case errors.Is(err, ErrInconsistentData):
		// administrators still need the list to repair the data
		if snap, err = s.store.Snapshot(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	municipality := make(map[string]string, len(snap.Locations))
	for _, l := range snap.Locations {
		municipality[l.ID] = l.Municipality
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.CandidateView, 0, len(snap.Candidates))
	for _, c := range snap.Candidates {
		view := models.CandidateView{
			Candidate:            c,
			AssignedMunicipality: municipality[c.AssignedLocationID],
		}
		if loc, ok := placements[c.ID]; ok {
			view.ProvisionalLocationID = loc
			view.ProvisionalMunicipality = municipality[loc]
		}

		if q != "" &&
			!strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.NationalID), q) &&
			!strings.Contains(strings.ToLower(view.AssignedMunicipality), q) {
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

// Validate checks the stored data against the allocation preconditions
func (s *Service) Validate(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap, allocator.CheckPreconditions(snap.Candidates, snap.Locations)
}
