package allocator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/preferences"
)

// Location availability, as shown next to each location
const (
	StatusAvailable = "available"
	StatusLimited   = "limited"
	StatusFull      = "full"
)

var (
	ErrInvalidRank         = errors.New("rank must be positive")
	ErrDuplicateRank       = errors.New("rank held by more than one candidate")
	ErrDuplicateLocationID = errors.New("location ID listed more than once")
	ErrNegativeCapacity    = errors.New("capacity must not be negative")
)

// Result is the outcome of one allocation pass
type Result struct {
	Occupancy  map[string]int    // location ID -> occupied seats
	Placements map[string]string // candidate ID -> location ID
	Unplaced   []string          // candidate IDs in processing order

	firstChoice int
	capacity    int
}

// ComputeOccupancy returns how many seats of each location are provisionally
// filled by the greedy pass
func ComputeOccupancy(candidates []models.Candidate, locations []models.Location) map[string]int {
	return Allocate(candidates, locations).Occupancy
}

// Allocate runs the greedy pass: candidates without a finalized assignment are
// processed by rank ascending, and each one takes the first location of their
// preference list that still has a free seat.
//
// Candidates holding a finalized assignment are skipped entirely and do not
// consume capacity. Preferences naming an unknown location are ignored.
func Allocate(candidates []models.Candidate, locations []models.Location) *Result {
	res := &Result{
		Occupancy:  make(map[string]int, len(locations)),
		Placements: make(map[string]string),
	}

	capacity := make(map[string]int, len(locations))
	for _, loc := range locations {
		capacity[loc.ID] = loc.Capacity
		res.Occupancy[loc.ID] = 0
		if loc.Capacity > 0 {
			res.capacity += loc.Capacity
		}
	}

	queue := make([]*models.Candidate, 0, len(candidates))
	for i := range candidates {
		if candidates[i].AssignedLocationID != "" {
			continue
		}
		queue = append(queue, &candidates[i])
	}

	// ID only breaks ties on malformed input
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Rank != queue[j].Rank {
			return queue[i].Rank < queue[j].Rank
		}
		return queue[i].ID < queue[j].ID
	})

	for _, cand := range queue {
		placed := false
		for i, pref := range preferences.List(cand.Preferences).Normalize() {
			limit, ok := capacity[pref.LocationID]
			if !ok {
				continue
			}
			if res.Occupancy[pref.LocationID] < limit {
				res.Occupancy[pref.LocationID]++
				res.Placements[cand.ID] = pref.LocationID
				if i == 0 {
					res.firstChoice++
				}
				placed = true
				break
			}
		}

		if !placed {
			res.Unplaced = append(res.Unplaced, cand.ID)
		}
	}

	return res
}

// FillRate returns the share (0-100) of all seats filled by the pass
func (r *Result) FillRate() float64 {
	if r.capacity == 0 {
		return 0
	}
	filled := 0
	for _, n := range r.Occupancy {
		filled += n
	}
	return float64(filled) / float64(r.capacity) * 100.0
}

// FirstChoiceRate returns the share (0-100) of processed candidates placed at
// their most preferred location
func (r *Result) FirstChoiceRate() float64 {
	processed := len(r.Placements) + len(r.Unplaced)
	if processed == 0 {
		return 100.0
	}
	return float64(r.firstChoice) / float64(processed) * 100.0
}

// Status classifies a location by its remaining seats
func Status(capacity, occupied int) string {
	remaining := capacity - occupied
	switch {
	case remaining <= 0:
		return StatusFull
	case remaining*10 <= capacity*3:
		return StatusLimited
	default:
		return StatusAvailable
	}
}

// Summarize pairs every location with its occupancy, keeping the input order
func Summarize(locations []models.Location, occupancy map[string]int) []models.LocationStatus {
	out := make([]models.LocationStatus, 0, len(locations))
	for _, loc := range locations {
		occupied := occupancy[loc.ID]
		available := loc.Capacity - occupied
		if available < 0 {
			available = 0
		}
		out = append(out, models.LocationStatus{
			Location:  loc,
			Occupied:  occupied,
			Available: available,
			Status:    Status(loc.Capacity, occupied),
		})
	}
	return out
}

// CheckPreconditions reports every way the snapshot breaks the assumptions
// Allocate relies on. A nil error means the result is well defined.
func CheckPreconditions(candidates []models.Candidate, locations []models.Location) error {
	var errs []error

	locIDs := make(map[string]bool, len(locations))
	for _, loc := range locations {
		if locIDs[loc.ID] {
			errs = append(errs, fmt.Errorf("location %s: %w", loc.ID, ErrDuplicateLocationID))
		}
		locIDs[loc.ID] = true
		if loc.Capacity < 0 {
			errs = append(errs, fmt.Errorf("location %s: %w", loc.ID, ErrNegativeCapacity))
		}
	}

	ranks := make(map[int]string, len(candidates))
	for _, cand := range candidates {
		if cand.Rank <= 0 {
			errs = append(errs, fmt.Errorf("candidate %s: %w", cand.ID, ErrInvalidRank))
		} else if other, ok := ranks[cand.Rank]; ok {
			errs = append(errs, fmt.Errorf("candidates %s and %s share rank %d: %w", other, cand.ID, cand.Rank, ErrDuplicateRank))
		} else {
			ranks[cand.Rank] = cand.ID
		}

		if err := preferences.List(cand.Preferences).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("candidate %s: %w", cand.ID, err))
		}
	}

	return errors.Join(errs...)
}
