package preferences

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arnavshah/plazas-api-go/pkg/models"
)

var (
	ErrGappedPositions   = errors.New("preference positions are not 1..k")
	ErrDuplicateLocation = errors.New("location listed more than once")
	ErrMissingLocation   = errors.New("preference without location")
)

// List is a single candidate's preference list
type List []models.Preference

// Normalize returns a copy of the list sorted by position
func (l List) Normalize() List {
	out := make(List, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// Position returns the position of a location, or 0 when it is not listed
func (l List) Position(locationID string) int {
	for _, p := range l {
		if p.LocationID == locationID {
			return p.Position
		}
	}
	return 0
}

// LocationIDs returns the listed locations, most preferred first
func (l List) LocationIDs() []string {
	ids := make([]string, 0, len(l))
	for _, p := range l.Normalize() {
		ids = append(ids, p.LocationID)
	}
	return ids
}

// Toggle removes locationID when it is listed, closing the gap it leaves,
// or appends it at the end when the list holds fewer than limit entries.
// The receiver is never modified. The boolean reports whether the returned
// list differs from the receiver.
func (l List) Toggle(locationID string, limit int) (List, bool) {
	removed := 0
	for _, p := range l {
		if p.LocationID == locationID {
			removed = p.Position
			break
		}
	}

	if removed > 0 {
		out := make(List, 0, len(l)-1)
		for _, p := range l {
			if p.LocationID == locationID {
				continue
			}
			if p.Position > removed {
				p.Position--
			}
			out = append(out, p)
		}
		return out, true
	}

	if len(l) >= limit {
		return l, false
	}

	out := make(List, len(l), len(l)+1)
	copy(out, l)
	out = append(out, models.Preference{LocationID: locationID, Position: len(l) + 1})
	return out, true
}

// Validate checks that positions are exactly 1..k and that no location repeats
func (l List) Validate() error {
	seen := make(map[string]bool, len(l))
	for i, p := range l.Normalize() {
		if p.LocationID == "" {
			return ErrMissingLocation
		}
		if seen[p.LocationID] {
			return fmt.Errorf("%w: %s", ErrDuplicateLocation, p.LocationID)
		}
		seen[p.LocationID] = true

		if p.Position != i+1 {
			return fmt.Errorf("%w: expected position %d, got %d", ErrGappedPositions, i+1, p.Position)
		}
	}
	return nil
}
