package models

import "time"

// Preference is one entry of a candidate's ordered preference list
type Preference struct {
	LocationID string `json:"location_id" binding:"required"`
	Position   int    `json:"position" binding:"required,gt=0"`
}

// Candidate represents a ranked person seeking a placement
type Candidate struct {
	ID                 string       `json:"id"`
	NationalID         string       `json:"national_id"`
	Name               string       `json:"name"`
	Rank               int          `json:"rank"`
	Score              float64      `json:"score"`
	AssignedLocationID string       `json:"assigned_location_id,omitempty"`
	Preferences        []Preference `json:"preferences"`
}

// Location represents a placement with a fixed number of seats
type Location struct {
	ID           string `json:"id"`
	Department   string `json:"department"`
	Municipality string `json:"municipality"`
	Capacity     int    `json:"capacity"`
}

// LocationStatus is a location together with its computed occupancy
type LocationStatus struct {
	Location
	Occupied  int    `json:"occupied"`
	Available int    `json:"available"`
	Status    string `json:"status"`
}

// Snapshot is a consistent read of every candidate and location
type Snapshot struct {
	Candidates []Candidate
	Locations  []Location
}

// CandidateView is a candidate as listed to administrators
type CandidateView struct {
	Candidate
	AssignedMunicipality    string `json:"assigned_municipality,omitempty"`
	ProvisionalLocationID   string `json:"provisional_location_id,omitempty"`
	ProvisionalMunicipality string `json:"provisional_municipality,omitempty"`
}

// AllocationResponse is the data structure returned by the allocation endpoints
type AllocationResponse struct {
	Locations       []LocationStatus  `json:"locations"`
	Placements      map[string]string `json:"placements,omitempty"` // candidate ID -> location ID
	Unplaced        []string          `json:"unplaced,omitempty"`
	FillRate        float64           `json:"fill_rate"`
	FirstChoiceRate float64           `json:"first_choice_rate"`
	ComputedAt      time.Time         `json:"computed_at"`
}

// SavePreferencesRequest replaces a candidate's whole preference list
type SavePreferencesRequest struct {
	Preferences []Preference `json:"preferences" binding:"dive"`
}

// TogglePreferenceRequest adds or removes one location from a preference list
type TogglePreferenceRequest struct {
	LocationID string `json:"location_id" binding:"required"`
}

// SetRankRequest overwrites a candidate's rank
type SetRankRequest struct {
	Rank int `json:"rank" form:"rank" binding:"required,gt=0"`
}

// SetAssignmentRequest binds a candidate to a location; an empty ID clears it
type SetAssignmentRequest struct {
	LocationID string `json:"location_id"`
}

// AdminLoginRequest is the body of the administrator login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CandidateLoginRequest is the body of the candidate login
type CandidateLoginRequest struct {
	NationalID string `json:"national_id" binding:"required"`
	AccessCode string `json:"access_code" binding:"required"`
}
