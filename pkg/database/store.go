package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/arnavshah/plazas-api-go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrRankTaken = errors.New("rank already held by another candidate")
)

// Store reads and writes candidates, locations and preferences
type Store struct {
	DB *gorm.DB
}

// NewStore wraps an open database
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func orderedPreferences(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (c Candidate) toModel() models.Candidate {
	out := models.Candidate{
		ID:          c.ID,
		NationalID:  c.NationalID,
		Name:        c.Name,
		Rank:        c.Rank,
		Score:       c.Score,
		Preferences: make([]models.Preference, 0, len(c.Preferences)),
	}
	if c.AssignedLocationID != nil {
		out.AssignedLocationID = *c.AssignedLocationID
	}
	for _, p := range c.Preferences {
		out.Preferences = append(out.Preferences, models.Preference{LocationID: p.LocationID, Position: p.Position})
	}
	return out
}

func (l Location) toModel() models.Location {
	return models.Location{
		ID:           l.ID,
		Department:   l.Department,
		Municipality: l.Municipality,
		Capacity:     l.Capacity,
	}
}

func loadCandidates(tx *gorm.DB) ([]models.Candidate, error) {
	var rows []Candidate
	if err := tx.Preload("Preferences", orderedPreferences).Order("rank asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	out := make([]models.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func loadLocations(tx *gorm.DB) ([]models.Location, error) {
	var rows []Location
	if err := tx.Order("department asc").Order("municipality asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	out := make([]models.Location, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Snapshot reads every candidate and location inside one transaction
func (s *Store) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if snap.Candidates, err = loadCandidates(tx); err != nil {
			return err
		}
		snap.Locations, err = loadLocations(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetCandidates returns every candidate with preferences, ordered by rank
func (s *Store) GetCandidates(ctx context.Context) ([]models.Candidate, error) {
	return loadCandidates(s.DB.WithContext(ctx))
}

// GetLocations returns every location ordered by department and municipality
func (s *Store) GetLocations(ctx context.Context) ([]models.Location, error) {
	return loadLocations(s.DB.WithContext(ctx))
}

// GetCandidate returns one candidate with preferences
func (s *Store) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var row Candidate
	if err := s.DB.WithContext(ctx).Preload("Preferences", orderedPreferences).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "candidate "+id)
	}
	out := row.toModel()
	return &out, nil
}

// FindCandidateByNationalID looks a candidate up by their login handle
func (s *Store) FindCandidateByNationalID(ctx context.Context, nationalID string) (*models.Candidate, error) {
	var row Candidate
	if err := s.DB.WithContext(ctx).Preload("Preferences", orderedPreferences).First(&row, "national_id = ?", nationalID).Error; err != nil {
		return nil, notFound(err, "candidate")
	}
	out := row.toModel()
	return &out, nil
}

// GetPreferences returns a candidate's preferences ordered by position
func (s *Store) GetPreferences(ctx context.Context, candidateID string) ([]models.Preference, error) {
	var rows []Preference
	if err := s.DB.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("position asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	out := make([]models.Preference, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Preference{LocationID: r.LocationID, Position: r.Position})
	}
	return out, nil
}

// SavePreferences replaces a candidate's whole preference list
func (s *Store) SavePreferences(ctx context.Context, candidateID string, prefs []models.Preference) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Candidate{}).Where("id = ?", candidateID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
		}

		if err := tx.Where("candidate_id = ?", candidateID).Delete(&Preference{}).Error; err != nil {
			return fmt.Errorf("failed to delete preferences: %w", err)
		}
		if len(prefs) == 0 {
			return nil
		}

		rows := make([]Preference, 0, len(prefs))
		for _, p := range prefs {
			rows = append(rows, Preference{CandidateID: candidateID, LocationID: p.LocationID, Position: p.Position})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert preferences: %w", err)
		}
		return nil
	})
}

// SetRank overwrites a candidate's rank; ranks stay unique
func (s *Store) SetRank(ctx context.Context, candidateID string, rank int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holders int64
		if err := tx.Model(&Candidate{}).Where("rank = ? AND id <> ?", rank, candidateID).Count(&holders).Error; err != nil {
			return err
		}
		if holders > 0 {
			return fmt.Errorf("rank %d: %w", rank, ErrRankTaken)
		}

		res := tx.Model(&Candidate{}).Where("id = ?", candidateID).Update("rank", rank)
		if res.Error != nil {
			return fmt.Errorf("failed to update rank: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
		}
		return nil
	})
}

// ClearAllAssignments removes every finalized assignment and returns how many were cleared
func (s *Store) ClearAllAssignments(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&Candidate{}).
		Where("assigned_location_id IS NOT NULL").
		Update("assigned_location_id", nil)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear assignments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetAssignment finalizes a candidate at a location; an empty locationID clears it
func (s *Store) SetAssignment(ctx context.Context, candidateID, locationID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var value *string
		if locationID != "" {
			var loc Location
			if err := tx.First(&loc, "id = ?", locationID).Error; err != nil {
				return notFound(err, "location "+locationID)
			}
			value = &loc.ID
		}

		res := tx.Model(&Candidate{}).Where("id = ?", candidateID).Update("assigned_location_id", value)
		if res.Error != nil {
			return fmt.Errorf("failed to update assignment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("candidate %s: %w", candidateID, ErrNotFound)
		}
		return nil
	})
}

// UpsertCandidates inserts candidates or updates name, rank and score by national ID
func (s *Store) UpsertCandidates(ctx context.Context, candidates []models.Candidate) (int, error) {
	return upsertCandidates(s.DB.WithContext(ctx), candidates)
}

// UpsertLocations inserts locations or updates capacity by department and municipality
func (s *Store) UpsertLocations(ctx context.Context, locations []models.Location) (int, error) {
	return upsertLocations(s.DB.WithContext(ctx), locations)
}

// Import upserts locations and candidates in one transaction, so a failed
// batch leaves neither table changed
func (s *Store) Import(ctx context.Context, candidates []models.Candidate, locations []models.Location) (int, int, error) {
	var nCandidates, nLocations int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if nLocations, err = upsertLocations(tx, locations); err != nil {
			return err
		}
		nCandidates, err = upsertCandidates(tx, candidates)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return nCandidates, nLocations, nil
}

func upsertCandidates(tx *gorm.DB, candidates []models.Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	rows := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, Candidate{NationalID: c.NationalID, Name: c.Name, Rank: c.Rank, Score: c.Score})
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "national_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "rank", "score", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert candidates: %w", err)
	}
	return len(rows), nil
}

func upsertLocations(tx *gorm.DB, locations []models.Location) (int, error) {
	if len(locations) == 0 {
		return 0, nil
	}
	rows := make([]Location, 0, len(locations))
	for _, l := range locations {
		rows = append(rows, Location{Department: l.Department, Municipality: l.Municipality, Capacity: l.Capacity})
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "department"}, {Name: "municipality"}},
		DoUpdates: clause.AssignmentColumns([]string{"capacity"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert locations: %w", err)
	}
	return len(rows), nil
}

// FindMasterUser looks an administrator up by username
func (s *Store) FindMasterUser(ctx context.Context, username string) (*MasterUser, error) {
	var user MasterUser
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}
