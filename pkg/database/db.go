package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Candidate represents the candidates table
type Candidate struct {
	ID                 string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	NationalID         string       `gorm:"uniqueIndex;not null" json:"national_id"`
	Name               string       `gorm:"not null" json:"name"`
	Rank               int          `gorm:"index;not null" json:"rank"`
	Score              float64      `json:"score"`
	AssignedLocationID *string      `gorm:"type:varchar(36);index" json:"assigned_location_id"`
	Preferences        []Preference `gorm:"foreignKey:CandidateID;constraint:OnDelete:CASCADE" json:"preferences"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Location represents the locations table
type Location struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Department   string    `gorm:"uniqueIndex:idx_location_place;not null" json:"department"`
	Municipality string    `gorm:"uniqueIndex:idx_location_place;not null" json:"municipality"`
	Capacity     int       `gorm:"not null;default:0" json:"capacity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Preference represents the preferences table
type Preference struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CandidateID string `gorm:"type:varchar(36);uniqueIndex:idx_pref_location;uniqueIndex:idx_pref_position;not null" json:"candidate_id"`
	LocationID  string `gorm:"type:varchar(36);uniqueIndex:idx_pref_location;not null" json:"location_id"`
	Position    int    `gorm:"uniqueIndex:idx_pref_position;not null" json:"position"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Candidate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (l *Location) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

func (p *Preference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// InitDB opens Postgres when dsn is set and SQLite at dataPath otherwise,
// then migrates the schema
func InitDB(dsn, dataPath string) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
			Logger:      logger.Default.LogMode(logger.Warn),
		})
	} else {
		if dataPath == "" {
			dataPath = "plazas.db"
		}
		db, err = gorm.Open(sqlite.Open(dataPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Location{}, &Candidate{}, &Preference{}, &MasterUser{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
