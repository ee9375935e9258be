package app

import (
	"fmt"

	"github.com/arnavshah/plazas-api-go/pkg/auth"
	"github.com/arnavshah/plazas-api-go/pkg/config"
	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/handlers"
	"github.com/arnavshah/plazas-api-go/pkg/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App bundles the long-lived dependencies shared by the entry points
type App struct {
	DB      *gorm.DB
	Store   *database.Store
	Service *service.Service
	Handler *handlers.Handler
}

// New opens the database, seeds the admin account and builds the service
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.InitDB(cfg.DatabaseURL, cfg.DataPath)
	if err != nil {
		return nil, err
	}

	created, err := auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}
	if created {
		log.Info("admin account created", zap.String("username", cfg.AdminUsername))
	}

	store := database.NewStore(db)
	svc := service.New(store, log, cfg.StrictPreconditions)

	return &App{
		DB:      db,
		Store:   store,
		Service: svc,
		Handler: &handlers.Handler{
			Service:    svc,
			Store:      store,
			Tokens:     auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
			AccessCode: cfg.AccessCode,
			Log:        log,
		},
	}, nil
}

// Close releases the database connection
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
