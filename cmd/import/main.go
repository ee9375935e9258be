package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/arnavshah/plazas-api-go/pkg/config"
	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/importer"
	"github.com/arnavshah/plazas-api-go/pkg/logger"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/service"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	candidatesPath := flag.String("candidates", "", "CSV with national_id,name,rank[,score]")
	locationsPath := flag.String("locations", "", "CSV with department,municipality,capacity")
	flag.Parse()

	if *candidatesPath == "" && *locationsPath == "" {
		fmt.Println("Usage: import [-candidates file.csv] [-locations file.csv]")
		return 1
	}

	cfg := config.LoadTooling()
	log := logger.New(cfg.LogLevel, "console")
	defer func() { _ = log.Sync() }()

	var locations []models.Location
	if *locationsPath != "" {
		f, err := os.Open(*locationsPath)
		if err != nil {
			log.Error("could not open locations file", zap.Error(err))
			return 1
		}
		locations, err = importer.ParseLocations(f)
		f.Close()
		if err != nil {
			log.Error("invalid locations file", zap.String("path", *locationsPath), zap.Error(err))
			return 1
		}
	}

	var candidates []models.Candidate
	if *candidatesPath != "" {
		f, err := os.Open(*candidatesPath)
		if err != nil {
			log.Error("could not open candidates file", zap.Error(err))
			return 1
		}
		candidates, err = importer.ParseCandidates(f)
		f.Close()
		if err != nil {
			log.Error("invalid candidates file", zap.String("path", *candidatesPath), zap.Error(err))
			return 1
		}
	}

	db, err := database.InitDB(cfg.DatabaseURL, cfg.DataPath)
	if err != nil {
		log.Error("could not open database", zap.Error(err))
		return 1
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx := context.Background()
	svc := service.New(database.NewStore(db), log, cfg.StrictPreconditions)

	res, err := svc.Import(ctx, candidates, locations)
	if err != nil {
		log.Error("import failed", zap.Error(err))
		return 1
	}
	fmt.Printf("Imported %d candidates and %d locations\n", res.Candidates, res.Locations)

	if _, err := svc.Validate(ctx); err != nil {
		fmt.Printf("Data does not satisfy the allocation preconditions:\n%v\n", err)
		return 2
	}
	return 0
}
