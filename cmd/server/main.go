package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arnavshah/plazas-api-go/pkg/app"
	"github.com/arnavshah/plazas-api-go/pkg/config"
	"github.com/arnavshah/plazas-api-go/pkg/logger"
	"github.com/arnavshah/plazas-api-go/pkg/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	gin.SetMode(cfg.GinMode)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("could not initialize", zap.Error(err))
	}
	defer a.Close()

	// Warm the allocation so bad data shows up in the startup log
	if _, err := a.Service.Recompute(context.Background()); err != nil {
		log.Warn("initial allocation failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(a.Handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Bool("strict", cfg.StrictPreconditions))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not run server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
