package handler

import (
	"net/http"

	"github.com/arnavshah/plazas-api-go/pkg/app"
	"github.com/arnavshah/plazas-api-go/pkg/config"
	"github.com/arnavshah/plazas-api-go/pkg/logger"
	"github.com/arnavshah/plazas-api-go/pkg/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var r http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(gin.ReleaseMode)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("could not initialize", zap.Error(err))
	}
	r = router.New(a.Handler)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
