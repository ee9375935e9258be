package router

import (
	"net/http"

	"github.com/arnavshah/plazas-api-go/pkg/auth"
	"github.com/arnavshah/plazas-api-go/pkg/handlers"
	"github.com/arnavshah/plazas-api-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// New wires every route onto a fresh gin engine
func New(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.Use(logger.Gin(h.Log), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Plaza Allocation API",
			"version": Version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/admin", h.Login)
	r.POST("/auth/candidate", h.CandidateLogin)

	// Candidate Endpoints
	api := r.Group("/api")
	api.Use(h.AuthMiddleware(auth.RoleCandidate))
	{
		api.GET("/me", h.Me)
		api.GET("/locations", h.ListLocations)
		api.PUT("/me/preferences", h.SavePreferences)
		api.POST("/me/preferences/toggle", h.TogglePreference)
		api.GET("/me/preferences.csv", h.ExportMyPreferences)
	}

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware(auth.RoleAdmin))
	{
		admin.GET("/candidates", h.ListCandidates)
		admin.PUT("/candidates/:id/rank", h.UpdateRank)
		admin.PUT("/candidates/:id/assignment", h.UpdateAssignment)
		admin.POST("/reset", h.ResetAssignments)
		admin.GET("/allocation", h.Allocation)
		admin.GET("/locations", h.ListLocations)
		admin.GET("/validate", h.ValidateData)
		admin.POST("/import", h.Import)
		admin.GET("/export/candidates.csv", h.ExportCandidates)
	}

	return r
}
