package handlers

import (
	"net/http"

	"github.com/arnavshah/plazas-api-go/pkg/importer"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// ListCandidates returns candidates by rank, optionally filtered by ?q=
func (h *Handler) ListCandidates(c *gin.Context) {
	list, err := h.Service.Candidates(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": list, "count": len(list)})
}

// Allocation returns occupancy per location together with every placement
func (h *Handler) Allocation(c *gin.Context) {
	alloc, err := h.Service.Allocation(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alloc.Response(true))
}

// UpdateRank overwrites a candidate's rank
func (h *Handler) UpdateRank(c *gin.Context) {
	id := c.Param("id")
	var req models.SetRankRequest

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rank must be a positive integer"})
			return
		}
	}

	if err := h.Service.SetRank(c.Request.Context(), id, req.Rank); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rank updated successfully"})
}

// UpdateAssignment finalizes or clears a candidate's location
func (h *Handler) UpdateAssignment(c *gin.Context) {
	id := c.Param("id")
	var req models.SetAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Service.SetAssignment(c.Request.Context(), id, req.LocationID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Assignment updated"})
}

// ResetAssignments clears every finalized assignment
func (h *Handler) ResetAssignments(c *gin.Context) {
	cleared, err := h.Service.ResetAssignments(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All assignments cleared", "cleared": cleared})
}

// Import handles CSV uploads of candidates and/or locations
func (h *Handler) Import(c *gin.Context) {
	candidatesFile, _ := c.FormFile("candidates_file")
	locationsFile, _ := c.FormFile("locations_file")

	if candidatesFile == nil && locationsFile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "candidates_file or locations_file is required"})
		return
	}

	var candidates []models.Candidate
	if candidatesFile != nil {
		f, err := candidatesFile.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open candidates file"})
			return
		}
		defer f.Close()

		if candidates, err = importer.ParseCandidates(f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "candidates_file: " + err.Error()})
			return
		}
	}

	var locations []models.Location
	if locationsFile != nil {
		f, err := locationsFile.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open locations file"})
			return
		}
		defer f.Close()

		if locations, err = importer.ParseLocations(f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locations_file: " + err.Error()})
			return
		}
	}

	res, err := h.Service.Import(c.Request.Context(), candidates, locations)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": res})
}
