package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ValidateData checks the stored candidates and locations against the
// allocation preconditions (unique positive ranks, dense preference lists)
func (h *Handler) ValidateData(c *gin.Context) {
	snap, err := h.Service.Validate(c.Request.Context())
	if snap == nil {
		h.respondError(c, err)
		return
	}

	stats := gin.H{
		"candidate_count": len(snap.Candidates),
		"location_count":  len(snap.Locations),
	}

	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid":  false,
			"errors": strings.Split(err.Error(), "\n"),
			"stats":  stats,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"stats": stats,
	})
}
