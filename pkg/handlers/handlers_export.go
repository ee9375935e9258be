package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func writeCSV(c *gin.Context, filename string, rows [][]string) {
	var out strings.Builder
	writer := csv.NewWriter(&out)
	_ = writer.WriteAll(rows)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out.String()))
}

// ExportCandidates returns every candidate as CSV, matching ?q= like ListCandidates
func (h *Handler) ExportCandidates(c *gin.Context) {
	list, err := h.Service.Candidates(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	rows := [][]string{{"rank", "score", "national_id", "name", "assigned_location", "provisional_location"}}
	for _, v := range list {
		rows = append(rows, []string{
			strconv.Itoa(v.Rank),
			strconv.FormatFloat(v.Score, 'f', 2, 64),
			v.NationalID,
			v.Name,
			v.AssignedMunicipality,
			v.ProvisionalMunicipality,
		})
	}
	writeCSV(c, "candidates.csv", rows)
}

// ExportMyPreferences returns the logged-in candidate's preferences as CSV
func (h *Handler) ExportMyPreferences(c *gin.Context) {
	claims := claimsFrom(c)
	cand, err := h.Service.Candidate(c.Request.Context(), claims.CandidateID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	alloc, err := h.Service.Allocation(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	byID := make(map[string]int, len(alloc.Statuses))
	for i, st := range alloc.Statuses {
		byID[st.ID] = i
	}

	rows := [][]string{{"position", "department", "municipality", "capacity", "occupied", "status"}}
	for _, p := range cand.Preferences {
		i, ok := byID[p.LocationID]
		if !ok {
			continue
		}
		st := alloc.Statuses[i]
		rows = append(rows, []string{
			strconv.Itoa(p.Position),
			st.Department,
			st.Municipality,
			strconv.Itoa(st.Capacity),
			strconv.Itoa(st.Occupied),
			st.Status,
		})
	}
	writeCSV(c, fmt.Sprintf("preferences-%s.csv", cand.NationalID), rows)
}
