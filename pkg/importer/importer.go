package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arnavshah/plazas-api-go/pkg/models"
)

func readHeader(r *csv.Reader, required ...string) (map[string]int, error) {
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ParseCandidates reads national_id,name,rank[,score] rows
func ParseCandidates(src io.Reader) ([]models.Candidate, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	cols, err := readHeader(r, "national_id", "name", "rank")
	if err != nil {
		return nil, err
	}

	var out []models.Candidate
	seen := map[string]bool{}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		nationalID := field(record, cols, "national_id")
		if nationalID == "" {
			return nil, fmt.Errorf("line %d: national_id is required", line)
		}
		if seen[nationalID] {
			return nil, fmt.Errorf("line %d: duplicate national_id %s", line, nationalID)
		}
		seen[nationalID] = true

		rank, err := strconv.Atoi(field(record, cols, "rank"))
		if err != nil || rank <= 0 {
			return nil, fmt.Errorf("line %d: rank must be a positive integer", line)
		}

		var score float64
		if s := field(record, cols, "score"); s != "" {
			if score, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid score %q", line, s)
			}
		}

		out = append(out, models.Candidate{
			NationalID: nationalID,
			Name:       field(record, cols, "name"),
			Rank:       rank,
			Score:      score,
		})
	}
	return out, nil
}

// ParseLocations reads department,municipality,capacity rows
func ParseLocations(src io.Reader) ([]models.Location, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	cols, err := readHeader(r, "department", "municipality", "capacity")
	if err != nil {
		return nil, err
	}

	var out []models.Location
	seen := map[string]bool{}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		municipality := field(record, cols, "municipality")
		if municipality == "" {
			return nil, fmt.Errorf("line %d: municipality is required", line)
		}

		department := field(record, cols, "department")
		key := department + "\x00" + municipality
		if seen[key] {
			return nil, fmt.Errorf("line %d: duplicate location %s/%s", line, department, municipality)
		}
		seen[key] = true

		capacity, err := strconv.Atoi(field(record, cols, "capacity"))
		if err != nil || capacity < 0 {
			return nil, fmt.Errorf("line %d: capacity must be a non-negative integer", line)
		}

		out = append(out, models.Location{
			Department:   department,
			Municipality: municipality,
			Capacity:     capacity,
		})
	}
	return out, nil
}
