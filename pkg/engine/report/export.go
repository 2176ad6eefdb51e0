// Package report renders SPOF snapshots, blast radii and risk assessments as JSON or CSV.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// ErrUnknownFormat is returned for formats other than json and csv.
var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the file suffix for the format.
func (f Format) Extension() string { return "." + string(f) }

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// ExportItem matches the JSON/CSV structure of one SPOF.
type ExportItem struct {
	ResourceID      string  `json:"resource_id"`
	ResourceName    string  `json:"resource_name"`
	Type            string  `json:"type"`
	RiskScore       float64 `json:"risk_score"`
	RiskLevel       string  `json:"risk_level"`
	Dependents      int     `json:"dependents_count"`
	BlastRadius     int     `json:"blast_radius"`
	UserImpact      string  `json:"user_impact"`
	DowntimeSeconds int     `json:"estimated_downtime_seconds"`
	CriticalPath    string  `json:"critical_path"`
	Recommendation  string  `json:"recommendation"`
}

func extractItems(snap spof.Snapshot) []ExportItem {
	items := make([]ExportItem, 0, len(snap.SPOFs))
	for _, e := range snap.SPOFs {
		rec := ""
		if len(e.Recommendations) > 0 {
			rec = e.Recommendations[0]
		}
		items = append(items, ExportItem{
			ResourceID:      e.ResourceID,
			ResourceName:    e.ResourceName,
			Type:            e.ResourceType,
			RiskScore:       e.RiskScore,
			RiskLevel:       string(e.RiskLevel),
			Dependents:      e.DependentsCount,
			BlastRadius:     e.BlastRadius,
			UserImpact:      string(e.UserImpact),
			DowntimeSeconds: e.DowntimeSeconds,
			CriticalPath:    strings.Join(e.CriticalPath, " > "),
			Recommendation:  rec,
		})
	}

	// Sort by risk descending, then id.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RiskScore != items[j].RiskScore {
			return items[i].RiskScore > items[j].RiskScore
		}
		return items[i].ResourceID < items[j].ResourceID
	})
	return items
}

// WriteSnapshot renders the SPOFs of a snapshot.
// JSON carries the full snapshot; CSV carries one row per SPOF.
func WriteSnapshot(w io.Writer, f Format, snap spof.Snapshot) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, snap)
	case FormatCSV:
		return writeSnapshotCSV(w, extractItems(snap))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

func writeSnapshotCSV(w io.Writer, items []ExportItem) error {
	cw := csv.NewWriter(w)

	header := []string{
		"ResourceID",
		"ResourceName",
		"Type",
		"RiskScore",
		"RiskLevel",
		"Dependents",
		"BlastRadius",
		"UserImpact",
		"DowntimeSeconds",
		"CriticalPath",
		"Recommendation",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, item := range items {
		record := []string{
			item.ResourceID,
			item.ResourceName,
			item.Type,
			strconv.FormatFloat(item.RiskScore, 'f', 2, 64),
			item.RiskLevel,
			strconv.Itoa(item.Dependents),
			strconv.Itoa(item.BlastRadius),
			item.UserImpact,
			strconv.Itoa(item.DowntimeSeconds),
			item.CriticalPath,
			item.Recommendation,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteBlastRadii renders blast radius results, one row per resource in CSV.
func WriteBlastRadii(w io.Writer, f Format, radii []impact.BlastRadius) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, radii)
	case FormatCSV:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	cw := csv.NewWriter(w)
	header := []string{"ResourceID", "ResourceName", "Direct", "Indirect", "TotalAffected", "UserFacing", "UserImpact", "DowntimeSeconds", "CriticalPath"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range radii {
		record := []string{
			b.ResourceID,
			b.ResourceName,
			strconv.Itoa(len(b.DirectlyAffected)),
			strconv.Itoa(len(b.IndirectlyAffected)),
			strconv.Itoa(b.TotalAffected),
			strconv.Itoa(b.UserFacingAffected),
			string(b.UserImpact),
			strconv.Itoa(b.EstimatedDowntimeSeconds),
			strings.Join(b.CriticalPath, " > "),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssessments renders risk assessments with their factor breakdown.
func WriteAssessments(w io.Writer, f Format, assessments []risk.Assessment) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, assessments)
	case FormatCSV:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ResourceID", "RiskScore", "RiskLevel", "AssessedAt"}); err != nil {
		return err
	}
	for _, a := range assessments {
		record := []string{
			a.ResourceID,
			strconv.FormatFloat(a.Score, 'f', 2, 64),
			string(a.Level),
			a.AssessedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Render returns the snapshot encoded in the given format.
func Render(f Format, snap spof.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, f, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateCSV writes the snapshot's SPOFs to a CSV file.
func GenerateCSV(snap spof.Snapshot, path string) error {
	return generate(FormatCSV, snap, path)
}

// GenerateJSON writes the snapshot to a JSON file.
func GenerateJSON(snap spof.Snapshot, path string) error {
	return generate(FormatJSON, snap, path)
}

func generate(f Format, snap spof.Snapshot, path string) error {
	data, err := Render(f, snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
