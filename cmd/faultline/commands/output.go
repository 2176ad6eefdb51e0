package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/engine/timectx"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Bold(true)
	danger     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0055")).Bold(true)
	warning    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99"))
	borderClr  = lipgloss.Color("#874BFD")
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderClr)).
		Headers(headers...)
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(fmt.Sprintf("%-16s", label+":")), value)
}

func levelText(level string) string {
	switch level {
	case string(risk.LevelCritical):
		return danger.Render(level)
	case string(risk.LevelHigh):
		return warning.Render(level)
	default:
		return level
	}
}

func renderSnapshot(w io.Writer, snap spof.Snapshot, changes []spof.Change) {
	fmt.Fprintln(w, titleStyle.Render("SINGLE POINTS OF FAILURE"))
	field(w, "Scanned at", snap.Timestamp.Format(time.RFC3339))
	field(w, "Duration", snap.ScanDuration.Round(time.Millisecond))
	field(w, "SPOFs", snap.TotalCount)
	field(w, "High risk", snap.HighRiskCount)

	if snap.TotalCount == 0 {
		fmt.Fprintln(w, okStyle.Render("No single points of failure detected."))
	} else {
		t := newTable("RESOURCE", "TYPE", "RISK", "LEVEL", "DEPENDENTS", "BLAST", "IMPACT")
		for _, e := range snap.SPOFs {
			t.Row(e.ResourceID, e.ResourceType, fmt.Sprintf("%.1f", e.RiskScore), levelText(string(e.RiskLevel)),
				fmt.Sprint(e.DependentsCount), fmt.Sprint(e.BlastRadius), string(e.UserImpact))
		}
		fmt.Fprintln(w, t.Render())
	}

	for _, c := range changes {
		mark := okStyle.Render("- resolved")
		if c.ChangeType == spof.ChangeNew {
			mark = danger.Render("+ new     ")
		}
		fmt.Fprintf(w, "%s %s (%s) risk %.1f\n", mark, c.ResourceID, c.ResourceType, c.RiskScore)
	}
}

func renderAssessment(w io.Writer, a risk.Assessment, adj *timectx.Adjustment) {
	fmt.Fprintln(w, titleStyle.Render("RISK ASSESSMENT"))
	field(w, "Resource", a.ResourceID)
	field(w, "Score", fmt.Sprintf("%.2f", a.Score))
	field(w, "Level", levelText(string(a.Level)))
	field(w, "Tier", a.Factors.Tier)
	field(w, "Category", a.Factors.Category)
	field(w, "SPOF factor", a.Factors.SPOFMultiplier)
	field(w, "Redundancy", a.Factors.RedundancyMultiplier)
	if adj != nil {
		field(w, "Time window", fmt.Sprintf("%s / %s", adj.DayType, adj.TimeWindow))
		field(w, "Multiplier", fmt.Sprintf("%.2f", adj.Multiplier))
		field(w, "Adjusted", fmt.Sprintf("%.2f", adj.AdjustedScore))
		if len(adj.Factors) > 0 {
			field(w, "Factors", strings.Join(adj.Factors, "; "))
		}
	}
}

func renderBlast(w io.Writer, br *impact.BlastRadius) {
	fmt.Fprintln(w, titleStyle.Render("BLAST RADIUS"))
	field(w, "Resource", br.ResourceID)
	field(w, "Affected", br.TotalAffected)
	field(w, "User facing", br.UserFacingAffected)
	field(w, "User impact", br.UserImpact)
	field(w, "Downtime", time.Duration(br.EstimatedDowntimeSeconds)*time.Second)
	if len(br.CriticalPath) > 0 {
		field(w, "Critical path", strings.Join(br.CriticalPath, " > "))
	}

	t := newTable("RESOURCE", "TYPE", "DISTANCE")
	for _, r := range br.DirectlyAffected {
		t.Row(r.ID, string(r.Type), fmt.Sprint(r.Distance))
	}
	for _, r := range br.IndirectlyAffected {
		t.Row(r.ID, string(r.Type), fmt.Sprint(r.Distance))
	}
	if br.TotalAffected > 0 {
		fmt.Fprintln(w, t.Render())
	}
}

func renderVerifications(w io.Writer, list []verify.Verification) {
	t := newTable("SOURCE", "TARGET", "STATUS", "CORRECT", "CONFIDENCE", "EVIDENCE", "NOTES")
	for _, v := range list {
		correct := v.IsCorrect.String()
		if correct == "null" {
			correct = "unknown"
		}
		t.Row(v.SourceID, v.TargetID, string(v.Status), correct,
			fmt.Sprintf("%.2f", v.DetectedConfidence), strings.Join(v.EvidenceSources, ","), v.Notes)
	}
	fmt.Fprintln(w, t.Render())
}
