package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/version"
)

const statusTTL = 5 * time.Second

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var body string
	switch m.state {
	case ViewStateDetail:
		body = m.viewDetails()
	default:
		body = m.viewList()
	}

	footer := subtle.Render("  ↑/↓ move • enter details • s scan • b back • q quit")
	if m.statusMsg != "" && time.Since(m.statusTime) < statusTTL {
		footer = warning.Render("  "+m.statusMsg) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewHUD(), body, footer)
}

func (m Model) viewHUD() string {
	status := "IDLE"
	statusStyle := subtle
	if m.scanning {
		status = "SCANNING" + strings.Repeat(".", m.tickCount%4)
		statusStyle = special
	} else if m.stats.Status == spof.StateActive {
		status = "ACTIVE"
	}

	last := "never"
	if m.stats.LastScan != nil {
		last = m.stats.LastScan.UTC().Format(time.RFC3339)
	}

	segments := []string{
		highlight.Render("FAULTLINE " + version.Current),
		statusStyle.Render(fmt.Sprintf("[ STATUS: %-11s ]", status)),
		hudLabelStyle.Render("SPOFS:") + hudValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalSPOFs)),
		hudLabelStyle.Render("HIGH RISK:") + danger.Render(fmt.Sprintf("%d", m.stats.HighRiskCount)),
		hudLabelStyle.Render("LAST SCAN:") + subtle.Render(last),
	}
	return hudStyle.Render(strings.Join(segments, "  "))
}

func (m Model) viewList() string {
	if !m.hasData {
		return fmt.Sprintf("\n   %s Waiting for the first scan...\n", m.spinner.View())
	}
	if len(m.snapshot.SPOFs) == 0 {
		return "\n   " + iconSafe.Render() + subtle.Render("  No single points of failure detected.") + "\n"
	}
	return m.table.View()
}

func (m Model) viewDetails() string {
	e, ok := m.Selected()
	if !ok {
		return "No item selected"
	}

	header := detailsHeaderStyle.Render(fmt.Sprintf("%s : %s", e.ResourceType, e.ResourceID))
	intel := lipgloss.JoinVertical(lipgloss.Left,
		levelStyle(string(e.RiskLevel)).Render(fmt.Sprintf("RISK SCORE:    %.1f (%s)", e.RiskScore, e.RiskLevel)),
		fmt.Sprintf("DEPENDENTS:    %d", e.DependentsCount),
		fmt.Sprintf("BLAST RADIUS:  %d", e.BlastRadius),
		fmt.Sprintf("USER IMPACT:   %s", e.UserImpact),
		fmt.Sprintf("EST. DOWNTIME: %s", time.Duration(e.DowntimeSeconds)*time.Second),
	)

	path := "CRITICAL PATH: none"
	if len(e.CriticalPath) > 0 {
		path = "CRITICAL PATH: " + strings.Join(e.CriticalPath, " > ")
	}

	var recs []string
	for _, r := range e.Recommendations {
		recs = append(recs, "• "+r)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		intel,
		"",
		subtle.Render(path),
		"",
		highlight.Render("RECOMMENDATIONS:"),
		strings.Join(recs, "\n"),
	)
	return detailsBoxStyle.Render(content)
}

func rows(snap spof.Snapshot) []table.Row {
	out := make([]table.Row, 0, len(snap.SPOFs))
	for _, e := range snap.SPOFs {
		out = append(out, table.Row{
			truncate(e.ResourceID, columns[0].Width),
			truncate(e.ResourceType, columns[1].Width),
			fmt.Sprintf("%.1f", e.RiskScore),
			string(e.RiskLevel),
			fmt.Sprintf("%d", e.DependentsCount),
			fmt.Sprintf("%d", e.BlastRadius),
			string(e.UserImpact),
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
