package history

import (
	"fmt"
	"sort"
	"time"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// Trend contains signals derived from consecutive snapshots.
type Trend struct {
	Current      int      `json:"current"`
	HighRisk     int      `json:"high_risk"`
	Velocity     float64  `json:"velocity_per_hour"`     // SPOFs per hour
	Acceleration float64  `json:"acceleration_per_hour"` // change in velocity per hour
	Projected24h float64  `json:"projected_24h"`
	Churn        int      `json:"churn"` // ids that appeared or disappeared since the previous snapshot
	Composition  string   `json:"composition"`
	ShiftScore   float64  `json:"shift_score"`
	Window       int      `json:"window"`
	Alerts       []string `json:"alerts,omitempty"`
}

// Analyze calculates SPOF trends from snapshots ordered oldest first.
func Analyze(history []spof.Snapshot) Trend {
	if len(history) == 0 {
		return Trend{}
	}
	current := history[len(history)-1]
	t := Trend{
		Current:      current.TotalCount,
		HighRisk:     current.HighRiskCount,
		Projected24h: float64(current.TotalCount),
		Window:       len(history),
		Composition:  PatternUnknown,
	}
	if len(history) < 2 {
		return t
	}
	prev := history[len(history)-2]

	t.Churn = len(spof.Diff(prev, current, current.Timestamp))

	types := typeAxis(history)
	baseline := CompositionVector(history[0], types)
	latest := CompositionVector(current, types)
	t.ShiftScore = 1 - CosineSimilarity(baseline, latest)
	t.Composition = ClassifyShift(baseline, latest)

	hours := current.Timestamp.Sub(prev.Timestamp).Hours()
	if hours <= 0 {
		return t
	}
	t.Velocity = float64(current.TotalCount-prev.TotalCount) / hours

	if len(history) >= 3 {
		prev2 := history[len(history)-3]
		hours2 := prev.Timestamp.Sub(prev2.Timestamp).Hours()
		if hours2 > 0 {
			prevVelocity := float64(prev.TotalCount-prev2.TotalCount) / hours2
			t.Acceleration = (t.Velocity - prevVelocity) / hours
		}
	}

	t.Projected24h = float64(current.TotalCount) + t.Velocity*24 + 0.5*t.Acceleration*24*24
	if t.Projected24h < 0 {
		t.Projected24h = 0
	}

	if t.Velocity >= 1 {
		t.Alerts = append(t.Alerts, fmt.Sprintf("[WARNING] SPOF GROWTH: +%.1f single points of failure per hour", t.Velocity))
	}
	if current.HighRiskCount > prev.HighRiskCount {
		t.Alerts = append(t.Alerts, fmt.Sprintf("[CRITICAL] HIGH RISK SPOFS: %d -> %d since %s",
			prev.HighRiskCount, current.HighRiskCount, prev.Timestamp.Format(time.RFC3339)))
	}
	if t.Composition == PatternShift {
		t.Alerts = append(t.Alerts, fmt.Sprintf("[WARNING] COMPOSITION SHIFT: SPOF mix by resource type moved %.0f%% from baseline", t.ShiftScore*100))
	}
	return t
}

// typeAxis is the sorted union of resource types across the window.
func typeAxis(history []spof.Snapshot) []string {
	seen := map[string]struct{}{}
	for _, s := range history {
		for typ := range s.ByResourceType {
			seen[typ] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for typ := range seen {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
