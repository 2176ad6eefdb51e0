// Package resource holds the data model shared by the analysis engines:
// resources, dependency edges, evidence and the criticality model.
package resource

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Resource is a point-in-time view of a topology node as supplied by the topology store.
type Resource struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Type            Type   `json:"type"`
	DependentsCount int    `json:"dependents_count"`
	DependencyCount int    `json:"dependency_count"`
	HasRedundancy   bool   `json:"has_redundancy"`
	IsSPOF          bool   `json:"is_single_point_of_failure"`

	// Optional operational signals.
	DeploymentFailureRate float64   `json:"deployment_failure_rate,omitempty"`
	LastChangedAt         time.Time `json:"last_changed_at,omitempty"`

	Properties map[string]string `json:"properties,omitempty"`
}

// DisplayName falls back to the id when no name is known.
func (r Resource) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// AffectedResource is a resource reached while walking dependents of a failing resource.
type AffectedResource struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Type     Type   `json:"type,omitempty"`
	Distance int    `json:"distance"`
}

// Evidence source names.
const (
	SourceInfrastructure = "infrastructure-topology"
	SourceCodeScan       = "code-scan"
	SourceMetrics        = "metrics"
	SourceTrace          = "trace"
	SourceKubernetes     = "kubernetes"
)

// Evidence is a single observation of an edge by one detection source.
type Evidence struct {
	Source     string    `json:"source"`
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Confidence float64   `json:"confidence"`
	Items      []string  `json:"items,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// SourceEvidence is what an edge retains per detection source.
type SourceEvidence struct {
	Confidence float64   `json:"confidence"`
	Items      []string  `json:"items,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// Dependency is a directed edge: SourceID depends on TargetID.
type Dependency struct {
	SourceID   string                    `json:"source_id"`
	TargetID   string                    `json:"target_id"`
	Confidence float64                   `json:"confidence"`
	Evidence   map[string]SourceEvidence `json:"evidence,omitempty"`
	FirstSeen  time.Time                 `json:"first_seen,omitempty"`
	LastSeen   time.Time                 `json:"last_seen,omitempty"`
}

// Sources returns the deduplicated evidence source names in stable order.
func (d Dependency) Sources() []string {
	out := make([]string, 0, len(d.Evidence))
	for name := range d.Evidence {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge folds a new observation into the edge.
// The source keeps only its latest observation; confidence is recombined across sources.
func (d *Dependency) Merge(e Evidence) {
	if d.Evidence == nil {
		d.Evidence = make(map[string]SourceEvidence)
	}
	name := strings.TrimSpace(e.Source)
	if name == "" {
		return
	}
	prev, seen := d.Evidence[name]
	if seen && prev.DetectedAt.After(e.DetectedAt) {
		return
	}
	d.Evidence[name] = SourceEvidence{
		Confidence: ClampUnit(e.Confidence),
		Items:      dedupe(e.Items),
		DetectedAt: e.DetectedAt,
	}
	d.Confidence = CombineConfidence(d.Evidence)

	if d.FirstSeen.IsZero() || (!e.DetectedAt.IsZero() && e.DetectedAt.Before(d.FirstSeen)) {
		d.FirstSeen = e.DetectedAt
	}
	if e.DetectedAt.After(d.LastSeen) {
		d.LastSeen = e.DetectedAt
	}
}

// Clone returns a deep copy safe to hand to readers.
func (d Dependency) Clone() Dependency {
	out := d
	if d.Evidence != nil {
		out.Evidence = make(map[string]SourceEvidence, len(d.Evidence))
		for k, v := range d.Evidence {
			v.Items = append([]string(nil), v.Items...)
			out.Evidence[k] = v
		}
	}
	return out
}

// CombineConfidence treats sources as independent detectors (noisy-OR).
func CombineConfidence(ev map[string]SourceEvidence) float64 {
	if len(ev) == 0 {
		return 0
	}
	miss := 1.0
	for _, e := range ev {
		miss *= 1 - ClampUnit(e.Confidence)
	}
	return ClampUnit(1 - miss)
}

// ClampUnit bounds v to [0,1]; NaN becomes 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
