package spof

import (
	"errors"
	"time"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
)

// ErrScanInProgress is returned when a scan is requested while another runs.
var ErrScanInProgress = errors.New("spof scan already in progress")

type State string

const (
	StateNotScanned State = "not_scanned"
	StateActive     State = "active"
)

type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangeResolved ChangeType = "resolved"
)

// Entry is one single point of failure in a snapshot.
type Entry struct {
	ResourceID      string            `json:"resource_id"`
	ResourceName    string            `json:"resource_name"`
	ResourceType    string            `json:"resource_type"`
	DependentsCount int               `json:"dependents_count"`
	BlastRadius     int               `json:"blast_radius"`
	UserImpact      impact.UserImpact `json:"user_impact"`
	DowntimeSeconds int               `json:"estimated_downtime_seconds"`
	CriticalPath    []string          `json:"critical_path,omitempty"`
	RiskScore       float64           `json:"risk_score"`
	RiskLevel       risk.Level        `json:"risk_level"`
	Recommendations []string          `json:"recommendations"`
}

// Snapshot is the result of one scan. Published snapshots are never mutated.
type Snapshot struct {
	ScanID         string         `json:"scan_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	SPOFs          []Entry        `json:"spofs"`
	TotalCount     int            `json:"total_count"`
	HighRiskCount  int            `json:"high_risk_count"`
	ByResourceType map[string]int `json:"by_resource_type"`
	ScanDuration   time.Duration  `json:"scan_duration"`
}

func (s Snapshot) byID() map[string]Entry {
	out := make(map[string]Entry, len(s.SPOFs))
	for _, e := range s.SPOFs {
		out[e.ResourceID] = e
	}
	return out
}

// Clone deep-copies the snapshot for handing to readers.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.SPOFs = make([]Entry, len(s.SPOFs))
	for i, e := range s.SPOFs {
		e.CriticalPath = append([]string(nil), e.CriticalPath...)
		e.Recommendations = append([]string(nil), e.Recommendations...)
		out.SPOFs[i] = e
	}
	out.ByResourceType = make(map[string]int, len(s.ByResourceType))
	for k, v := range s.ByResourceType {
		out.ByResourceType[k] = v
	}
	return out
}

// Change is a SPOF appearing or disappearing between two scans.
type Change struct {
	ScanID       string     `json:"scan_id,omitempty"`
	ChangeType   ChangeType `json:"change_type"`
	ResourceID   string     `json:"resource_id"`
	ResourceName string     `json:"resource_name"`
	ResourceType string     `json:"resource_type"`
	DetectedAt   time.Time  `json:"detected_at"`
	RiskScore    float64    `json:"risk_score"`
	BlastRadius  int        `json:"blast_radius"`
}

// Statistics is the aggregate view served before and after the first scan.
type Statistics struct {
	Status           State          `json:"status"`
	LastScan         *time.Time     `json:"last_scan,omitempty"`
	ScanCount        int            `json:"scan_count"`
	Restored         bool           `json:"restored,omitempty"`
	TotalSPOFs       int            `json:"total_spofs"`
	HighRiskCount    int            `json:"high_risk_count"`
	AverageRiskScore float64        `json:"average_risk_score"`
	MaxBlastRadius   int            `json:"max_blast_radius"`
	ByResourceType   map[string]int `json:"by_resource_type"`
	ByRiskLevel      map[string]int `json:"by_risk_level"`
	TotalChanges     int            `json:"total_changes"`
	NewCount         int            `json:"new_count"`
	ResolvedCount    int            `json:"resolved_count"`
}

// Diff compares two snapshots by resource id. Output is ordered by resource id
// within each change type, new before resolved.
func Diff(prev, next Snapshot, at time.Time) []Change {
	before, after := prev.byID(), next.byID()
	var changes []Change
	for _, e := range next.SPOFs {
		if _, ok := before[e.ResourceID]; !ok {
			changes = append(changes, changeFor(ChangeNew, e, at))
		}
	}
	for _, e := range prev.SPOFs {
		if _, ok := after[e.ResourceID]; !ok {
			changes = append(changes, changeFor(ChangeResolved, e, at))
		}
	}
	sortChanges(changes)
	for i := range changes {
		changes[i].ScanID = next.ScanID
	}
	return changes
}

func changeFor(t ChangeType, e Entry, at time.Time) Change {
	return Change{
		ChangeType:   t,
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		ResourceType: e.ResourceType,
		DetectedAt:   at,
		RiskScore:    e.RiskScore,
		BlastRadius:  e.BlastRadius,
	}
}
