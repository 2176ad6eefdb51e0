// Package impact computes blast radius, user impact and downtime estimates.
package impact

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// UserImpact is the user-facing severity of a failure.
type UserImpact string

const (
	ImpactMinimal UserImpact = "MINIMAL"
	ImpactLow     UserImpact = "LOW"
	ImpactMedium  UserImpact = "MEDIUM"
	ImpactHigh    UserImpact = "HIGH"
	ImpactSevere  UserImpact = "SEVERE"
)

var impactRank = map[UserImpact]int{
	ImpactMinimal: 0,
	ImpactLow:     1,
	ImpactMedium:  2,
	ImpactHigh:    3,
	ImpactSevere:  4,
}

// Rank orders impacts from MINIMAL (0) to SEVERE (4).
func (u UserImpact) Rank() int {
	return impactRank[u]
}

func maxImpact(a, b UserImpact) UserImpact {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

const (
	// UnknownBucket groups affected resources without a type.
	UnknownBucket = "unknown"

	minDowntimeSeconds = 1
	maxDowntimeSeconds = 86400
)

// BlastRadius summarizes what fails with a resource.
type BlastRadius struct {
	ResourceID               string                      `json:"resource_id"`
	ResourceName             string                      `json:"resource_name,omitempty"`
	DirectlyAffected         []resource.AffectedResource `json:"directly_affected"`
	IndirectlyAffected       []resource.AffectedResource `json:"indirectly_affected"`
	CriticalPath             []string                    `json:"critical_path"`
	AffectedServices         map[string]int              `json:"affected_services"`
	TotalAffected            int                         `json:"total_affected"`
	UserFacingAffected       int                         `json:"user_facing_affected"`
	UserImpact               UserImpact                  `json:"user_impact"`
	EstimatedDowntimeSeconds int                         `json:"estimated_downtime_seconds"`
	CalculatedAt             time.Time                   `json:"calculated_at"`
}

// Topology is the part of the topology store the analyzer reads.
type Topology interface {
	AffectedResources(ctx context.Context, id string) (direct, indirect []resource.AffectedResource, err error)
	FindCriticalPath(ctx context.Context, id string) ([]string, error)
}

// Analyzer holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	topo       Topology
	cfg        config.ImpactConfig
	userFacing map[resource.Type]bool
	now        func() time.Time
}

type Option func(*Analyzer)

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New builds an analyzer. Missing thresholds fall back to defaults.
func New(topo Topology, cfg config.ImpactConfig, opts ...Option) *Analyzer {
	d := config.DefaultImpactConfig()
	if cfg.MediumThreshold <= 0 || cfg.HighThreshold <= cfg.MediumThreshold || cfg.SevereThreshold <= cfg.HighThreshold {
		cfg.MediumThreshold, cfg.HighThreshold, cfg.SevereThreshold = d.MediumThreshold, d.HighThreshold, d.SevereThreshold
	}
	if len(cfg.UserFacingTypes) == 0 {
		cfg.UserFacingTypes = d.UserFacingTypes
	}
	if len(cfg.BaseDowntime) == 0 {
		cfg.BaseDowntime = d.BaseDowntime
	}
	if cfg.MaxDowntime <= 0 {
		cfg.MaxDowntime = d.MaxDowntime
	}
	if cfg.DowntimePerHop < 0 {
		cfg.DowntimePerHop = d.DowntimePerHop
	}

	a := &Analyzer{
		topo:       topo,
		cfg:        cfg,
		userFacing: make(map[resource.Type]bool, len(cfg.UserFacingTypes)),
		now:        time.Now,
	}
	for _, t := range cfg.UserFacingTypes {
		a.userFacing[resource.NormalizeType(t)] = true
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CalculateBlastRadius queries the topology and summarizes the result.
// Topology failures are returned unchanged in meaning, wrapped with the resource id.
func (a *Analyzer) CalculateBlastRadius(ctx context.Context, resourceID, resourceName string) (*BlastRadius, error) {
	ctx, span := otel.Tracer("faultline/impact").Start(ctx, "Impact.CalculateBlastRadius")
	defer span.End()
	span.SetAttributes(attribute.String("resource_id", resourceID))

	direct, indirect, err := a.topo.AffectedResources(ctx, resourceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("affected resources of %s: %w", resourceID, err)
	}
	path, err := a.topo.FindCriticalPath(ctx, resourceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("critical path of %s: %w", resourceID, err)
	}

	br := a.Summarize(resourceID, resourceName, direct, indirect, path)
	span.SetAttributes(
		attribute.Int("total_affected", br.TotalAffected),
		attribute.String("user_impact", string(br.UserImpact)),
	)
	return &br, nil
}

// Summarize derives impact, downtime and per-type counts from affected sets.
func (a *Analyzer) Summarize(resourceID, resourceName string, direct, indirect []resource.AffectedResource, path []string) BlastRadius {
	br := BlastRadius{
		ResourceID:         resourceID,
		ResourceName:       resourceName,
		DirectlyAffected:   nonNil(direct),
		IndirectlyAffected: nonNil(indirect),
		CriticalPath:       path,
		AffectedServices:   make(map[string]int),
		TotalAffected:      len(direct) + len(indirect),
		CalculatedAt:       a.now().UTC(),
	}
	if len(br.CriticalPath) == 0 {
		br.CriticalPath = []string{resourceID}
	}

	for _, list := range [][]resource.AffectedResource{direct, indirect} {
		for _, ar := range list {
			key := strings.TrimSpace(string(ar.Type))
			if key == "" {
				key = UnknownBucket
			} else {
				key = string(resource.NormalizeType(key))
			}
			br.AffectedServices[key]++
			if a.userFacing[resource.Type(key)] {
				br.UserFacingAffected++
			}
		}
	}

	br.UserImpact = a.ClassifyUserImpact(br.TotalAffected, br.UserFacingAffected > 0)
	br.EstimatedDowntimeSeconds = a.EstimateDowntime(br.UserImpact, br.TotalAffected)
	return br
}

// ClassifyUserImpact is monotonic in total for a fixed userFacing flag.
func (a *Analyzer) ClassifyUserImpact(total int, userFacing bool) UserImpact {
	var level UserImpact
	switch {
	case total <= 0:
		return ImpactMinimal
	case total >= a.cfg.SevereThreshold:
		return ImpactSevere
	case total >= a.cfg.HighThreshold:
		level = ImpactHigh
	case total >= a.cfg.MediumThreshold:
		level = ImpactMedium
	default:
		level = ImpactLow
	}
	if userFacing {
		level = maxImpact(level, ImpactMedium)
	}
	return level
}

// EstimateDowntime scales the base downtime of a level with the affected count.
// The result is clamped to [1, 86400] seconds.
func (a *Analyzer) EstimateDowntime(level UserImpact, total int) int {
	base, ok := a.cfg.BaseDowntime[strings.ToLower(string(level))]
	if !ok {
		base = config.DefaultImpactConfig().BaseDowntime[strings.ToLower(string(level))]
	}
	if total < 0 {
		total = 0
	}
	seconds := base.Seconds() * (1 + a.cfg.DowntimePerHop*float64(total))

	limit := math.Min(a.cfg.MaxDowntime.Seconds(), maxDowntimeSeconds)
	if seconds > limit {
		seconds = limit
	}
	if seconds < minDowntimeSeconds {
		seconds = minDowntimeSeconds
	}
	return int(math.Round(seconds))
}

func nonNil(list []resource.AffectedResource) []resource.AffectedResource {
	if list == nil {
		return []resource.AffectedResource{}
	}
	return list
}
