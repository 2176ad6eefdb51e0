// Package risk converts resource topology attributes into a bounded 0-100 risk score.
package risk

import (
	"math"
	"time"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// Level is the discrete risk band of a score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Band thresholds. Scores below a bound fall into the band.
const (
	lowBound    = 30.0
	mediumBound = 60.0
	highBound   = 85.0

	MinScore = 0.0
	MaxScore = 100.0

	// Raw scores above the CRITICAL bound bend toward MaxScore instead of being cut off.
	saturationKnee = highBound
)

// LevelFor maps a score to its band.
func LevelFor(score float64) Level {
	switch {
	case score < lowBound:
		return LevelLow
	case score < mediumBound:
		return LevelMedium
	case score < highBound:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Input is the set of attributes a score is computed from.
type Input struct {
	Type                  resource.Type
	DependencyCount       int
	DependentsCount       int
	IsSPOF                bool
	HasRedundancy         bool
	DeploymentFailureRate float64
	// TimeSinceLastChange <= 0 means unknown and contributes nothing.
	TimeSinceLastChange time.Duration
}

// InputFor extracts scoring input from a resource.
func InputFor(r resource.Resource, now time.Time) Input {
	in := Input{
		Type:                  r.Type,
		DependencyCount:       r.DependencyCount,
		DependentsCount:       r.DependentsCount,
		IsSPOF:                r.IsSPOF,
		HasRedundancy:         r.HasRedundancy,
		DeploymentFailureRate: r.DeploymentFailureRate,
	}
	if !r.LastChangedAt.IsZero() {
		in.TimeSinceLastChange = now.Sub(r.LastChangedAt)
	}
	return in
}

// Factors is the breakdown of a score.
type Factors struct {
	Tier                 string  `json:"tier"`
	Category             string  `json:"category"`
	KnownType            bool    `json:"known_type"`
	BaseCriticality      float64 `json:"base_criticality"`
	CategoryMultiplier   float64 `json:"category_multiplier"`
	DependentsFactor     float64 `json:"dependents_factor"`
	DependencyFactor     float64 `json:"dependency_factor"`
	SPOFMultiplier       float64 `json:"spof_multiplier"`
	RedundancyMultiplier float64 `json:"redundancy_multiplier"`
	FailureRateBonus     float64 `json:"failure_rate_bonus"`
	ChangeRecencyBonus   float64 `json:"change_recency_bonus"`
	Unclamped            float64 `json:"unclamped"`
}

// Assessment is the result of one scoring call. It is never mutated.
type Assessment struct {
	ResourceID string    `json:"resource_id"`
	Score      float64   `json:"risk_score"`
	Level      Level     `json:"risk_level"`
	Factors    Factors   `json:"factors"`
	AssessedAt time.Time `json:"assessed_at"`
}

// Scorer is stateless and safe for concurrent use.
type Scorer struct {
	model *resource.Model
	cfg   config.RiskConfig
	now   func() time.Time
}

type Option func(*Scorer)

// WithModel replaces the criticality model.
func WithModel(m *resource.Model) Option {
	return func(s *Scorer) { s.model = m }
}

// WithClock injects the clock used for assessed_at and change recency.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New builds a scorer. An unset config section falls back to defaults.
func New(cfg config.RiskConfig, opts ...Option) *Scorer {
	s := &Scorer{
		model: resource.DefaultModel(),
		cfg:   normalize(cfg),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig applies criticality overrides from cfg as well.
func NewFromConfig(cfg config.RiskConfig, opts ...Option) (*Scorer, error) {
	model, err := resource.DefaultModel().WithOverrides(cfg.TierWeights, cfg.CategoryMultipliers, cfg.TypeTiers)
	if err != nil {
		return nil, err
	}
	return New(cfg, append([]Option{WithModel(model)}, opts...)...), nil
}

func normalize(cfg config.RiskConfig) config.RiskConfig {
	d := config.DefaultRiskConfig()
	if cfg.SPOFMultiplier == 0 && cfg.RedundancyMultiplier == 0 && cfg.DependentsScale == 0 {
		// Unset section: take every default.
		d.TierWeights, d.CategoryMultipliers, d.TypeTiers = cfg.TierWeights, cfg.CategoryMultipliers, cfg.TypeTiers
		return d
	}
	if cfg.SPOFMultiplier <= 1 {
		cfg.SPOFMultiplier = d.SPOFMultiplier
	}
	if cfg.RedundancyMultiplier <= 0 || cfg.RedundancyMultiplier >= 1 {
		cfg.RedundancyMultiplier = d.RedundancyMultiplier
	}
	if cfg.DependentsWeight <= 0 {
		cfg.DependentsWeight = d.DependentsWeight
	}
	if cfg.DependentsScale <= 0 {
		cfg.DependentsScale = d.DependentsScale
	}
	if cfg.DependencyWeight < 0 {
		cfg.DependencyWeight = d.DependencyWeight
	}
	if cfg.DependencyCap < 0 {
		cfg.DependencyCap = d.DependencyCap
	}
	if cfg.FailureRateWeight < 0 {
		cfg.FailureRateWeight = d.FailureRateWeight
	}
	if cfg.ChangeRecencyWeight < 0 {
		cfg.ChangeRecencyWeight = d.ChangeRecencyWeight
	}
	if cfg.ChangeRecencyWindow <= 0 {
		cfg.ChangeRecencyWindow = d.ChangeRecencyWindow
	}
	return cfg
}

// Model exposes the criticality model used by the scorer.
func (s *Scorer) Model() *resource.Model {
	return s.model
}

// Score computes a bounded score and its breakdown.
// Negative counts are treated as zero; unknown types use the lowest tier.
func (s *Scorer) Score(in Input) (float64, Factors) {
	p := s.model.Profile(in.Type)
	f := Factors{
		Tier:                 p.Tier.String(),
		Category:             string(p.Category),
		KnownType:            p.Known,
		BaseCriticality:      s.model.TierWeight(p.Tier),
		CategoryMultiplier:   s.model.CategoryMultiplier(p.Category),
		SPOFMultiplier:       1,
		RedundancyMultiplier: 1,
	}

	dependents := math.Max(0, float64(in.DependentsCount))
	f.DependentsFactor = 1 + s.cfg.DependentsWeight*(1-math.Exp(-dependents/s.cfg.DependentsScale))

	deps := in.DependencyCount
	if deps < 0 {
		deps = 0
	}
	if deps > s.cfg.DependencyCap {
		deps = s.cfg.DependencyCap
	}
	f.DependencyFactor = 1 + s.cfg.DependencyWeight*float64(deps)

	if in.IsSPOF {
		f.SPOFMultiplier = s.cfg.SPOFMultiplier
	}
	if in.HasRedundancy {
		f.RedundancyMultiplier = s.cfg.RedundancyMultiplier
	}

	f.FailureRateBonus = s.cfg.FailureRateWeight * resource.ClampUnit(in.DeploymentFailureRate)
	if in.TimeSinceLastChange > 0 {
		hours := in.TimeSinceLastChange.Hours()
		f.ChangeRecencyBonus = s.cfg.ChangeRecencyWeight * math.Exp(-hours/s.cfg.ChangeRecencyWindow.Hours())
	}

	raw := f.BaseCriticality * f.CategoryMultiplier *
		f.DependentsFactor * f.DependencyFactor *
		f.SPOFMultiplier * f.RedundancyMultiplier
	raw += f.FailureRateBonus + f.ChangeRecencyBonus
	f.Unclamped = raw

	return clamp(saturate(raw)), f
}

// Assess scores a resource.
func (s *Scorer) Assess(r resource.Resource) Assessment {
	now := s.now().UTC()
	score, factors := s.Score(InputFor(r, now))
	return Assessment{
		ResourceID: r.ID,
		Score:      score,
		Level:      LevelFor(score),
		Factors:    factors,
		AssessedAt: now,
	}
}

// saturate is the identity up to saturationKnee and approaches MaxScore
// asymptotically above it, so ordering between raw scores survives the cap.
func saturate(raw float64) float64 {
	if raw <= saturationKnee {
		return raw
	}
	span := MaxScore - saturationKnee
	return saturationKnee + span*(1-math.Exp(-(raw-saturationKnee)/span))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return math.Round(v*1e4) / 1e4
}
