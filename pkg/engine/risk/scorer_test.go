package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/resource"
)

func newScorer() *Scorer {
	return New(config.DefaultRiskConfig())
}

func score(s *Scorer, in Input) float64 {
	v, _ := s.Score(in)
	return v
}

func TestScore_TypeOrdering(t *testing.T) {
	s := newScorer()

	db := score(s, Input{Type: "database"})
	web := score(s, Input{Type: "web_app"})
	storage := score(s, Input{Type: "storage_account"})
	vnet := score(s, Input{Type: "vnet"})

	assert.Greater(t, db, web)
	assert.Greater(t, web, storage)
	assert.Greater(t, storage, vnet)
}

func TestScore_DifferentTiersDifferentScores(t *testing.T) {
	s := newScorer()
	types := s.Model().Types()

	for i := range types {
		for j := i + 1; j < len(types); j++ {
			a, b := types[i], types[j]
			if s.Model().Profile(a).Tier == s.Model().Profile(b).Tier {
				continue
			}
			in := Input{DependentsCount: 3, DependencyCount: 2}
			in.Type = a
			sa := score(s, in)
			in.Type = b
			sb := score(s, in)
			assert.NotEqual(t, sa, sb, "%s vs %s", a, b)
		}
	}
}

func TestScore_DependentsMonotonicAndSaturating(t *testing.T) {
	s := newScorer()

	s0 := score(s, Input{Type: "database"})
	s5 := score(s, Input{Type: "database", DependentsCount: 5})
	s20 := score(s, Input{Type: "database", DependentsCount: 20})
	s10k := score(s, Input{Type: "vnet", DependentsCount: 10000})

	assert.Greater(t, s5, s0)
	assert.Greater(t, s20, s5)
	assert.LessOrEqual(t, s10k, MaxScore)

	// Diminishing marginal effect per dependent.
	assert.Greater(t, (s5-s0)/5, (s20-s5)/15)
}

func TestScore_SPOFAndRedundancy(t *testing.T) {
	s := newScorer()
	base := Input{Type: "cache", DependentsCount: 4}

	plain := score(s, base)
	withRed := base
	withRed.HasRedundancy = true
	spof := base
	spof.IsSPOF = true
	redundantSPOF := spof
	redundantSPOF.HasRedundancy = true

	assert.Less(t, score(s, withRed), plain)
	assert.Greater(t, score(s, spof), plain)
	assert.Greater(t, score(s, spof), score(s, redundantSPOF))
}

func TestScore_InvariantsHoldNearCap(t *testing.T) {
	s := newScorer()
	hot := Input{Type: "dns_zone", DependentsCount: 50, IsSPOF: true, DeploymentFailureRate: 1}

	spof := score(s, hot)
	redundant := hot
	redundant.HasRedundancy = true
	notSPOF := hot
	notSPOF.IsSPOF = false
	lowerTier := hot
	lowerTier.Type = "web_app"

	assert.LessOrEqual(t, spof, MaxScore)
	assert.Greater(t, spof, score(s, redundant))
	assert.Greater(t, spof, score(s, notSPOF))
	assert.Greater(t, spof, score(s, lowerTier))
}

func TestSaturate(t *testing.T) {
	assert.Equal(t, 42.0, saturate(42))
	assert.Equal(t, saturationKnee, saturate(saturationKnee))
	prev := saturate(saturationKnee)
	for raw := saturationKnee + 5; raw <= 200; raw += 5 {
		got := saturate(raw)
		assert.Greater(t, got, prev, "raw %v", raw)
		assert.Less(t, got, MaxScore, "raw %v", raw)
		prev = got
	}
}

func TestScore_NeverZero(t *testing.T) {
	s := newScorer()
	for _, typ := range append(s.Model().Types(), "totally_unknown") {
		v := score(s, Input{Type: typ, HasRedundancy: true})
		assert.Greater(t, v, 0.0, string(typ))
	}
}

func TestScore_Bounds(t *testing.T) {
	s := newScorer()

	maxed, f := s.Score(Input{
		Type: "key_vault", DependentsCount: 500, DependencyCount: 50,
		IsSPOF: true, DeploymentFailureRate: 1, TimeSinceLastChange: time.Minute,
	})
	assert.Less(t, maxed, MaxScore)
	assert.Greater(t, maxed, 99.0)
	assert.Greater(t, f.Unclamped, MaxScore)
	assert.Equal(t, LevelCritical, LevelFor(maxed))

	weird := score(s, Input{Type: "", DependentsCount: -7, DependencyCount: -3, DeploymentFailureRate: math.NaN()})
	assert.GreaterOrEqual(t, weird, MinScore)
	assert.Equal(t, score(s, Input{Type: "unknown"}), weird)
}

func TestScore_FailureRateTermIsBounded(t *testing.T) {
	s := newScorer()

	zero := score(s, Input{Type: "virtual_machine"})
	half := score(s, Input{Type: "virtual_machine", DeploymentFailureRate: 0.5})
	full := score(s, Input{Type: "virtual_machine", DeploymentFailureRate: 1})
	over := score(s, Input{Type: "virtual_machine", DeploymentFailureRate: 7})

	assert.InDelta(t, 7.5, half-zero, 0.01)
	assert.InDelta(t, 15, full-zero, 0.01)
	assert.Equal(t, full, over)
}

func TestScore_RecentChangeRaisesRisk(t *testing.T) {
	s := newScorer()

	unknown := score(s, Input{Type: "function_app"})
	fresh := score(s, Input{Type: "function_app", TimeSinceLastChange: time.Hour})
	old := score(s, Input{Type: "function_app", TimeSinceLastChange: 60 * 24 * time.Hour})

	assert.Greater(t, fresh, old)
	assert.InDelta(t, unknown, old, 0.01)
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{0, LevelLow},
		{29.99, LevelLow},
		{30, LevelMedium},
		{59.99, LevelMedium},
		{60, LevelHigh},
		{84.99, LevelHigh},
		{85, LevelCritical},
		{100, LevelCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, LevelFor(c.score), "score %v", c.score)
	}
}

func TestAssess(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s := New(config.DefaultRiskConfig(), WithClock(func() time.Time { return now }))

	a := s.Assess(resource.Resource{ID: "orders-db", Type: "database", DependentsCount: 20, IsSPOF: true})

	assert.Equal(t, "orders-db", a.ResourceID)
	assert.Equal(t, now, a.AssessedAt)
	assert.Equal(t, LevelFor(a.Score), a.Level)
	assert.Equal(t, "critical", a.Factors.Tier)
	assert.Equal(t, "data-store", a.Factors.Category)
	assert.Equal(t, 1.3, a.Factors.SPOFMultiplier)
}

func TestNewFromConfig_Overrides(t *testing.T) {
	cfg := config.DefaultRiskConfig()
	cfg.TypeTiers = map[string]string{"vnet": "critical"}

	s, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Greater(t, score(s, Input{Type: "vnet"}), score(newScorer(), Input{Type: "vnet"}))

	cfg.TierWeights = map[string]float64{"legendary": 99}
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)
}

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	assert.Equal(t, score(newScorer(), Input{Type: "database", IsSPOF: true}),
		score(New(config.RiskConfig{}), Input{Type: "database", IsSPOF: true}))
}
