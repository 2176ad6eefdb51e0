// Package config defines default configuration, scoring weights, and runtime settings.
package config

import "time"

// Config is the root configuration document (faultline.yaml).
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Topology    TopologyConfig    `mapstructure:"topology"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Impact      ImpactConfig      `mapstructure:"impact"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Verifier    VerifierConfig    `mapstructure:"verifier"`
	TimeContext TimeContextConfig `mapstructure:"timecontext"`
	History     HistoryConfig     `mapstructure:"history"`
	Predictions PredictionsConfig `mapstructure:"predictions"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Evidence    EvidenceConfig    `mapstructure:"evidence"`
	Export      ExportConfig      `mapstructure:"export"`
	API         APIConfig         `mapstructure:"api"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	AWS         AWSConfig         `mapstructure:"aws"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TopologyConfig selects where resources and dependency edges are read from.
type TopologyConfig struct {
	Backend     string      `mapstructure:"backend" validate:"oneof=memory neo4j"`
	FixtureFile string      `mapstructure:"fixture_file"`
	Neo4j       Neo4jConfig `mapstructure:"neo4j"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// MaxDepth bounds variable-length path expansion.
	MaxDepth int `mapstructure:"max_depth" validate:"gte=1,lte=25"`
}

// RiskConfig defines the weights of the multi-factor risk scorer.
type RiskConfig struct {
	// TierWeights overrides the base score of a criticality tier (critical, high, medium, low).
	TierWeights map[string]float64 `mapstructure:"tier_weights"`
	// CategoryMultipliers overrides impact category multipliers.
	CategoryMultipliers map[string]float64 `mapstructure:"category_multipliers"`
	// TypeTiers assigns a tier to additional or re-classified resource types.
	TypeTiers map[string]string `mapstructure:"type_tiers"`

	SPOFMultiplier       float64       `mapstructure:"spof_multiplier" validate:"gt=1"`
	RedundancyMultiplier float64       `mapstructure:"redundancy_multiplier" validate:"gt=0,lt=1"`
	DependentsWeight     float64       `mapstructure:"dependents_weight" validate:"gte=0"`
	DependentsScale      float64       `mapstructure:"dependents_scale" validate:"gt=0"`
	DependencyWeight     float64       `mapstructure:"dependency_weight" validate:"gte=0"`
	DependencyCap        int           `mapstructure:"dependency_cap" validate:"gte=0"`
	FailureRateWeight    float64       `mapstructure:"failure_rate_weight" validate:"gte=0"`
	ChangeRecencyWeight  float64       `mapstructure:"change_recency_weight" validate:"gte=0"`
	ChangeRecencyWindow  time.Duration `mapstructure:"change_recency_window"`
}

// ImpactConfig defines blast radius thresholds and downtime estimates.
type ImpactConfig struct {
	MediumThreshold int `mapstructure:"medium_threshold" validate:"gte=1"`
	HighThreshold   int `mapstructure:"high_threshold" validate:"gtfield=MediumThreshold"`
	SevereThreshold int `mapstructure:"severe_threshold" validate:"gtfield=HighThreshold"`
	// UserFacingTypes raise the user impact floor to MEDIUM.
	UserFacingTypes []string `mapstructure:"user_facing_types"`
	// BaseDowntime is keyed by lower-cased user impact level.
	BaseDowntime     map[string]time.Duration `mapstructure:"base_downtime"`
	DowntimePerHop   float64                  `mapstructure:"downtime_per_resource" validate:"gte=0"`
	MaxDowntime      time.Duration            `mapstructure:"max_downtime"`
	MaxTraversalHops int                      `mapstructure:"max_traversal_hops" validate:"gte=1"`
}

// MonitorConfig drives the scheduled SPOF scan.
type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	HighRiskThreshold float64       `mapstructure:"high_risk_threshold" validate:"gte=0,lte=100"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout"`
	RestoreOnStart    bool          `mapstructure:"restore_on_start"`
}

// VerifierConfig defines dependency validation thresholds and decay defaults.
type VerifierConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	HighConfidence  float64       `mapstructure:"high_confidence" validate:"gte=0,lte=1"`
	LowConfidence   float64       `mapstructure:"low_confidence" validate:"gte=0,lte=1,ltefield=HighConfidence"`
	MinSources      int           `mapstructure:"min_sources" validate:"gte=1"`
	DecayRate       float64       `mapstructure:"decay_rate" validate:"gte=0,lte=1"`
	DecayAfterDays  int           `mapstructure:"decay_after_days" validate:"gte=0"`
	StaleAfterDays  int           `mapstructure:"stale_after_days" validate:"gte=0"`
}

// TimeContextConfig locates the change calendar.
type TimeContextConfig struct {
	Timezone     string `mapstructure:"timezone"`
	CalendarFile string `mapstructure:"calendar_file"`
}

// HistoryConfig selects the SPOF snapshot ledger backend.
type HistoryConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=none file s3 redis"`
	Path     string `mapstructure:"path"`
	S3URL    string `mapstructure:"s3_url"`
	RedisURL string `mapstructure:"redis_url"`
	RedisKey string `mapstructure:"redis_key"`
	Retain   int    `mapstructure:"retain" validate:"gte=1"`
}

type PredictionsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory dynamodb"`
	Table   string `mapstructure:"table"`
}

type NotifierConfig struct {
	SlackWebhook string `mapstructure:"slack_webhook"`
	Channel      string `mapstructure:"channel"`
}

type PolicyConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// EvidenceConfig enables the dependency evidence sources.
type EvidenceConfig struct {
	TerraformState string        `mapstructure:"terraform_state"`
	HCLDir         string        `mapstructure:"hcl_dir"`
	Kubeconfig     string        `mapstructure:"kubeconfig"`
	KubeNamespace  string        `mapstructure:"kube_namespace"`
	PrometheusURL  string        `mapstructure:"prometheus_url"`
	Interval       time.Duration `mapstructure:"interval"`
	Concurrency    int           `mapstructure:"concurrency" validate:"gte=1"`
}

// ExportConfig locates where report exports are written: a directory or s3://bucket/prefix.
type ExportConfig struct {
	Target string `mapstructure:"target"`
	Format string `mapstructure:"format" validate:"oneof=json csv"`
}

type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Mode       string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// SampleRatio is the fraction of root traces kept.
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	// Stdout prints finished spans to stderr when no OTLP endpoint is set.
	Stdout bool `mapstructure:"stdout"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	Endpoint string `mapstructure:"endpoint"`
}

// Defaults.
const (
	DefaultRegion     = "us-east-1"
	DefaultListenAddr = ":8080"
)

// Default returns a fully populated configuration.
func Default() Config {
	return Config{
		Log:         LogConfig{Level: "info", Format: "json"},
		Topology:    DefaultTopologyConfig(),
		Risk:        DefaultRiskConfig(),
		Impact:      DefaultImpactConfig(),
		Monitor:     DefaultMonitorConfig(),
		Verifier:    DefaultVerifierConfig(),
		TimeContext: TimeContextConfig{Timezone: "UTC"},
		History:     DefaultHistoryConfig(),
		Predictions: PredictionsConfig{Backend: "memory", Table: "faultline-predictions"},
		Evidence:    EvidenceConfig{KubeNamespace: "", Interval: 30 * time.Minute, Concurrency: 4},
		Export:      ExportConfig{Target: "exports", Format: "json"},
		API:         APIConfig{ListenAddr: DefaultListenAddr, Mode: "release"},
		Telemetry:   TelemetryConfig{ServiceName: "faultline", SampleRatio: 1},
		AWS:         AWSConfig{Region: DefaultRegion},
	}
}

// DefaultTopologyConfig returns the in-memory topology defaults.
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		Backend: "memory",
		Neo4j: Neo4jConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
			MaxDepth: 10,
		},
	}
}

// DefaultRiskConfig returns the default scorer weights.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		SPOFMultiplier:       1.3,
		RedundancyMultiplier: 0.7,
		DependentsWeight:     0.8,
		DependentsScale:      10,
		DependencyWeight:     0.02,
		DependencyCap:        10,
		FailureRateWeight:    15,
		ChangeRecencyWeight:  5,
		ChangeRecencyWindow:  48 * time.Hour,
	}
}

// DefaultImpactConfig returns default blast radius thresholds.
func DefaultImpactConfig() ImpactConfig {
	return ImpactConfig{
		MediumThreshold: 5,
		HighThreshold:   10,
		SevereThreshold: 20,
		UserFacingTypes: []string{"web_app", "api_gateway", "load_balancer", "cdn", "app_service"},
		BaseDowntime: map[string]time.Duration{
			"minimal": time.Minute,
			"low":     5 * time.Minute,
			"medium":  15 * time.Minute,
			"high":    30 * time.Minute,
			"severe":  time.Hour,
		},
		DowntimePerHop:   0.1,
		MaxDowntime:      24 * time.Hour,
		MaxTraversalHops: 10,
	}
}

// DefaultMonitorConfig returns default SPOF scan settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:          15 * time.Minute,
		HighRiskThreshold: 80,
		ScanTimeout:       2 * time.Minute,
		RestoreOnStart:    true,
	}
}

// DefaultVerifierConfig returns default edge validation settings.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		FreshnessWindow: 7 * 24 * time.Hour,
		HighConfidence:  0.8,
		LowConfidence:   0.4,
		MinSources:      2,
		DecayRate:       0.1,
		DecayAfterDays:  14,
		StaleAfterDays:  30,
	}
}

// DefaultHistoryConfig keeps snapshots in a local JSONL ledger.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:  "file",
		RedisKey: "faultline:spof:history",
		Retain:   500,
	}
}
