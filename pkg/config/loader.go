package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const envPrefix = "FAULTLINE"

// Load reads configuration with priority order:
// 1. Environment variables (FAULTLINE_RISK_SPOF_MULTIPLIER, ...)
// 2. Configuration file (explicit path, $HOME/.faultline/faultline.yaml, ./faultline.yaml)
// 3. Default values
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("faultline")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".faultline"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes and validates the settings held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch cfg.Topology.Backend {
	case "memory":
	case "neo4j":
		if cfg.Topology.Neo4j.URI == "" {
			return fmt.Errorf("%w: topology.neo4j.uri is required for the neo4j backend", ErrInvalidConfig)
		}
	}
	switch cfg.History.Backend {
	case "s3":
		if cfg.History.S3URL == "" {
			return fmt.Errorf("%w: history.s3_url is required for the s3 backend", ErrInvalidConfig)
		}
	case "redis":
		if cfg.History.RedisURL == "" {
			return fmt.Errorf("%w: history.redis_url is required for the redis backend", ErrInvalidConfig)
		}
	}
	if cfg.Predictions.Backend == "dynamodb" && cfg.Predictions.Table == "" {
		return fmt.Errorf("%w: predictions.table is required for the dynamodb backend", ErrInvalidConfig)
	}
	return nil
}

// SetDefaults registers every key of d so environment overrides resolve.
func SetDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("topology.backend", d.Topology.Backend)
	v.SetDefault("topology.fixture_file", d.Topology.FixtureFile)
	v.SetDefault("topology.neo4j.uri", d.Topology.Neo4j.URI)
	v.SetDefault("topology.neo4j.username", d.Topology.Neo4j.Username)
	v.SetDefault("topology.neo4j.password", d.Topology.Neo4j.Password)
	v.SetDefault("topology.neo4j.database", d.Topology.Neo4j.Database)
	v.SetDefault("topology.neo4j.max_depth", d.Topology.Neo4j.MaxDepth)

	v.SetDefault("risk.spof_multiplier", d.Risk.SPOFMultiplier)
	v.SetDefault("risk.redundancy_multiplier", d.Risk.RedundancyMultiplier)
	v.SetDefault("risk.dependents_weight", d.Risk.DependentsWeight)
	v.SetDefault("risk.dependents_scale", d.Risk.DependentsScale)
	v.SetDefault("risk.dependency_weight", d.Risk.DependencyWeight)
	v.SetDefault("risk.dependency_cap", d.Risk.DependencyCap)
	v.SetDefault("risk.failure_rate_weight", d.Risk.FailureRateWeight)
	v.SetDefault("risk.change_recency_weight", d.Risk.ChangeRecencyWeight)
	v.SetDefault("risk.change_recency_window", d.Risk.ChangeRecencyWindow)

	v.SetDefault("impact.medium_threshold", d.Impact.MediumThreshold)
	v.SetDefault("impact.high_threshold", d.Impact.HighThreshold)
	v.SetDefault("impact.severe_threshold", d.Impact.SevereThreshold)
	v.SetDefault("impact.user_facing_types", d.Impact.UserFacingTypes)
	v.SetDefault("impact.base_downtime", d.Impact.BaseDowntime)
	v.SetDefault("impact.downtime_per_resource", d.Impact.DowntimePerHop)
	v.SetDefault("impact.max_downtime", d.Impact.MaxDowntime)
	v.SetDefault("impact.max_traversal_hops", d.Impact.MaxTraversalHops)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.high_risk_threshold", d.Monitor.HighRiskThreshold)
	v.SetDefault("monitor.scan_timeout", d.Monitor.ScanTimeout)
	v.SetDefault("monitor.restore_on_start", d.Monitor.RestoreOnStart)

	v.SetDefault("verifier.freshness_window", d.Verifier.FreshnessWindow)
	v.SetDefault("verifier.high_confidence", d.Verifier.HighConfidence)
	v.SetDefault("verifier.low_confidence", d.Verifier.LowConfidence)
	v.SetDefault("verifier.min_sources", d.Verifier.MinSources)
	v.SetDefault("verifier.decay_rate", d.Verifier.DecayRate)
	v.SetDefault("verifier.decay_after_days", d.Verifier.DecayAfterDays)
	v.SetDefault("verifier.stale_after_days", d.Verifier.StaleAfterDays)

	v.SetDefault("timecontext.timezone", d.TimeContext.Timezone)
	v.SetDefault("timecontext.calendar_file", d.TimeContext.CalendarFile)

	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.s3_url", d.History.S3URL)
	v.SetDefault("history.redis_url", d.History.RedisURL)
	v.SetDefault("history.redis_key", d.History.RedisKey)
	v.SetDefault("history.retain", d.History.Retain)

	v.SetDefault("predictions.backend", d.Predictions.Backend)
	v.SetDefault("predictions.table", d.Predictions.Table)

	v.SetDefault("notifier.slack_webhook", d.Notifier.SlackWebhook)
	v.SetDefault("notifier.channel", d.Notifier.Channel)
	v.SetDefault("policy.rules_file", d.Policy.RulesFile)

	v.SetDefault("evidence.terraform_state", d.Evidence.TerraformState)
	v.SetDefault("evidence.hcl_dir", d.Evidence.HCLDir)
	v.SetDefault("evidence.kubeconfig", d.Evidence.Kubeconfig)
	v.SetDefault("evidence.kube_namespace", d.Evidence.KubeNamespace)
	v.SetDefault("evidence.prometheus_url", d.Evidence.PrometheusURL)
	v.SetDefault("evidence.interval", d.Evidence.Interval)
	v.SetDefault("evidence.concurrency", d.Evidence.Concurrency)

	v.SetDefault("export.target", d.Export.Target)
	v.SetDefault("export.format", d.Export.Format)

	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.mode", d.API.Mode)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.sample_ratio", d.Telemetry.SampleRatio)
	v.SetDefault("telemetry.stdout", d.Telemetry.Stdout)

	v.SetDefault("aws.region", d.AWS.Region)
	v.SetDefault("aws.profile", d.AWS.Profile)
	v.SetDefault("aws.endpoint", d.AWS.Endpoint)
}
