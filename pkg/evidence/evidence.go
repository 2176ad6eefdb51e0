// Package evidence implements the dependency detectors fed to the verifier's collector.
package evidence

import (
	"fmt"
	"log/slog"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

var (
	_ verify.Source = (*TerraformStateSource)(nil)
	_ verify.Source = (*HCLSource)(nil)
	_ verify.Source = (*KubernetesSource)(nil)
	_ verify.Source = (*PrometheusSource)(nil)
)

// FromConfig builds the enabled sources. s3 is used for remote terraform state and may be nil.
func FromConfig(cfg config.EvidenceConfig, s3 S3Getter, logger *slog.Logger) ([]verify.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sources []verify.Source
	if cfg.TerraformState != "" {
		sources = append(sources, NewTerraformStateSource(cfg.TerraformState, s3))
	}
	if cfg.HCLDir != "" {
		sources = append(sources, NewHCLSource(cfg.HCLDir))
	}
	if cfg.Kubeconfig != "" {
		client, err := NewKubernetesClient(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		sources = append(sources, NewKubernetesSource(client, cfg.KubeNamespace))
	}
	if cfg.PrometheusURL != "" {
		src, err := NewPrometheusSource(cfg.PrometheusURL, logger)
		if err != nil {
			return nil, fmt.Errorf("prometheus source: %w", err)
		}
		sources = append(sources, src)
	}
	logger.Debug("evidence sources configured", "count", len(sources))
	return sources, nil
}
