package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// DefaultServiceGraphQuery reads the service graph generated from traces (Tempo / OTel collector).
const DefaultServiceGraphQuery = `sum by (client, server) (rate(traces_service_graph_request_total[1h])) > 0`

// PrometheusSource reports observed calls between services: client depends on server.
type PrometheusSource struct {
	API         v1.API
	Query       string
	ClientLabel model.LabelName
	ServerLabel model.LabelName
	logger      *slog.Logger
	now         func() time.Time
}

// NewPrometheusSource connects to a Prometheus-compatible query endpoint.
func NewPrometheusSource(address string, logger *slog.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusSource{
		API:         v1.NewAPI(client),
		Query:       DefaultServiceGraphQuery,
		ClientLabel: "client",
		ServerLabel: "server",
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *PrometheusSource) Name() string { return resource.SourceMetrics }

func (s *PrometheusSource) Collect(ctx context.Context) ([]resource.Evidence, error) {
	now := s.now()
	value, warnings, err := s.API.Query(ctx, s.Query, now)
	if err != nil {
		return nil, fmt.Errorf("service graph query: %w", err)
	}
	for _, w := range warnings {
		s.logger.Warn("prometheus query warning", "source", s.Name(), "warning", w)
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("service graph query returned %s, want vector", value.Type())
	}

	out := make([]resource.Evidence, 0, len(vector))
	for _, sample := range vector {
		client := string(sample.Metric[s.ClientLabel])
		server := string(sample.Metric[s.ServerLabel])
		rate := float64(sample.Value)
		if client == "" || server == "" || client == server || !(rate > 0) {
			continue
		}
		out = append(out, resource.Evidence{
			Source:     s.Name(),
			SourceID:   client,
			TargetID:   server,
			Confidence: RateConfidence(rate),
			Items:      []string{"rps=" + strconv.FormatFloat(rate, 'f', 2, 64)},
			DetectedAt: now,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

// RateConfidence grows from 0.6 towards 0.95 with the observed request rate.
func RateConfidence(rps float64) float64 {
	if !(rps > 0) {
		return 0
	}
	return math.Round((0.6+0.35*(1-math.Exp(-rps)))*1000) / 1000
}
