package graph

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// Fixture is the YAML description of a topology.
type Fixture struct {
	Resources    []FixtureResource   `yaml:"resources"`
	Dependencies []FixtureDependency `yaml:"dependencies"`
}

type FixtureResource struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"`
	HasRedundancy bool              `yaml:"has_redundancy"`
	IsSPOF        *bool             `yaml:"is_spof"`
	FailureRate   float64           `yaml:"deployment_failure_rate"`
	LastChangedAt time.Time         `yaml:"last_changed_at"`
	Properties    map[string]string `yaml:"properties"`
}

type FixtureDependency struct {
	Source   string            `yaml:"source"`
	Target   string            `yaml:"target"`
	Evidence []FixtureEvidence `yaml:"evidence"`
}

type FixtureEvidence struct {
	Source     string    `yaml:"source"`
	Confidence float64   `yaml:"confidence"`
	Items      []string  `yaml:"items"`
	SeenAt     time.Time `yaml:"seen_at"`
}

// LoadFixtureFile builds a graph from a YAML file.
func LoadFixtureFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(f)
}

// LoadFixture decodes a fixture and ingests it through the builder pipeline.
func LoadFixture(r io.Reader) (*Graph, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode topology fixture: %w", err)
	}

	g := NewGraph()
	if err := g.Ingest(fx); err != nil {
		return nil, err
	}
	return g, nil
}

// Ingest queues every resource and dependency of fx and waits for the builder.
func (g *Graph) Ingest(fx Fixture) error {
	for i, r := range fx.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource #%d has no id", i)
		}
		g.AddResource(NodeSpec{
			ID:            r.ID,
			Name:          r.Name,
			Type:          r.Type,
			Properties:    r.Properties,
			HasRedundancy: r.HasRedundancy,
			SPOF:          r.IsSPOF,
			FailureRate:   r.FailureRate,
			LastChangedAt: r.LastChangedAt,
		})
	}

	for i, d := range fx.Dependencies {
		if d.Source == "" || d.Target == "" {
			return fmt.Errorf("dependency #%d is missing source or target", i)
		}
		if len(d.Evidence) == 0 {
			g.AddEdge(d.Source, d.Target)
			continue
		}
		for _, ev := range d.Evidence {
			g.AddEvidence(resource.Evidence{
				Source:     ev.Source,
				SourceID:   d.Source,
				TargetID:   d.Target,
				Confidence: ev.Confidence,
				Items:      ev.Items,
				DetectedAt: ev.SeenAt,
			})
		}
	}

	g.Sync()
	return nil
}
