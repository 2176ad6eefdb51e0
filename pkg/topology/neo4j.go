package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// Neo4jStore reads the topology from (:Resource)-[:DEPENDS_ON]->(:Resource) graphs.
//
// Edge properties: confidence (float), sources (string list), evidence (JSON map
// keyed by source name), first_seen and last_seen (epoch milliseconds).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	maxDepth int
	logger   *slog.Logger
}

type Neo4jOption func(*Neo4jStore)

func WithNeo4jLogger(l *slog.Logger) Neo4jOption {
	return func(s *Neo4jStore) { s.logger = l }
}

// NewNeo4jStore connects and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg config.Neo4jConfig, opts ...Neo4jOption) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionLifetime = 5 * time.Minute
			c.MaxConnectionPoolSize = 50
			c.ConnectionAcquisitionTimeout = 10 * time.Second
		},
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j driver init failed: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}
	return NewNeo4jStoreWithDriver(driver, cfg, opts...), nil
}

// NewNeo4jStoreWithDriver wraps an existing driver.
func NewNeo4jStoreWithDriver(driver neo4j.DriverWithContext, cfg config.Neo4jConfig, opts ...Neo4jOption) *Neo4jStore {
	s := &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		maxDepth: cfg.MaxDepth,
		logger:   slog.Default(),
	}
	if s.maxDepth <= 0 {
		s.maxDepth = 10
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithWritersRouting())
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

const resourceProjection = `
OPTIONAL MATCH (d:Resource)-[:DEPENDS_ON]->(r)
WITH r, count(DISTINCT d) AS dependents
OPTIONAL MATCH (r)-[:DEPENDS_ON]->(t:Resource)
RETURN r.id AS id, r.name AS name, r.type AS type,
       coalesce(r.has_redundancy, false) AS has_redundancy,
       r.is_spof AS is_spof,
       coalesce(r.deployment_failure_rate, 0.0) AS failure_rate,
       r.last_changed_at AS last_changed_at,
       dependents, count(DISTINCT t) AS dependencies
ORDER BY id`

func (s *Neo4jStore) ListResources(ctx context.Context) ([]resource.Resource, error) {
	records, err := s.read(ctx, "MATCH (r:Resource)"+resourceProjection, nil)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	out := make([]resource.Resource, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToResource(rec))
	}
	return out, nil
}

func (s *Neo4jStore) GetResource(ctx context.Context, id string) (resource.Resource, error) {
	records, err := s.read(ctx, "MATCH (r:Resource {id: $id})"+resourceProjection, map[string]any{"id": id})
	if err != nil {
		return resource.Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	if len(records) == 0 {
		return resource.Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recordToResource(records[0]), nil
}

func (s *Neo4jStore) AffectedResources(ctx context.Context, id string) ([]resource.AffectedResource, []resource.AffectedResource, error) {
	query := fmt.Sprintf(`
MATCH (root:Resource {id: $id})
OPTIONAL MATCH p = (d:Resource)-[:DEPENDS_ON*1..%d]->(root)
WHERE d <> root
WITH root, d, min(length(p)) AS distance
RETURN root.id AS root, d.id AS id, d.name AS name, d.type AS type, distance
ORDER BY distance, id`, s.maxDepth)

	records, err := s.read(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, nil, fmt.Errorf("affected resources of %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	direct, indirect := splitAffected(records)
	return direct, indirect, nil
}

func (s *Neo4jStore) FindCriticalPath(ctx context.Context, id string) ([]string, error) {
	query := fmt.Sprintf(`
MATCH (root:Resource {id: $id})
OPTIONAL MATCH p = (d:Resource)-[:DEPENDS_ON*1..%d]->(root)
WITH root, p, d
ORDER BY CASE WHEN p IS NULL THEN 0 ELSE length(p) END DESC, d.id ASC
LIMIT 1
RETURN root.id AS root,
       CASE WHEN p IS NULL THEN [] ELSE [n IN reverse(nodes(p)) | n.id] END AS path`, s.maxDepth)

	records, err := s.read(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("critical path of %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := stringSlice(get(records[0], "path"))
	if len(path) == 0 {
		path = []string{id}
	}
	return path, nil
}

const dependencyProjection = `
RETURN s.id AS source, t.id AS target,
       coalesce(r.confidence, 0.0) AS confidence,
       r.evidence AS evidence, r.first_seen AS first_seen, r.last_seen AS last_seen`

func (s *Neo4jStore) GetDependency(ctx context.Context, sourceID, targetID string) (resource.Dependency, bool, error) {
	records, err := s.read(ctx,
		"MATCH (s:Resource {id: $source})-[r:DEPENDS_ON]->(t:Resource {id: $target})"+dependencyProjection,
		map[string]any{"source": sourceID, "target": targetID})
	if err != nil {
		return resource.Dependency{}, false, fmt.Errorf("get dependency %s -> %s: %w", sourceID, targetID, err)
	}
	if len(records) == 0 {
		return resource.Dependency{}, false, nil
	}
	dep, err := recordToDependency(records[0])
	if err != nil {
		return resource.Dependency{}, false, err
	}
	return dep, true, nil
}

func (s *Neo4jStore) ListDependencies(ctx context.Context) ([]resource.Dependency, error) {
	records, err := s.read(ctx,
		"MATCH (s:Resource)-[r:DEPENDS_ON]->(t:Resource)"+dependencyProjection+"\nORDER BY source, target", nil)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	out := make([]resource.Dependency, 0, len(records))
	for _, rec := range records {
		dep, err := recordToDependency(rec)
		if err != nil {
			s.logger.Warn("skipping malformed dependency", "error", err)
			continue
		}
		out = append(out, dep)
	}
	return out, nil
}

func (s *Neo4jStore) UpdateConfidence(ctx context.Context, sourceID, targetID string, confidence float64) error {
	records, err := s.write(ctx, `
MATCH (:Resource {id: $source})-[r:DEPENDS_ON]->(:Resource {id: $target})
SET r.confidence = $confidence
RETURN count(r) AS updated`,
		map[string]any{"source": sourceID, "target": targetID, "confidence": resource.ClampUnit(confidence)})
	if err != nil {
		return fmt.Errorf("update confidence %s -> %s: %w", sourceID, targetID, err)
	}
	if len(records) == 0 || asInt(get(records[0], "updated")) == 0 {
		return fmt.Errorf("%w: edge %s -> %s", ErrNotFound, sourceID, targetID)
	}
	return nil
}

// RecordEvidence merges an observation inside one write transaction.
func (s *Neo4jStore) RecordEvidence(ctx context.Context, ev resource.Evidence) error {
	if ev.SourceID == "" || ev.TargetID == "" {
		return fmt.Errorf("evidence from %s is missing an endpoint", ev.Source)
	}
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now().UTC()
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		params := map[string]any{"source": ev.SourceID, "target": ev.TargetID}
		res, err := tx.Run(ctx, `
MERGE (s:Resource {id: $source}) ON CREATE SET s.type = 'unknown'
MERGE (t:Resource {id: $target}) ON CREATE SET t.type = 'unknown'
MERGE (s)-[r:DEPENDS_ON]->(t)`+dependencyProjection, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		dep, err := recordToDependency(rec)
		if err != nil {
			return nil, err
		}
		dep.Merge(ev)

		encoded, err := json.Marshal(dep.Evidence)
		if err != nil {
			return nil, err
		}
		params["confidence"] = dep.Confidence
		params["evidence"] = string(encoded)
		params["sources"] = dep.Sources()
		params["first_seen"] = toMillis(dep.FirstSeen)
		params["last_seen"] = toMillis(dep.LastSeen)

		_, err = tx.Run(ctx, `
MATCH (:Resource {id: $source})-[r:DEPENDS_ON]->(:Resource {id: $target})
SET r.confidence = $confidence, r.evidence = $evidence, r.sources = $sources,
    r.first_seen = $first_seen, r.last_seen = $last_seen`, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record evidence %s -> %s: %w", ev.SourceID, ev.TargetID, err)
	}
	return nil
}

// ImportFixture upserts every resource and dependency of a YAML fixture.
func (s *Neo4jStore) ImportFixture(ctx context.Context, fx graph.Fixture) error {
	for _, r := range fx.Resources {
		params := map[string]any{
			"id":              r.ID,
			"name":            r.Name,
			"type":            string(resource.NormalizeType(r.Type)),
			"has_redundancy":  r.HasRedundancy,
			"failure_rate":    r.FailureRate,
			"last_changed_at": toMillis(r.LastChangedAt),
			"is_spof":         nil,
		}
		if r.IsSPOF != nil {
			params["is_spof"] = *r.IsSPOF
		}
		if _, err := s.write(ctx, `
MERGE (r:Resource {id: $id})
SET r.name = $name, r.type = $type, r.has_redundancy = $has_redundancy,
    r.deployment_failure_rate = $failure_rate, r.last_changed_at = $last_changed_at,
    r.is_spof = $is_spof`, params); err != nil {
			return fmt.Errorf("import resource %s: %w", r.ID, err)
		}
	}

	for _, d := range fx.Dependencies {
		if len(d.Evidence) == 0 {
			if _, err := s.write(ctx, `
MERGE (s:Resource {id: $source}) ON CREATE SET s.type = 'unknown'
MERGE (t:Resource {id: $target}) ON CREATE SET t.type = 'unknown'
MERGE (s)-[:DEPENDS_ON]->(t)`, map[string]any{"source": d.Source, "target": d.Target}); err != nil {
				return fmt.Errorf("import dependency %s -> %s: %w", d.Source, d.Target, err)
			}
			continue
		}
		for _, ev := range d.Evidence {
			err := s.RecordEvidence(ctx, resource.Evidence{
				Source:     ev.Source,
				SourceID:   d.Source,
				TargetID:   d.Target,
				Confidence: ev.Confidence,
				Items:      ev.Items,
				DetectedAt: ev.SeenAt,
			})
			if err != nil {
				return err
			}
		}
	}
	s.logger.Info("imported topology fixture", "resources", len(fx.Resources), "dependencies", len(fx.Dependencies))
	return nil
}
