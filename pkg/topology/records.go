package topology

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DrSkyle/faultline/pkg/resource"
)

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func recordToResource(rec *neo4j.Record) resource.Resource {
	r := resource.Resource{
		ID:                    asString(get(rec, "id")),
		Name:                  asString(get(rec, "name")),
		Type:                  resource.NormalizeType(asString(get(rec, "type"))),
		DependentsCount:       asInt(get(rec, "dependents")),
		DependencyCount:       asInt(get(rec, "dependencies")),
		HasRedundancy:         asBool(get(rec, "has_redundancy")),
		DeploymentFailureRate: asFloat(get(rec, "failure_rate")),
		LastChangedAt:         fromMillis(get(rec, "last_changed_at")),
	}
	if v, ok := get(rec, "is_spof").(bool); ok {
		r.IsSPOF = v
	} else {
		r.IsSPOF = r.DependentsCount > 0 && !r.HasRedundancy
	}
	return r
}

func recordToDependency(rec *neo4j.Record) (resource.Dependency, error) {
	dep := resource.Dependency{
		SourceID:   asString(get(rec, "source")),
		TargetID:   asString(get(rec, "target")),
		Confidence: resource.ClampUnit(asFloat(get(rec, "confidence"))),
		FirstSeen:  fromMillis(get(rec, "first_seen")),
		LastSeen:   fromMillis(get(rec, "last_seen")),
	}
	if raw := asString(get(rec, "evidence")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &dep.Evidence); err != nil {
			return dep, fmt.Errorf("edge %s -> %s has malformed evidence: %w", dep.SourceID, dep.TargetID, err)
		}
	}
	return dep, nil
}

// splitAffected turns (id, distance) rows into direct and indirect sets.
// A root without dependents yields a single row with a null id.
func splitAffected(records []*neo4j.Record) (direct, indirect []resource.AffectedResource) {
	for _, rec := range records {
		id := asString(get(rec, "id"))
		if id == "" {
			continue
		}
		ar := resource.AffectedResource{
			ID:       id,
			Name:     asString(get(rec, "name")),
			Type:     resource.Type(asString(get(rec, "type"))),
			Distance: asInt(get(rec, "distance")),
		}
		if ar.Type != "" {
			ar.Type = resource.NormalizeType(string(ar.Type))
		}
		if ar.Distance <= 1 {
			ar.Distance = 1
			direct = append(direct, ar)
		} else {
			indirect = append(indirect, ar)
		}
	}
	return direct, indirect
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v any) time.Time {
	switch n := v.(type) {
	case int64:
		if n == 0 {
			return time.Time{}
		}
		return time.UnixMilli(n).UTC()
	case time.Time:
		return n.UTC()
	}
	return time.Time{}
}
