package topology

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/resource"
)

func record(kv map[string]any) *neo4j.Record {
	rec := &neo4j.Record{}
	for k, v := range kv {
		rec.Keys = append(rec.Keys, k)
		rec.Values = append(rec.Values, v)
	}
	return rec
}

func TestRecordToResource_DerivesSPOF(t *testing.T) {
	r := recordToResource(record(map[string]any{
		"id": "orders-db", "name": "Orders", "type": "Database",
		"has_redundancy": false, "is_spof": nil,
		"failure_rate": 0.1, "last_changed_at": int64(1772445600000),
		"dependents": int64(3), "dependencies": int64(1),
	}))

	assert.Equal(t, "orders-db", r.ID)
	assert.Equal(t, resource.Type("database"), r.Type)
	assert.Equal(t, 3, r.DependentsCount)
	assert.Equal(t, 1, r.DependencyCount)
	assert.True(t, r.IsSPOF)
	assert.Equal(t, time.UnixMilli(1772445600000).UTC(), r.LastChangedAt)

	explicit := recordToResource(record(map[string]any{
		"id": "x", "type": "vnet", "is_spof": false, "dependents": int64(4),
	}))
	assert.False(t, explicit.IsSPOF)
}

func TestRecordToDependency(t *testing.T) {
	dep, err := recordToDependency(record(map[string]any{
		"source": "api", "target": "db", "confidence": 0.9,
		"evidence":   `{"trace":{"confidence":0.9,"detected_at":"2026-03-02T10:00:00Z"}}`,
		"first_seen": int64(1772445600000), "last_seen": int64(1772445600000),
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"trace"}, dep.Sources())
	assert.Equal(t, 0.9, dep.Confidence)
	assert.False(t, dep.LastSeen.IsZero())

	unseen, err := recordToDependency(record(map[string]any{
		"source": "a", "target": "b", "confidence": 0.0, "evidence": nil, "first_seen": nil, "last_seen": nil,
	}))
	require.NoError(t, err)
	assert.True(t, unseen.LastSeen.IsZero())
	assert.Empty(t, unseen.Sources())

	_, err = recordToDependency(record(map[string]any{"source": "a", "target": "b", "evidence": "{"}))
	assert.Error(t, err)
}

func TestSplitAffected(t *testing.T) {
	direct, indirect := splitAffected([]*neo4j.Record{
		record(map[string]any{"root": "db", "id": "api", "name": "API", "type": "api_gateway", "distance": int64(1)}),
		record(map[string]any{"root": "db", "id": "web", "type": nil, "distance": int64(2)}),
	})
	require.Len(t, direct, 1)
	require.Len(t, indirect, 1)
	assert.Equal(t, "api", direct[0].ID)
	assert.Equal(t, 2, indirect[0].Distance)
	assert.Equal(t, resource.Type(""), indirect[0].Type)

	// Root without dependents.
	direct, indirect = splitAffected([]*neo4j.Record{record(map[string]any{"root": "db", "id": nil, "distance": nil})})
	assert.Empty(t, direct)
	assert.Empty(t, indirect)
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now, fromMillis(toMillis(now)))
	assert.Nil(t, toMillis(time.Time{}))
	assert.True(t, fromMillis(nil).IsZero())
	assert.Equal(t, []string{"a", "b"}, stringSlice([]any{"a", 1, "b"}))
}
