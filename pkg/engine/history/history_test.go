package history

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

var t0 = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func snap(hour, total, highRisk int, byType map[string]int) spof.Snapshot {
	s := spof.Snapshot{
		Timestamp:      t0.Add(time.Duration(hour) * time.Hour),
		TotalCount:     total,
		HighRiskCount:  highRisk,
		ByResourceType: byType,
	}
	for i := 0; i < total; i++ {
		s.SPOFs = append(s.SPOFs, spof.Entry{ResourceID: fmt.Sprintf("r-%d", i)})
	}
	return s
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	empty, err := b.Load(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 6; i++ {
		require.NoError(t, b.Append(ctx, snap(i, i, 0, nil)))
	}

	last3, err := b.Load(ctx, 3)
	require.NoError(t, err)
	require.Len(t, last3, 3)
	assert.Equal(t, 3, last3[0].TotalCount)
	assert.Equal(t, 5, last3[2].TotalCount)

	l := NewLedger(b, nil)
	latest, ok, err := l.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, latest.TotalCount)
	assert.True(t, latest.Timestamp.Equal(t0.Add(5*time.Hour)))
}

func TestFileBackend(t *testing.T) {
	exerciseBackend(t, NewLocalBackend(filepath.Join(t.TempDir(), "ledger.jsonl"), 0))
}

func TestFileBackend_Retention(t *testing.T) {
	b := NewLocalBackend(filepath.Join(t.TempDir(), "nested", "ledger.jsonl"), 2)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Append(ctx, snap(i, i, 0, nil)))
	}
	all, err := readLines(b.Path)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(all), 4)
	assert.Equal(t, 9, all[len(all)-1].TotalCount)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseBackend(t, NewRedisBackendWithClient(client, "", 0))

	capped := NewRedisBackendWithClient(client, "capped", 3)
	for i := 0; i < 7; i++ {
		require.NoError(t, capped.Append(context.Background(), snap(i, i, 0, nil)))
	}
	n, err := client.LLen(context.Background(), "capped").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, capped.Ping(context.Background()))
}

func TestNewRedisBackend_BadURL(t *testing.T) {
	_, err := NewRedisBackend("not a url", "", 0)
	assert.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	exerciseBackend(t, &S3Backend{Bucket: "ledger", Key: "spof.jsonl", Client: &fakeS3{}})

	capped := &S3Backend{Bucket: "ledger", Key: "capped.jsonl", Retain: 2, Client: &fakeS3{}}
	for i := 0; i < 5; i++ {
		require.NoError(t, capped.Append(context.Background(), snap(i, i, 0, nil)))
	}
	all, err := capped.Load(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://team-bucket/faultline/history.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "team-bucket", bucket)
	assert.Equal(t, "faultline/history.jsonl", key)

	_, key, err = ParseS3URL("s3://team-bucket")
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	_, _, err = ParseS3URL("https://example.com/x")
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	assert.Equal(t, Trend{}, Analyze(nil))

	single := Analyze([]spof.Snapshot{snap(0, 4, 1, map[string]int{"database": 4})})
	assert.Equal(t, 4, single.Current)
	assert.Equal(t, PatternUnknown, single.Composition)

	growing := Analyze([]spof.Snapshot{
		snap(0, 2, 0, map[string]int{"database": 2}),
		snap(1, 3, 0, map[string]int{"database": 3}),
		snap(2, 6, 2, map[string]int{"database": 5, "queue": 1}),
	})
	assert.InDelta(t, 3.0, growing.Velocity, 1e-9)
	assert.InDelta(t, 2.0, growing.Acceleration, 1e-9)
	assert.Equal(t, 3, growing.Churn)
	assert.Greater(t, growing.Projected24h, 6.0)
	assert.Len(t, growing.Alerts, 2)

	stable := Analyze([]spof.Snapshot{
		snap(0, 4, 0, map[string]int{"database": 2, "cache": 2}),
		snap(1, 4, 0, map[string]int{"database": 2, "cache": 2}),
	})
	assert.Equal(t, PatternStable, stable.Composition)
	assert.InDelta(t, 0, stable.ShiftScore, 1e-9)
	assert.Empty(t, stable.Alerts)

	shifted := Analyze([]spof.Snapshot{
		snap(0, 4, 0, map[string]int{"database": 4}),
		snap(1, 4, 0, map[string]int{"vnet": 4}),
	})
	assert.Equal(t, PatternShift, shifted.Composition)
	assert.Contains(t, shifted.Alerts[0], "COMPOSITION SHIFT")
}

func TestLedgerTrends_Empty(t *testing.T) {
	l := NewLedger(NewLocalBackend(filepath.Join(t.TempDir(), "l.jsonl"), 0), nil)
	_, err := l.Trends(context.Background(), 10)
	assert.ErrorIs(t, err, ErrEmptyLedger)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity(Vector{1, 2}, Vector{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(Vector{1, 0}, Vector{0, 1}), 1e-9)
	assert.Equal(t, 1.0, CosineSimilarity(Vector{0, 0}, Vector{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(Vector{0, 0}, Vector{1, 0}))
}
