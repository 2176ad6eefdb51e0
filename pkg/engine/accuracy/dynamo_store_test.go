package accuracy

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo stores items by "id" and pages scans two at a time.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]map[string]types.AttributeValue{}
	}
	f.items[in.Item["id"].(*types.AttributeValueMemberS).Value] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[in.Key["id"].(*types.AttributeValueMemberS).Value]}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey["id"].(*types.AttributeValueMemberS).Value
		start = sort.SearchStrings(keys, last) + 1
	}
	end := min(start+2, len(keys))
	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: keys[end-1]}}
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusActive}}, nil
}

func TestDynamoStore_RoundTripThroughTracker(t *testing.T) {
	store := NewDynamoStore(&fakeDynamo{}, "predictions")
	tr := NewTracker(store)
	ctx := context.Background()

	p, err := tr.RecordPrediction(ctx, Input{ResourceID: "orders-db", FailureProbability: 0.65, Model: "baseline", Horizon: "24h"})
	require.NoError(t, err)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ResourceID, got.ResourceID)
	assert.Equal(t, 0.65, got.FailureProbability)
	assert.Equal(t, "24h", got.Horizon)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.ValidatedAt)

	v, err := tr.ValidatePrediction(ctx, p.ID, OutcomeFailed)
	require.NoError(t, err)
	got, err = store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, TruePositive, got.OutcomeType)
	require.NotNil(t, got.ValidatedAt)
	assert.True(t, v.ValidatedAt.Equal(*got.ValidatedAt))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPredictionNotFound)
}

func TestDynamoStore_ListPaginates(t *testing.T) {
	store := NewDynamoStore(&fakeDynamo{}, "predictions")
	tr := NewTracker(store)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := tr.RecordPrediction(ctx, Input{ResourceID: id, FailureProbability: 0.2})
		require.NoError(t, err)
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	one, err := store.List(ctx, Filter{ResourceID: "c"})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestDynamoStore_EnsureTable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, NewDynamoStore(&fakeDynamo{}, "predictions").EnsureTable(ctx))
}

func TestToItem_Shape(t *testing.T) {
	created := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	item, err := toItem(Prediction{ID: "p1", ResourceID: "orders-db", FailureProbability: 0.25, Status: StatusPending, CreatedAt: created})
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "p1"}, item["id"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "0.25"}, item["failure_probability"])
	assert.IsType(t, &types.AttributeValueMemberS{}, item["created_at"])
	for _, k := range []string{"model", "notes", "outcome", "outcome_type", "validated_at"} {
		assert.NotContains(t, item, k)
	}

	back, err := fromItem(item)
	require.NoError(t, err)
	assert.True(t, created.Equal(back.CreatedAt))
	assert.Nil(t, back.ValidatedAt)

	delete(item, "status")
	back, err = fromItem(item)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, back.Status)
}
