package accuracy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps one item per prediction, keyed by "id".
type DynamoStore struct {
	client DynamoAPI
	table  string
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// NewDynamoStoreFromConfig builds the client from an SDK config.
func NewDynamoStoreFromConfig(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// EnsureTable creates the table on first use and waits until it is active.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS}},
		KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
		BillingMode:          types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", s.table, err)
	}
	return nil
}

func (s *DynamoStore) Put(ctx context.Context, p Prediction) error {
	item, err := toItem(p)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", p.ID, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (Prediction, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("dynamodb get %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return Prediction{}, fmt.Errorf("%w: %s", ErrPredictionNotFound, id)
	}
	return fromItem(out.Item)
}

// List scans the table; filtering happens client-side.
func (s *DynamoStore) List(ctx context.Context, f Filter) ([]Prediction, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: aws.String(s.table)})

	var out []Prediction
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", s.table, err)
		}
		var batch []Prediction
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal predictions: %w", err)
		}
		for _, p := range batch {
			if p.Status == "" {
				p.Status = StatusPending
			}
			if f.Match(p) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func toItem(p Prediction) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction %s: %w", p.ID, err)
	}
	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (Prediction, error) {
	var p Prediction
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return Prediction{}, fmt.Errorf("unmarshal prediction: %w", err)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return p, nil
}
