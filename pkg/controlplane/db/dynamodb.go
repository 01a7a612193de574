package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBConfig names the tables backing the store. The runs table is
// keyed by run_id and the tokens table by digest, both string hash keys.
type DynamoDBConfig struct {
	RunsTable   string
	TokensTable string
}

// DynamoDB is a DB backed by two DynamoDB tables. Run updates are
// conditional on the stored version attribute.
type DynamoDB struct {
	client DynamoDBAPI
	cfg    DynamoDBConfig
}

var _ DB = (*DynamoDB)(nil)

// NewDynamoDB creates a store backed by a real DynamoDB client.
func NewDynamoDB(awsCfg awssdk.Config, cfg DynamoDBConfig) (*DynamoDB, error) {
	return NewDynamoDBWithClient(dynamodb.NewFromConfig(awsCfg), cfg)
}

// NewDynamoDBWithClient creates a store with an injected client.
func NewDynamoDBWithClient(client DynamoDBAPI, cfg DynamoDBConfig) (*DynamoDB, error) {
	if cfg.RunsTable == "" || cfg.TokensTable == "" {
		return nil, fmt.Errorf("runs and tokens table names are required")
	}
	return &DynamoDB{client: client, cfg: cfg}, nil
}

func (d *DynamoDB) CreateRun(ctx context.Context, record *RunRecord) error {
	stored := record.Clone()
	stored.Version = 1
	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", record.RunID, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           awssdk.String(d.cfg.RunsTable),
		Item:                item,
		ConditionExpression: awssdk.String("attribute_not_exists(run_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("run %s: %w", record.RunID, ErrAlreadyExists)
		}
		return fmt.Errorf("put run %s: %w", record.RunID, err)
	}
	record.Version = 1
	return nil
}

func (d *DynamoDB) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: awssdk.String(d.cfg.RunsTable),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
		ConsistentRead: awssdk.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	var run RunRecord
	if err := attributevalue.UnmarshalMap(out.Item, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

func (d *DynamoDB) UpdateRun(ctx context.Context, record *RunRecord) error {
	stored := record.Clone()
	stored.Version = record.Version + 1
	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", record.RunID, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           awssdk.String(d.cfg.RunsTable),
		Item:                item,
		ConditionExpression: awssdk.String("attribute_exists(run_id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(record.Version, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return fmt.Errorf("run %s: %w", record.RunID, ErrNotFound)
			}
			return fmt.Errorf("run %s at version %d: %w", record.RunID, record.Version, ErrConcurrentUpdate)
		}
		return fmt.Errorf("put run %s: %w", record.RunID, err)
	}
	record.Version = stored.Version
	return nil
}

func (d *DynamoDB) ListRuns(ctx context.Context, statuses ...RunStatus) ([]*RunRecord, error) {
	input := &dynamodb.ScanInput{
		TableName:      awssdk.String(d.cfg.RunsTable),
		ConsistentRead: awssdk.Bool(true),
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		values := make(map[string]types.AttributeValue, len(statuses))
		for i, s := range statuses {
			key := fmt.Sprintf(":s%d", i)
			placeholders[i] = key
			values[key] = &types.AttributeValueMemberS{Value: string(s)}
		}
		// status is a reserved word.
		input.FilterExpression = awssdk.String("#status IN (" + strings.Join(placeholders, ", ") + ")")
		input.ExpressionAttributeNames = map[string]string{"#status": "status"}
		input.ExpressionAttributeValues = values
	}

	var runs []*RunRecord
	for {
		out, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		var page []*RunRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal runs: %w", err)
		}
		runs = append(runs, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sortRuns(runs)
	return runs, nil
}

func (d *DynamoDB) PutToken(ctx context.Context, record *TokenRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           awssdk.String(d.cfg.TokensTable),
		Item:                item,
		ConditionExpression: awssdk.String("attribute_not_exists(digest)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("token: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

func (d *DynamoDB) GetToken(ctx context.Context, digest string) (*TokenRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: awssdk.String(d.cfg.TokensTable),
		Key: map[string]types.AttributeValue{
			"digest": &types.AttributeValueMemberS{Value: digest},
		},
		ConsistentRead: awssdk.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	var tok TokenRecord
	if err := attributevalue.UnmarshalMap(out.Item, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &tok, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (d *DynamoDB) Close() error {
	return nil
}
