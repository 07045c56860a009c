package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ktwhotel/concierge/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoItem is the stored shape: tenantId is the partition key and userId
// the sort key, so one Query lists a tenant.
type dynamoItem struct {
	TenantID  string `dynamodbav:"tenantId"`
	UserID    string `dynamodbav:"userId"`
	State     string `dynamodbav:"state"`
	Data      string `dynamodbav:"data"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoBackend stores sessions in DynamoDB for the serverless deployment.
type DynamoBackend struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// NewDynamoBackend builds a DynamoDB session backend.
func NewDynamoBackend(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoBackend {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoBackend{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func dynamoKey(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"tenantId": &types.AttributeValueMemberS{Value: key.TenantID},
		"userId":   &types.AttributeValueMemberS{Value: key.UserID},
	}
}

func (b *DynamoBackend) Get(ctx context.Context, key Key) (*Session, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session: failed to fetch session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Decode([]byte(item.Data))
}

func (b *DynamoBackend) Put(ctx context.Context, s *Session) error {
	now := b.now()
	s.UpdatedAt = now
	data, err := Encode(s)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		State:     string(s.State),
		Data:      string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: b.expiresAt(now),
	})
	if err != nil {
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (b *DynamoBackend) Delete(ctx context.Context, key Key) error {
	if _, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.tableName),
		Key:       dynamoKey(key),
	}); err != nil {
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	return nil
}

func (b *DynamoBackend) List(ctx context.Context, tenantID string) ([]*Session, error) {
	var (
		out      []*Session
		startKey map[string]types.AttributeValue
	)
	for {
		page, err := b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(b.tableName),
			KeyConditionExpression: aws.String("tenantId = :tenant"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tenant": &types.AttributeValueMemberS{Value: tenantID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("session: failed to query sessions: %w", err)
		}
		for _, raw := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				b.logger.Warn("skipping undecodable session item", "error", err)
				continue
			}
			s, err := Decode([]byte(item.Data))
			if err != nil {
				s = Unreadable(Key{TenantID: tenantID, UserID: item.UserID})
			}
			out = append(out, s)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// expiresAt is zero, and so omitted, unless a ttl was configured.
func (b *DynamoBackend) expiresAt(now time.Time) int64 {
	if b.ttl <= 0 {
		return 0
	}
	return now.Add(b.ttl).Unix()
}
