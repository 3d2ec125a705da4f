package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ai-playground/internal/domain"
)

const (
	skPrefixActivity = "ACT#"
	skMeta           = "META#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Dynamo.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Dynamo stores activity in a single DynamoDB table keyed by session.
type Dynamo struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
}

func NewDynamo(api dynamodbAPI, tableName string, ttl time.Duration) (*Dynamo, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Dynamo{api: api, tableName: tableName, ttl: ttl}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func activitySK(a domain.Activity) string {
	return skPrefixActivity + a.CreatedAt.Format(time.RFC3339Nano) + "#" + string(a.Feature)
}

func (d *Dynamo) ttlValue(now time.Time) int64 {
	return now.Add(d.ttl).Unix()
}

// Record writes the activity and bumps the session's activity counter in one
// transaction.
func (d *Dynamo) Record(ctx context.Context, a domain.Activity) error {
	if a.SessionID == "" {
		return ErrSessionID
	}
	a = stamp(a)
	pk := sessionPK(a.SessionID)
	ttl := strconv.FormatInt(d.ttlValue(a.CreatedAt), 10)

	_, err := d.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(d.tableName),
					Item:                activityItem(a, pk, ttl),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(d.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: pk},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("ADD activities :one SET lastActivity = :at, lastFeature = :feature, #ttl = :ttl"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one":     &types.AttributeValueMemberN{Value: "1"},
						":at":      &types.AttributeValueMemberS{Value: a.CreatedAt.Format(time.RFC3339)},
						":feature": &types.AttributeValueMemberS{Value: string(a.Feature)},
						":ttl":     &types.AttributeValueMemberN{Value: ttl},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Record: %w", err)
	}
	return nil
}

// List queries ACT# items newest first, then returns them chronologically.
func (d *Dynamo) List(ctx context.Context, sessionID string, limit int) ([]domain.Activity, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixActivity},
		},
		// Read newest first so LIMIT favors the most recent activity.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := d.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: List query: %w", err)
	}

	acts := make([]domain.Activity, 0, len(out.Items))
	for _, item := range out.Items {
		a, err := itemToActivity(item)
		if err != nil {
			return nil, fmt.Errorf("repository: List unmarshal: %w", err)
		}
		acts = append(acts, a)
	}
	for i, j := 0, len(acts)-1; i < j; i, j = i+1, j-1 {
		acts[i], acts[j] = acts[j], acts[i]
	}
	return acts, nil
}

// Count returns the number of recorded activities for a session.
func (d *Dynamo) Count(ctx context.Context, sessionID string) (int, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: Count get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	n, err := intAttr(out.Item, "activities")
	if err != nil {
		return 0, fmt.Errorf("repository: Count decode activities: %w", err)
	}
	return n, nil
}

func activityItem(a domain.Activity, pk, ttl string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pk},
		"SK":        &types.AttributeValueMemberS{Value: activitySK(a)},
		"sessionId": &types.AttributeValueMemberS{Value: a.SessionID},
		"feature":   &types.AttributeValueMemberS{Value: string(a.Feature)},
		"input":     &types.AttributeValueMemberS{Value: a.Input},
		"output":    &types.AttributeValueMemberS{Value: a.Output},
		"createdAt": &types.AttributeValueMemberS{Value: a.CreatedAt.Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: ttl},
	}
}

// itemToActivity converts a DynamoDB attribute map to an Activity.
func itemToActivity(item map[string]types.AttributeValue) (domain.Activity, error) {
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Activity{}, err
	}
	feature, err := strAttr(item, "feature")
	if err != nil {
		return domain.Activity{}, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Activity{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	input, _ := strAttr(item, "input")   // allow empty
	output, _ := strAttr(item, "output") // allow empty

	return domain.Activity{
		SessionID: sessionID,
		Feature:   domain.Feature(feature),
		Input:     input,
		Output:    output,
		CreatedAt: at,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
