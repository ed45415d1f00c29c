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

	"document-assistant/internal/domain"
)

const (
	skMeta         = "META#"
	skPrefixTurn   = "TURN#"
	defaultTTL     = 30 * 24 * time.Hour
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores documents and their conversation logs in a single DynamoDB
// table. It is used when the process memory is not shared between requests,
// as on Lambda.
//
// Layout: PK=DOC#<id>; SK=META# holds the document, SK=TURN#<time>#<uuid>
// holds one turn each. Items expire through the table's ttl attribute.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
}

// New creates a new repository Client. A non-positive ttl selects 30 days.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl}, nil
}

func docPK(documentID string) string {
	return "DOC#" + documentID
}

// turnSK sorts chronologically; the uuid suffix keeps concurrent appends
// with equal timestamps distinct.
func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(sortTimeLayout) + "#" + newID()
}

func (c *Client) ttlValue() int64 {
	return time.Now().Add(c.ttl).Unix()
}

// CreateDocument writes the document record with a conditional put so an id
// is never reused.
func (c *Client) CreateDocument(ctx context.Context, content, filename string) (string, error) {
	for i := 0; i < maxCreateAttempts; i++ {
		id := newID()
		_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(c.tableName),
			Item:                documentItem(domain.Document{ID: id, Filename: filename, Content: content}, c.ttlValue()),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		if err == nil {
			return id, nil
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return "", fmt.Errorf("repository: CreateDocument: %w", err)
		}
	}
	return "", errors.New("repository: CreateDocument: could not allocate a unique document id")
}

// GetDocument treats records past their ttl as absent, since DynamoDB
// deletes expired items lazily.
func (c *Client) GetDocument(ctx context.Context, id string) (domain.Document, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: docPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("repository: GetDocument get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Document{}, false, nil
	}
	if expired(out.Item) {
		return domain.Document{}, false, nil
	}

	doc, err := itemToDocument(out.Item)
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("repository: GetDocument unmarshal: %w", err)
	}
	return doc, true, nil
}

// AppendTurn writes the turn only if the document record exists. An unknown
// id is a no-op.
func (c *Client) AppendTurn(ctx context.Context, id string, turn domain.Turn) error {
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				ConditionCheck: &types.ConditionCheck{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: docPK(id)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                turnItem(id, turn, c.ttlValue()),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		if documentMissing(err) {
			return nil
		}
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// GetHistory queries all TURN# items for a document in chronological order.
func (c *Client) GetHistory(ctx context.Context, id string) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: docPK(id)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	turns := []domain.Turn{}
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory query: %w", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return turns, nil
}

// documentMissing reports whether a cancelled transaction failed on the
// document existence check.
func documentMissing(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) == 0 {
		return false
	}
	code := tce.CancellationReasons[0].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func expired(item map[string]types.AttributeValue) bool {
	ttl, err := intAttr(item, "ttl")
	if err != nil || ttl == 0 {
		return false
	}
	return int64(ttl) < time.Now().Unix()
}

func documentItem(doc domain.Document, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: docPK(doc.ID)},
		"SK":         &types.AttributeValueMemberS{Value: skMeta},
		"documentId": &types.AttributeValueMemberS{Value: doc.ID},
		"filename":   &types.AttributeValueMemberS{Value: doc.Filename},
		"content":    &types.AttributeValueMemberS{Value: doc.Content},
		"createdAt":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		"ttl":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)},
	}
}

func turnItem(documentID string, turn domain.Turn, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: docPK(documentID)},
		"SK":            &types.AttributeValueMemberS{Value: turnSK(turn.Timestamp)},
		"question":      &types.AttributeValueMemberS{Value: turn.Question},
		"answer":        &types.AttributeValueMemberS{Value: turn.Answer},
		"sourceSnippet": &types.AttributeValueMemberS{Value: turn.SourceSnippet},
		"timestamp":     &types.AttributeValueMemberS{Value: turn.Timestamp.UTC().Format(time.RFC3339Nano)},
		"ttl":           &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)},
	}
}

func itemToDocument(item map[string]types.AttributeValue) (domain.Document, error) {
	id, err := strAttr(item, "documentId")
	if err != nil {
		return domain.Document{}, err
	}
	filename, err := strAttr(item, "filename")
	if err != nil {
		return domain.Document{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: id, Filename: filename, Content: content}, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Turn{}, err
	}
	answer, _ := strAttr(item, "answer")         // allow empty
	snippet, _ := strAttr(item, "sourceSnippet") // allow empty

	var ts time.Time
	if raw, err := strAttr(item, "timestamp"); err == nil {
		ts, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Turn{}, fmt.Errorf("repository: parse attribute %q: %w", "timestamp", err)
		}
	}
	return domain.Turn{
		Question:      question,
		Answer:        answer,
		SourceSnippet: snippet,
		Timestamp:     ts,
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
