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

	"portfolio-chat/internal/domain"
)

const (
	skState = "STATE"
	// DefaultTTL is how long an untouched session survives in the backing store.
	DefaultTTL = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps one item per session in a single table keyed by PK/SK.
// Expired items are removed by the table's TTL attribute "ttl".
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a session store over the given table.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func (c *DynamoStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// Load returns the stored session, or false when there is none.
func (c *DynamoStore) Load(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	// DynamoDB TTL deletion is lazy; treat elapsed items as gone.
	if exp, err := intAttr(out.Item, "ttl"); err == nil && int64(exp) <= c.now().Unix() {
		return domain.Session{}, false, nil
	}

	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Load decode: %w", err)
	}
	return s, true, nil
}

// Save replaces the session item. Concurrent writers race; the last one wins.
func (c *DynamoStore) Save(ctx context.Context, s domain.Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("repository: Save: session id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s, c.now().Add(c.ttl).Unix()),
	})
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

// Delete removes the session item; deleting a missing session is not an error.
func (c *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionItem(s domain.Session, ttl int64) map[string]types.AttributeValue {
	transcript := make([]types.AttributeValue, 0, len(s.Transcript))
	for _, m := range s.Transcript {
		transcript = append(transcript, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":    &types.AttributeValueMemberS{Value: m.Role},
			"content": &types.AttributeValueMemberS{Value: m.Content},
		}})
	}
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":              &types.AttributeValueMemberS{Value: skState},
		"sessionId":       &types.AttributeValueMemberS{Value: s.ID},
		"topic":           &types.AttributeValueMemberS{Value: string(s.Context.CurrentTopic)},
		"topicDepth":      &types.AttributeValueMemberN{Value: strconv.Itoa(s.Context.TopicDepth)},
		"lastInteraction": &types.AttributeValueMemberS{Value: s.Context.LastInteraction.UTC().Format(time.RFC3339Nano)},
		"history":         stringList(s.Context.History),
		"preferences":     stringList(s.Context.UserPreferences),
		"fallbackMode":    &types.AttributeValueMemberBOOL{Value: s.FallbackMode},
		"turns":           &types.AttributeValueMemberN{Value: strconv.Itoa(s.Turns)},
		"transcript":      &types.AttributeValueMemberL{Value: transcript},
		"updatedAt":       &types.AttributeValueMemberS{Value: s.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":             &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

// itemToSession converts a DynamoDB attribute map to a Session.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Session{}, err
	}
	topic, _ := strAttr(item, "topic") // allow empty
	depth, err := intAttr(item, "topicDepth")
	if err != nil {
		return domain.Session{}, err
	}
	last, err := timeAttr(item, "lastInteraction")
	if err != nil {
		return domain.Session{}, err
	}
	history, err := stringListAttr(item, "history")
	if err != nil {
		return domain.Session{}, err
	}
	prefs, err := stringListAttr(item, "preferences")
	if err != nil {
		return domain.Session{}, err
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return domain.Session{}, err
	}
	transcript, err := transcriptAttr(item, "transcript")
	if err != nil {
		return domain.Session{}, err
	}
	updated, _ := timeAttr(item, "updatedAt") // allow missing

	fallback := false
	if b, ok := item["fallbackMode"].(*types.AttributeValueMemberBOOL); ok {
		fallback = b.Value
	}

	return domain.Session{
		ID: id,
		Context: domain.ConversationContext{
			CurrentTopic:    domain.Intent(topic),
			TopicDepth:      depth,
			LastInteraction: last,
			History:         history,
			UserPreferences: prefs,
		},
		FallbackMode: fallback,
		Turns:        turns,
		Transcript:   transcript,
		UpdatedAt:    updated,
	}, nil
}

func stringList(values []string) *types.AttributeValueMemberL {
	out := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		out = append(out, &types.AttributeValueMemberS{Value: v})
	}
	return &types.AttributeValueMemberL{Value: out}
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

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

func listAttr(item map[string]types.AttributeValue, key string) ([]types.AttributeValue, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	return l.Value, nil
}

func stringListAttr(item map[string]types.AttributeValue, key string) ([]string, error) {
	values, err := listAttr(item, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for i, v := range values {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("repository: attribute %q[%d] is not a string", key, i)
		}
		out = append(out, s.Value)
	}
	return out, nil
}

func transcriptAttr(item map[string]types.AttributeValue, key string) ([]domain.ChatMessage, error) {
	values, err := listAttr(item, key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(values))
	for i, v := range values {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return nil, fmt.Errorf("repository: attribute %q[%d] is not a map", key, i)
		}
		role, err := strAttr(m.Value, "role")
		if err != nil {
			return nil, err
		}
		content, err := strAttr(m.Value, "content")
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ChatMessage{Role: role, Content: content})
	}
	return out, nil
}
