package s3

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDDBClient is an in-memory DynamoDB fake honoring the conditional
// put the publisher relies on. beforePut, when set, runs once inside
// the lock just before the existence check to simulate a racing writer.
type fakeDDBClient struct {
	mu        sync.Mutex
	items     map[string]map[string]types.AttributeValue // index_id:version -> item
	beforePut func(f *fakeDDBClient)
}

func newFakeDDBClient() *fakeDDBClient {
	return &fakeDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDDBClient) insertLocked(indexID string, version uint64, snapshot string) {
	num := strconv.FormatUint(version, 10)
	f.items[indexID+":"+num] = map[string]types.AttributeValue{
		"index_id":     &types.AttributeValueMemberS{Value: indexID},
		"version":      &types.AttributeValueMemberN{Value: num},
		"snapshot":     &types.AttributeValueMemberS{Value: snapshot},
		"committed_at": &types.AttributeValueMemberS{Value: "2000-01-01T00:00:00Z"},
	}
}

func (f *fakeDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.beforePut != nil {
		hook := f.beforePut
		f.beforePut = nil
		hook(f)
	}

	indexID := params.Item["index_id"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := indexID + ":" + version

	if params.ConditionExpression != nil {
		if _, exists := f.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	indexID := params.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["index_id"].(*types.AttributeValueMemberS).Value == indexID {
			items = append(items, item)
		}
	}

	// Newest first, by numeric version.
	sort.Slice(items, func(i, j int) bool {
		return itemVersion(items[i]) > itemVersion(items[j])
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

func itemVersion(item map[string]types.AttributeValue) uint64 {
	v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func TestPublisherLifecycle(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDBClient()
	pub := NewPublisher(ddb, "commits", "s3://bucket/idx")

	// Nothing published yet.
	_, err := pub.Current(ctx)
	assert.ErrorIs(t, err, ErrNoPublishedSnapshot)

	// First publication gets version 1.
	v1, err := pub.PublishNext(ctx, "snapshot-000001.balt")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1.Version)

	current, err := pub.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-000001.balt", current.Snapshot)
	assert.NotEmpty(t, current.CommittedAt)

	// A later publication supersedes it.
	v2, err := pub.PublishNext(ctx, "snapshot-000002.balt")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2.Version)

	current, err = pub.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-000002.balt", current.Snapshot)

	// History is newest first.
	history, err := pub.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "snapshot-000002.balt", history[0].Snapshot)
	assert.Equal(t, "snapshot-000001.balt", history[1].Snapshot)
}

func TestPublisherVersionConflict(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDBClient()
	pub := NewPublisher(ddb, "commits", "s3://bucket/idx")

	// A racing writer lands version 1 between our head read and the
	// conditional put.
	ddb.beforePut = func(f *fakeDDBClient) {
		f.insertLocked("s3://bucket/idx", 1, "snapshot-other.balt")
	}

	_, err := pub.PublishNext(ctx, "snapshot-mine.balt")
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The retry observes the winner and lands on version 2.
	v, err := pub.PublishNext(ctx, "snapshot-mine.balt")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.Version)

	current, err := pub.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-mine.balt", current.Snapshot)
}

func TestPublisherExplicitVersion(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDBClient()
	pub := NewPublisher(ddb, "commits", "s3://bucket/idx")

	require.NoError(t, pub.Publish(ctx, Version{Version: 7, Snapshot: "pinned.balt"}))

	// Republishing the same version number is a conflict.
	err := pub.Publish(ctx, Version{Version: 7, Snapshot: "other.balt"})
	assert.ErrorIs(t, err, ErrVersionConflict)

	current, err := pub.Current(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, current.Version)
	assert.Equal(t, "pinned.balt", current.Snapshot)
}
