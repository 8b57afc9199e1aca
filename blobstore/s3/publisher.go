package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrVersionConflict is returned when another writer published the
	// same version number first. Re-read Current and retry with the
	// next version.
	ErrVersionConflict = errors.New("snapshot version already published")

	// ErrNoPublishedSnapshot is returned when the ledger holds no
	// publication for the index yet.
	ErrNoPublishedSnapshot = errors.New("no published snapshot")
)

// Version is one publication in the snapshot ledger.
type Version struct {
	// Version is the monotonically increasing publication number.
	Version uint64

	// Snapshot is the blob name the version points at.
	Snapshot string

	// CommittedAt is the publication time in RFC 3339, informational
	// only (the version number, not the clock, orders publications).
	CommittedAt string
}

// DDBClient is the subset of the DynamoDB API the publisher uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Publisher records which snapshot of an index is current.
//
// The blob store moves bytes; the publisher moves the pointer. S3 has
// no compare-and-swap, so the pointer lives in a DynamoDB ledger: every
// publication appends a row keyed (index_id, version). Appending is
// guarded by a conditional write, so when two writers race for the same
// version number exactly one wins and the loser gets ErrVersionConflict
// instead of silently clobbering the pointer. The full ledger doubles
// as publication history for rollbacks.
//
// A typical publish cycle:
//
//	name := fmt.Sprintf("snapshot-%06d.balt", next)
//	persistence.SaveToStore(ctx, store, name, tree)
//	version, err := publisher.PublishNext(ctx, name)
type Publisher struct {
	ddb     DDBClient
	table   string
	indexID string
}

// NewPublisher creates a publisher for one index. indexID names the
// index in the ledger table, conventionally "s3://bucket/prefix".
func NewPublisher(ddb DDBClient, table, indexID string) *Publisher {
	return &Publisher{
		ddb:     ddb,
		table:   table,
		indexID: indexID,
	}
}

// Current returns the latest published version, or
// ErrNoPublishedSnapshot if nothing has been published.
func (p *Publisher) Current(ctx context.Context) (Version, error) {
	history, err := p.History(ctx, 1)
	if err != nil {
		return Version{}, err
	}
	if len(history) == 0 {
		return Version{}, ErrNoPublishedSnapshot
	}
	return history[0], nil
}

// History returns up to limit publications, newest first.
func (p *Publisher) History(ctx context.Context, limit int32) ([]Version, error) {
	out, err := p.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.table),
		KeyConditionExpression: aws.String("index_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: p.indexID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot ledger query: %w", err)
	}

	history := make([]Version, 0, len(out.Items))
	for _, item := range out.Items {
		v, err := decodeVersion(item)
		if err != nil {
			return nil, err
		}
		history = append(history, v)
	}
	return history, nil
}

// Publish records v in the ledger. v.Version must not exist yet;
// a racing writer that got there first surfaces as ErrVersionConflict.
func (p *Publisher) Publish(ctx context.Context, v Version) error {
	if v.CommittedAt == "" {
		v.CommittedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := p.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(p.table),
		Item:                encodeVersion(p.indexID, v),
		ConditionExpression: aws.String("attribute_not_exists(index_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: version %d", ErrVersionConflict, v.Version)
		}
		return fmt.Errorf("snapshot ledger publish: %w", err)
	}
	return nil
}

// PublishNext publishes snapshot under the version after Current.
// On ErrVersionConflict, re-invoke to retry against the new head.
func (p *Publisher) PublishNext(ctx context.Context, snapshot string) (Version, error) {
	var next uint64 = 1
	current, err := p.Current(ctx)
	switch {
	case err == nil:
		next = current.Version + 1
	case errors.Is(err, ErrNoPublishedSnapshot):
		// First publication.
	default:
		return Version{}, err
	}

	v := Version{Version: next, Snapshot: snapshot}
	if err := p.Publish(ctx, v); err != nil {
		return Version{}, err
	}
	return v, nil
}

func encodeVersion(indexID string, v Version) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"index_id":     &types.AttributeValueMemberS{Value: indexID},
		"version":      &types.AttributeValueMemberN{Value: strconv.FormatUint(v.Version, 10)},
		"snapshot":     &types.AttributeValueMemberS{Value: v.Snapshot},
		"committed_at": &types.AttributeValueMemberS{Value: v.CommittedAt},
	}
}

func decodeVersion(item map[string]types.AttributeValue) (Version, error) {
	var v Version

	num, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return v, errors.New("snapshot ledger: missing version attribute")
	}
	parsed, err := strconv.ParseUint(num.Value, 10, 64)
	if err != nil {
		return v, fmt.Errorf("snapshot ledger: bad version %q: %w", num.Value, err)
	}
	v.Version = parsed

	snapshot, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return v, errors.New("snapshot ledger: missing snapshot attribute")
	}
	v.Snapshot = snapshot.Value

	if committed, ok := item["committed_at"].(*types.AttributeValueMemberS); ok {
		v.CommittedAt = committed.Value
	}

	return v, nil
}
