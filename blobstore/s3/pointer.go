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

	"github.com/hupe1980/pagecorpus/blobstore"
	"github.com/hupe1980/pagecorpus/model"
)

// DDBClient is the subset of the DynamoDB API used by VersionPointer.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// VersionPointer implements blobstore.VersionPointer on DynamoDB. Every
// publish adds one item; the newest version is the highest sort key. A
// conditional put makes concurrent publishers of the same version safe.
//
// Table schema:
//   - Partition key: dataset (string), e.g. "s3://bucket/prefix"
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pagecorpus-versions \
//	  --attribute-definitions AttributeName=dataset,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=dataset,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type VersionPointer struct {
	client  DDBClient
	table   string
	dataset string
	now     func() time.Time
}

// NewVersionPointer creates a pointer for dataset in table.
func NewVersionPointer(client DDBClient, table, dataset string) *VersionPointer {
	return &VersionPointer{
		client:  client,
		table:   table,
		dataset: dataset,
		now:     time.Now,
	}
}

// Current implements blobstore.VersionPointer.
func (p *VersionPointer) Current(ctx context.Context) (model.Version, bool, error) {
	resp, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.table),
		KeyConditionExpression: aws.String("dataset = :ds"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ds": &types.AttributeValueMemberS{Value: p.dataset},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, false, fmt.Errorf("query published version: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, false, nil
	}

	attr, ok := resp.Items[0]["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false, errors.New("invalid version attribute in DynamoDB")
	}

	n, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, false, fmt.Errorf("parse version: %w", err)
	}

	return model.Version(n), true, nil
}

// Advance implements blobstore.VersionPointer. It returns
// blobstore.ErrConcurrentPublish when another publisher wrote v first.
func (p *VersionPointer) Advance(ctx context.Context, v model.Version) (bool, error) {
	cur, ok, err := p.Current(ctx)
	if err != nil {
		return false, err
	}

	if ok && cur >= v {
		return false, nil
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.table),
		Item: map[string]types.AttributeValue{
			"dataset":      &types.AttributeValueMemberS{Value: p.dataset},
			"version":      &types.AttributeValueMemberN{Value: strconv.Itoa(int(v))},
			"published_at": &types.AttributeValueMemberS{Value: p.now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, blobstore.ErrConcurrentPublish
		}
		return false, fmt.Errorf("commit published version: %w", err)
	}

	return true, nil
}

var _ blobstore.VersionPointer = (*VersionPointer)(nil)
