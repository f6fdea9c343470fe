// Package dynamodb implements ledger.Ledger on a DynamoDB table.
//
// Table schema:
//   - Partition key: dataset (string) - the dataset content hash
//   - Sort key: piece (number) - the 1-based piece number
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name knncache-pieces \
//	  --attribute-definitions AttributeName=dataset,AttributeType=S AttributeName=piece,AttributeType=N \
//	  --key-schema AttributeName=dataset,KeyType=HASH AttributeName=piece,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/knncache"
	"github.com/hupe1980/knncache/ledger"
)

// Compile time check to ensure Ledger satisfies the ledger.Ledger interface.
var _ ledger.Ledger = (*Ledger)(nil)

// Client is the subset of the DynamoDB API the ledger uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Ledger stores piece entries as DynamoDB items.
type Ledger struct {
	client Client
	table  string
}

// New creates a ledger on table.
func New(client Client, table string) *Ledger {
	return &Ledger{client: client, table: table}
}

// Record implements ledger.Ledger. An existing item for the piece is
// replaced.
func (l *Ledger) Record(ctx context.Context, e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item: map[string]types.AttributeValue{
			"dataset":      &types.AttributeValueMemberS{Value: e.Hash},
			"piece":        number(e.Piece),
			"pieces":       number(e.Pieces),
			"records":      number(e.Records),
			"rows":         number(e.Rows),
			"blob":         &types.AttributeValueMemberS{Value: e.Blob},
			"run_id":       &types.AttributeValueMemberS{Value: e.RunID},
			"completed_at": &types.AttributeValueMemberS{Value: e.CompletedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to record piece %d in DynamoDB: %w", e.Piece, err)
	}
	return nil
}

// Entries implements ledger.Ledger.
func (l *Ledger) Entries(ctx context.Context, hash string) ([]ledger.Entry, error) {
	p := dynamodb.NewQueryPaginator(l.client, &dynamodb.QueryInput{
		TableName:              aws.String(l.table),
		KeyConditionExpression: aws.String("dataset = :h"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: hash},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})

	var entries []ledger.Entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		for _, item := range page.Items {
			e, err := decode(item)
			if err != nil {
				return nil, &knncache.FormatError{Name: l.table, Reason: err.Error()}
			}
			entries = append(entries, e)
		}
	}
	ledger.SortEntries(entries)
	return entries, nil
}

func number(v int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(v)}
}

func decode(item map[string]types.AttributeValue) (ledger.Entry, error) {
	var (
		e   ledger.Entry
		err error
	)
	str := func(name string) string {
		if err != nil {
			return ""
		}
		v, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			err = fmt.Errorf("invalid %s attribute", name)
			return ""
		}
		return v.Value
	}
	num := func(name string) int {
		if err != nil {
			return 0
		}
		v, ok := item[name].(*types.AttributeValueMemberN)
		if !ok {
			err = fmt.Errorf("invalid %s attribute", name)
			return 0
		}
		n, perr := strconv.Atoi(v.Value)
		if perr != nil {
			err = fmt.Errorf("invalid %s attribute: %w", name, perr)
		}
		return n
	}

	e.Hash = str("dataset")
	e.Piece = num("piece")
	e.Pieces = num("pieces")
	e.Records = num("records")
	e.Rows = num("rows")
	e.Blob = str("blob")
	e.RunID = str("run_id")
	completed := str("completed_at")
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
		return ledger.Entry{}, fmt.Errorf("invalid completed_at attribute: %w", err)
	}
	return e, nil
}
