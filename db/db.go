package db

import (
	"context"
	"strconv"
	"time"

	"github.com/jsphweid/pianobot/model"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// BatchGetItem accepts at most 100 keys per call.
const maxBatch = 100

// Index keeps one metadata row per published take, keyed by take name.
type Index struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// NewSession creates an AWS session. An empty endpoint means the
// default AWS endpoint for the region.
func NewSession(region, endpoint string) (*session.Session, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not create aws session")
	}
	return sess, nil
}

func New(client dynamodbiface.DynamoDBAPI, table string) *Index {
	return &Index{client: client, table: table}
}

func NewFromSession(sess *session.Session, table string) *Index {
	return New(dynamodb.New(sess), table)
}

func (ix *Index) Name() string {
	return "dynamodb:" + ix.table
}

func (ix *Index) PutTake(ctx context.Context, meta model.TakeMetadata) error {
	item := map[string]*dynamodb.AttributeValue{
		"PK":         {S: aws.String(meta.Name)},
		"TakeID":     {S: aws.String(meta.TakeID)},
		"Public":     {BOOL: aws.Bool(meta.Public)},
		"Events":     {N: aws.String(strconv.Itoa(meta.Events))},
		"DurationMs": {N: aws.String(strconv.FormatInt(meta.DurationMs, 10))},
		"StartedAt":  {S: aws.String(meta.StartedAt.UTC().Format(time.RFC3339))},
	}
	_, err := ix.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ix.table),
		Item:      item,
	})
	if err != nil {
		return errors.Wrapf(err, "could not index take %v", meta.Name)
	}
	return nil
}

// GetTakes looks up rows by take name. Names without a row are absent
// from the result.
func (ix *Index) GetTakes(ctx context.Context, names []string) (map[string]model.TakeMetadata, error) {
	if len(names) > maxBatch {
		return nil, errors.Errorf("can look up at most %v takes at once, got %v", maxBatch, len(names))
	}

	res := make(map[string]model.TakeMetadata)
	if len(names) == 0 {
		return res, nil
	}

	var keys []map[string]*dynamodb.AttributeValue
	for _, name := range names {
		keys = append(keys, map[string]*dynamodb.AttributeValue{
			"PK": {S: aws.String(name)},
		})
	}

	out, err := ix.client.BatchGetItemWithContext(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]*dynamodb.KeysAndAttributes{
			ix.table: {Keys: keys},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "error from dynamodb")
	}

	for _, v := range out.Responses[ix.table] {
		meta := parseItem(v)
		res[meta.Name] = meta
	}
	return res, nil
}

func parseItem(v map[string]*dynamodb.AttributeValue) model.TakeMetadata {
	var m model.TakeMetadata
	if a, ok := v["PK"]; ok && a.S != nil {
		m.Name = *a.S
	}
	if a, ok := v["TakeID"]; ok && a.S != nil {
		m.TakeID = *a.S
	}
	if a, ok := v["Public"]; ok && a.BOOL != nil {
		m.Public = *a.BOOL
	}
	if a, ok := v["Events"]; ok && a.N != nil {
		n, _ := strconv.Atoi(*a.N)
		m.Events = n
	}
	if a, ok := v["DurationMs"]; ok && a.N != nil {
		n, _ := strconv.ParseInt(*a.N, 10, 64)
		m.DurationMs = n
	}
	if a, ok := v["StartedAt"]; ok && a.S != nil {
		t, _ := time.Parse(time.RFC3339, *a.S)
		m.StartedAt = t
	}
	return m
}
