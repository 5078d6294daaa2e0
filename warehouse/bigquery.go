package warehouse

import (
	"context"
	"errors"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const backendBigQuery = "bigquery"

// BigQuery runs standard SQL jobs and reads every result row.
type BigQuery struct {
	client *bigquery.Client
}

// NewBigQuery opens a client for project. An empty credentialsFile falls back
// to application default credentials.
func NewBigQuery(ctx context.Context, project, credentialsFile string) (*BigQuery, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, &ExecutionError{Backend: backendBigQuery, Query: "connect", Err: err}
	}
	return &BigQuery{client: client}, nil
}

func (b *BigQuery) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	it, err := b.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, &ExecutionError{Backend: backendBigQuery, Query: sql, Err: err}
	}

	rows := []map[string]interface{}{}
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &ExecutionError{Backend: backendBigQuery, Query: sql, Err: err}
		}
		rows = append(rows, fromValues(row))
	}
	return rows, nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}

func fromValues(row map[string]bigquery.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
