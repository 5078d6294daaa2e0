// Package warehouse runs SQL against the analytics warehouse and returns rows
// as column maps.
package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// Executor runs one query and returns all its rows.
type Executor interface {
	Query(ctx context.Context, sql string) ([]map[string]interface{}, error)
}

// ExecutionError is a failure reported by the warehouse. It is never retried
// here.
type ExecutionError struct {
	Backend string
	Query   string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s query failed (%s): %v", e.Backend, firstLine(e.Query), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func firstLine(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, '\n'); i >= 0 {
		return sql[:i] + " ..."
	}
	return sql
}
