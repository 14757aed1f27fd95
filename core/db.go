package f

import (
	"context"
	"strings"
)

type Record = map[string]any

// Predicate is a WHERE fragment that was validated by the caller's policy
// layer. It is appended to statements verbatim.
type Predicate struct {
	sql string
}

// TrustedPredicate wraps a fragment the caller vouches for. Never build one
// from end user input.
func TrustedPredicate(sql string) Predicate {
	return Predicate{sql: strings.TrimSpace(sql)}
}

func (p Predicate) SQL() string {
	return p.sql
}

func (p Predicate) IsZero() bool {
	return p.sql == ""
}

// QueryOpts tunes FindAll. OrderBy is a column name, "-" prefixed for
// descending order.
type QueryOpts struct {
	OrderBy string
	Limit   int
	Offset  int
}

type Operation string

const (
	OpCreate  Operation = "create"
	OpFindAll Operation = "find_all"
	OpGet     Operation = "get"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
)

// Request is what the API layer hands to the core once routing, auth and
// policy evaluation are done.
type Request struct {
	DatabaseID string
	Collection string
	Operation  Operation
	ID         any
	Payload    Record
	Predicate  Predicate
	Opts       QueryOpts
}

type Result struct {
	Record  Record   `json:"record,omitempty"`
	Records []Record `json:"records,omitempty"`
}

type RecordEngine interface {
	Create(ctx context.Context, databaseID, collection string, fields Record) (Record, error)
	FindAll(ctx context.Context, databaseID, collection string, predicate Predicate, opts ...QueryOpts) ([]Record, error)
	Get(ctx context.Context, databaseID, collection string, id any, predicate Predicate) (Record, error)
	Update(ctx context.Context, databaseID, collection string, id any, fields Record, predicate Predicate) (Record, error)
	Delete(ctx context.Context, databaseID, collection string, id any, predicate Predicate) error
	Execute(ctx context.Context, req Request) (*Result, error)
}
