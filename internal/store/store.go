// Package store wraps the document store behind a small capability
// interface. Liveness is supervised at this boundary: a transport failure
// reopens the connection and retries once instead of leaking reconnect
// logic into callers.
package store

import (
	"context"
	"encoding/json"
)

// Hit is one search result.
type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// Store is the set of document-store capabilities the pipeline consumes.
type Store interface {
	// GetSource returns a document body by id, or nil when absent.
	GetSource(ctx context.Context, index, id string) (json.RawMessage, error)

	// Search runs a bounded single-page query.
	Search(ctx context.Context, index string, q *Query) ([]Hit, error)

	// Scan streams every hit of an unbounded result set to fn,
	// preserving the query's sort order.
	Scan(ctx context.Context, index string, q *Query, fn func(Hit) error) error

	// Insert writes a document under an explicit id and waits until it
	// is visible to searches.
	Insert(ctx context.Context, index, id string, doc any) error

	ExistsIndex(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, mapping json.RawMessage) error
	DeleteByQuery(ctx context.Context, index string, q *Query) error

	Ping(ctx context.Context) error
	Close()
}
