// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/scienceon/tutor-batch/internal/store"
)

// InsertedDoc records one Insert call.
type InsertedDoc struct {
	Index string
	ID    string
	Doc   json.RawMessage
}

// Fake is a map-backed Store. By default Search and Scan return every
// seeded document of the index in id order; SearchFunc/ScanFunc override
// that per test. Err, when set, fails every operation.
type Fake struct {
	mu       sync.Mutex
	docs     map[string]map[string]json.RawMessage
	inserted []InsertedDoc

	SearchFunc func(index string, q *store.Query) ([]store.Hit, error)
	ScanFunc   func(index string, q *store.Query) ([]store.Hit, error)
	InsertErr  error
	Err        error
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{docs: map[string]map[string]json.RawMessage{}}
}

// Seed stores a document, creating the index as needed.
func (f *Fake) Seed(index, id string, doc any) {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[index] == nil {
		f.docs[index] = map[string]json.RawMessage{}
	}
	f.docs[index][id] = b
}

// Inserted returns every Insert call seen so far.
func (f *Fake) Inserted() []InsertedDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]InsertedDoc, len(f.inserted))
	copy(out, f.inserted)
	return out
}

// Doc returns a stored document body, or nil when absent.
func (f *Fake) Doc(index, id string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[index][id]
}

func (f *Fake) hits(index string) []store.Hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.docs[index]))
	for id := range f.docs[index] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hits := make([]store.Hit, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, store.Hit{ID: id, Source: f.docs[index][id]})
	}
	return hits
}

func (f *Fake) GetSource(ctx context.Context, index, id string) (json.RawMessage, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Doc(index, id), nil
}

func (f *Fake) Search(ctx context.Context, index string, q *store.Query) ([]store.Hit, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.SearchFunc != nil {
		return f.SearchFunc(index, q)
	}
	return f.hits(index), nil
}

func (f *Fake) Scan(ctx context.Context, index string, q *store.Query, fn func(store.Hit) error) error {
	if f.Err != nil {
		return f.Err
	}
	hits := f.hits(index)
	if f.ScanFunc != nil {
		var err error
		hits, err = f.ScanFunc(index, q)
		if err != nil {
			return err
		}
	}
	for _, h := range hits {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) Insert(ctx context.Context, index, id string, doc any) error {
	if f.Err != nil {
		return f.Err
	}
	if f.InsertErr != nil {
		return f.InsertErr
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "storetest: marshal document")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[index] == nil {
		f.docs[index] = map[string]json.RawMessage{}
	}
	f.docs[index][id] = b
	f.inserted = append(f.inserted, InsertedDoc{Index: index, ID: id, Doc: b})
	return nil
}

func (f *Fake) ExistsIndex(ctx context.Context, index string) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[index]
	return ok, nil
}

func (f *Fake) CreateIndex(ctx context.Context, index string, mapping json.RawMessage) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[index] == nil {
		f.docs[index] = map[string]json.RawMessage{}
	}
	return nil
}

func (f *Fake) DeleteByQuery(ctx context.Context, index string, q *store.Query) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[index] = map[string]json.RawMessage{}
	return nil
}

func (f *Fake) Ping(ctx context.Context) error { return f.Err }

func (f *Fake) Close() {}
