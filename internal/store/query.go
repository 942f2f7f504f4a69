package store

import "encoding/json"

// Clause selects the bool-query branch a filter is appended to.
type Clause string

const (
	Must    Clause = "must"
	MustNot Clause = "must_not"
	Should  Clause = "should"
)

// Query is a fluent builder for the small subset of the document-store
// query DSL this service uses. The zero value matches everything.
type Query struct {
	source  []string
	sort    []map[string]any
	size    *int
	from    *int
	clauses map[Clause][]map[string]any
}

// NewQuery creates an empty query.
func NewQuery() *Query {
	return &Query{clauses: map[Clause][]map[string]any{}}
}

// Source restricts the returned fields.
func (q *Query) Source(fields ...string) *Query {
	q.source = append(q.source, fields...)
	return q
}

// Sort appends a sort key; order is "asc" or "desc".
func (q *Query) Sort(field, order string) *Query {
	q.sort = append(q.sort, map[string]any{field: map[string]any{"order": order}})
	return q
}

// Size sets the result-page size.
func (q *Query) Size(n int) *Query {
	q.size = &n
	return q
}

// From sets the result offset.
func (q *Query) From(n int) *Query {
	q.from = &n
	return q
}

func (q *Query) add(c Clause, filter map[string]any) *Query {
	if q.clauses == nil {
		q.clauses = map[Clause][]map[string]any{}
	}
	q.clauses[c] = append(q.clauses[c], filter)
	return q
}

// MatchPhrase adds an exact-phrase filter.
func (q *Query) MatchPhrase(c Clause, field string, value any) *Query {
	return q.add(c, map[string]any{"match_phrase": map[string]any{field: value}})
}

// Match adds an analyzed-match filter.
func (q *Query) Match(c Clause, field string, value any) *Query {
	return q.add(c, map[string]any{"match": map[string]any{field: value}})
}

// MatchAll adds a match-all filter.
func (q *Query) MatchAll(c Clause) *Query {
	return q.add(c, map[string]any{"match_all": map[string]any{}})
}

// Terms adds a set-membership filter.
func (q *Query) Terms(c Clause, field string, values []string) *Query {
	return q.add(c, map[string]any{"terms": map[string]any{field: values}})
}

// Range adds a range filter; op is one of "gt", "gte", "lt", "lte".
func (q *Query) Range(c Clause, field, op string, value any) *Query {
	return q.add(c, map[string]any{"range": map[string]any{field: map[string]any{op: value}}})
}

// Exists adds a field-presence filter.
func (q *Query) Exists(c Clause, field string) *Query {
	return q.add(c, map[string]any{"exists": map[string]any{"field": field}})
}

// Body renders the query as a request body.
func (q *Query) Body() map[string]any {
	body := map[string]any{}
	if len(q.source) > 0 {
		body["_source"] = q.source
	}
	if len(q.sort) > 0 {
		body["sort"] = q.sort
	}
	if q.size != nil {
		body["size"] = *q.size
	}
	if q.from != nil {
		body["from"] = *q.from
	}
	if len(q.clauses) > 0 {
		boolQ := map[string]any{}
		for c, filters := range q.clauses {
			boolQ[string(c)] = filters
		}
		body["query"] = map[string]any{"bool": boolQ}
	}
	return body
}

// MarshalJSON renders the request body directly.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Body())
}
