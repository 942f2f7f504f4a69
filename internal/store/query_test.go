package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEmptyBody(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewQuery())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestQueryBody(t *testing.T) {
	t.Parallel()

	q := NewQuery().
		Sort("created_at", "asc").
		Size(1).
		MatchPhrase(Must, "rptc_id", "R1").
		Range(Must, "MDFCN_DT", "gt", "2025-01-01").
		Terms(MustNot, "RPTC_ID.keyword", []string{"a", "b"})

	b, err := json.Marshal(q)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"sort": [{"created_at": {"order": "asc"}}],
		"size": 1,
		"query": {"bool": {
			"must": [
				{"match_phrase": {"rptc_id": "R1"}},
				{"range": {"MDFCN_DT": {"gt": "2025-01-01"}}}
			],
			"must_not": [
				{"terms": {"RPTC_ID.keyword": ["a", "b"]}}
			]
		}}
	}`, string(b))
}

func TestQuerySourceAndOffset(t *testing.T) {
	t.Parallel()

	q := NewQuery().Source("rptc_id", "created_at").From(10).Size(20).MatchAll(Must)
	b, err := json.Marshal(q)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"_source": ["rptc_id", "created_at"],
		"from": 10,
		"size": 20,
		"query": {"bool": {"must": [{"match_all": {}}]}}
	}`, string(b))
}
