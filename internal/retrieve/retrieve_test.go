package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/store"
	"github.com/scienceon/tutor-batch/internal/store/storetest"
)

var testCfg = Config{
	HeaderIndex:   "headers",
	LayoutIndex:   "layouts",
	AnalysisIndex: "analysis",
	ResultIndex:   "results",
}

func TestLatestResultModifiedAt(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed("results", "R1", map[string]any{"mdfcn_dt": "2025-06-01 10:00:00"})
	fake.SearchFunc = func(index string, q *store.Query) ([]store.Hit, error) {
		assert.Equal(t, "results", index)
		return []store.Hit{{ID: "R1", Source: fake.Doc("results", "R1")}}, nil
	}

	r := New(fake, testCfg)
	since, err := r.LatestResultModifiedAt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01 10:00:00", since)
}

func TestLatestResultModifiedAtEmpty(t *testing.T) {
	t.Parallel()

	r := New(storetest.New(), testCfg)
	since, err := r.LatestResultModifiedAt(context.Background())
	require.NoError(t, err)
	assert.Empty(t, since)
}

func TestFetchHeadersByIDs(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed("headers", "R1", model.ReportHeader{ReportID: "R1", ModifiedAt: "2025-01-01 00:00:00"})
	fake.Seed("headers", "R2", model.ReportHeader{ReportID: "R2", ModifiedAt: "2025-01-02 00:00:00"})

	var gotQuery *store.Query
	fake.ScanFunc = func(index string, q *store.Query) ([]store.Hit, error) {
		if index == "headers" {
			gotQuery = q
		}
		return []store.Hit{
			{ID: "R1", Source: fake.Doc("headers", "R1")},
			{ID: "R2", Source: fake.Doc("headers", "R2")},
		}, nil
	}

	r := New(fake, testCfg)
	headers, err := r.FetchHeaders(context.Background(), []string{"R1", "R2"})
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, "R1", headers[0].ReportID)

	require.NotNil(t, gotQuery)
	body := gotQuery.Body()
	boolQ := body["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQ["must"].([]map[string]any)
	require.Len(t, must, 1)
	assert.Contains(t, must[0], "terms")
}

func TestFetchHeadersSinceLatestResult(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed("results", "R0", map[string]any{"mdfcn_dt": "2025-05-01 00:00:00"})

	var gotQuery *store.Query
	fake.ScanFunc = func(index string, q *store.Query) ([]store.Hit, error) {
		gotQuery = q
		return nil, nil
	}

	r := New(fake, testCfg)
	headers, err := r.FetchHeaders(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, headers)

	require.NotNil(t, gotQuery)
	boolQ := gotQuery.Body()["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQ["must"].([]map[string]any)
	require.Len(t, must, 1)
	rangeF := must[0]["range"].(map[string]any)["MDFCN_DT"].(map[string]any)
	assert.Equal(t, "2025-05-01 00:00:00", rangeF["gt"])
}

func TestFetchHeadersNoResultsYet(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed("headers", "R1", model.ReportHeader{ReportID: "R1"})

	var gotQuery *store.Query
	fake.ScanFunc = func(index string, q *store.Query) ([]store.Hit, error) {
		gotQuery = q
		return []store.Hit{{ID: "R1", Source: fake.Doc("headers", "R1")}}, nil
	}

	r := New(fake, testCfg)
	headers, err := r.FetchHeaders(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, headers, 1)

	// no high-water mark yet: unfiltered scan
	require.NotNil(t, gotQuery)
	assert.NotContains(t, gotQuery.Body(), "query")
}

func TestFetchLayoutsAndAnalysis(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed("layouts", "L1", model.LayoutRow{ReportID: "R1", Question1: "Q?"})
	fake.Seed("analysis", "A1", model.AnalysisRow{SetID: "S1", SortOrder: 1, Text: "t"})

	r := New(fake, testCfg)

	layouts, err := r.FetchLayouts(context.Background())
	require.NoError(t, err)
	require.Len(t, layouts, 1)
	assert.Equal(t, "R1", layouts[0].ReportID)

	analysis, err := r.FetchAnalysis(context.Background())
	require.NoError(t, err)
	require.Len(t, analysis, 1)
	assert.Equal(t, "S1", analysis[0].SetID)
}
