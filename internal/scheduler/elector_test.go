package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/store"
	"github.com/scienceon/tutor-batch/internal/store/storetest"
)

const electionIndex = "election"

func newTestElector(fake *storetest.Fake) (*Elector, *time.Duration) {
	var slept time.Duration
	e := NewElector(fake, ElectorConfig{Index: electionIndex, SettleDelay: 7 * time.Second},
		WithIdentity("node-a", 100),
		WithElectorSleep(func(d time.Duration) { slept += d }),
	)
	return e, &slept
}

// rankByCreatedAt mimics the store-side sort the election relies on.
func rankByCreatedAt(fake *storetest.Fake) func(string, *store.Query) ([]store.Hit, error) {
	return func(index string, q *store.Query) ([]store.Hit, error) {
		// Clear the hook so the inner Search returns the seeded documents
		// instead of recursing back into this ranking function.
		fn := fake.SearchFunc
		fake.SearchFunc = nil
		hits, err := fake.Search(context.Background(), index, nil)
		fake.SearchFunc = fn
		if err != nil {
			return nil, err
		}
		best := -1
		var bestAt int64
		for i, h := range hits {
			var lease model.LeaseDocument
			if err := json.Unmarshal(h.Source, &lease); err != nil {
				return nil, err
			}
			if best < 0 || lease.CreatedAt < bestAt {
				best, bestAt = i, lease.CreatedAt
			}
		}
		if best < 0 {
			return nil, nil
		}
		return hits[best : best+1], nil
	}
}

func TestElectEarliestLeaseLeads(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	elector, slept := newTestElector(fake)
	fake.SearchFunc = rankByCreatedAt(fake)

	assert.True(t, elector.Elect(context.Background()))
	assert.Equal(t, 7*time.Second, *slept)

	doc := fake.Doc(electionIndex, "node-a-100")
	require.NotNil(t, doc)
	var lease model.LeaseDocument
	require.NoError(t, json.Unmarshal(doc, &lease))
	assert.Equal(t, "node-a", lease.Host)
	assert.Equal(t, 100, lease.PID)
	assert.NotZero(t, lease.CreatedAt)
}

func TestElectOlderLeaseWins(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.Seed(electionIndex, "node-b-200", model.LeaseDocument{
		Host: "node-b", PID: 200, CreatedAt: 1,
	})
	elector, _ := newTestElector(fake)
	fake.SearchFunc = rankByCreatedAt(fake)

	assert.False(t, elector.Elect(context.Background()))
}

func TestElectInsertFailureStandsBy(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.InsertErr = eris.New("index unavailable")
	elector, slept := newTestElector(fake)

	assert.False(t, elector.Elect(context.Background()))
	assert.Zero(t, *slept, "no settle wait when the lease never registered")
}

func TestElectRankingFailureStandsBy(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.SearchFunc = func(string, *store.Query) ([]store.Hit, error) {
		return nil, eris.New("search timed out")
	}
	elector, _ := newTestElector(fake)

	assert.False(t, elector.Elect(context.Background()))
}

func TestElectNoVisibleLeasesStandsBy(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	fake.SearchFunc = func(string, *store.Query) ([]store.Hit, error) {
		return nil, nil
	}
	elector, _ := newTestElector(fake)

	assert.False(t, elector.Elect(context.Background()))
}

func TestElectQueryShape(t *testing.T) {
	t.Parallel()

	fake := storetest.New()
	var got *store.Query
	fake.SearchFunc = func(_ string, q *store.Query) ([]store.Hit, error) {
		got = q
		return []store.Hit{{ID: "node-a-100"}}, nil
	}
	elector, _ := newTestElector(fake)

	assert.True(t, elector.Elect(context.Background()))
	require.NotNil(t, got)

	body := got.Body()
	assert.Equal(t, 1, body["size"])
	sorts, ok := body["sort"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, sorts, 1)
	assert.Contains(t, sorts[0], "created_at")
}
