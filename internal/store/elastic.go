package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const scrollKeepAlive = 2 * time.Minute
const scrollPageSize = 1000

// Config holds document-store connection settings.
type Config struct {
	Addresses []string `yaml:"addresses" mapstructure:"addresses"`
	Username  string   `yaml:"username" mapstructure:"username"`
	Password  string   `yaml:"password" mapstructure:"password"`
}

// Client is the Elasticsearch-backed Store. The connection is long-lived
// and shared; a transport-level failure reopens it and retries the
// operation once.
type Client struct {
	cfg Config

	mu sync.RWMutex
	es *elasticsearch.Client
	tr *http.Transport
}

// Open connects to the document store.
func Open(cfg Config) (*Client, error) {
	c := &Client{cfg: cfg}
	if err := c.reopen(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reopen() error {
	tr := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.cfg.Addresses,
		Username:  c.cfg.Username,
		Password:  c.cfg.Password,
		Transport: tr,
	})
	if err != nil {
		return eris.Wrap(err, "store: open connection")
	}

	c.mu.Lock()
	if c.tr != nil {
		c.tr.CloseIdleConnections()
	}
	c.es, c.tr = es, tr
	c.mu.Unlock()
	return nil
}

func (c *Client) client() *elasticsearch.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.es
}

// perform runs op, reopening the connection and retrying once on a
// transport-level failure. Response-status errors are not retried here.
func (c *Client) perform(ctx context.Context, op func(es *elasticsearch.Client) error) error {
	err := op(c.client())
	if err == nil || ctx.Err() != nil {
		return err
	}

	zap.L().Warn("store: transport failure, reopening connection", zap.Error(err))
	if rerr := c.reopen(); rerr != nil {
		return rerr
	}
	return op(c.client())
}

// Ping checks liveness, reopening the connection on failure.
func (c *Client) Ping(ctx context.Context) error {
	return c.perform(ctx, func(es *elasticsearch.Client) error {
		res, err := es.Ping(es.Ping.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return eris.Errorf("store: ping status %s", res.Status())
		}
		return nil
	})
}

// Close releases idle connections.
func (c *Client) Close() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tr != nil {
		c.tr.CloseIdleConnections()
	}
}

// GetSource returns a document body by id, or nil when the document or
// its index is absent.
func (c *Client) GetSource(ctx context.Context, index, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.perform(ctx, func(es *elasticsearch.Client) error {
		res, err := es.GetSource(index, id, es.GetSource.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			out = nil
			return nil
		}
		if res.IsError() {
			return eris.Errorf("store: get %s/%s status %s", index, id, res.Status())
		}
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return eris.Wrap(err, "store: read get response")
		}
		out = body
		return nil
	})
	return out, err
}

type searchEnvelope struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// Search runs a single-page query and returns its hits.
func (c *Client) Search(ctx context.Context, index string, q *Query) ([]Hit, error) {
	var hits []Hit
	err := c.perform(ctx, func(es *elasticsearch.Client) error {
		body, err := queryReader(q)
		if err != nil {
			return err
		}
		res, err := es.Search(
			es.Search.WithContext(ctx),
			es.Search.WithIndex(index),
			es.Search.WithBody(body),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		env, err := decodeSearch(res, index)
		if err != nil {
			return err
		}
		hits = env.Hits.Hits
		return nil
	})
	return hits, err
}

// Scan streams every hit of the query to fn using the scroll API, so
// result sets are not bounded by the single-page cap.
func (c *Client) Scan(ctx context.Context, index string, q *Query, fn func(Hit) error) error {
	return c.perform(ctx, func(es *elasticsearch.Client) error {
		body, err := queryReader(q)
		if err != nil {
			return err
		}
		res, err := es.Search(
			es.Search.WithContext(ctx),
			es.Search.WithIndex(index),
			es.Search.WithBody(body),
			es.Search.WithSize(scrollPageSize),
			es.Search.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return err
		}
		env, err := decodeSearch(res, index)
		res.Body.Close()
		if err != nil {
			return err
		}

		scrollID := env.ScrollID
		defer c.clearScroll(scrollID)

		for len(env.Hits.Hits) > 0 {
			for _, h := range env.Hits.Hits {
				if err := fn(h); err != nil {
					return err
				}
			}

			res, err := es.Scroll(
				es.Scroll.WithContext(ctx),
				es.Scroll.WithScrollID(scrollID),
				es.Scroll.WithScroll(scrollKeepAlive),
			)
			if err != nil {
				return err
			}
			env2, err := decodeSearch(res, index)
			res.Body.Close()
			if err != nil {
				return err
			}
			env = env2
			if env.ScrollID != "" {
				scrollID = env.ScrollID
			}
		}
		return nil
	})
}

func (c *Client) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	es := c.client()
	res, err := es.ClearScroll(es.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		zap.L().Debug("store: clear scroll failed", zap.Error(err))
		return
	}
	res.Body.Close()
}

// Insert writes a document under an explicit id, waiting for it to become
// visible to searches before returning.
func (c *Client) Insert(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "store: marshal document")
	}
	return c.perform(ctx, func(es *elasticsearch.Client) error {
		res, err := es.Index(index, bytes.NewReader(payload),
			es.Index.WithDocumentID(id),
			es.Index.WithRefresh("wait_for"),
			es.Index.WithContext(ctx),
		)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return eris.Errorf("store: insert %s/%s status %s", index, id, res.Status())
		}
		return nil
	})
}

// ExistsIndex reports whether the index exists.
func (c *Client) ExistsIndex(ctx context.Context, index string) (bool, error) {
	var exists bool
	err := c.perform(ctx, func(es *elasticsearch.Client) error {
		res, err := es.Indices.Exists([]string{index}, es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		switch res.StatusCode {
		case http.StatusOK:
			exists = true
		case http.StatusNotFound:
			exists = false
		default:
			return eris.Errorf("store: exists %s status %s", index, res.Status())
		}
		return nil
	})
	return exists, err
}

// CreateIndex creates an index, with an optional mapping body.
func (c *Client) CreateIndex(ctx context.Context, index string, mapping json.RawMessage) error {
	return c.perform(ctx, func(es *elasticsearch.Client) error {
		opts := []func(*esapi.IndicesCreateRequest){
			es.Indices.Create.WithContext(ctx),
		}
		if len(mapping) > 0 {
			opts = append(opts, es.Indices.Create.WithBody(bytes.NewReader(mapping)))
		}
		res, err := es.Indices.Create(index, opts...)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.IsError() {
			return eris.Errorf("store: create index %s status %s", index, res.Status())
		}
		return nil
	})
}

// DeleteByQuery removes every document matching the query.
func (c *Client) DeleteByQuery(ctx context.Context, index string, q *Query) error {
	return c.perform(ctx, func(es *elasticsearch.Client) error {
		body, err := queryReader(q)
		if err != nil {
			return err
		}
		res, err := es.DeleteByQuery([]string{index}, body, es.DeleteByQuery.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			return nil
		}
		if res.IsError() {
			return eris.Errorf("store: delete by query %s status %s", index, res.Status())
		}
		return nil
	})
}

func decodeSearch(res *esapi.Response, index string) (*searchEnvelope, error) {
	if res.IsError() {
		return nil, eris.Errorf("store: search %s status %s", index, res.Status())
	}
	var env searchEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, eris.Wrap(err, "store: decode search response")
	}
	return &env, nil
}

func queryReader(q *Query) (io.Reader, error) {
	if q == nil {
		q = NewQuery()
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal query")
	}
	return bytes.NewReader(b), nil
}
