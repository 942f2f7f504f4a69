// Package retrieve pulls the raw report rows a batch cycle works on. All
// three collections are fetched with streaming scans, so result sets are
// not bounded by the store's single-page cap.
package retrieve

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/model"
	"github.com/scienceon/tutor-batch/internal/store"
)

// Config names the indices a retrieval pass reads. ResultIndex is only
// consulted for the incremental high-water mark.
type Config struct {
	HeaderIndex   string `yaml:"header_index" mapstructure:"header_index"`
	LayoutIndex   string `yaml:"layout_index" mapstructure:"layout_index"`
	AnalysisIndex string `yaml:"analysis_index" mapstructure:"analysis_index"`
	ResultIndex   string `yaml:"result_index" mapstructure:"result_index"`
}

// Retriever fetches report headers, layout rows and analysis rows.
type Retriever struct {
	store store.Store
	cfg   Config
}

// New creates a Retriever over the given store.
func New(st store.Store, cfg Config) *Retriever {
	return &Retriever{store: st, cfg: cfg}
}

// LatestResultModifiedAt returns the source-modification timestamp of the
// most recently persisted result, or "" when no result exists yet.
func (r *Retriever) LatestResultModifiedAt(ctx context.Context) (string, error) {
	q := store.NewQuery().
		Source("mdfcn_dt").
		Sort("mdfcn_dt", "desc").
		Size(1)
	hits, err := r.store.Search(ctx, r.cfg.ResultIndex, q)
	if err != nil {
		return "", eris.Wrap(err, "retrieve: latest result timestamp")
	}
	if len(hits) == 0 {
		return "", nil
	}
	var src struct {
		ModifiedAt string `json:"mdfcn_dt"`
	}
	if err := json.Unmarshal(hits[0].Source, &src); err != nil {
		return "", eris.Wrap(err, "retrieve: decode latest result")
	}
	return src.ModifiedAt, nil
}

// FetchHeaders scans the report info index. When ids is non-empty only
// those reports are fetched; otherwise the scan is limited to reports
// modified after the latest persisted result. Zero rows is not an error:
// the cycle simply has nothing to do.
func (r *Retriever) FetchHeaders(ctx context.Context, ids []string) ([]model.ReportHeader, error) {
	q := store.NewQuery()
	if len(ids) > 0 {
		q.Terms(store.Must, "RPTC_ID.keyword", ids)
	} else {
		since, err := r.LatestResultModifiedAt(ctx)
		if err != nil {
			return nil, err
		}
		if since != "" {
			q.Range(store.Must, "MDFCN_DT", "gt", since)
		}
	}

	var headers []model.ReportHeader
	err := r.store.Scan(ctx, r.cfg.HeaderIndex, q, func(h store.Hit) error {
		var hdr model.ReportHeader
		if err := json.Unmarshal(h.Source, &hdr); err != nil {
			return eris.Wrapf(err, "retrieve: decode header %s", h.ID)
		}
		headers = append(headers, hdr)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieve: scan headers")
	}
	zap.L().Debug("retrieve: headers fetched", zap.Int("count", len(headers)))
	return headers, nil
}

// FetchLayouts scans every layout row. Rows are matched to reports later
// by their report id.
func (r *Retriever) FetchLayouts(ctx context.Context) ([]model.LayoutRow, error) {
	var rows []model.LayoutRow
	err := r.store.Scan(ctx, r.cfg.LayoutIndex, store.NewQuery(), func(h store.Hit) error {
		var row model.LayoutRow
		if err := json.Unmarshal(h.Source, &row); err != nil {
			return eris.Wrapf(err, "retrieve: decode layout row %s", h.ID)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieve: scan layout rows")
	}
	return rows, nil
}

// FetchAnalysis scans every analysis row.
func (r *Retriever) FetchAnalysis(ctx context.Context) ([]model.AnalysisRow, error) {
	var rows []model.AnalysisRow
	err := r.store.Scan(ctx, r.cfg.AnalysisIndex, store.NewQuery(), func(h store.Hit) error {
		var row model.AnalysisRow
		if err := json.Unmarshal(h.Source, &row); err != nil {
			return eris.Wrapf(err, "retrieve: decode analysis row %s", h.ID)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieve: scan analysis rows")
	}
	return rows, nil
}
