package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/config"
	"github.com/scienceon/tutor-batch/internal/cost"
	"github.com/scienceon/tutor-batch/internal/flatten"
	"github.com/scienceon/tutor-batch/internal/imaging"
	"github.com/scienceon/tutor-batch/internal/pipeline"
	"github.com/scienceon/tutor-batch/internal/retrieve"
	"github.com/scienceon/tutor-batch/internal/scorer"
	"github.com/scienceon/tutor-batch/internal/store"
	"github.com/scienceon/tutor-batch/pkg/clova"
)

// env bundles the long-lived pieces every command builds on.
type env struct {
	Store  store.Store
	Runner *pipeline.Runner
}

func (e *env) Close() {
	e.Store.Close()
}

// initEnv opens the document store and assembles the batch runner.
func initEnv(cfg *config.Config) (*env, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	llm := clova.NewClient(cfg.Clova.Key,
		clova.WithBaseURL(cfg.Clova.BaseURL),
		clova.WithTokenURL(cfg.Clova.TokenURL),
		clova.WithModel(cfg.Clova.Model),
		clova.WithSampling(cfg.Clova.MaxTokens, cfg.Clova.Temperature, cfg.Clova.TopP),
	)

	eval := scorer.New(llm, imaging.NewPreparer(), cost.NewCalculator(cost.DefaultRates()), cfg.Scorer)

	retriever := retrieve.New(st, retrieve.Config{
		HeaderIndex:   cfg.Indices.Header,
		LayoutIndex:   cfg.Indices.Layout,
		AnalysisIndex: cfg.Indices.Analysis,
		ResultIndex:   cfg.Indices.Result,
	})
	flattener := flatten.New(flatten.Config{
		UploadBaseURL: cfg.Assets.UploadBaseURL,
		FileBaseURL:   cfg.Assets.FileBaseURL,
		MaxTableLines: cfg.Assets.MaxTableLines,
	})

	return &env{
		Store:  st,
		Runner: pipeline.NewRunner(retriever, flattener, eval, st, cfg.Batch),
	}, nil
}

// initIndices makes sure the write-side indices exist.
func initIndices(ctx context.Context, st store.Store, cfg *config.Config) error {
	targets := []struct {
		index   string
		mapping []byte
	}{
		{cfg.Indices.Result, store.ResultMapping},
		{cfg.Indices.Error, store.ErrorMapping},
		{cfg.Election.Index, store.ElectionMapping},
	}
	for _, tgt := range targets {
		exists, err := st.ExistsIndex(ctx, tgt.index)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := st.CreateIndex(ctx, tgt.index, tgt.mapping); err != nil {
			return err
		}
		zap.L().Info("init: index created", zap.String("index", tgt.index))
	}
	return nil
}

// clearElection drops every lease so stale entries from dead processes
// cannot win. Only the serving fleet does this, once at startup.
func clearElection(ctx context.Context, st store.Store, cfg *config.Config) error {
	if err := st.DeleteByQuery(ctx, cfg.Election.Index, store.NewQuery().MatchAll(store.Must)); err != nil {
		return err
	}
	zap.L().Info("init: election index cleared", zap.String("index", cfg.Election.Index))
	return nil
}
