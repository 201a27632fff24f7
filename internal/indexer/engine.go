// Package indexer loads a precomputed inverted index from its configured
// source and digests it for scoring.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/digest"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/weighting"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/sqlite"
)

// Engine holds a digested index and where it came from.
type Engine struct {
	Digest *digest.Digest
	Stats  index.Stats
	Source string
	Took   time.Duration
}

// LoadIndex reads the inverted index named by cfg.Index. SQL sources are
// opened, read and closed again.
func LoadIndex(ctx context.Context, cfg *config.Config) (index.Inverted, error) {
	switch cfg.Index.Source {
	case config.SourceFile:
		return index.Load(cfg.Index.Path)
	case config.SourcePostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, sourceError(err)
		}
		defer client.Close()
		return index.LoadSQL(ctx, client.DB, cfg.Index.Table)
	case config.SourceSQLite:
		client, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, sourceError(err)
		}
		defer client.Close()
		return index.LoadSQL(ctx, client.DB, cfg.Index.Table)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown index source %q", cfg.Index.Source)
	}
}

func sourceError(err error) error {
	return &apperrors.AppError{
		Err:        fmt.Errorf("%w: %w", apperrors.ErrIndexSource, err),
		Message:    "opening index source",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Open loads the configured index and digests it under the configured
// weighting scheme.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	start := time.Now()
	log := slog.Default().With("component", "indexer", "source", cfg.Index.Source)

	scheme, err := weighting.Parse(cfg.Retrieval.Scheme)
	if err != nil {
		return nil, err
	}
	idx, err := LoadIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading index from %s: %w", cfg.Index.Source, err)
	}
	stats := idx.Stats()
	log.Info("index loaded",
		"terms", stats.Terms,
		"postings", stats.Postings,
		"documents", stats.Documents,
	)

	d, err := digest.New(idx, scheme)
	if err != nil {
		return nil, fmt.Errorf("digesting index: %w", err)
	}
	return &Engine{
		Digest: d,
		Stats:  stats,
		Source: cfg.Index.Source,
		Took:   time.Since(start),
	}, nil
}
