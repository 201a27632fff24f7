package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/tracing"
)

// ShardRange is an inclusive range of document ids scored by one goroutine.
type ShardRange struct {
	ID    int
	First int
	Last  int
}

// Partition splits 1..n into at most shards contiguous ranges whose sizes
// differ by at most one. Empty ranges are never produced.
func Partition(n, shards int) []ShardRange {
	if n <= 0 {
		return nil
	}
	shards = min(max(shards, 1), n)
	ranges := make([]ShardRange, 0, shards)
	size, extra := n/shards, n%shards
	first := 1
	for i := 0; i < shards; i++ {
		count := size
		if i < extra {
			count++
		}
		ranges = append(ranges, ShardRange{ID: i, First: first, Last: first + count - 1})
		first += count
	}
	return ranges
}

func (e *Executor) executeSharded(ctx context.Context, q index.Query, norm float64, limit int) ([]ranker.ScoredDoc, int, error) {
	ranges := Partition(e.scorer.Digest().CollectionSize(), e.shards)
	shardResults := make([][]ranker.ScoredDoc, len(ranges))
	shardHits := make([]int, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			_, span := tracing.StartChildSpan(gctx, "executor.shard")
			defer span.End()
			span.SetAttr("shard", r.ID)
			span.SetAttr("first_doc", r.First)
			span.SetAttr("last_doc", r.Last)

			if err := gctx.Err(); err != nil {
				return fmt.Errorf("shard %d: %w", r.ID, err)
			}
			scored := e.scorer.ScoreRange(q, norm, r.First, r.Last)
			shardHits[i] = countHits(scored)
			shardResults[i] = ranker.TopK(scored, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("shard scoring failed", "shards", len(ranges), "error", err)
		return nil, 0, fmt.Errorf("shard fan-out: %w", err)
	}

	hits := 0
	for _, h := range shardHits {
		hits += h
	}
	return merger.Merge(shardResults, limit), hits, nil
}
