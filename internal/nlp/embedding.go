package nlp

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/askdb-io/askdb-core/internal/catalog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// embeddingIndex lazily embeds the catalog patterns on first use. The
// singleflight group guarantees exactly one initializer runs under concurrent
// first access; everyone else waits for its result. Embedding inference is
// heavyweight, so all embedder calls pass through a weighted semaphore to
// keep them off the paths other sessions are suspended on.
type embeddingIndex struct {
	catalog  *catalog.Catalog
	embedder Embedder
	sem      *semaphore.Weighted
	group    singleflight.Group
	ready    atomic.Bool
	vectors  [][]float32
}

func newEmbeddingIndex(cat *catalog.Catalog, embedder Embedder, maxInflight int) *embeddingIndex {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &embeddingIndex{
		catalog:  cat,
		embedder: embedder,
		sem:      semaphore.NewWeighted(int64(maxInflight)),
	}
}

func (x *embeddingIndex) init(ctx context.Context) error {
	if x.ready.Load() {
		return nil
	}
	_, err, _ := x.group.Do("init", func() (any, error) {
		if x.ready.Load() {
			return nil, nil
		}
		patterns := x.catalog.AllPatterns()
		vectors := make([][]float32, len(patterns))
		for i, p := range patterns {
			v, err := x.embed(ctx, Normalize(p))
			if err != nil {
				return nil, fmt.Errorf("embed pattern %q: %w", p, err)
			}
			vectors[i] = v
		}
		x.vectors = vectors
		x.ready.Store(true)
		return nil, nil
	})
	return err
}

func (x *embeddingIndex) embed(ctx context.Context, text string) ([]float32, error) {
	if err := x.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer x.sem.Release(1)
	return x.embedder.Embed(ctx, text)
}

func (x *embeddingIndex) match(ctx context.Context, normalized string, threshold float64) (*Match, error) {
	if err := x.init(ctx); err != nil {
		return nil, err
	}

	input, err := x.embed(ctx, normalized)
	if err != nil {
		return nil, err
	}

	patterns := x.catalog.AllPatterns()
	bestIdx := -1
	var bestScore float64
	for i, v := range x.vectors {
		score := cosineSimilarity(input, v)
		if bestIdx < 0 || score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	if bestIdx < 0 || bestScore < threshold {
		return nil, nil
	}
	pattern := patterns[bestIdx]
	tpl, ok := x.catalog.TemplateFor(pattern)
	if !ok {
		return nil, nil
	}
	return &Match{Template: tpl, Pattern: pattern, Score: bestScore}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
