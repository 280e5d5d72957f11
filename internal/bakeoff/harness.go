package bakeoff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

// JudgedQuery is one query paired with the relevance grade (0 = irrelevant,
// higher = more relevant) a human judge assigned to each message_id in the
// corpus. Only message_ids present here are scored; everything else in the
// corpus is implicitly irrelevant.
type JudgedQuery struct {
	Query     string
	Relevance map[uint64]float64
}

// CorpusHash fingerprints a set of judged queries so two bake-off runs can
// be compared only when they ran against the same labeled set.
func CorpusHash(queries []JudgedQuery) string {
	h := sha256.New()
	for _, q := range queries {
		h.Write([]byte(q.Query))
		ids := make([]uint64, 0, len(q.Relevance))
		for id := range q.Relevance {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			h.Write([]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run evaluates embedder against idx over the judged query set, producing
// an NDCG@10 and cold-start/warm-latency Report. idx must hold vectors
// produced by the same embedder (embedder.ID() is not checked here; a
// mismatched embedder requires a rebuild, enforced one layer up by the
// caller).
func Run(ctx context.Context, embedder embedregistry.Embedder, idx *vectorindex.VectorIndex, queries []JudgedQuery) (Report, error) {
	const k = 10

	coldStart := time.Now()
	if _, err := embedder.Embed(ctx, "warmup"); err != nil {
		return Report{}, err
	}
	coldStartMs := time.Since(coldStart).Milliseconds()

	var ndcgs []float64
	var latencies []time.Duration

	for _, q := range queries {
		start := time.Now()
		vec, err := embedder.Embed(ctx, q.Query)
		if err != nil {
			return Report{}, err
		}
		results, err := idx.SearchTopK(ctx, vec, k, nil, true)
		if err != nil {
			return Report{}, err
		}
		latencies = append(latencies, time.Since(start))

		relevances := make([]float64, len(results))
		for i, r := range results {
			relevances[i] = q.Relevance[r.Row.MessageID]
		}
		ndcgs = append(ndcgs, NDCGAtK(relevances, k))
	}

	meanNDCG := 0.0
	for _, v := range ndcgs {
		meanNDCG += v
	}
	if len(ndcgs) > 0 {
		meanNDCG /= float64(len(ndcgs))
	}

	return Report{
		EmbedderID:  embedder.ID(),
		CorpusHash:  CorpusHash(queries),
		NDCGAt10:    meanNDCG,
		Latency:     StatsFromDurations(latencies),
		ColdStartMs: coldStartMs,
	}, nil
}
