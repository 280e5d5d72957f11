package query

import "sort"

// LexHit is one scored lexical search hit, as returned by internal/lexical.
type LexHit struct {
	MessageID uint64
	ChunkIdx  uint8
	Score     float64
}

// VecHit is one scored vector search hit, as returned by internal/vectorindex
// or internal/ann.
type VecHit struct {
	MessageID uint64
	ChunkIdx  uint8
	Score     float64
}

// Blended is one fused hybrid result.
type Blended struct {
	MessageID uint64
	ChunkIdx  uint8
	LexScore  float64
	VecScore  float64
	Score     float64
}

// DefaultSemanticWeight is the default weight given to the vector leg when
// blending; configurable per query.
const DefaultSemanticWeight = 0.5

// Blend combines lexical and vector hits via min-max normalization of each
// side to [0,1] followed by a weighted sum. A message present on only one
// side contributes 0 for the missing side rather than being dropped or
// excluded (see DESIGN.md for the rationale).
func Blend(lex []LexHit, vec []VecHit, semanticWeight float64) []Blended {
	lexNorm := minMaxNormalizeLex(lex)
	vecNorm := minMaxNormalizeVec(vec)

	type key struct {
		messageID uint64
		chunkIdx  uint8
	}
	combined := make(map[key]*Blended)
	order := make([]key, 0, len(lex)+len(vec))

	for i, h := range lex {
		k := key{h.MessageID, h.ChunkIdx}
		combined[k] = &Blended{MessageID: h.MessageID, ChunkIdx: h.ChunkIdx, LexScore: lexNorm[i]}
		order = append(order, k)
	}
	for i, h := range vec {
		k := key{h.MessageID, h.ChunkIdx}
		if existing, ok := combined[k]; ok {
			existing.VecScore = vecNorm[i]
			continue
		}
		combined[k] = &Blended{MessageID: h.MessageID, ChunkIdx: h.ChunkIdx, VecScore: vecNorm[i]}
		order = append(order, k)
	}

	out := make([]Blended, 0, len(order))
	seen := make(map[key]bool, len(order))
	for _, k := range order {
		if seen[k] {
			continue
		}
		seen[k] = true
		b := combined[k]
		b.Score = semanticWeight*b.VecScore + (1-semanticWeight)*b.LexScore
		out = append(out, *b)
	}

	sortBlended(out)
	return out
}

// sortBlended orders blended results by score descending, then message_id
// ascending, then chunk_idx ascending, for deterministic tie-breaking.
func sortBlended(out []Blended) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].MessageID != out[j].MessageID {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].ChunkIdx < out[j].ChunkIdx
	})
}

func minMaxNormalizeLex(hits []LexHit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	out := make([]float64, len(hits))
	span := max - min
	for i, h := range hits {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - min) / span
	}
	return out
}

func minMaxNormalizeVec(hits []VecHit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	out := make([]float64, len(hits))
	span := max - min
	for i, h := range hits {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - min) / span
	}
	return out
}
