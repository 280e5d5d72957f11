package query

import "testing"

func TestBlendOrdersByWeightedScoreDescending(t *testing.T) {
	lex := []LexHit{
		{MessageID: 1, Score: 1.0},
		{MessageID: 2, Score: 5.0},
	}
	vec := []VecHit{
		{MessageID: 1, Score: 0.9},
		{MessageID: 2, Score: 0.1},
	}
	out := Blend(lex, vec, 0.7)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].MessageID != 1 {
		t.Fatalf("top result message_id = %d, want 1 (boosted by vector leg)", out[0].MessageID)
	}
}

func TestBlendMissingLegContributesZero(t *testing.T) {
	lex := []LexHit{{MessageID: 1, Score: 3.0}}
	vec := []VecHit{{MessageID: 2, Score: 0.8}}
	out := Blend(lex, vec, 0.5)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (union of both legs)", len(out))
	}
	for _, b := range out {
		if b.MessageID == 1 && b.VecScore != 0 {
			t.Fatalf("message 1 has no vector hit, want VecScore 0, got %v", b.VecScore)
		}
		if b.MessageID == 2 && b.LexScore != 0 {
			t.Fatalf("message 2 has no lexical hit, want LexScore 0, got %v", b.LexScore)
		}
	}
}

func TestBlendTieBreaksByMessageIDThenChunkIdx(t *testing.T) {
	lex := []LexHit{
		{MessageID: 5, ChunkIdx: 1, Score: 1.0},
		{MessageID: 5, ChunkIdx: 0, Score: 1.0},
		{MessageID: 3, ChunkIdx: 0, Score: 1.0},
	}
	out := Blend(lex, nil, 0.5)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if out[0].MessageID != 3 {
		t.Fatalf("first result message_id = %d, want 3 (lowest id on tie)", out[0].MessageID)
	}
	if out[1].MessageID != 5 || out[1].ChunkIdx != 0 {
		t.Fatalf("second result = {%d,%d}, want {5,0}", out[1].MessageID, out[1].ChunkIdx)
	}
	if out[2].MessageID != 5 || out[2].ChunkIdx != 1 {
		t.Fatalf("third result = {%d,%d}, want {5,1}", out[2].MessageID, out[2].ChunkIdx)
	}
}

func TestBlendDegenerateScoresAllNormalizeToOne(t *testing.T) {
	lex := []LexHit{
		{MessageID: 1, Score: 2.0},
		{MessageID: 2, Score: 2.0},
	}
	out := Blend(lex, nil, 0.5)
	for _, b := range out {
		if b.LexScore != 1 {
			t.Fatalf("LexScore = %v, want 1 when all scores equal", b.LexScore)
		}
	}
}

func TestBlendEmptyInputsReturnsEmpty(t *testing.T) {
	out := Blend(nil, nil, 0.5)
	if len(out) != 0 {
		t.Fatalf("len(out) = %d, want 0", len(out))
	}
}
