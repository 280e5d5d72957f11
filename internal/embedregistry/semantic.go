package embedregistry

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// InferenceBackend performs the tokenize -> model-inference -> pooling step
// for a semantic embedder. Production builds plug in an ONNX Runtime binding
// here; this pack's retrieved dependency set has no such binding (the
// teacher's MLX/Metal path uses ebitengine/purego for a different native
// runtime entirely — see DESIGN.md for why it isn't wired), so
// SemanticEmbedder is built against this seam and exercised in tests with
// DeterministicBackend, a pure-Go stand-in with the same tokenize-then-pool
// shape but no native dependency.
type InferenceBackend interface {
	// Infer returns one unnormalized pooled vector per input text.
	Infer(ctx context.Context, texts []string, dimension int) ([][]float32, error)
}

// SemanticEmbedder wraps an InferenceBackend behind the Embedder contract,
// validating the model directory's required files on construction: a model
// directory is expected to contain model.onnx, tokenizer.json, config.json,
// special_tokens_map.json, and tokenizer_config.json.
type SemanticEmbedder struct {
	descriptor Descriptor
	backend    InferenceBackend
}

// NewSemanticEmbedder validates the descriptor's required files are present
// under modelsDir and returns a ready embedder, or KindUnavailable if any
// file is missing.
func NewSemanticEmbedder(descriptor Descriptor, modelsDir string, backend InferenceBackend) (*SemanticEmbedder, error) {
	if !descriptor.IsSemantic {
		return nil, newInvalidInput("descriptor " + descriptor.ID + " is not semantic")
	}
	if missing := missingModelFiles(modelsDir, descriptor); len(missing) > 0 {
		return nil, newUnavailable("model files missing for " + descriptor.ID + ": " + strings.Join(missing, ", ")).
			WithDetail("model_dir", filepath.Join(modelsDir, descriptor.ModelDirName))
	}
	if backend == nil {
		return nil, newUnavailable("no inference backend configured for " + descriptor.ID)
	}
	return &SemanticEmbedder{descriptor: descriptor, backend: backend}, nil
}

func (e *SemanticEmbedder) ID() string       { return e.descriptor.ID }
func (e *SemanticEmbedder) Dimension() int   { return e.descriptor.Dimension }
func (e *SemanticEmbedder) IsSemantic() bool { return true }

// Embed tokenizes, infers, pools and L2-normalizes a single text.
func (e *SemanticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch tokenizes, infers, pools and L2-normalizes each text.
func (e *SemanticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, newInvalidInput("embed batch: empty input")
	}
	select {
	case <-ctx.Done():
		return nil, casserrors.New(casserrors.KindCancelled, "embed batch cancelled")
	default:
	}
	raw, err := e.backend.Infer(ctx, texts, e.descriptor.Dimension)
	if err != nil {
		return nil, newFailed("inference failed for "+e.descriptor.ID, err)
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != e.descriptor.Dimension {
			return nil, newFailed("backend returned wrong dimension", nil)
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

var _ Embedder = (*SemanticEmbedder)(nil)

// DeterministicBackend is a pure-Go InferenceBackend stand-in: it derives a
// pooled vector from the same FNV-1a token-hashing scheme as HashEmbedder,
// so tests can exercise SemanticEmbedder's load-validate-pool-normalize path
// without a native ONNX runtime dependency.
type DeterministicBackend struct{}

func (DeterministicBackend) Infer(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dimension)
		for _, tok := range tokenize(t) {
			v[hashToIndex1a(tok, dimension)] += 1.0
		}
		out[i] = v
	}
	return out, nil
}

var _ InferenceBackend = DeterministicBackend{}
