// Package lexical implements the BM25 full-text adapter, wrapping Bleve v2
// with a Porter-stemmed code-aware analyzer, a custom tokenizer/stop-filter
// registration, and corruption-detection on open. Indexes message rows
// keyed by message_id with structured filter fields.
package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porterstemmer"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

const (
	codeTokenizerName = "cassette_code_tokenizer"
	codeAnalyzerName  = "cassette_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
}

// Doc is one message chunk to index for lexical search.
type Doc struct {
	MessageID   uint64
	ChunkIdx    uint8
	Content     string
	AgentID     uint32
	WorkspaceID uint32
	SourceID    uint32
	Role        uint8
	CreatedAtMs int64
}

// bleveDoc is the mapped document shape indexed into Bleve.
type bleveDoc struct {
	Content     string `json:"content"`
	AgentID     uint32 `json:"agent_id"`
	WorkspaceID uint32 `json:"workspace_id"`
	SourceID    uint32 `json:"source_id"`
	Role        uint8  `json:"role"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Filter restricts a lexical search to documents matching every populated
// field, mirroring vectorindex.Filter's field-by-field optional semantics.
type Filter struct {
	AgentID     *uint32
	WorkspaceID *uint32
	SourceID    *uint32
	Roles       []uint8
	MinCreated  *int64
	MaxCreated  *int64
}

// Result is one scored lexical hit.
type Result struct {
	MessageID uint64
	ChunkIdx  uint8
	Score     float64
}

// Index wraps a Bleve index over message chunks.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Open opens or creates the index at path. An empty path creates a
// memory-only index, used for tests and ephemeral bake-off runs.
func Open(path string) (*Index, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "build bleve mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, casserrors.Wrap(casserrors.KindFailed, "create lexical index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil && isCorruptionError(err) {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, casserrors.Wrap(casserrors.KindCorrupt, "clear corrupt lexical index", rmErr)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "open bleve index", err)
	}

	return &Index{index: idx, path: path}, nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt")
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			porterstemmer.Name,
		},
	}); err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

func docKey(messageID uint64, chunkIdx uint8) string {
	return strconv.FormatUint(messageID, 10) + ":" + strconv.Itoa(int(chunkIdx))
}

// Index adds or replaces documents in a single batch.
func (idx *Index) Index(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return casserrors.New(casserrors.KindFailed, "lexical index is closed")
	}

	batch := idx.index.NewBatch()
	for _, d := range docs {
		bd := bleveDoc{
			Content:     d.Content,
			AgentID:     d.AgentID,
			WorkspaceID: d.WorkspaceID,
			SourceID:    d.SourceID,
			Role:        d.Role,
			CreatedAtMs: d.CreatedAtMs,
		}
		if err := batch.Index(docKey(d.MessageID, d.ChunkIdx), bd); err != nil {
			return casserrors.Wrap(casserrors.KindFailed, fmt.Sprintf("index doc %d", d.MessageID), err)
		}
	}
	if err := idx.index.Batch(batch); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "execute lexical batch", err)
	}
	return nil
}

// Query runs a BM25 match query against the indexed content, restricted to
// documents matching filter, returning up to limit hits sorted by
// descending score.
func (idx *Index) Query(ctx context.Context, text string, filter *Filter, limit int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, casserrors.New(casserrors.KindFailed, "lexical index is closed")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("content")

	var q = bleve.Query(matchQuery)
	if clauses := filterClauses(filter); len(clauses) > 0 {
		conj := bleve.NewConjunctionQuery(append([]bleve.Query{matchQuery}, clauses...)...)
		q = conj
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "lexical search", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		messageID, chunkIdx, ok := parseDocKey(hit.ID)
		if !ok {
			continue
		}
		out = append(out, Result{MessageID: messageID, ChunkIdx: chunkIdx, Score: hit.Score})
	}
	return out, nil
}

func parseDocKey(key string) (uint64, uint8, bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	messageID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	chunkIdx, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, false
	}
	return messageID, uint8(chunkIdx), true
}

func filterClauses(f *Filter) []bleve.Query {
	if f == nil {
		return nil
	}
	var clauses []bleve.Query
	if f.AgentID != nil {
		nq := bleve.NewNumericRangeQuery(floatPtr(float64(*f.AgentID)), floatPtr(float64(*f.AgentID)))
		nq.SetField("agent_id")
		nq.InclusiveMin = boolPtr(true)
		nq.InclusiveMax = boolPtr(true)
		clauses = append(clauses, nq)
	}
	if f.WorkspaceID != nil {
		nq := bleve.NewNumericRangeQuery(floatPtr(float64(*f.WorkspaceID)), floatPtr(float64(*f.WorkspaceID)))
		nq.SetField("workspace_id")
		nq.InclusiveMin = boolPtr(true)
		nq.InclusiveMax = boolPtr(true)
		clauses = append(clauses, nq)
	}
	if f.SourceID != nil {
		nq := bleve.NewNumericRangeQuery(floatPtr(float64(*f.SourceID)), floatPtr(float64(*f.SourceID)))
		nq.SetField("source_id")
		nq.InclusiveMin = boolPtr(true)
		nq.InclusiveMax = boolPtr(true)
		clauses = append(clauses, nq)
	}
	if len(f.Roles) > 0 {
		var roleClauses []bleve.Query
		for _, r := range f.Roles {
			nq := bleve.NewNumericRangeQuery(floatPtr(float64(r)), floatPtr(float64(r)))
			nq.SetField("role")
			nq.InclusiveMin = boolPtr(true)
			nq.InclusiveMax = boolPtr(true)
			roleClauses = append(roleClauses, nq)
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(roleClauses...))
	}
	if f.MinCreated != nil || f.MaxCreated != nil {
		var min, max *float64
		if f.MinCreated != nil {
			min = floatPtr(float64(*f.MinCreated))
		}
		if f.MaxCreated != nil {
			max = floatPtr(float64(*f.MaxCreated))
		}
		nq := bleve.NewNumericRangeQuery(min, max)
		nq.SetField("created_at_ms")
		nq.InclusiveMin = boolPtr(true)
		nq.InclusiveMax = boolPtr(true)
		clauses = append(clauses, nq)
	}
	return clauses
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

// Delete removes documents by message_id and chunk_idx.
func (idx *Index) Delete(ctx context.Context, messageID uint64, chunkIdx uint8) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return casserrors.New(casserrors.KindFailed, "lexical index is closed")
	}
	return idx.index.Delete(docKey(messageID, chunkIdx))
}

// Content fetches the stored text of one indexed chunk, used by callers
// that need to hydrate a message_id back into text (e.g. to feed the
// reranker) without a separate store lookup.
func (idx *Index) Content(ctx context.Context, messageID uint64, chunkIdx uint8) (string, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return "", false, casserrors.New(casserrors.KindFailed, "lexical index is closed")
	}
	key := docKey(messageID, chunkIdx)
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{key}))
	req.Fields = []string{"content"}
	req.Size = 1

	res, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return "", false, casserrors.Wrap(casserrors.KindFailed, "lexical content lookup", err)
	}
	if len(res.Hits) == 0 {
		return "", false, nil
	}
	content, _ := res.Hits[0].Fields["content"].(string)
	return content, true, nil
}

// Close releases the underlying Bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.index.Close()
}
