package twotier

import "github.com/cassette-engine/cassette/internal/casserrors"

// Row is one document's fast and quality embeddings.
type Row struct {
	ID            DocID
	FastVector    []float32
	QualityVector []float32
}

// Config holds the two-tier searcher's construction and runtime knobs.
type Config struct {
	FastDimension     int
	QualityDimension  int
	QualityWeight     float64 // default 0.7
	MaxRefinementDocs int
	FastOnly          bool
	QualityOnly       bool

	// QualityEmbedderID names the embedder the warm daemon should use for
	// the refinement pass (passed through to daemon.Client.Embed).
	QualityEmbedderID string
}

// DefaultQualityWeight is used when Config.QualityWeight is zero.
const DefaultQualityWeight = 0.7

// Index holds fast/quality vector pairs keyed by document ID. Dimensions
// are validated once here, at construction, rather than per query.
type Index struct {
	cfg  Config
	rows map[string]Row
	ids  []DocID
}

// New validates every row's vector dimensions against cfg and builds an
// Index. A dimension mismatch anywhere in rows is a construction-time
// error, never a query-time one.
func New(cfg Config, rows []Row) (*Index, error) {
	if cfg.FastDimension <= 0 {
		return nil, casserrors.New(casserrors.KindInvalidInput, "fast dimension must be positive")
	}
	if !cfg.FastOnly && cfg.QualityDimension <= 0 {
		return nil, casserrors.New(casserrors.KindInvalidInput, "quality dimension must be positive unless fast_only")
	}
	if cfg.QualityWeight == 0 {
		cfg.QualityWeight = DefaultQualityWeight
	}

	idx := &Index{cfg: cfg, rows: make(map[string]Row, len(rows)), ids: make([]DocID, 0, len(rows))}
	for _, r := range rows {
		if len(r.FastVector) != cfg.FastDimension {
			return nil, casserrors.New(casserrors.KindInvalidInput, "row has wrong fast vector dimension").
				WithDetail("doc_id", r.ID.String())
		}
		if !cfg.FastOnly && r.QualityVector != nil && len(r.QualityVector) != cfg.QualityDimension {
			return nil, casserrors.New(casserrors.KindInvalidInput, "row has wrong quality vector dimension").
				WithDetail("doc_id", r.ID.String())
		}
		key := r.ID.key()
		if _, exists := idx.rows[key]; !exists {
			idx.ids = append(idx.ids, r.ID)
		}
		idx.rows[key] = r
	}
	return idx, nil
}

// Len reports the number of distinct document IDs held.
func (idx *Index) Len() int { return len(idx.ids) }
