package vectorindex

import (
	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/simdsearch"
)

// Entry is one input row to Build: a message row plus its embedding vector.
type Entry struct {
	MessageID   uint64
	CreatedAtMs int64
	AgentID     uint32
	WorkspaceID uint32
	SourceID    uint32
	Role        Role
	ChunkIdx    uint8
	ContentHash [32]byte
	Vector      []float32
}

// VectorIndex is the in-memory, immutable, shared-safe view mirroring the
// on-disk CVVI layout. Constructed once and exposed as a read-only view:
// every search method is pure and safe to call concurrently.
type VectorIndex struct {
	EmbedderID       string
	EmbedderRevision string
	Dimension        int
	Quantization     Quantization
	Rows             []Row

	slabF32      []float32 // one contiguous Dimension-wide row per entry, present when Quantization==F32 or preconverted
	slabF16      []uint16  // present when Quantization==F16 and not preconverted
	preconverted bool
}

// Build validates every entry's vector dimension, assigns sequential
// vec_offsets, and constructs the in-memory representation.
func Build(embedderID, revision string, dimension int, quant Quantization, entries []Entry) (*VectorIndex, error) {
	if dimension <= 0 {
		return nil, casserrors.New(casserrors.KindInvalidInput, "dimension must be positive")
	}
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return nil, casserrors.New(casserrors.KindInvalidInput, "entry has wrong dimension").
				WithDetail("index", itoa(i)).
				WithDetail("expected", itoa(dimension)).
				WithDetail("got", itoa(len(e.Vector)))
		}
	}

	rows := make([]Row, len(entries))
	bytesPer := quant.BytesPerComponent()

	if quant == QuantF16 {
		slab := make([]uint16, len(entries)*dimension)
		for i, e := range entries {
			rows[i] = Row{
				MessageID: e.MessageID, CreatedAtMs: e.CreatedAtMs,
				AgentID: e.AgentID, WorkspaceID: e.WorkspaceID, SourceID: e.SourceID,
				Role: e.Role, ChunkIdx: e.ChunkIdx,
				VecOffset:   uint64(i * dimension * bytesPer),
				ContentHash: e.ContentHash,
			}
			for j, v := range e.Vector {
				slab[i*dimension+j] = simdsearch.F32ToF16(v)
			}
		}
		return &VectorIndex{
			EmbedderID: embedderID, EmbedderRevision: revision,
			Dimension: dimension, Quantization: quant, Rows: rows,
			slabF16: slab,
		}, nil
	}

	slab := make([]float32, len(entries)*dimension)
	for i, e := range entries {
		rows[i] = Row{
			MessageID: e.MessageID, CreatedAtMs: e.CreatedAtMs,
			AgentID: e.AgentID, WorkspaceID: e.WorkspaceID, SourceID: e.SourceID,
			Role: e.Role, ChunkIdx: e.ChunkIdx,
			VecOffset:   uint64(i * dimension * bytesPer),
			ContentHash: e.ContentHash,
		}
		copy(slab[i*dimension:(i+1)*dimension], e.Vector)
	}
	return &VectorIndex{
		EmbedderID: embedderID, EmbedderRevision: revision,
		Dimension: dimension, Quantization: quant, Rows: rows,
		slabF32: slab,
	}, nil
}

// VectorAt returns the dimension-wide vector for row index i, materializing
// an F32 view on the fly when the slab is stored as F16 and not preconverted.
func (v *VectorIndex) VectorAt(i int) []float32 {
	if v.slabF32 != nil {
		return v.slabF32[i*v.Dimension : (i+1)*v.Dimension]
	}
	start := i * v.Dimension
	out := make([]float32, v.Dimension)
	for j := 0; j < v.Dimension; j++ {
		out[j] = simdsearch.F16ToF32(v.slabF16[start+j])
	}
	return out
}

// Count returns the number of rows.
func (v *VectorIndex) Count() int { return len(v.Rows) }

// Preconvert eagerly converts an F16 slab to F32, matching the default
// CASS_F16_PRECONVERT behavior for faster query-time dot products.
func (v *VectorIndex) Preconvert() {
	if v.slabF32 != nil || v.slabF16 == nil {
		return
	}
	out := make([]float32, len(v.slabF16))
	for i, h := range v.slabF16 {
		out[i] = simdsearch.F16ToF32(h)
	}
	v.slabF32 = out
	v.preconverted = true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
