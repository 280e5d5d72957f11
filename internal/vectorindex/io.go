package vectorindex

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/gofrs/flock"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/simdsearch"
)

// isLittleEndianHost reports whether the running process is little-endian.
// CVVI is little-endian only; loading/saving on a big-endian host must be
// refused rather than silently byte-swapping.
func isLittleEndianHost() bool {
	var i uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&i))
	return b[0] == 1
}

// Save writes v to path atomically: write to a temp file, fsync it, rename
// over the destination, then fsync the parent directory. A gofrs/flock
// advisory lock on the destination directory guards against a concurrent
// rebuilder racing the same rename.
func (v *VectorIndex) Save(path string) error {
	if !isLittleEndianHost() {
		return casserrors.New(casserrors.KindFailed, "refusing to save CVVI on a big-endian host")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "create vector index directory", err)
	}

	lock := flock.New(filepath.Join(dir, ".cvvi.lock"))
	if err := lock.Lock(); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "lock vector index directory", err)
	}
	defer lock.Unlock()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "create temp cvvi file", err)
	}

	if err := v.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "fsync temp cvvi file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "close temp cvvi file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "rename temp cvvi file", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}

	return nil
}

func (v *VectorIndex) writeTo(f *os.File) error {
	h := header{
		Version:          Version,
		EmbedderID:       v.EmbedderID,
		EmbedderRevision: v.EmbedderRevision,
		Dimension:        uint32(v.Dimension),
		Quantization:     v.Quantization,
		Count:            uint32(len(v.Rows)),
	}
	headerBytes := encodeHeader(h)
	if _, err := f.Write(headerBytes); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write header", err)
	}

	rowBuf := make([]byte, RowSize*len(v.Rows))
	for i, row := range v.Rows {
		row.encode(rowBuf[i*RowSize : (i+1)*RowSize])
	}
	if _, err := f.Write(rowBuf); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write rows", err)
	}

	written := len(headerBytes) + len(rowBuf)
	padded := alignUp(written, SlabAlignment)
	if pad := padded - written; pad > 0 {
		if _, err := f.Write(make([]byte, pad)); err != nil {
			return casserrors.Wrap(casserrors.KindFailed, "write padding", err)
		}
	}

	slabBytes := v.encodeSlab()
	if _, err := f.Write(slabBytes); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write slab", err)
	}
	return nil
}

func (v *VectorIndex) encodeSlab() []byte {
	bytesPer := v.Quantization.BytesPerComponent()
	n := len(v.Rows) * v.Dimension
	buf := make([]byte, n*bytesPer)
	if v.Quantization == QuantF16 {
		src := v.slabF16
		if src == nil {
			// Derive from slabF32 if the index was built F32 but is being
			// saved under F16 quantization (re-quantization on save).
			src = make([]uint16, n)
			for i, f := range v.slabF32 {
				src[i] = simdsearch.F32ToF16(f)
			}
		}
		for i, h := range src {
			binary.LittleEndian.PutUint16(buf[i*2:i*2+2], h)
		}
		return buf
	}
	for i, val := range v.slabF32 {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(val))
	}
	return buf
}

// Load reads path, CRC-validates the header, parses the row table, and
// either keeps the slab as raw bytes (F16, mmap-style) or eagerly converts
// to F32 when preconvert is true.
func Load(path string, preconvert bool) (*VectorIndex, error) {
	if !isLittleEndianHost() {
		return nil, casserrors.New(casserrors.KindFailed, "refusing to load CVVI on a big-endian host")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "read cvvi file", err)
	}

	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	rowsStart := h.headerLen
	rowsLen := int(h.Count) * RowSize
	if len(data) < rowsStart+rowsLen {
		return nil, casserrors.New(casserrors.KindCorrupt, "file too short for row table")
	}

	rows := make([]Row, h.Count)
	for i := 0; i < int(h.Count); i++ {
		off := rowsStart + i*RowSize
		rows[i] = decodeRow(data[off : off+RowSize])
	}

	slabStart := alignUp(rowsStart+rowsLen, SlabAlignment)
	bytesPer := Quantization(h.Quantization).BytesPerComponent()
	slabLen := int(h.Count) * int(h.Dimension) * bytesPer
	if len(data) != slabStart+slabLen {
		return nil, casserrors.New(casserrors.KindCorrupt, "file length mismatch").
			WithDetail("expected", itoa(slabStart+slabLen)).
			WithDetail("got", itoa(len(data)))
	}

	for i, row := range rows {
		if int(row.VecOffset)%bytesPer != 0 {
			return nil, casserrors.New(casserrors.KindCorrupt, "row vec_offset not aligned").WithDetail("row", itoa(i))
		}
		if int(row.VecOffset)+int(h.Dimension)*bytesPer > slabLen {
			return nil, casserrors.New(casserrors.KindCorrupt, "row vec_offset out of bounds").WithDetail("row", itoa(i))
		}
	}

	v := &VectorIndex{
		EmbedderID:       h.EmbedderID,
		EmbedderRevision: h.EmbedderRevision,
		Dimension:        int(h.Dimension),
		Quantization:     Quantization(h.Quantization),
		Rows:             rows,
	}

	slabBytes := data[slabStart : slabStart+slabLen]
	if v.Quantization == QuantF16 {
		n := int(h.Count) * int(h.Dimension)
		slab := make([]uint16, n)
		for i := 0; i < n; i++ {
			slab[i] = binary.LittleEndian.Uint16(slabBytes[i*2 : i*2+2])
		}
		v.slabF16 = slab
		if preconvert {
			v.Preconvert()
		}
	} else {
		n := int(h.Count) * int(h.Dimension)
		slab := make([]float32, n)
		for i := 0; i < n; i++ {
			slab[i] = math.Float32frombits(binary.LittleEndian.Uint32(slabBytes[i*4 : i*4+4]))
		}
		v.slabF32 = slab
	}

	return v, nil
}
