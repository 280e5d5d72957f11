// Package vectorindex implements the CVVI on-disk vector index: binary
// header + row table + aligned vector slab, atomic save, full-read
// "mmap-style" load with byte-offset accessors, and exact top-k search with
// a runtime-dispatched dot product and chunked parallel scan.
package vectorindex

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf8"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// Magic is the CVVI file magic.
const Magic = "CVVI"

// Version is the current CVVI format version.
const Version uint16 = 1

// Quantization selects the on-disk vector component width.
type Quantization uint8

const (
	QuantF32 Quantization = 0
	QuantF16 Quantization = 1
)

// BytesPerComponent returns 4 for f32, 2 for f16.
func (q Quantization) BytesPerComponent() int {
	if q == QuantF16 {
		return 2
	}
	return 4
}

// Role mirrors the message row's role field.
type Role uint8

const (
	RoleUser Role = iota
	RoleAssistant
	RoleSystem
	RoleTool
)

// RowSize is the fixed on-disk size of one row record.
const RowSize = 70

// SlabAlignment is the byte alignment of the vector slab from file start.
const SlabAlignment = 32

// Row is one fixed-size 70-byte record in the row table.
type Row struct {
	MessageID   uint64
	CreatedAtMs int64
	AgentID     uint32
	WorkspaceID uint32
	SourceID    uint32
	Role        Role
	ChunkIdx    uint8
	VecOffset   uint64
	ContentHash [32]byte
}

// encode writes the row in its fixed 70-byte little-endian layout.
func (r Row) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.MessageID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.CreatedAtMs))
	binary.LittleEndian.PutUint32(buf[16:20], r.AgentID)
	binary.LittleEndian.PutUint32(buf[20:24], r.WorkspaceID)
	binary.LittleEndian.PutUint32(buf[24:28], r.SourceID)
	buf[28] = byte(r.Role)
	buf[29] = r.ChunkIdx
	binary.LittleEndian.PutUint64(buf[30:38], r.VecOffset)
	copy(buf[38:70], r.ContentHash[:])
}

func decodeRow(buf []byte) Row {
	var r Row
	r.MessageID = binary.LittleEndian.Uint64(buf[0:8])
	r.CreatedAtMs = int64(binary.LittleEndian.Uint64(buf[8:16]))
	r.AgentID = binary.LittleEndian.Uint32(buf[16:20])
	r.WorkspaceID = binary.LittleEndian.Uint32(buf[20:24])
	r.SourceID = binary.LittleEndian.Uint32(buf[24:28])
	r.Role = Role(buf[28])
	r.ChunkIdx = buf[29]
	r.VecOffset = binary.LittleEndian.Uint64(buf[30:38])
	copy(r.ContentHash[:], buf[38:70])
	return r
}

// header is the decoded CVVI header.
type header struct {
	Version           uint16
	EmbedderID        string
	EmbedderRevision  string
	Dimension         uint32
	Quantization      Quantization
	Count             uint32
	headerLen         int // total encoded byte length, including CRC
}

// encodeHeader serializes the header (everything except the trailing CRC-32)
// and appends the CRC-32 of those preceding bytes.
func encodeHeader(h header) []byte {
	buf := make([]byte, 0, 64+len(h.EmbedderID)+len(h.EmbedderRevision))
	buf = append(buf, []byte(Magic)...)
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = appendLenPrefixed(buf, h.EmbedderID)
	buf = appendLenPrefixed(buf, h.EmbedderRevision)
	buf = binary.LittleEndian.AppendUint32(buf, h.Dimension)
	buf = append(buf, byte(h.Quantization))
	buf = binary.LittleEndian.AppendUint32(buf, h.Count)
	crc := crc32.ChecksumIEEE(buf)
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	return buf
}

func appendLenPrefixed(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// decodeHeader parses and CRC-validates the header at the start of data.
func decodeHeader(data []byte) (header, error) {
	if len(data) < 4 {
		return header{}, casserrors.New(casserrors.KindCorrupt, "file too short for magic")
	}
	if string(data[0:4]) != Magic {
		return header{}, casserrors.New(casserrors.KindCorrupt, "bad magic")
	}
	pos := 4
	if len(data) < pos+2 {
		return header{}, casserrors.New(casserrors.KindCorrupt, "truncated version")
	}
	version := binary.LittleEndian.Uint16(data[pos : pos+2])
	pos += 2
	if version != Version {
		return header{}, casserrors.New(casserrors.KindCorrupt, "unsupported version")
	}

	embedderID, pos, err := readLenPrefixed(data, pos)
	if err != nil {
		return header{}, err
	}
	if !utf8.ValidString(embedderID) {
		return header{}, casserrors.New(casserrors.KindCorrupt, "embedder_id not valid utf8")
	}

	embedderRevision, pos, err := readLenPrefixed(data, pos)
	if err != nil {
		return header{}, err
	}

	if len(data) < pos+4+1+4+4 {
		return header{}, casserrors.New(casserrors.KindCorrupt, "truncated header tail")
	}
	dimension := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4
	quant := Quantization(data[pos])
	pos++
	count := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	crcFieldStart := pos
	wantCRC := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	gotCRC := crc32.ChecksumIEEE(data[0:crcFieldStart])
	if gotCRC != wantCRC {
		return header{}, casserrors.New(casserrors.KindCorrupt, "header CRC mismatch")
	}

	return header{
		Version:          version,
		EmbedderID:       embedderID,
		EmbedderRevision: embedderRevision,
		Dimension:        dimension,
		Quantization:     quant,
		Count:            count,
		headerLen:        pos,
	}, nil
}

func readLenPrefixed(data []byte, pos int) (string, int, error) {
	if len(data) < pos+2 {
		return "", 0, casserrors.New(casserrors.KindCorrupt, "truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if len(data) < pos+n {
		return "", 0, casserrors.New(casserrors.KindCorrupt, "truncated length-prefixed field")
	}
	s := string(data[pos : pos+n])
	return s, pos + n, nil
}

// alignUp rounds n up to the next multiple of align.
func alignUp(n, align int) int {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
