package ann

import (
	"encoding/binary"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// chswMagic is the CHSW file magic.
const chswMagic = "CHSW"

// chswVersion is the current CHSW format version.
const chswVersion uint16 = 1

// chswHeader is the decoded fixed-layout header at the start of a CHSW
// file: magic, version, length-prefixed embedder id, dimension, and node
// count. The graph export and parameter block follow, each framed by its
// own little-endian uint64 length.
type chswHeader struct {
	Version    uint16
	EmbedderID string
	Dimension  uint32
	Count      uint32
	headerLen  int // total encoded byte length
}

func encodeCHSWHeader(h chswHeader) []byte {
	buf := make([]byte, 0, 16+len(h.EmbedderID))
	buf = append(buf, []byte(chswMagic)...)
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(h.EmbedderID)))
	buf = append(buf, h.EmbedderID...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Dimension)
	buf = binary.LittleEndian.AppendUint32(buf, h.Count)
	return buf
}

// decodeCHSWHeader parses and validates the magic/version of the header at
// the start of data, returning the length of the header so the caller can
// locate the graph_len field that follows.
func decodeCHSWHeader(data []byte) (chswHeader, error) {
	if len(data) < 4 {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "file too short for magic")
	}
	if string(data[0:4]) != chswMagic {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "bad magic")
	}
	pos := 4

	if len(data) < pos+2 {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "truncated version")
	}
	version := binary.LittleEndian.Uint16(data[pos : pos+2])
	pos += 2
	if version != chswVersion {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "unsupported version")
	}

	if len(data) < pos+2 {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "truncated embedder_id length")
	}
	idLen := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if len(data) < pos+idLen {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "truncated embedder_id")
	}
	embedderID := string(data[pos : pos+idLen])
	pos += idLen

	if len(data) < pos+4+4 {
		return chswHeader{}, casserrors.New(casserrors.KindCorrupt, "truncated header tail")
	}
	dimension := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4
	count := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	return chswHeader{
		Version:    version,
		EmbedderID: embedderID,
		Dimension:  dimension,
		Count:      count,
		headerLen:  pos,
	}, nil
}

// readCHSWBlock reads a little-endian uint64 length prefix at pos followed
// by that many bytes, returning the block and the position just past it.
func readCHSWBlock(data []byte, pos int, what string) ([]byte, int, error) {
	if len(data) < pos+8 {
		return nil, 0, casserrors.New(casserrors.KindCorrupt, "truncated "+what+" length")
	}
	n := binary.LittleEndian.Uint64(data[pos : pos+8])
	pos += 8
	if n > uint64(len(data)-pos) {
		return nil, 0, casserrors.New(casserrors.KindCorrupt, "truncated "+what+" bytes")
	}
	end := pos + int(n)
	return data[pos:end], end, nil
}
