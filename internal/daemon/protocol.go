// Package daemon implements the warm daemon client and server: a long-lived
// process hosting the semantic embedder and a cross-encoder reranker,
// reached over a length-prefixed JSON-RPC-shaped protocol on a Unix domain
// socket. Every envelope carries an explicit u32-BE length prefix so a
// reader never has to guess where one message ends and the next begins.
package daemon

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// maxFrameBytes bounds a single request/response envelope to guard against
// a corrupt or malicious length prefix causing an unbounded allocation.
const maxFrameBytes = 100 << 20

// RPC method names.
const (
	MethodHealth   = "health"
	MethodEmbed    = "embed"
	MethodRerank   = "rerank"
	MethodShutdown = "shutdown"
)

// Error codes, layered on top of the JSON-RPC 2.0 reserved range.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeOverloaded     = -32001
	ErrCodeTimeout        = -32002
)

// Request is one length-prefixed RPC envelope sent to the daemon.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response is one length-prefixed RPC envelope returned by the daemon.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	ID      string `json:"id"`
}

// RPCError is a JSON-RPC-shaped error payload.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse builds a Response carrying result.
func NewSuccessResponse(id string, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

// NewErrorResponse builds a Response carrying an RPCError.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}, ID: id}
}

// kindToErrCode maps a casserrors.Kind to an RPC error code for responses
// built from internal errors.
func kindToErrCode(kind casserrors.Kind) int {
	switch kind {
	case casserrors.KindOverloaded:
		return ErrCodeOverloaded
	case casserrors.KindTimeout:
		return ErrCodeTimeout
	case casserrors.KindInvalidInput:
		return ErrCodeInvalidParams
	default:
		return ErrCodeInternalError
	}
}

// HealthParams carries no fields; health takes no arguments.
type HealthParams struct{}

// HealthResult reports whether the daemon is ready to serve embed/rerank
// calls, and which embedder it has loaded.
type HealthResult struct {
	Ready      bool   `json:"ready"`
	EmbedderID string `json:"embedder_id,omitempty"`
	UptimeMs   int64  `json:"uptime_ms"`
}

// EmbedParams requests embeddings for a batch of texts.
type EmbedParams struct {
	Texts      []string `json:"texts"`
	EmbedderID string   `json:"embedder_id,omitempty"`
}

// EmbedResult carries one L2-normalized vector per input text, in order.
type EmbedResult struct {
	Vectors [][]float32 `json:"vectors"`
}

// RerankParams requests cross-encoder scores for (query, candidate) pairs.
type RerankParams struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

// RerankResult carries one relevance score per candidate, in order.
type RerankResult struct {
	Scores []float64 `json:"scores"`
}

// ShutdownParams carries no fields.
type ShutdownParams struct{}

// ShutdownResult acknowledges a shutdown request.
type ShutdownResult struct {
	Acknowledged bool `json:"acknowledged"`
}

// writeFrame writes one length-prefixed JSON envelope: a big-endian u32
// byte length followed by that many bytes of JSON.
func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "marshal rpc envelope", err)
	}
	if len(payload) > maxFrameBytes {
		return casserrors.New(casserrors.KindInvalidInput, "rpc envelope too large")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write frame payload", err)
	}
	return nil
}

// readFrame reads one length-prefixed JSON envelope into v.
func readFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "read frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return casserrors.New(casserrors.KindCorrupt, fmt.Sprintf("frame length %d exceeds maximum", n))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "read frame payload", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return casserrors.Wrap(casserrors.KindCorrupt, "unmarshal rpc envelope", err)
	}
	return nil
}
