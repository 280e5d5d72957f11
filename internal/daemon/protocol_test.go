package daemon

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{JSONRPC: "2.0", Method: MethodHealth, ID: "req-1"}
	require.NoError(t, writeFrame(&buf, req))

	var got Request
	require.NoError(t, readFrame(&buf, &got))
	require.Equal(t, req.Method, got.Method)
	require.Equal(t, req.ID, got.ID)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // huge length prefix, no payload
	var out Request
	err := readFrame(&buf, &out)
	require.Error(t, err)
}

func TestNewErrorResponseCarriesCode(t *testing.T) {
	resp := NewErrorResponse("req-1", ErrCodeTimeout, "timed out")
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeTimeout, resp.Error.Code)
}
