package ipcexec

import (
	"io"
	"testing"

	"github.com/filegrind/capforge/bifaci"
	"github.com/filegrind/capforge/planexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeArgumentsMarshalsByName(t *testing.T) {
	payload, err := encodeArguments([]planexec.ArgValue{
		{Name: "doc", MediaUrn: "media:textable", Value: "hello"},
		{Name: "quality", MediaUrn: "media:integer", Value: float64(80)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc":"hello","quality":80}`, string(payload))
}

func TestReadResponseConcatenatesChunkedStream(t *testing.T) {
	pr, pw := io.Pipe()
	reader := bifaci.NewFrameReader(pr)
	writer := bifaci.NewFrameWriter(pw)

	reqID := bifaci.NewMessageIdRandom()
	go func() {
		writer.WriteFrame(bifaci.NewStreamStart(reqID, "s1", "media:json"))
		writer.WriteFrame(bifaci.NewChunk(reqID, "s1", 0, []byte(`{"ok":`), 0, bifaci.ComputeChecksum([]byte(`{"ok":`))))
		writer.WriteFrame(bifaci.NewChunk(reqID, "s1", 1, []byte(`true}`), 1, bifaci.ComputeChecksum([]byte(`true}`))))
		writer.WriteFrame(bifaci.NewStreamEnd(reqID, "s1", 2))
		writer.WriteFrame(bifaci.NewEnd(reqID, nil))
		pw.Close()
	}()

	data, err := readResponse(reader, reqID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestReadResponseReturnsErrorOnErrFrame(t *testing.T) {
	pr, pw := io.Pipe()
	reader := bifaci.NewFrameReader(pr)
	writer := bifaci.NewFrameWriter(pw)

	reqID := bifaci.NewMessageIdRandom()
	go func() {
		writer.WriteFrame(bifaci.NewErr(reqID, "BAD_ARG", "missing doc"))
		pw.Close()
	}()

	_, err := readResponse(reader, reqID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing doc")
}

func TestReadResponseIgnoresFramesForOtherRequests(t *testing.T) {
	pr, pw := io.Pipe()
	reader := bifaci.NewFrameReader(pr)
	writer := bifaci.NewFrameWriter(pw)

	reqID := bifaci.NewMessageIdRandom()
	otherID := bifaci.NewMessageIdRandom()
	go func() {
		writer.WriteFrame(bifaci.NewHeartbeat(otherID))
		writer.WriteFrame(bifaci.NewEnd(reqID, []byte(`"done"`)))
		pw.Close()
	}()

	data, err := readResponse(reader, reqID)
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(data))
}
