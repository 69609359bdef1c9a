// Package ipcexec is the concrete planexec.CapExecutor: it spawns a cap's
// declared command as a child process and speaks the bifaci frame protocol
// over its stdin/stdout to invoke a single cap request and collect its
// response.
package ipcexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/filegrind/capforge/bifaci"
	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/planexec"
	"github.com/filegrind/capforge/registry"
	"github.com/filegrind/capforge/urn"
)

// providerConn is one spawned provider process and its negotiated framing.
type providerConn struct {
	cmd    *exec.Cmd
	reader *bifaci.FrameReader
	writer *bifaci.FrameWriter
}

// Executor is a CapExecutor backed by process-spawned cap providers,
// looked up by cap URN through a registry.Block the same way
// planexec.BlockCapExecutor does, but dispatching over the CBOR frame
// protocol instead of an in-process CapSet.
//
// Each distinct command is spawned at most once and kept warm for the
// lifetime of the Executor; callers that need fresh processes per
// invocation should construct a new Executor per Run.
type Executor struct {
	Block *registry.Block

	mu    sync.Mutex
	conns map[string]*providerConn
}

// NewExecutor builds an Executor dispatching through block.
func NewExecutor(block *registry.Block) *Executor {
	return &Executor{Block: block, conns: make(map[string]*providerConn)}
}

// HasCap reports whether any registered cap set can serve capUrn.
func (e *Executor) HasCap(capUrn string) bool {
	request, err := urn.ParseCapURN(capUrn)
	if err != nil {
		return false
	}
	return e.Block.AcceptsRequest(request)
}

// GetCap resolves capUrn to its concrete Cap definition.
func (e *Executor) GetCap(capUrn string) (*cap.Cap, error) {
	request, err := urn.ParseCapURN(capUrn)
	if err != nil {
		return nil, err
	}
	match, err := e.Block.FindBestCapSet(request)
	if err != nil {
		return nil, err
	}
	return match.Cap, nil
}

// ExecuteCap spawns (or reuses) the provider process for the matched cap,
// sends a single REQ frame carrying the JSON-encoded arguments, and
// collects the response until END or ERR.
func (e *Executor) ExecuteCap(ctx context.Context, capUrn string, arguments []planexec.ArgValue, preferredCap string) ([]byte, error) {
	pattern := capUrn
	if preferredCap != "" {
		pattern = preferredCap
	}
	request, err := urn.ParseCapURN(pattern)
	if err != nil {
		return nil, err
	}
	match, err := e.Block.FindBestCapSet(request)
	if err != nil {
		return nil, err
	}
	if match.Cap.Command == "" {
		return nil, fmt.Errorf("cap %q has no command to spawn", match.Cap.Urn.String())
	}

	conn, err := e.connFor(match.Cap.Command)
	if err != nil {
		return nil, err
	}

	payload, err := encodeArguments(arguments)
	if err != nil {
		return nil, err
	}

	reqID := bifaci.NewMessageIdRandom()
	reqFrame := bifaci.NewReq(reqID, capUrn, payload, "application/json")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := conn.writer.WriteFrame(reqFrame); err != nil {
		delete(e.conns, match.Cap.Command)
		return nil, fmt.Errorf("writing REQ frame: %w", err)
	}

	return readResponse(conn.reader, reqID)
}

// readResponse drains frames for reqID until END or ERR, concatenating
// any payload carried along the way (direct END payload, or chunked
// STREAM_START/CHUNK/STREAM_END sequences).
func readResponse(reader *bifaci.FrameReader, reqID bifaci.MessageId) ([]byte, error) {
	var buf bytes.Buffer
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("reading response frame: %w", err)
		}
		if !frame.Id.Equals(reqID) {
			continue
		}
		switch frame.FrameType {
		case bifaci.FrameTypeChunk:
			buf.Write(frame.Payload)
		case bifaci.FrameTypeStreamStart, bifaci.FrameTypeStreamEnd, bifaci.FrameTypeHeartbeat, bifaci.FrameTypeLog:
			continue
		case bifaci.FrameTypeEnd:
			if frame.Payload != nil {
				buf.Write(frame.Payload)
			}
			return buf.Bytes(), nil
		case bifaci.FrameTypeErr:
			return nil, fmt.Errorf("[%s] %s", frame.ErrorCode(), frame.ErrorMessage())
		default:
			return nil, fmt.Errorf("unexpected frame type %s while awaiting response", frame.FrameType)
		}
	}
}

// encodeArguments marshals the resolved argument list to the JSON payload
// a provider process receives on a REQ frame, keyed by argument name.
func encodeArguments(arguments []planexec.ArgValue) ([]byte, error) {
	named := make(map[string]any, len(arguments))
	for _, arg := range arguments {
		named[arg.Name] = arg.Value
	}
	return json.Marshal(named)
}

func (e *Executor) connFor(command string) (*providerConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if conn, ok := e.conns[command]; ok {
		return conn, nil
	}

	cmd := exec.Command(command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe for %q: %w", command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe for %q: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %q: %w", command, err)
	}

	reader := bifaci.NewFrameReader(stdout)
	writer := bifaci.NewFrameWriter(stdin)

	_, limits, err := bifaci.HandshakeInitiate(reader, writer)
	if err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("handshake with %q: %w", command, err)
	}
	reader.SetLimits(limits)
	writer.SetLimits(limits)

	conn := &providerConn{cmd: cmd, reader: reader, writer: writer}
	e.conns[command] = conn
	return conn, nil
}

// Close terminates every spawned provider process.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for command, conn := range e.conns {
		if conn.cmd.Process != nil {
			conn.cmd.Process.Kill()
		}
		delete(e.conns, command)
	}
	return nil
}
