// Package stdio implements mcp.Transport over a process's own stdin/stdout:
// one JSON-RPC object per line, the same newline-delimited framing used
// client-side elsewhere in this codebase, applied here as the
// server-side binding the demo daemon uses by default.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// Binding is the sentinel mcp.TransportBinding for stdio's one and only
// channel — there is never more than one peer, so no allocation scheme is
// needed to distinguish connections the way a listening socket would need.
const Binding mcp.TransportBinding = "stdio"

// Transport reads newline-delimited JSON-RPC requests from in and writes
// newline-delimited JSON-RPC responses to out, serializing writes the
// same way a client serializes writes to a child process's stdin.
type Transport struct {
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
	logger *slog.Logger
	nextID atomic.Int64
}

// New creates a stdio transport over the given reader/writer pair. Pass
// os.Stdin/os.Stdout in production; tests pass bytes.Buffers.
func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{in: in, out: out, logger: logging.NewDiscardLogger()}
}

// SetLogger overrides the default discard logger.
func (t *Transport) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Send implements mcp.Transport.
func (t *Transport) Send(ctx context.Context, msg mcp.TransportMessage) error {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	if _, err := t.out.Write(append(msg.JSON, '\n')); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}
	return nil
}

// Disconnect implements mcp.Transport. stdio has only one channel and no
// socket to tear down; Serve's read loop exits on its own once stdin hits
// EOF, so this is a no-op recorded only for symmetry with other bindings.
func (t *Transport) Disconnect(binding mcp.TransportBinding) error {
	return nil
}

// Serve reads newline-delimited JSON-RPC messages until EOF or ctx is
// cancelled, dispatching each line to server.HandleRequest. It blocks the
// calling goroutine; callers typically run it until the process receives a
// shutdown signal.
func (t *Transport) Serve(ctx context.Context, server *mcp.Server) error {
	scanner := bufio.NewScanner(t.in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// HandleRequest retains no reference to data beyond the call, but
		// scanner.Bytes() is only valid until the next Scan, so copy it.
		data := make([]byte, len(line))
		copy(data, line)

		msgID := t.nextID.Add(1)
		if _, err := server.HandleRequest(ctx, t, Binding, msgID, data); err != nil {
			t.logger.Debug("request handling error", "error", err)
		}
	}
	return scanner.Err()
}
