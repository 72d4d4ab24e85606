package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// stdio frames can carry a whole day of titles; 1 MiB leaves generous
// headroom over the default scanner limit.
const maxFrameSize = 1 << 20

// ServeStdio runs the newline-delimited transport: one {tool_name, arguments}
// frame per input line, one compact envelope line per response. Blank lines
// are skipped. Returns on EOF, on a write error, or when ctx is done.
// Callers must keep out (normally stdout) free of any other writes.
func (d *Dispatcher) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var env map[string]any
		var req CallRequest
		switch err := json.Unmarshal(line, &req); {
		case err != nil:
			env = failure(Errorf(CodeInvalidArgument, "bad request frame: %v", err))
		case req.ToolName == "":
			env = failure(Errorf(CodeInvalidArgument, "tool_name is required"))
		default:
			env = d.Call(ctx, req.ToolName, req.Arguments)
		}

		if _, err := out.Write(Render(env, false)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}
