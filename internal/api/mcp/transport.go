package mcp

// Stdio framing rules:
//   - each request arrives as one newline-terminated line on stdin
//   - each response is written as one newline-terminated line to stdout
//   - diagnostics go to stderr only; stray bytes on stdout corrupt framing

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxFrame = 4 * 1024 * 1024

// TransportOption configures a transport.
type TransportOption func(*transportConfig)

type transportConfig struct {
	log       *zap.Logger
	rateLimit float64
	burst     int
	maxFrame  int
}

// WithTransportLogger sets the transport logger. It must not write to stdout.
func WithTransportLogger(l *zap.Logger) TransportOption {
	return func(c *transportConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRateLimit caps the sustained request rate. reqPerSec <= 0 disables
// limiting.
func WithRateLimit(reqPerSec float64, burst int) TransportOption {
	return func(c *transportConfig) {
		c.rateLimit = reqPerSec
		c.burst = burst
	}
}

// WithMaxFrame sets the largest accepted frame in bytes. The default is 4 MB.
func WithMaxFrame(n int) TransportOption {
	return func(c *transportConfig) {
		if n > 0 {
			c.maxFrame = n
		}
	}
}

func newTransportConfig(opts []TransportOption) transportConfig {
	c := transportConfig{log: zap.NewNop(), burst: 10, maxFrame: maxFrame}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// limiter returns nil when limiting is disabled.
func (c transportConfig) limiter() *rate.Limiter {
	if c.rateLimit <= 0 {
		return nil
	}
	burst := c.burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.rateLimit), burst)
}

// handleFrame answers one frame, rejecting it when the limiter is
// exhausted. A nil result means nothing should be written.
func handleFrame(ctx context.Context, srv *Server, lim *rate.Limiter, log *zap.Logger, frame []byte) []byte {
	if lim != nil && !lim.Allow() {
		log.Warn("rate limit exceeded")
		return errorFrame(frame, ErrCodeRateLimited, "rate limit exceeded")
	}
	resp, err := srv.HandleRequest(ctx, frame)
	if err != nil {
		log.Error("handler error", zap.Error(err))
		return errorFrame(frame, ErrCodeInternalError, err.Error())
	}
	return resp
}

// StdioTransport reads line-delimited JSON-RPC 2.0 requests from an
// io.Reader and writes responses to an io.Writer.
type StdioTransport struct {
	server   *Server
	in       io.Reader
	out      io.Writer
	log      *zap.Logger
	limiter  *rate.Limiter
	maxFrame int
}

// NewStdioTransport constructs a StdioTransport that reads from in and
// writes to out.
//
//	t := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout, mcp.WithTransportLogger(log))
//	t.Serve(ctx)
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer, opts ...TransportOption) *StdioTransport {
	c := newTransportConfig(opts)
	return &StdioTransport{
		server:   srv,
		in:       in,
		out:      out,
		log:      c.log.Named("stdio"),
		limiter:  c.limiter(),
		maxFrame: c.maxFrame,
	}
}

// Serve processes requests in arrival order until in is exhausted or ctx is
// cancelled. A line longer than the frame limit is discarded and answered
// with an invalid-request error; the session continues.
func (t *StdioTransport) Serve(ctx context.Context) error {
	reader := bufio.NewReaderSize(t.in, 64*1024)

	for {
		select {
		case <-ctx.Done():
			t.log.Info("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		line, tooLong, err := readFrame(reader, t.maxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.log.Info("stdin closed, shutting down")
				return nil
			}
			t.log.Error("stdin read error", zap.Error(err))
			return fmt.Errorf("stdin read: %w", err)
		}

		var resp []byte
		switch {
		case tooLong:
			t.log.Warn("frame too large, dropped", zap.Int("limit", t.maxFrame))
			resp = errorFrame(nil, ErrCodeInvalidRequest, fmt.Sprintf("frame exceeds %d bytes", t.maxFrame))
		case len(line) == 0:
			continue
		default:
			resp = handleFrame(ctx, t.server, t.limiter, t.log, line)
		}
		if resp == nil {
			continue
		}
		if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
			t.log.Error("write error", zap.Error(err))
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// readFrame reads one newline-terminated line without its line ending. When
// the line is longer than limit the rest of it is consumed and tooLong is
// set. A final line without a newline is returned before io.EOF.
func readFrame(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(bytes.TrimRight(chunk, "\r\n"))+len(line) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 && !tooLong {
				return nil, false, io.EOF
			}
		case err != nil:
			return nil, false, err
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, nil
	}
}
