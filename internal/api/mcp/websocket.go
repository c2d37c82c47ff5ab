package mcp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WebSocketTransport serves the same JSON-RPC frames as the stdio transport,
// one frame per text message. Each connection gets its own rate limiter.
type WebSocketTransport struct {
	server *Server
	log    *zap.Logger
	cfg    transportConfig
}

// NewWebSocketTransport constructs a WebSocketTransport.
func NewWebSocketTransport(srv *Server, opts ...TransportOption) *WebSocketTransport {
	c := newTransportConfig(opts)
	return &WebSocketTransport{server: srv, log: c.log.Named("websocket"), cfg: c}
}

// ServeHTTP upgrades the request and answers frames until the peer
// disconnects.
func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	if err != nil {
		t.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "") //nolint:errcheck
	conn.SetReadLimit(maxFrame)

	log := t.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("client connected")

	ctx := r.Context()
	lim := t.cfg.limiter()
	for {
		typ, frame, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				log.Info("client disconnected")
			} else {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		resp := handleFrame(ctx, t.server, lim, log, frame)
		if resp == nil {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Write(wctx, websocket.MessageText, resp)
		cancel()
		if err != nil {
			log.Warn("write failed", zap.Error(err))
			return
		}
	}
}

// ListenAndServe serves WebSocket clients on addr until ctx is cancelled.
func (t *WebSocketTransport) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (t *WebSocketTransport) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           t,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	t.log.Info("listening", zap.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
