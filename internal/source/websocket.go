package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a streamed feed.
type WebSocketConfig struct {
	URL          string
	IdleTimeout  time.Duration // No frame for this long ends the stream
	MaxLineBytes int
	Header       http.Header
}

// WebSocketSource reads text frames, each carrying one or more lines.
type WebSocketSource struct {
	cfg    WebSocketConfig
	conn   *websocket.Conn
	logger *slog.Logger
	queue  lineQueue
	done   bool
}

// DialWebSocket connects to cfg.URL.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig, logger *slog.Logger) (*WebSocketSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial feed websocket: %w", err)
	}
	if cfg.MaxLineBytes > 0 {
		conn.SetReadLimit(int64(cfg.MaxLineBytes))
	}

	logger.Debug("feed websocket connected", "url", cfg.URL)
	return &WebSocketSource{cfg: cfg, conn: conn, logger: logger}, nil
}

func (s *WebSocketSource) Next(ctx context.Context) (string, error) {
	for {
		if line, ok := s.queue.pop(); ok {
			return line, nil
		}
		if s.done {
			return "", io.EOF
		}
		if err := s.readFrame(ctx); err != nil {
			return "", err
		}
	}
}

func (s *WebSocketSource) readFrame(ctx context.Context) error {
	// Unblock the read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	kind, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.logger.Info("feed websocket idle, ending stream", "idle_timeout", s.cfg.IdleTimeout)
			s.done = true
			return nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.done = true
			return nil
		}
		return fmt.Errorf("read feed websocket: %w", err)
	}

	if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
		s.queue.push(data)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSource) Close() error {
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}
