// Package source yields feed lines from files, a websocket stream or a kafka
// topic. Every source returns io.EOF once its input is exhausted.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
)

// Source yields one feed line per call.
type Source interface {
	// Next returns the next line without its terminator, or io.EOF.
	Next(ctx context.Context) (string, error)

	Close() error
}

// Committer is implemented by sources that acknowledge consumed input.
type Committer interface {
	Commit(ctx context.Context) error
}

// Commit acknowledges everything src has returned so far, if src supports it.
func Commit(ctx context.Context, src Source) error {
	if c, ok := src.(Committer); ok {
		return c.Commit(ctx)
	}
	return nil
}

// Open builds the source selected by cfg.
func Open(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (Source, error) {
	switch cfg.Kind {
	case "files":
		return Files(cfg.Files, cfg.MaxLineBytes, logger), nil
	case "websocket":
		ws, err := DialWebSocket(ctx, WebSocketConfig{
			URL:          cfg.WebSocket.URL,
			IdleTimeout:  cfg.WebSocket.IdleTimeout,
			MaxLineBytes: cfg.MaxLineBytes,
		}, logger)
		if err != nil {
			return nil, err
		}
		return ws, nil
	case "kafka":
		return NewKafka(KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			GroupID:     cfg.Kafka.GroupID,
			IdleTimeout: cfg.Kafka.IdleTimeout,
			MinBytes:    cfg.Kafka.MinBytes,
			MaxBytes:    cfg.Kafka.MaxBytes,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// lineQueue splits message payloads into lines and hands them out one by one.
type lineQueue struct {
	lines []string
}

func (q *lineQueue) push(payload []byte) {
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		q.lines = append(q.lines, line)
	}
}

func (q *lineQueue) pop() (string, bool) {
	if len(q.lines) == 0 {
		return "", false
	}
	line := q.lines[0]
	q.lines[0] = ""
	q.lines = q.lines[1:]
	return line, true
}

// Sample reads up to n lines from src and returns them with a source that
// replays them before continuing with src.
func Sample(ctx context.Context, src Source, n int) ([]string, Source, error) {
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, line)
	}
	return lines, &replay{head: lines, rest: src}, nil
}

type replay struct {
	head []string
	pos  int
	rest Source
}

func (r *replay) Next(ctx context.Context) (string, error) {
	if r.pos < len(r.head) {
		line := r.head[r.pos]
		r.pos++
		return line, nil
	}
	return r.rest.Next(ctx)
}

func (r *replay) Commit(ctx context.Context) error {
	return Commit(ctx, r.rest)
}

func (r *replay) Close() error {
	return r.rest.Close()
}

// Lines is an in-memory source.
type Lines struct {
	lines []string
	pos   int
}

// FromLines returns a source over fixed lines.
func FromLines(lines ...string) *Lines {
	return &Lines{lines: lines}
}

func (l *Lines) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.pos >= len(l.lines) {
		return "", io.EOF
	}
	line := l.lines[l.pos]
	l.pos++
	return line, nil
}

func (l *Lines) Close() error { return nil }
