package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures a topic-backed feed.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	IdleTimeout time.Duration // No message for this long ends the stream
	MinBytes    int
	MaxBytes    int
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads message values, each carrying one or more lines.
// Offsets are not committed while reading; Commit marks every fetched
// message consumed once its lines are durable downstream.
type KafkaSource struct {
	cfg     KafkaConfig
	reader  messageReader
	logger  *slog.Logger
	queue   lineQueue
	done    bool
	pending map[int]kafka.Message // last fetched message per partition
}

// NewKafka creates a reader on cfg.Topic.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newKafkaSource(cfg, reader, logger)
}

func newKafkaSource(cfg KafkaConfig, reader messageReader, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	return &KafkaSource{
		cfg:     cfg,
		reader:  reader,
		logger:  logger,
		pending: make(map[int]kafka.Message),
	}
}

func (s *KafkaSource) Next(ctx context.Context) (string, error) {
	for {
		if line, ok := s.queue.pop(); ok {
			return line, nil
		}
		if s.done {
			return "", io.EOF
		}

		readCtx, cancel := context.WithTimeout(ctx, s.cfg.IdleTimeout)
		msg, err := s.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("feed topic idle, ending stream",
					"topic", s.cfg.Topic,
					"idle_timeout", s.cfg.IdleTimeout,
				)
				s.done = true
				continue
			}
			return "", fmt.Errorf("read feed topic %s: %w", s.cfg.Topic, err)
		}
		s.queue.push(msg.Value)
		s.pending[msg.Partition] = msg
	}
}

// Commit commits the offsets of all messages fetched so far. Without a
// consumer group there is nothing to commit.
func (s *KafkaSource) Commit(ctx context.Context) error {
	if s.cfg.GroupID == "" || len(s.pending) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(s.pending))
	for _, msg := range s.pending {
		msgs = append(msgs, msg)
	}
	if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit feed topic %s: %w", s.cfg.Topic, err)
	}
	s.logger.Debug("feed offsets committed", "topic", s.cfg.Topic, "partitions", len(msgs))
	clear(s.pending)
	return nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
