package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Source.validate(); err != nil {
		return err
	}

	if len(c.Feed.Open) != 1 || len(c.Feed.Close) != 1 || len(c.Feed.Sep) != 1 {
		return errors.New("feed.open, feed.close and feed.sep must be single bytes")
	}
	if c.Feed.Open == c.Feed.Close || c.Feed.Sep == c.Feed.Open || c.Feed.Sep == c.Feed.Close {
		return errors.New("feed delimiters must be distinct")
	}

	if c.Mapping.File == "" && c.Mapping.SampleLines < 1 {
		return errors.New("mapping.sample_lines must be >= 1 when no mapping.file is given")
	}
	if c.Mapping.HeavyRatio <= 0 || c.Mapping.HeavyRatio > 1 {
		return fmt.Errorf("mapping.heavy_ratio must be in (0, 1], got %g", c.Mapping.HeavyRatio)
	}

	if c.Book.MaxDepth < 1 {
		return errors.New("book.max_depth must be >= 1")
	}
	if c.Book.SnapshotLevels < 1 || c.Book.SnapshotLevels > 20 {
		return fmt.Errorf("book.snapshot_levels must be between 1 and 20, got %d", c.Book.SnapshotLevels)
	}

	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be >= 1")
	}
	if c.Pipeline.QueueCapacity < 1 {
		return errors.New("pipeline.queue_capacity must be >= 1")
	}
	if c.Pipeline.ChunkCapacity < 1 {
		return errors.New("pipeline.chunk_capacity must be >= 1")
	}
	if c.Pipeline.MergeBatch < 2 {
		return errors.New("pipeline.merge_batch must be >= 2")
	}
	if c.Pipeline.MergeParallelism < 1 {
		return errors.New("pipeline.merge_parallelism must be >= 1")
	}

	switch c.Counts.Backend {
	case "memory", "pebble":
	default:
		return fmt.Errorf("counts.backend must be memory or pebble, got %q", c.Counts.Backend)
	}

	if c.Output.Postgres.Enabled {
		if err := c.Output.Postgres.DB.validate("output.postgres.db"); err != nil {
			return err
		}
		if c.Output.Postgres.BatchSize < 1 {
			return errors.New("output.postgres.batch_size must be >= 1")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (s *SourceConfig) validate() error {
	switch s.Kind {
	case "files":
		if len(s.Files) == 0 {
			return errors.New("source.files is required for kind files")
		}
	case "websocket":
		if s.WebSocket.URL == "" {
			return errors.New("source.websocket.url is required for kind websocket")
		}
	case "kafka":
		if len(s.Kafka.Brokers) == 0 {
			return errors.New("source.kafka.brokers is required for kind kafka")
		}
		if s.Kafka.Topic == "" {
			return errors.New("source.kafka.topic is required for kind kafka")
		}
	default:
		return fmt.Errorf("source.kind must be files, websocket or kafka, got %q", s.Kind)
	}
	if s.MaxLineBytes < 1 {
		return errors.New("source.max_line_bytes must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
