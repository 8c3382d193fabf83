package config

import (
	"path/filepath"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultWorkDir            = "data/work"
	DefaultSourceKind         = "files"
	DefaultMaxLineBytes       = 16 << 20
	DefaultIdleTimeout        = 30 * time.Second
	DefaultKafkaMinBytes      = 1
	DefaultKafkaMaxBytes      = 10 << 20
	DefaultFeedOpen           = "{"
	DefaultFeedClose          = "}"
	DefaultFeedSep            = ","
	DefaultSampleLines        = 1000
	DefaultMarker             = "M"
	DefaultSideCheckEntries   = 20
	DefaultSideCheckMinValues = 5
	DefaultHeavyRatio         = 0.5
	DefaultMaxDepth           = 10
	DefaultSnapshotLevels     = 5
	DefaultWorkers            = 4
	DefaultQueueCapacity      = 4096
	DefaultChunkCapacity      = 200_000
	DefaultMergeBatch         = 20
	DefaultMergeParallelism   = 2
	DefaultCountsBackend      = "memory"
	DefaultCountsFlushEvery   = 100_000
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultPostgresBatchSize  = 5000
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultProgressInterval   = 5 * time.Second
)

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Run.WorkDir == "" {
		c.Run.WorkDir = DefaultWorkDir
	}

	// Source defaults
	if c.Source.Kind == "" {
		c.Source.Kind = DefaultSourceKind
	}
	if c.Source.MaxLineBytes == 0 {
		c.Source.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.Source.WebSocket.IdleTimeout == 0 {
		c.Source.WebSocket.IdleTimeout = DefaultIdleTimeout
	}
	if c.Source.Kafka.IdleTimeout == 0 {
		c.Source.Kafka.IdleTimeout = DefaultIdleTimeout
	}
	if c.Source.Kafka.MinBytes == 0 {
		c.Source.Kafka.MinBytes = DefaultKafkaMinBytes
	}
	if c.Source.Kafka.MaxBytes == 0 {
		c.Source.Kafka.MaxBytes = DefaultKafkaMaxBytes
	}

	// Feed defaults
	if c.Feed.Open == "" {
		c.Feed.Open = DefaultFeedOpen
	}
	if c.Feed.Close == "" {
		c.Feed.Close = DefaultFeedClose
	}
	if c.Feed.Sep == "" {
		c.Feed.Sep = DefaultFeedSep
	}

	// Mapping defaults
	if c.Mapping.SampleLines == 0 {
		c.Mapping.SampleLines = DefaultSampleLines
	}
	if c.Mapping.Marker == "" {
		c.Mapping.Marker = DefaultMarker
	}
	if c.Mapping.SideCheckEntries == 0 {
		c.Mapping.SideCheckEntries = DefaultSideCheckEntries
	}
	if c.Mapping.SideCheckMinValues == 0 {
		c.Mapping.SideCheckMinValues = DefaultSideCheckMinValues
	}
	if c.Mapping.HeavyRatio == 0 {
		c.Mapping.HeavyRatio = DefaultHeavyRatio
	}

	// Book defaults
	if c.Book.MaxDepth == 0 {
		c.Book.MaxDepth = DefaultMaxDepth
	}
	if c.Book.SnapshotLevels == 0 {
		c.Book.SnapshotLevels = DefaultSnapshotLevels
	}

	// Pipeline defaults
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = DefaultWorkers
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = DefaultQueueCapacity
	}
	if c.Pipeline.ChunkCapacity == 0 {
		c.Pipeline.ChunkCapacity = DefaultChunkCapacity
	}
	if c.Pipeline.ChunkDir == "" {
		c.Pipeline.ChunkDir = filepath.Join(c.Run.WorkDir, "chunks")
	}
	if c.Pipeline.MergeBatch == 0 {
		c.Pipeline.MergeBatch = DefaultMergeBatch
	}
	if c.Pipeline.MergeParallelism == 0 {
		c.Pipeline.MergeParallelism = DefaultMergeParallelism
	}

	// Counts defaults
	if c.Counts.Backend == "" {
		c.Counts.Backend = DefaultCountsBackend
	}
	if c.Counts.Dir == "" {
		c.Counts.Dir = filepath.Join(c.Run.WorkDir, "counts")
	}
	if c.Counts.FlushEvery == 0 {
		c.Counts.FlushEvery = DefaultCountsFlushEvery
	}

	// Output defaults
	applyDBDefaults(&c.Output.Postgres.DB)
	if c.Output.Postgres.BatchSize == 0 {
		c.Output.Postgres.BatchSize = DefaultPostgresBatchSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.ProgressInterval == 0 {
		c.Log.ProgressInterval = DefaultProgressInterval
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
