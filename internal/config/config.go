package config

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for a replay run.
type Config struct {
	Run      RunConfig      `yaml:"run"`
	Source   SourceConfig   `yaml:"source"`
	Feed     FeedConfig     `yaml:"feed"`
	Mapping  MappingConfig  `yaml:"mapping"`
	Book     BookConfig     `yaml:"book"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Counts   CountsConfig   `yaml:"counts"`
	Output   OutputConfig   `yaml:"output"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// RunConfig identifies the run and its scratch space.
type RunConfig struct {
	ID      string `yaml:"id"`       // Optional; a UUID is generated when empty
	WorkDir string `yaml:"work_dir"` // Parent of chunk and counts directories
}

// SourceConfig selects where feed lines come from.
type SourceConfig struct {
	Kind         string          `yaml:"kind"` // files, websocket or kafka
	Files        []string        `yaml:"files"`
	MaxLineBytes int             `yaml:"max_line_bytes"`
	WebSocket    WebSocketConfig `yaml:"websocket"`
	Kafka        KafkaConfig     `yaml:"kafka"`
}

// WebSocketConfig holds settings for a streamed feed.
type WebSocketConfig struct {
	URL         string        `yaml:"url"`
	IdleTimeout time.Duration `yaml:"idle_timeout"` // No frame for this long ends the stream
}

// KafkaConfig holds settings for a topic-backed feed.
type KafkaConfig struct {
	Brokers     []string      `yaml:"brokers"`
	Topic       string        `yaml:"topic"`
	GroupID     string        `yaml:"group_id"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MinBytes    int           `yaml:"min_bytes"`
	MaxBytes    int           `yaml:"max_bytes"`
}

// FeedConfig sets the entry delimiters.
type FeedConfig struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
	Sep   string `yaml:"sep"`
}

// MappingConfig controls schema inference.
type MappingConfig struct {
	File               string  `yaml:"file"`        // Use this mapping instead of inferring
	SaveTo             string  `yaml:"save_to"`     // Write the inferred mapping here
	SampleLines        int     `yaml:"sample_lines"`
	Marker             string  `yaml:"marker"`
	SideCheckEntries   int     `yaml:"side_check_entries"`
	SideCheckMinValues int     `yaml:"side_check_min_values"`
	HeavyRatio         float64 `yaml:"heavy_ratio"`
}

// BookConfig sizes the ladders and snapshots.
type BookConfig struct {
	MaxDepth       int `yaml:"max_depth"`       // Highest accepted level index
	SnapshotLevels int `yaml:"snapshot_levels"` // Levels per side in each snapshot
}

// PipelineConfig holds worker, chunk and merge settings.
type PipelineConfig struct {
	Workers          int    `yaml:"workers"`
	QueueCapacity    int    `yaml:"queue_capacity"`
	ChunkCapacity    int    `yaml:"chunk_capacity"`
	ChunkDir         string `yaml:"chunk_dir"`
	MergeBatch       int    `yaml:"merge_batch"`
	MergeParallelism int    `yaml:"merge_parallelism"`
	KeepChunks       bool   `yaml:"keep_chunks"` // Leave the final merged chunk on disk
}

// CountsConfig selects the update/cancel count store.
type CountsConfig struct {
	Backend    string `yaml:"backend"` // memory or pebble
	Dir        string `yaml:"dir"`
	FlushEvery int    `yaml:"flush_every"`
}

// OutputConfig lists record sinks. Any combination may be enabled.
type OutputConfig struct {
	SnapshotsCSV string         `yaml:"snapshots_csv"`
	MetricsCSV   string         `yaml:"metrics_csv"`
	Postgres     PostgresOutput `yaml:"postgres"`
}

// PostgresOutput configures the warehouse sink.
type PostgresOutput struct {
	Enabled   bool     `yaml:"enabled"`
	DB        DBConfig `yaml:"db"`
	BatchSize int      `yaml:"batch_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level            string        `yaml:"level"`  // debug, info, warn, error
	Format           string        `yaml:"format"` // text or json
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
