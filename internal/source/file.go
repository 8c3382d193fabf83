package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// FileSource reads lines from a list of files in order. Files ending in .gz
// are decompressed on the fly.
type FileSource struct {
	paths   []string
	maxLine int
	logger  *slog.Logger

	idx     int
	f       *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	lines   int64
}

// Files creates a source over paths. maxLineBytes bounds a single line.
func Files(paths []string, maxLineBytes int, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	if maxLineBytes < 1 {
		maxLineBytes = bufio.MaxScanTokenSize
	}
	return &FileSource{paths: paths, maxLine: maxLineBytes, logger: logger}
}

func (s *FileSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for {
		if s.scanner == nil {
			if s.idx >= len(s.paths) {
				return "", io.EOF
			}
			if err := s.open(s.paths[s.idx]); err != nil {
				return "", err
			}
		}

		if s.scanner.Scan() {
			s.lines++
			return strings.TrimSuffix(s.scanner.Text(), "\r"), nil
		}
		if err := s.scanner.Err(); err != nil {
			path := s.paths[s.idx]
			s.closeCurrent()
			return "", fmt.Errorf("read %s line %d: %w", path, s.lines+1, err)
		}

		s.logger.Debug("finished input file", "path", s.paths[s.idx], "lines", s.lines)
		s.closeCurrent()
		s.idx++
	}
}

func (s *FileSource) open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("open gzip %s: %w", path, err)
		}
		s.gz = gz
		r = gz
	}

	s.f = f
	s.lines = 0
	s.scanner = bufio.NewScanner(r)
	s.scanner.Buffer(make([]byte, 0, 64*1024), s.maxLine)
	return nil
}

func (s *FileSource) closeCurrent() {
	if s.gz != nil {
		s.gz.Close()
		s.gz = nil
	}
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	s.scanner = nil
}

// Close releases the open file, if any.
func (s *FileSource) Close() error {
	s.closeCurrent()
	s.idx = len(s.paths)
	return nil
}
