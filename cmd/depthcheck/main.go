package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/feed"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/mapping"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
)

// histogram counts entries per (side, level).
type histogram struct {
	bySide   map[int64]map[int64]int64
	maxLevel int64
	noLevel  int64
	entries  int64
}

func (h *histogram) add(ev model.RawEvent) {
	h.entries++
	if !ev.Level.Valid || !ev.Side.Valid {
		h.noLevel++
		return
	}
	levels, ok := h.bySide[ev.Side.V]
	if !ok {
		levels = make(map[int64]int64)
		h.bySide[ev.Side.V] = levels
	}
	levels[ev.Level.V]++
	if ev.Level.V > h.maxLevel {
		h.maxLevel = ev.Level.V
	}
}

func main() {
	input := flag.String("input", "", "comma-separated feed files (.gz allowed)")
	mappingPath := flag.String("mapping", "", "mapping JSON file (inferred from the input when empty)")
	limit := flag.Int64("limit", 0, "stop after this many lines (0 = all)")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger := config.LogConfig{Level: *logLevel}.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: depthcheck -input file[,file...] [-mapping mapping.json] [-limit n]")
		os.Exit(2)
	}

	ctx := context.Background()
	var src source.Source = source.Files(strings.Split(*input, ","), config.DefaultMaxLineBytes, logger)
	defer src.Close()

	var m model.Mapping
	var err error
	if *mappingPath != "" {
		m, err = mapping.Load(*mappingPath)
	} else {
		var sample []string
		sample, src, err = source.Sample(ctx, src, config.DefaultSampleLines)
		if err == nil {
			m, err = mapping.InferLines(sample, feed.DefaultTokenizer, mapping.DefaultOptions())
		}
	}
	if err != nil {
		logger.Error("failed to resolve mapping", "error", err)
		os.Exit(1)
	}

	h := &histogram{bySide: make(map[int64]map[int64]int64)}
	var lines int64
	for *limit == 0 || lines < *limit {
		line, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Error("read failed", "error", err)
			os.Exit(1)
		}
		lines++
		entries, _ := feed.DefaultTokenizer.Tokenize(line)
		for _, tokens := range entries {
			h.add(feed.Decode(tokens, m))
		}
	}

	logger.Info("scan complete",
		"lines", lines,
		"entries", h.entries,
		"without_side_or_level", h.noLevel,
		"max_level", h.maxLevel,
	)
	h.print(os.Stdout)
}

func (h *histogram) print(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SIDE\tLEVEL\tENTRIES\t")

	sides := make([]int64, 0, len(h.bySide))
	for s := range h.bySide {
		sides = append(sides, s)
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })

	for _, s := range sides {
		levels := make([]int64, 0, len(h.bySide[s]))
		for l := range h.bySide[s] {
			levels = append(levels, l)
		}
		sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
		for _, l := range levels {
			fmt.Fprintf(tw, "%s\t%d\t%d\t\n", model.Side(s), l, h.bySide[s][l])
		}
	}
	fmt.Fprintf(tw, "max\t%d\t\t\n", h.maxLevel)
	tw.Flush()
}
