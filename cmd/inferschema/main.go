package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/feed"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/mapping"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
)

func main() {
	input := flag.String("input", "", "comma-separated feed files (.gz allowed)")
	out := flag.String("out", "", "write the inferred mapping JSON here")
	sampleLines := flag.Int("sample", config.DefaultSampleLines, "lines to sample")
	marker := flag.String("marker", config.DefaultMarker, "literal token preceding the price column")
	preview := flag.Int("preview", 6, "decoded entries to print")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger := config.LogConfig{Level: *logLevel}.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: inferschema -input file[,file...] [-out mapping.json]")
		os.Exit(2)
	}

	ctx := context.Background()
	src := source.Files(strings.Split(*input, ","), config.DefaultMaxLineBytes, logger)
	defer src.Close()

	sample, _, err := source.Sample(ctx, src, *sampleLines)
	if err != nil {
		logger.Error("failed to read sample", "error", err)
		os.Exit(1)
	}

	opts := mapping.DefaultOptions()
	opts.Marker = *marker
	m, err := mapping.InferLines(sample, feed.DefaultTokenizer, opts)
	if err != nil {
		logger.Error("inference failed", "sample_lines", len(sample), "error", err)
		os.Exit(1)
	}

	logger.Info("mapping inferred",
		"sample_lines", len(sample),
		"action", m.Action,
		"side", m.Side,
		"level", m.Level,
		"instrument", m.Instrument,
		"price", m.Price,
		"size", m.Size,
		"timestamp", m.Timestamp,
	)

	if *out != "" {
		if err := mapping.Save(*out, m); err != nil {
			logger.Error("failed to save mapping", "error", err)
			os.Exit(1)
		}
		logger.Info("mapping saved", "path", *out)
	}

	printPreview(sample, m, *preview)
}

func printPreview(lines []string, m model.Mapping, n int) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TS_NS\tINSTRUMENT\tACTION\tSIDE\tLEVEL\tPRICE\tSIZE")

	shown := 0
	for _, line := range lines {
		entries, _ := feed.DefaultTokenizer.Tokenize(line)
		for _, tokens := range entries {
			if shown >= n {
				tw.Flush()
				return
			}
			ev := feed.Decode(tokens, m)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				cell(ev.Timestamp.V, ev.Timestamp.Valid),
				cell(ev.Instrument.V, ev.Instrument.Valid),
				cell(ev.Action.V, ev.Action.Valid),
				cell(ev.Side.V, ev.Side.Valid),
				cell(ev.Level.V, ev.Level.Valid),
				cell(ev.Price.V, ev.Price.Valid),
				cell(ev.Size.V, ev.Size.Valid),
			)
			shown++
		}
	}
	tw.Flush()
}

func cell(v any, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprint(v)
}
