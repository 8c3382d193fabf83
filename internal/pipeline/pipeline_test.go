package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/chunk"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/config"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/mapping"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/sink"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/source"
)

var eurexMapping = model.Mapping{Action: 0, Level: 1, Side: 2, Instrument: 3, Price: 5, Size: 6, Timestamp: 9}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Run.WorkDir = t.TempDir()
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.QueueCapacity = 4
	cfg.Pipeline.ChunkCapacity = 2
	cfg.Pipeline.MergeBatch = 2
	cfg.Log.ProgressInterval = time.Hour
	cfg.ApplyDefaults()
	return cfg
}

func withMappingFile(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := filepath.Join(cfg.Run.WorkDir, "mapping.json")
	if err := mapping.Save(path, eurexMapping); err != nil {
		t.Fatalf("save mapping: %v", err)
	}
	cfg.Mapping.File = path
}

func newCSVSinks(t *testing.T, cfg *config.Config) (*sink.Multi, string, string) {
	t.Helper()
	snapPath := filepath.Join(cfg.Run.WorkDir, "out", "snapshots.csv")
	metricPath := filepath.Join(cfg.Run.WorkDir, "out", "metrics.csv")
	snaps, err := sink.NewSnapshotCSV(snapPath, cfg.Book.SnapshotLevels)
	if err != nil {
		t.Fatal(err)
	}
	mets, err := sink.NewMetricCSV(metricPath)
	if err != nil {
		t.Fatal(err)
	}
	return &sink.Multi{
		Snapshots: []sink.SnapshotWriter{snaps},
		Metrics:   []sink.MetricWriter{mets},
	}, snapPath, metricPath
}

// readRecords returns CSV rows keyed by header name, header excluded.
func readRecords(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []map[string]string
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(row))
		for i, name := range rows[0] {
			rec[name] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

func entry(action, level, side int, sec int64, price, size string, ts int64) string {
	return fmt.Sprintf("DI,48,0,{%d,%d,%d,%d,M,%s,%s,1,,%d}", action, level, side, sec, price, size, ts)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	withMappingFile(t, cfg)
	out, snapPath, metricPath := newCSVSinks(t, cfg)

	src := source.FromLines(
		entry(0, 0, 0, 5578481, "100.0", "10", 1_000_000_000),
		entry(0, 0, 1, 5578481, "100.2", "5", 1_000_000_500),
		entry(2, 0, 0, 5578481, "", "", 1_000_900_000),
	)

	p := New(cfg, nil, nil)
	stats, err := p.Run(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.LinesScanned != 3 {
		t.Errorf("LinesScanned = %d, want 3", stats.LinesScanned)
	}
	if stats.EntriesDecoded != 3 {
		t.Errorf("EntriesDecoded = %d, want 3", stats.EntriesDecoded)
	}
	if stats.EventsApplied != 3 {
		t.Errorf("EventsApplied = %d, want 3", stats.EventsApplied)
	}
	if stats.SnapshotsEmitted != 3 {
		t.Errorf("SnapshotsEmitted = %d, want 3", stats.SnapshotsEmitted)
	}
	if stats.MetricRecords != 1 {
		t.Errorf("MetricRecords = %d, want 1", stats.MetricRecords)
	}
	if stats.RunID != p.RunID() {
		t.Errorf("RunID = %v, want %v", stats.RunID, p.RunID())
	}

	snaps := readRecords(t, snapPath)
	if len(snaps) != 3 {
		t.Fatalf("snapshot rows = %d, want 3", len(snaps))
	}
	last := snaps[2]
	if last["level_1_bid_price"] != "" {
		t.Errorf("final best bid = %q, want empty", last["level_1_bid_price"])
	}
	if last["level_1_ask_price"] != "100.2" || last["level_1_ask_size"] != "5" {
		t.Errorf("final best ask = %s/%s, want 100.2/5", last["level_1_ask_price"], last["level_1_ask_size"])
	}
	if last["action"] != "2" {
		t.Errorf("final action = %q, want 2", last["action"])
	}

	recs := readRecords(t, metricPath)
	if len(recs) != 1 {
		t.Fatalf("metric rows = %d, want 1", len(recs))
	}
	r := recs[0]
	if r["second"] != "1" || r["instrument_id"] != "5578481" {
		t.Errorf("bucket = %s@%s, want 5578481@1", r["instrument_id"], r["second"])
	}
	if r["spread_abs"] != "" || r["imbalance"] != "" {
		t.Errorf("spread_abs/imbalance = %q/%q, want empty", r["spread_abs"], r["imbalance"])
	}
	if r["update_count"] != "2" || r["cancel_count"] != "1" {
		t.Errorf("counts = %s/%s, want 2/1", r["update_count"], r["cancel_count"])
	}

	refs, err := mustStore(t, cfg).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("chunks left = %d, want 0", len(refs))
	}
}

func mustStore(t *testing.T, cfg *config.Config) *chunk.Store {
	t.Helper()
	store, err := chunk.OpenStore(cfg.Pipeline.ChunkDir, nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	return store
}

func TestRun_GlobalOrderAcrossWorkers(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Pipeline.Workers = 3
	cfg.Pipeline.ChunkCapacity = 3
	cfg.Pipeline.MergeBatch = 3
	withMappingFile(t, cfg)
	out, snapPath, _ := newCSVSinks(t, cfg)

	var lines []string
	ts := int64(5_000_000_000)
	for i := 0; i < 300; i++ {
		sec := int64(100 + i%7)
		side := i % 2
		level := (i / 2) % 4
		price := strconv.FormatFloat(50+float64(i%11)/2, 'f', 1, 64)
		lines = append(lines, entry(0, level, side, sec, price, strconv.Itoa(1+i%9), ts))
		if i%5 == 0 {
			ts += 250_000_000
		}
	}

	p := New(cfg, nil, nil)
	stats, err := p.Run(context.Background(), source.FromLines(lines...), out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rows := readRecords(t, snapPath)
	if int64(len(rows)) != stats.SnapshotsEmitted {
		t.Fatalf("snapshot rows = %d, want %d", len(rows), stats.SnapshotsEmitted)
	}
	if stats.Instruments != 7 {
		t.Errorf("Instruments = %d, want 7", stats.Instruments)
	}
	if stats.ChunksWritten < 2 {
		t.Errorf("ChunksWritten = %d, want several", stats.ChunksWritten)
	}

	var prevTs, prevInstr int64
	for i, row := range rows {
		ts, _ := strconv.ParseInt(row["timestamp"], 10, 64)
		instr, _ := strconv.ParseInt(row["instrument_id"], 10, 64)
		if ts < prevTs || (ts == prevTs && instr < prevInstr) {
			t.Fatalf("row %d (%d, %d) sorts before previous (%d, %d)", i, ts, instr, prevTs, prevInstr)
		}
		prevTs, prevInstr = ts, instr
	}
}

// eurexLines builds lines laid out as {action,level,side,sec,M,price,size,orders,,ts}.
func eurexLines(n int) []string {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		price := strconv.FormatFloat(12210.5+float64(i%7)*0.5, 'f', 1, 64)
		lines = append(lines, entry(
			[]int{0, 1, 2, 5}[i%4], i%5, i%2, 5578481+int64(i%3)*1000,
			price, strconv.Itoa(10+i%40), 1606809600000000000+int64(i)*1000,
		))
	}
	return lines
}

func TestRun_InfersAndSavesMapping(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Mapping.SampleLines = 50
	cfg.Mapping.SaveTo = filepath.Join(cfg.Run.WorkDir, "inferred.json")
	out, _, _ := newCSVSinks(t, cfg)

	p := New(cfg, nil, nil)
	stats, err := p.Run(context.Background(), source.FromLines(eurexLines(200)...), out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Mapping != eurexMapping {
		t.Errorf("Mapping = %+v, want %+v", stats.Mapping, eurexMapping)
	}
	if stats.LinesScanned != 200 {
		t.Errorf("LinesScanned = %d, want 200 (sampled lines replayed)", stats.LinesScanned)
	}

	saved, err := mapping.Load(cfg.Mapping.SaveTo)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved != eurexMapping {
		t.Errorf("saved mapping = %+v, want %+v", saved, eurexMapping)
	}
}

func TestRun_UnmappableSample(t *testing.T) {
	cfg := newTestConfig(t)
	out, snapPath, _ := newCSVSinks(t, cfg)

	p := New(cfg, nil, nil)
	_, err := p.Run(context.Background(), source.FromLines("heartbeat", "heartbeat"), out)
	if !errors.Is(err, mapping.ErrUnmappableSample) {
		t.Errorf("err = %v, want ErrUnmappableSample", err)
	}
	if _, err := os.Stat(snapPath); !os.IsNotExist(err) {
		t.Error("failed run should not leave a snapshot file")
	}
}

func TestRun_IgnoredEvents(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Book.MaxDepth = 3
	withMappingFile(t, cfg)
	out, _, _ := newCSVSinks(t, cfg)

	src := source.FromLines(
		entry(0, 0, 0, 1, "10", "1", 1_000_000_000),
		entry(0, 0, 0, 1, "10", "1", 1_000_000_001), // unchanged
		entry(0, 0, 7, 1, "10", "1", 1_000_000_002), // invalid side
		entry(0, 4, 0, 1, "10", "1", 1_000_000_003), // beyond max depth
		entry(9, 0, 0, 1, "10", "1", 1_000_000_004), // unsupported action
		entry(0, 1, 1, 1, "", "3", 1_000_000_005),   // missing price
		"DI,48,0,{0,0,0,,M,10,1,1,,1000000006}",     // missing instrument
		"DI,48,0,{0,0,0,1,M,10,1,1,,1000000007",     // unterminated
	)

	p := New(cfg, nil, nil)
	stats, err := p.Run(context.Background(), src, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]int64{
		"invalid_side":       1,
		"out_of_range_level": 1,
		"unsupported_action": 1,
		"missing_price_size": 1,
		"missing_instrument": 1,
	}
	for reason, n := range want {
		if stats.Ignored[reason] != n {
			t.Errorf("Ignored[%s] = %d, want %d", reason, stats.Ignored[reason], n)
		}
	}
	if stats.TotalIgnored() != 5 {
		t.Errorf("TotalIgnored() = %d, want 5", stats.TotalIgnored())
	}
	if stats.EventsApplied != 1 || stats.EventsUnchanged != 1 {
		t.Errorf("applied/unchanged = %d/%d, want 1/1", stats.EventsApplied, stats.EventsUnchanged)
	}
	if stats.MalformedEntries != 1 {
		t.Errorf("MalformedEntries = %d, want 1", stats.MalformedEntries)
	}
}

func TestRun_DirtyChunkDir(t *testing.T) {
	cfg := newTestConfig(t)
	withMappingFile(t, cfg)
	store := mustStore(t, cfg)
	if _, err := store.Write(1, 1, []model.Snapshot{{Timestamp: 1, Instrument: 1}}); err != nil {
		t.Fatal(err)
	}

	out, _, _ := newCSVSinks(t, cfg)
	p := New(cfg, nil, nil)
	_, err := p.Run(context.Background(), source.FromLines(), out)
	if !errors.Is(err, ErrDirtyChunkDir) {
		t.Errorf("err = %v, want ErrDirtyChunkDir", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	cfg := newTestConfig(t)
	withMappingFile(t, cfg)
	out, _, _ := newCSVSinks(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(cfg, nil, nil)
	_, err := p.Run(ctx, source.FromLines(eurexLines(10)...), out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type committingLines struct {
	*source.Lines
	commits int
}

func (c *committingLines) Commit(ctx context.Context) error {
	c.commits++
	return nil
}

func TestRun_CommitsSourceAfterIngest(t *testing.T) {
	cfg := newTestConfig(t)
	withMappingFile(t, cfg)
	out, _, _ := newCSVSinks(t, cfg)

	src := &committingLines{Lines: source.FromLines(eurexLines(20)...)}
	if _, err := New(cfg, nil, nil).Run(context.Background(), src, out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if src.commits != 1 {
		t.Errorf("commits = %d, want 1", src.commits)
	}
}

func TestRun_CancelledDoesNotCommit(t *testing.T) {
	cfg := newTestConfig(t)
	withMappingFile(t, cfg)
	out, _, _ := newCSVSinks(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &committingLines{Lines: source.FromLines(eurexLines(10)...)}
	if _, err := New(cfg, nil, nil).Run(ctx, src, out); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if src.commits != 0 {
		t.Errorf("commits = %d after cancel, want 0", src.commits)
	}
}

func TestResume(t *testing.T) {
	cfg := newTestConfig(t)
	store := mustStore(t, cfg)

	snap := func(ts, instr int64, seq uint64) model.Snapshot {
		return model.Snapshot{
			Timestamp:  ts,
			Instrument: instr,
			Seq:        seq,
			Bids:       []model.Level{{Rank: 0, Price: 99, Size: 1}},
			Asks:       []model.Level{{Rank: 0, Price: 101, Size: 1}},
		}
	}
	store.Write(1, 1, []model.Snapshot{snap(1_000_000_000, 1, 1), snap(3_000_000_000, 1, 2)})
	store.Write(2, 2, []model.Snapshot{snap(2_000_000_000, 2, 1)})
	store.Write(3, 3, []model.Snapshot{snap(2_500_000_000, 1, 3)})

	out, snapPath, metricPath := newCSVSinks(t, cfg)
	p := New(cfg, nil, nil)
	stats, err := p.Resume(context.Background(), out)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	rows := readRecords(t, snapPath)
	if len(rows) != 4 {
		t.Fatalf("snapshot rows = %d, want 4", len(rows))
	}
	wantTs := []string{"1000000000", "2000000000", "2500000000", "3000000000"}
	for i, row := range rows {
		if row["timestamp"] != wantTs[i] {
			t.Errorf("row %d timestamp = %s, want %s", i, row["timestamp"], wantTs[i])
		}
	}

	// Instrument 1 closes seconds 1 and 2, then 3 at Close; instrument 2 has one.
	if stats.MetricRecords != 4 {
		t.Errorf("MetricRecords = %d, want 4", stats.MetricRecords)
	}
	if got := len(readRecords(t, metricPath)); got != 4 {
		t.Errorf("metric rows = %d, want 4", got)
	}
	if stats.MergeBatches == 0 {
		t.Error("MergeBatches = 0, want > 0")
	}
}

func TestResume_Empty(t *testing.T) {
	cfg := newTestConfig(t)
	out, snapPath, _ := newCSVSinks(t, cfg)
	p := New(cfg, nil, nil)
	if _, err := p.Resume(context.Background(), out); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if rows := readRecords(t, snapPath); len(rows) != 0 {
		t.Errorf("snapshot rows = %d, want 0", len(rows))
	}
}

func TestResume_RequiresRunIDForPostgres(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Output.Postgres.Enabled = true
	out, _, _ := newCSVSinks(t, cfg)

	if _, err := New(cfg, nil, nil).Resume(context.Background(), out); !errors.Is(err, ErrNoRunID) {
		t.Errorf("Resume() error = %v, want ErrNoRunID", err)
	}

	cfg.Run.ID = "fdax-2020-12-01"
	if err := New(cfg, nil, nil).CheckResume(); err != nil {
		t.Errorf("CheckResume() with run id = %v, want nil", err)
	}
}

func TestRunID(t *testing.T) {
	const fixed = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
	if got := RunID(fixed).String(); got != fixed {
		t.Errorf("RunID(uuid) = %s, want %s", got, fixed)
	}
	if RunID("fdax-2020-12-01") != RunID("fdax-2020-12-01") {
		t.Error("RunID(name) should be stable")
	}
	if RunID("fdax-2020-12-01") == RunID("fdax-2020-12-02") {
		t.Error("different names should map to different ids")
	}
	if RunID("") == RunID("") {
		t.Error("empty names should get fresh ids")
	}
}
