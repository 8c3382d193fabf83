package sink

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/atomicfile"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// SnapshotHeader returns the snapshot CSV header for n levels per side.
func SnapshotHeader(n int) []string {
	h := make([]string, 0, 3+4*n)
	h = append(h, "timestamp", "instrument_id", "action")
	for i := 1; i <= n; i++ {
		p := "level_" + strconv.Itoa(i)
		h = append(h, p+"_bid_price", p+"_bid_size", p+"_ask_price", p+"_ask_size")
	}
	return h
}

// MetricHeader is the metric CSV header.
var MetricHeader = []string{
	"instrument_id", "second",
	"best_bid", "best_ask", "bid_size", "ask_size",
	"spread_abs", "spread_rel", "imbalance", "microprice",
	"total_bid_volume", "total_ask_volume", "avg_bid_price", "avg_ask_price", "depth_ratio",
	"update_count", "cancel_count",
	"midprice", "depth_imbalance", "depth_microprice", "top_volume_ratio",
}

// csvFile is a CSV writer on top of an atomic file.
type csvFile struct {
	file *atomicfile.File
	w    *csv.Writer
	rows int64
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := atomicfile.Create(path)
	if err != nil {
		return nil, err
	}
	c := &csvFile{file: f, w: csv.NewWriter(f)}
	if err := c.w.Write(header); err != nil {
		f.Abort()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return c, nil
}

func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", c.file.Path(), err)
	}
	c.rows++
	return nil
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Abort()
		return fmt.Errorf("flush %s: %w", c.file.Path(), err)
	}
	return c.file.Commit()
}

// SnapshotCSV writes snapshot records with a fixed number of level slots.
// Slot i holds the i-th occupied level on each side; unused slots are empty.
type SnapshotCSV struct {
	out    *csvFile
	levels int
	row    []string
}

// NewSnapshotCSV creates path with the header for levels slots per side.
func NewSnapshotCSV(path string, levels int) (*SnapshotCSV, error) {
	out, err := createCSV(path, SnapshotHeader(levels))
	if err != nil {
		return nil, err
	}
	return &SnapshotCSV{out: out, levels: levels, row: make([]string, 3+4*levels)}, nil
}

func (w *SnapshotCSV) WriteSnapshot(_ context.Context, s model.Snapshot) error {
	row := w.row
	for i := range row {
		row[i] = ""
	}
	row[0] = strconv.FormatInt(s.Timestamp, 10)
	row[1] = strconv.FormatInt(s.Instrument, 10)
	row[2] = formatInt(s.Action)
	for i := 0; i < w.levels; i++ {
		base := 3 + 4*i
		if i < len(s.Bids) {
			row[base] = formatFloat(s.Bids[i].Price)
			row[base+1] = strconv.FormatInt(s.Bids[i].Size, 10)
		}
		if i < len(s.Asks) {
			row[base+2] = formatFloat(s.Asks[i].Price)
			row[base+3] = strconv.FormatInt(s.Asks[i].Size, 10)
		}
	}
	return w.out.write(row)
}

// Rows returns the number of records written.
func (w *SnapshotCSV) Rows() int64 { return w.out.rows }

func (w *SnapshotCSV) Close(context.Context) error { return w.out.close() }

func (w *SnapshotCSV) Discard() { w.out.file.Abort() }

// MetricCSV writes per-second metric records.
type MetricCSV struct {
	out *csvFile
}

// NewMetricCSV creates path with MetricHeader.
func NewMetricCSV(path string) (*MetricCSV, error) {
	out, err := createCSV(path, MetricHeader)
	if err != nil {
		return nil, err
	}
	return &MetricCSV{out: out}, nil
}

func (w *MetricCSV) WriteMetric(_ context.Context, r model.MetricRecord) error {
	return w.out.write([]string{
		strconv.FormatInt(r.Instrument, 10),
		strconv.FormatInt(r.Second, 10),
		formatNullFloat(r.BestBid),
		formatNullFloat(r.BestAsk),
		formatInt(r.BidSize),
		formatInt(r.AskSize),
		formatNullFloat(r.SpreadAbs),
		formatNullFloat(r.SpreadRel),
		formatNullFloat(r.Imbalance),
		formatNullFloat(r.Microprice),
		strconv.FormatInt(r.TotalBidVolume, 10),
		strconv.FormatInt(r.TotalAskVolume, 10),
		formatNullFloat(r.AvgBidPrice),
		formatNullFloat(r.AvgAskPrice),
		formatNullFloat(r.DepthRatio),
		strconv.FormatInt(r.UpdateCount, 10),
		strconv.FormatInt(r.CancelCount, 10),
		formatNullFloat(r.Midprice),
		formatNullFloat(r.DepthImbalance),
		formatNullFloat(r.DepthMicroprice),
		formatNullFloat(r.TopVolumeRatio),
	})
}

// Rows returns the number of records written.
func (w *MetricCSV) Rows() int64 { return w.out.rows }

func (w *MetricCSV) Close(context.Context) error { return w.out.close() }

func (w *MetricCSV) Discard() { w.out.file.Abort() }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNullFloat(v sql.Null[float64]) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.V)
}

func formatInt(v sql.Null[int64]) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.V, 10)
}
