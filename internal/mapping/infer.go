// Package mapping infers which token position carries which field when a feed
// arrives without a schema, and reads/writes mapping files.
package mapping

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/feed"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// ErrUnmappableSample is returned when the sample cannot establish a mapping.
var ErrUnmappableSample = errors.New("unmappable sample")

// Canonical positions for action, level and entry type.
const (
	canonicalAction = 0
	canonicalLevel  = 1
	canonicalSide   = 2
)

// Options tunes inference.
type Options struct {
	// Marker is a literal token that precedes the price column when present.
	Marker string

	// SideCheckEntries is how many leading entries the side validation inspects.
	SideCheckEntries int

	// SideCheckMinValues is how many of those entries must carry an integer
	// side value for the canonical layout to be accepted.
	SideCheckMinValues int

	// HeavyRatio is the share of entries a column must satisfy to count as
	// float-heavy or integer-heavy.
	HeavyRatio float64
}

// DefaultOptions returns default inference options.
func DefaultOptions() Options {
	return Options{
		Marker:             "M",
		SideCheckEntries:   20,
		SideCheckMinValues: 5,
		HeavyRatio:         0.5,
	}
}

// columnStats holds per-column counts over the sample.
type columnStats struct {
	bigNs    []int
	floats   []int
	ints     []int
	smallInt []int
	marker   []int
}

// InferLines tokenizes lines and infers a mapping from every entry they carry.
func InferLines(lines []string, tok feed.Tokenizer, opts Options) (model.Mapping, error) {
	var samples [][]string
	for _, line := range lines {
		entries, _ := tok.Tokenize(line)
		samples = append(samples, entries...)
	}
	return Infer(samples, opts)
}

// Infer assigns field roles to token positions from a sample of entries.
func Infer(samples [][]string, opts Options) (model.Mapping, error) {
	if len(samples) == 0 {
		return model.Mapping{}, fmt.Errorf("%w: no entries in sample", ErrUnmappableSample)
	}
	width := 0
	for _, e := range samples {
		if len(e) > width {
			width = len(e)
		}
	}
	if width == 0 {
		return model.Mapping{}, fmt.Errorf("%w: all entries are empty", ErrUnmappableSample)
	}

	st := collect(samples, width, opts.Marker)
	heavy := int(math.Ceil(opts.HeavyRatio * float64(len(samples))))
	if heavy < 1 {
		heavy = 1
	}

	ts := argmax(st.bigNs, nil)
	if ts < 0 {
		return model.Mapping{}, fmt.Errorf("%w: no nanosecond timestamp column", ErrUnmappableSample)
	}

	used := map[int]bool{ts: true}

	price := -1
	if marker := argmax(st.marker, nil); marker >= 0 {
		price = firstAfter(st.floats, marker, heavy, used)
	}
	if price < 0 {
		price = argmax(fractional(st), used)
	}
	if price < 0 {
		price = argmax(st.floats, used)
	}
	if price < 0 {
		return model.Mapping{}, fmt.Errorf("%w: no price column", ErrUnmappableSample)
	}
	used[price] = true

	size := firstAfter(st.ints, price, heavy, used)
	if size < 0 {
		size = argmax(st.ints, used)
	}
	if size < 0 {
		return model.Mapping{}, fmt.Errorf("%w: no size column", ErrUnmappableSample)
	}
	used[size] = true

	action, level, side := canonicalAction, canonicalLevel, canonicalSide
	if !canonicalFits(width, used) || !validSideColumn(samples, side, opts) {
		ranked := rankSmallInts(st.smallInt, used)
		if len(ranked) < 3 {
			return model.Mapping{}, fmt.Errorf("%w: need 3 small-integer columns, found %d", ErrUnmappableSample, len(ranked))
		}
		side, action, level = ranked[0], ranked[1], ranked[2]
	}
	used[action] = true
	used[level] = true
	used[side] = true

	instrument := -1
	best := -1
	for i := 0; i < width; i++ {
		if used[i] || st.ints[i] == 0 || st.bigNs[i] > 0 {
			continue
		}
		if score := st.ints[i] - st.smallInt[i]; score > best {
			best, instrument = score, i
		}
	}
	if instrument < 0 {
		return model.Mapping{}, fmt.Errorf("%w: no instrument id column", ErrUnmappableSample)
	}

	return model.Mapping{
		Action:     action,
		Side:       side,
		Level:      level,
		Instrument: instrument,
		Price:      price,
		Size:       size,
		Timestamp:  ts,
	}, nil
}

func collect(samples [][]string, width int, marker string) columnStats {
	st := columnStats{
		bigNs:    make([]int, width),
		floats:   make([]int, width),
		ints:     make([]int, width),
		smallInt: make([]int, width),
		marker:   make([]int, width),
	}
	for _, e := range samples {
		for i, v := range e {
			if v == "" {
				continue
			}
			if marker != "" && v == marker {
				st.marker[i]++
			}
			if isFloatLike(v) {
				st.floats[i]++
			}
			n, ok := parseIntLike(v)
			if !ok {
				continue
			}
			st.ints[i]++
			if isBigNs(v) {
				st.bigNs[i]++
			}
			if n >= 0 && n <= 10 {
				st.smallInt[i]++
			}
		}
	}
	return st
}

// argmax returns the lowest index with the highest positive count, or -1.
func argmax(counts []int, exclude map[int]bool) int {
	best, idx := 0, -1
	for i, c := range counts {
		if exclude[i] {
			continue
		}
		if c > best {
			best, idx = c, i
		}
	}
	return idx
}

// fractional keeps float counts only for columns holding at least one
// non-integer value, so the global price fallback skips pure integer columns.
func fractional(st columnStats) []int {
	out := make([]int, len(st.floats))
	for i := range st.floats {
		if st.floats[i] > st.ints[i] {
			out[i] = st.floats[i]
		}
	}
	return out
}

// firstAfter returns the first index after start whose count reaches heavy.
func firstAfter(counts []int, start, heavy int, exclude map[int]bool) int {
	for j := start + 1; j < len(counts); j++ {
		if !exclude[j] && counts[j] >= heavy {
			return j
		}
	}
	return -1
}

func canonicalFits(width int, used map[int]bool) bool {
	for _, idx := range []int{canonicalAction, canonicalLevel, canonicalSide} {
		if idx >= width || used[idx] {
			return false
		}
	}
	return true
}

// validSideColumn checks that the leading entries carry exactly the two side
// codes at idx.
func validSideColumn(samples [][]string, idx int, opts Options) bool {
	n := opts.SideCheckEntries
	if n <= 0 || n > len(samples) {
		n = len(samples)
	}
	values := 0
	distinct := make(map[int64]bool, 2)
	for _, e := range samples[:n] {
		if idx >= len(e) {
			continue
		}
		v, ok := parseIntLike(e[idx])
		if !ok {
			continue
		}
		values++
		distinct[v] = true
	}
	return values >= opts.SideCheckMinValues &&
		len(distinct) == 2 &&
		distinct[int64(model.SideBid)] && distinct[int64(model.SideAsk)]
}

// rankSmallInts orders unused columns with small-integer values by count,
// highest first, lower index first on ties.
func rankSmallInts(counts []int, exclude map[int]bool) []int {
	var idx []int
	for i, c := range counts {
		if !exclude[i] && c > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return counts[idx[a]] > counts[idx[b]]
	})
	return idx
}

func parseIntLike(s string) (int64, bool) {
	digits := s
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Out of int64 range but still an integer token.
		if s[0] == '-' {
			return math.MinInt64, true
		}
		return math.MaxInt64, true
	}
	return n, true
}

// isBigNs matches 16-20 digit integers, the width of epoch nanoseconds.
func isBigNs(s string) bool {
	digits := len(s)
	if s[0] == '-' {
		digits--
	}
	return digits >= 16 && digits <= 20
}

func isFloatLike(s string) bool {
	if s == "" || s == "." {
		return false
	}
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(v) && !math.IsInf(v, 0)
}
