package feed

import (
	"database/sql"
	"math"
	"strconv"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Decode converts one entry's tokens into a RawEvent using m.
// Missing tokens leave the field absent; tokens that fail numeric conversion
// leave it absent and increment BadFields.
func Decode(tokens []string, m model.Mapping) model.RawEvent {
	var ev model.RawEvent
	ev.Action = decodeInt(tokens, m.Action, &ev.BadFields)
	ev.Side = decodeInt(tokens, m.Side, &ev.BadFields)
	ev.Level = decodeInt(tokens, m.Level, &ev.BadFields)
	ev.Instrument = decodeInt(tokens, m.Instrument, &ev.BadFields)
	ev.Price = decodeFloat(tokens, m.Price, &ev.BadFields)
	ev.Size = decodeInt(tokens, m.Size, &ev.BadFields)
	ev.Timestamp = decodeInt(tokens, m.Timestamp, &ev.BadFields)
	return ev
}

// Encode renders ev as tokens at m's indices, the inverse of Decode.
// Absent fields and unmapped positions are empty tokens.
func Encode(ev model.RawEvent, m model.Mapping) []string {
	tokens := make([]string, m.Width())
	putInt(tokens, m.Action, ev.Action)
	putInt(tokens, m.Side, ev.Side)
	putInt(tokens, m.Level, ev.Level)
	putInt(tokens, m.Instrument, ev.Instrument)
	if ev.Price.Valid {
		tokens[m.Price] = strconv.FormatFloat(ev.Price.V, 'g', -1, 64)
	}
	putInt(tokens, m.Size, ev.Size)
	putInt(tokens, m.Timestamp, ev.Timestamp)
	return tokens
}

func token(tokens []string, idx int) string {
	if idx < 0 || idx >= len(tokens) {
		return ""
	}
	return tokens[idx]
}

func decodeInt(tokens []string, idx int, bad *int) sql.Null[int64] {
	s := token(tokens, idx)
	if s == "" {
		return sql.Null[int64]{}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*bad++
		return sql.Null[int64]{}
	}
	return model.Some(v)
}

func decodeFloat(tokens []string, idx int, bad *int) sql.Null[float64] {
	s := token(tokens, idx)
	if s == "" {
		return sql.Null[float64]{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*bad++
		return sql.Null[float64]{}
	}
	return model.Some(v)
}

func putInt(tokens []string, idx int, v sql.Null[int64]) {
	if v.Valid {
		tokens[idx] = strconv.FormatInt(v.V, 10)
	}
}
