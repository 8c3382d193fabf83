package chunk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// ErrCorruptChunk is returned when a chunk fails header, length or checksum checks.
var ErrCorruptChunk = errors.New("corrupt chunk")

const (
	magic         = "LQCK"
	formatVersion = 1

	// maxRecordBytes caps a single framed record; anything larger is corruption.
	maxRecordBytes = 1 << 20
)

// Snapshot message field numbers.
const (
	fieldTimestamp  protowire.Number = 1
	fieldInstrument protowire.Number = 2
	fieldAction     protowire.Number = 3
	fieldSeq        protowire.Number = 4
	fieldBid        protowire.Number = 5
	fieldAsk        protowire.Number = 6
)

// Level message field numbers.
const (
	fieldRank  protowire.Number = 1
	fieldPrice protowire.Number = 2
	fieldSize  protowire.Number = 3
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Less orders snapshots by timestamp, then instrument, then sequence.
func Less(a, b model.Snapshot) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Instrument != b.Instrument {
		return a.Instrument < b.Instrument
	}
	return a.Seq < b.Seq
}

// AppendSnapshot appends the protowire encoding of s to b.
func AppendSnapshot(b []byte, s model.Snapshot) []byte {
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Timestamp))
	b = protowire.AppendTag(b, fieldInstrument, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Instrument))
	if s.Action.Valid {
		b = protowire.AppendTag(b, fieldAction, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.Action.V)+1)
	}
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Seq)
	for _, lv := range s.Bids {
		b = protowire.AppendTag(b, fieldBid, protowire.BytesType)
		b = protowire.AppendBytes(b, appendLevel(nil, lv))
	}
	for _, lv := range s.Asks {
		b = protowire.AppendTag(b, fieldAsk, protowire.BytesType)
		b = protowire.AppendBytes(b, appendLevel(nil, lv))
	}
	return b
}

func appendLevel(b []byte, lv model.Level) []byte {
	b = protowire.AppendTag(b, fieldRank, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(lv.Rank))
	b = protowire.AppendTag(b, fieldPrice, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(lv.Price))
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(lv.Size))
	return b
}

// ParseSnapshot decodes a message produced by AppendSnapshot. Unknown fields
// are skipped.
func ParseSnapshot(b []byte) (model.Snapshot, error) {
	var s model.Snapshot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldBid && typ == protowire.BytesType, num == fieldAsk && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return s, protowire.ParseError(m)
			}
			lv, err := parseLevel(raw)
			if err != nil {
				return s, err
			}
			if num == fieldBid {
				s.Bids = append(s.Bids, lv)
			} else {
				s.Asks = append(s.Asks, lv)
			}
			n = m
		case typ == protowire.VarintType && num >= fieldTimestamp && num <= fieldSeq:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return s, protowire.ParseError(m)
			}
			switch num {
			case fieldTimestamp:
				s.Timestamp = int64(v)
			case fieldInstrument:
				s.Instrument = int64(v)
			case fieldAction:
				if v > 0 {
					s.Action = model.Some(int64(v - 1))
				}
			case fieldSeq:
				s.Seq = v
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return s, nil
}

func parseLevel(b []byte) (model.Level, error) {
	var lv model.Level
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return lv, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldPrice && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return lv, protowire.ParseError(m)
			}
			lv.Price = math.Float64frombits(v)
			n = m
		case (num == fieldRank || num == fieldSize) && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return lv, protowire.ParseError(m)
			}
			if num == fieldRank {
				lv.Rank = int(v)
			} else {
				lv.Size = int64(v)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return lv, protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return lv, nil
}

// Encoder writes framed snapshot records after a format header.
type Encoder struct {
	w       io.Writer
	buf     []byte
	records int
}

// NewEncoder writes the chunk header to w.
func NewEncoder(w io.Writer) (*Encoder, error) {
	if _, err := io.WriteString(w, magic); err != nil {
		return nil, fmt.Errorf("write chunk header: %w", err)
	}
	if _, err := w.Write([]byte{formatVersion}); err != nil {
		return nil, fmt.Errorf("write chunk header: %w", err)
	}
	return &Encoder{w: w}, nil
}

// Encode writes one record: uvarint length, payload, crc32c of payload.
func (e *Encoder) Encode(s model.Snapshot) error {
	payload := AppendSnapshot(nil, s)

	e.buf = e.buf[:0]
	e.buf = binary.AppendUvarint(e.buf, uint64(len(payload)))
	e.buf = append(e.buf, payload...)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, crc32.Checksum(payload, crcTable))

	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("write chunk record: %w", err)
	}
	e.records++
	return nil
}

// Records returns how many records have been encoded.
func (e *Encoder) Records() int {
	return e.records
}

// Decoder reads records written by an Encoder.
type Decoder struct {
	r       *bufio.Reader
	payload []byte
}

// NewDecoder validates the chunk header.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrCorruptChunk, err)
	}
	if string(header[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptChunk, header[:len(magic)])
	}
	if header[len(magic)] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptChunk, header[len(magic)])
	}
	return &Decoder{r: br}, nil
}

// Next returns the next snapshot, or io.EOF after the last record.
func (d *Decoder) Next() (model.Snapshot, error) {
	size, err := binary.ReadUvarint(d.r)
	if err == io.EOF {
		return model.Snapshot{}, io.EOF
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: record length: %v", ErrCorruptChunk, err)
	}
	if size > maxRecordBytes {
		return model.Snapshot{}, fmt.Errorf("%w: record length %d", ErrCorruptChunk, size)
	}

	need := int(size) + 4
	if cap(d.payload) < need {
		d.payload = make([]byte, need)
	}
	d.payload = d.payload[:need]
	if _, err := io.ReadFull(d.r, d.payload); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: truncated record: %v", ErrCorruptChunk, err)
	}

	body := d.payload[:size]
	sum := binary.LittleEndian.Uint32(d.payload[size:])
	if crc32.Checksum(body, crcTable) != sum {
		return model.Snapshot{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptChunk)
	}

	s, err := ParseSnapshot(body)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptChunk, err)
	}
	return s, nil
}
