package message

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/c360/natsgate/errors"
	"github.com/c360/natsgate/pkg/timestamp"
)

// Timestamp mirrors google.protobuf.Timestamp on the wire: field 1 is
// seconds since the unix epoch, field 2 is the nanosecond remainder.
// JSON renders it as an RFC3339 string.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// NewTimestamp converts a time.Time. Zero times map to nil so the field
// is omitted from the encoded message.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	sec, nanos := timestamp.Split(t)
	return &Timestamp{Seconds: sec, Nanos: nanos}
}

// Time converts back to time.Time. A nil Timestamp yields the zero time.
func (ts *Timestamp) Time() time.Time {
	if ts == nil {
		return time.Time{}
	}
	return timestamp.Join(ts.Seconds, ts.Nanos)
}

// MarshalJSON renders the timestamp as a quoted RFC3339 string.
func (ts *Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(timestamp.FormatTime(ts.Time()))), nil
}

// UnmarshalJSON accepts RFC3339 strings and numeric unix timestamps.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		s = string(data)
	}
	if s == "" || s == "null" {
		*ts = Timestamp{}
		return nil
	}

	t, ok := timestamp.ParseTime(s)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid timestamp %q", errors.ErrParsingFailed, s),
			"message.Timestamp", "UnmarshalJSON", "parse timestamp")
	}
	ts.Seconds, ts.Nanos = timestamp.Split(t)
	return nil
}

func (ts *Timestamp) marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, ts.Seconds)
	b = appendInt32(b, 2, ts.Nanos)
	return b
}

func (ts *Timestamp) unmarshal(data []byte) error {
	*ts = Timestamp{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("Timestamp", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("Timestamp", protowire.ParseError(n))
			}
			ts.Seconds = int64(v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("Timestamp", protowire.ParseError(n))
			}
			ts.Nanos = int32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("Timestamp", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// wireError classifies a decode failure so HTTP handlers map it to 400
// and callers can distinguish it from transport errors.
func wireError(msgName string, cause error) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v", errors.ErrParsingFailed, cause),
		"message."+msgName, "Unmarshal", "decode wire format")
}

// Append helpers follow proto3 canonical encoding: default values are
// not emitted.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// appendInt32 sign-extends negative values to ten bytes, matching
// standard int32/enum varint encoding.
func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendFloat64(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendTimestamp(b []byte, num protowire.Number, ts *Timestamp) []byte {
	if ts == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, ts.marshal())
}

// appendStringMap emits map<string,string> entries in sorted key order
// for deterministic output.
func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	if len(m) == 0 {
		return b
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendString(entry, 2, m[k])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// consumeStringMapEntry decodes one map<string,string> entry. Missing
// key or value fields decode to "".
func consumeStringMapEntry(data []byte, msgName string) (key, value string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", wireError(msgName, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", wireError(msgName, protowire.ParseError(n))
			}
			key = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", "", wireError(msgName, protowire.ParseError(n))
			}
			value = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", "", wireError(msgName, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return key, value, nil
}
