package message

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// StoredMessage is one message read back from a stream, carrying its
// JetStream sequence and stored timestamp.
type StoredMessage struct {
	Sequence  uint64     `json:"sequence"`
	Subject   string     `json:"subject"`
	SizeBytes int64      `json:"size_bytes"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
	Data      []byte     `json:"data,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (m *StoredMessage) Marshal() []byte {
	var b []byte
	b = appendUint64(b, 1, m.Sequence)
	b = appendString(b, 2, m.Subject)
	b = appendInt64(b, 3, m.SizeBytes)
	b = appendTimestamp(b, 4, m.Timestamp)
	b = appendBytesField(b, 5, m.Data)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting m first. Unknown
// fields are skipped.
func (m *StoredMessage) Unmarshal(data []byte) error {
	*m = StoredMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("StoredMessage", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			m.Sequence = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			m.Subject = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			m.SizeBytes = int64(v)
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			m.Timestamp = &Timestamp{}
			if err := m.Timestamp.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			m.Data = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("StoredMessage", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// FetchResponse is the body returned by the proto fetch endpoints.
// Messages appear in stream order with strictly increasing sequences.
type FetchResponse struct {
	Count    int32            `json:"count"`
	Stream   string           `json:"stream"`
	Subject  string           `json:"subject"`
	Messages []*StoredMessage `json:"messages"`
}

// Marshal encodes to canonical proto3 bytes.
func (r *FetchResponse) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, r.Count)
	b = appendString(b, 2, r.Stream)
	b = appendString(b, 3, r.Subject)
	for _, msg := range r.Messages {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, msg.Marshal())
	}
	return b
}

// Unmarshal decodes from proto3 bytes, resetting r first. Unknown
// fields are skipped.
func (r *FetchResponse) Unmarshal(data []byte) error {
	*r = FetchResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("FetchResponse", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("FetchResponse", protowire.ParseError(n))
			}
			r.Count = int32(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("FetchResponse", protowire.ParseError(n))
			}
			r.Stream = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("FetchResponse", protowire.ParseError(n))
			}
			r.Subject = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("FetchResponse", protowire.ParseError(n))
			}
			msg := &StoredMessage{}
			if err := msg.Unmarshal(v); err != nil {
				return err
			}
			r.Messages = append(r.Messages, msg)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("FetchResponse", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
