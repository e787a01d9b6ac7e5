package message

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// PublishMessage is the request body accepted by the proto publish
// endpoints. The gateway fills Subject from the URL path and MessageID
// when the client left it empty.
type PublishMessage struct {
	MessageID string            `json:"message_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Source    string            `json:"source,omitempty"`
	Timestamp *Timestamp        `json:"timestamp,omitempty"`
	Data      []byte            `json:"data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (m *PublishMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.MessageID)
	b = appendString(b, 2, m.Subject)
	b = appendString(b, 3, m.Source)
	b = appendTimestamp(b, 4, m.Timestamp)
	b = appendBytesField(b, 5, m.Data)
	b = appendStringMap(b, 6, m.Metadata)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting m first. Unknown
// fields are skipped.
func (m *PublishMessage) Unmarshal(data []byte) error {
	*m = PublishMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("PublishMessage", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			m.MessageID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			m.Subject = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			m.Source = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			m.Timestamp = &Timestamp{}
			if err := m.Timestamp.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			m.Data = append([]byte(nil), v...)
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			key, value, err := consumeStringMapEntry(v, "PublishMessage")
			if err != nil {
				return err
			}
			if m.Metadata == nil {
				m.Metadata = make(map[string]string)
			}
			m.Metadata[key] = value
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("PublishMessage", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// PublishAck reports where JetStream stored a published message.
type PublishAck struct {
	Published bool       `json:"published"`
	Subject   string     `json:"subject"`
	Stream    string     `json:"stream"`
	Sequence  uint64     `json:"sequence"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (a *PublishAck) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, a.Published)
	b = appendString(b, 2, a.Subject)
	b = appendString(b, 3, a.Stream)
	b = appendUint64(b, 4, a.Sequence)
	b = appendTimestamp(b, 5, a.Timestamp)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting a first. Unknown
// fields are skipped.
func (a *PublishAck) Unmarshal(data []byte) error {
	*a = PublishAck{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("PublishAck", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			a.Published = v != 0
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			a.Subject = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			a.Stream = v
			data = data[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			a.Sequence = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			a.Timestamp = &Timestamp{}
			if err := a.Timestamp.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("PublishAck", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
