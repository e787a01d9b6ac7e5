package message

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// FrameType discriminates WebSocket frames.
type FrameType int32

const (
	// FrameTypeControl marks protocol signaling frames.
	FrameTypeControl FrameType = 0
	// FrameTypeMessage marks stream message delivery frames.
	FrameTypeMessage FrameType = 1
)

// String returns the proto enum name.
func (t FrameType) String() string {
	switch t {
	case FrameTypeControl:
		return "CONTROL"
	case FrameTypeMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// ControlType identifies control frame semantics.
type ControlType int32

const (
	// ControlTypeError reports a subscription or delivery failure.
	ControlTypeError ControlType = 0
	// ControlTypeSubscribeAck confirms a subscription is live.
	ControlTypeSubscribeAck ControlType = 1
	// ControlTypeClose announces the server is closing the connection.
	ControlTypeClose ControlType = 2
	// ControlTypeKeepalive is a periodic liveness signal.
	ControlTypeKeepalive ControlType = 3
)

// String returns the proto enum name.
func (t ControlType) String() string {
	switch t {
	case ControlTypeError:
		return "ERROR"
	case ControlTypeSubscribeAck:
		return "SUBSCRIBE_ACK"
	case ControlTypeClose:
		return "CLOSE"
	case ControlTypeKeepalive:
		return "KEEPALIVE"
	default:
		return "UNKNOWN"
	}
}

// ControlMessage carries protocol signaling on a WebSocket connection.
type ControlMessage struct {
	Type    ControlType `json:"type"`
	Message string      `json:"message,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (c *ControlMessage) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, int32(c.Type))
	b = appendString(b, 2, c.Message)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting c first. Unknown
// fields are skipped.
func (c *ControlMessage) Unmarshal(data []byte) error {
	*c = ControlMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("ControlMessage", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("ControlMessage", protowire.ParseError(n))
			}
			c.Type = ControlType(int32(v))
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("ControlMessage", protowire.ParseError(n))
			}
			c.Message = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("ControlMessage", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// StreamMessage is one live message delivered over a WebSocket. Consumer
// is set only on durable consumer subscriptions.
type StreamMessage struct {
	Subject   string     `json:"subject"`
	Sequence  uint64     `json:"sequence"`
	SizeBytes int64      `json:"size_bytes"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
	Consumer  string     `json:"consumer,omitempty"`
	Data      []byte     `json:"data,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (m *StreamMessage) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Subject)
	b = appendUint64(b, 2, m.Sequence)
	b = appendInt64(b, 3, m.SizeBytes)
	b = appendTimestamp(b, 4, m.Timestamp)
	b = appendString(b, 5, m.Consumer)
	b = appendBytesField(b, 6, m.Data)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting m first. Unknown
// fields are skipped.
func (m *StreamMessage) Unmarshal(data []byte) error {
	*m = StreamMessage{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("StreamMessage", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.Subject = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.Sequence = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.SizeBytes = int64(v)
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.Timestamp = &Timestamp{}
			if err := m.Timestamp.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.Consumer = v
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			m.Data = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("StreamMessage", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// WebSocketFrame is the tagged union sent on WebSocket connections.
// Exactly one of Control/Message is set, matching Type. Receivers must
// ignore frames whose type they do not recognize.
type WebSocketFrame struct {
	Type    FrameType       `json:"type"`
	Control *ControlMessage `json:"control,omitempty"`
	Message *StreamMessage  `json:"message,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (f *WebSocketFrame) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, int32(f.Type))
	if f.Control != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Control.Marshal())
	}
	if f.Message != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Message.Marshal())
	}
	return b
}

// Unmarshal decodes from proto3 bytes, resetting f first. Unknown
// fields are skipped.
func (f *WebSocketFrame) Unmarshal(data []byte) error {
	*f = WebSocketFrame{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("WebSocketFrame", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError("WebSocketFrame", protowire.ParseError(n))
			}
			f.Type = FrameType(int32(v))
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("WebSocketFrame", protowire.ParseError(n))
			}
			f.Control = &ControlMessage{}
			if err := f.Control.Unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("WebSocketFrame", protowire.ParseError(n))
			}
			f.Message = &StreamMessage{}
			if err := f.Message.Unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("WebSocketFrame", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// NewControlFrame builds a CONTROL frame.
func NewControlFrame(ct ControlType, text string) *WebSocketFrame {
	return &WebSocketFrame{
		Type:    FrameTypeControl,
		Control: &ControlMessage{Type: ct, Message: text},
	}
}

// NewErrorFrame builds an ERROR control frame.
func NewErrorFrame(text string) *WebSocketFrame {
	return NewControlFrame(ControlTypeError, text)
}

// NewSubscribeAckFrame builds a SUBSCRIBE_ACK control frame.
func NewSubscribeAckFrame(text string) *WebSocketFrame {
	return NewControlFrame(ControlTypeSubscribeAck, text)
}

// NewCloseFrame builds a CLOSE control frame.
func NewCloseFrame(text string) *WebSocketFrame {
	return NewControlFrame(ControlTypeClose, text)
}

// NewKeepaliveFrame builds a KEEPALIVE control frame.
func NewKeepaliveFrame() *WebSocketFrame {
	return NewControlFrame(ControlTypeKeepalive, "")
}

// NewMessageFrame wraps a stream message for delivery.
func NewMessageFrame(sm *StreamMessage) *WebSocketFrame {
	return &WebSocketFrame{
		Type:    FrameTypeMessage,
		Message: sm,
	}
}
