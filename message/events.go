package message

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// UserEvent is the typed payload for the user-event publish variant.
type UserEvent struct {
	UserID     string            `json:"user_id,omitempty"`
	EventType  string            `json:"event_type,omitempty"`
	Email      string            `json:"email,omitempty"`
	OccurredAt *Timestamp        `json:"occurred_at,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (e *UserEvent) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, e.UserID)
	b = appendString(b, 2, e.EventType)
	b = appendString(b, 3, e.Email)
	b = appendTimestamp(b, 4, e.OccurredAt)
	b = appendStringMap(b, 5, e.Attributes)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting e first. Unknown
// fields are skipped.
func (e *UserEvent) Unmarshal(data []byte) error {
	*e = UserEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("UserEvent", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			e.UserID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			e.EventType = v
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			e.Email = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			e.OccurredAt = &Timestamp{}
			if err := e.OccurredAt.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			key, value, err := consumeStringMapEntry(v, "UserEvent")
			if err != nil {
				return err
			}
			if e.Attributes == nil {
				e.Attributes = make(map[string]string)
			}
			e.Attributes[key] = value
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("UserEvent", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// PaymentEvent is the typed payload for the payment-event publish variant.
type PaymentEvent struct {
	TransactionID string     `json:"transaction_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	Amount        float64    `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	CardLastFour  string     `json:"card_last_four,omitempty"`
	ProcessedAt   *Timestamp `json:"processed_at,omitempty"`
}

// Marshal encodes to canonical proto3 bytes.
func (e *PaymentEvent) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, e.TransactionID)
	b = appendString(b, 2, e.Status)
	b = appendFloat64(b, 3, e.Amount)
	b = appendString(b, 4, e.Currency)
	b = appendString(b, 5, e.CardLastFour)
	b = appendTimestamp(b, 6, e.ProcessedAt)
	return b
}

// Unmarshal decodes from proto3 bytes, resetting e first. Unknown
// fields are skipped.
func (e *PaymentEvent) Unmarshal(data []byte) error {
	*e = PaymentEvent{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError("PaymentEvent", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.TransactionID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.Status = v
			data = data[n:]
		case num == 3 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.Amount = math.Float64frombits(v)
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.Currency = v
			data = data[n:]
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.CardLastFour = v
			data = data[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			e.ProcessedAt = &Timestamp{}
			if err := e.ProcessedAt.unmarshal(v); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError("PaymentEvent", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
