package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/c360/natsgate/errors"
)

func TestStoredMessage_GoldenBytes(t *testing.T) {
	msg := &StoredMessage{
		Sequence:  7,
		Subject:   "events",
		SizeBytes: 3,
		Data:      []byte("abc"),
	}

	// 0x08 0x07          sequence = 7
	// 0x12 0x06 "events" subject
	// 0x18 0x03          size_bytes = 3
	// 0x2A 0x03 "abc"    data
	want := []byte{0x08, 0x07}
	want = append(want, 0x12, 0x06)
	want = append(want, []byte("events")...)
	want = append(want, 0x18, 0x03)
	want = append(want, 0x2A, 0x03, 0x61, 0x62, 0x63)

	assert.Equal(t, want, msg.Marshal())
}

func TestFetchResponse_RoundTrip(t *testing.T) {
	resp := &FetchResponse{
		Count:   3,
		Stream:  "events",
		Subject: "events.user.created",
		Messages: []*StoredMessage{
			{Sequence: 5, Subject: "events.user.created", SizeBytes: 2, Data: []byte("m1")},
			{Sequence: 6, Subject: "events.user.created", SizeBytes: 2, Data: []byte("m2")},
			{Sequence: 9, Subject: "events.user.created", SizeBytes: 2, Data: []byte("m3")},
		},
	}

	var got FetchResponse
	require.NoError(t, got.Unmarshal(resp.Marshal()))
	assert.Equal(t, *resp, got)
}

func TestFetchResponse_PreservesMessageOrder(t *testing.T) {
	resp := &FetchResponse{
		Count:  3,
		Stream: "events",
		Messages: []*StoredMessage{
			{Sequence: 1}, {Sequence: 2}, {Sequence: 3},
		},
	}

	var got FetchResponse
	require.NoError(t, got.Unmarshal(resp.Marshal()))

	require.Len(t, got.Messages, 3)
	for i, msg := range got.Messages {
		assert.Equal(t, uint64(i+1), msg.Sequence, "Messages must stay in stream order")
	}
}

func TestFetchResponse_Empty(t *testing.T) {
	resp := &FetchResponse{Stream: "events", Subject: "events.user"}

	var got FetchResponse
	require.NoError(t, got.Unmarshal(resp.Marshal()))

	assert.Equal(t, int32(0), got.Count)
	assert.Empty(t, got.Messages, "Empty fetch is a valid response, not an error")
}

func TestFetchResponse_CorruptNestedMessage(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, 4, protowire.BytesType)
	// Nested StoredMessage with a dangling tag
	data = protowire.AppendBytes(data, []byte{0x12})

	var got FetchResponse
	err := got.Unmarshal(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}
