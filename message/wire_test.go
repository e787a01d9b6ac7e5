package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_Conversions(t *testing.T) {
	ref := time.Date(2026, 1, 15, 12, 30, 45, 123456789, time.UTC)

	ts := NewTimestamp(ref)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1768480245), ts.Seconds)
	assert.Equal(t, int32(123456789), ts.Nanos)
	assert.True(t, ts.Time().Equal(ref))
}

func TestTimestamp_ZeroTime(t *testing.T) {
	assert.Nil(t, NewTimestamp(time.Time{}), "Zero time maps to absent field")

	var ts *Timestamp
	assert.True(t, ts.Time().IsZero(), "Absent field maps back to zero time")
}

func TestTimestamp_RoundTrip(t *testing.T) {
	ts := &Timestamp{Seconds: 1768480245, Nanos: 500}

	var got Timestamp
	require.NoError(t, got.unmarshal(ts.marshal()))
	assert.Equal(t, *ts, got)
}

func TestStringMap_DeterministicEncoding(t *testing.T) {
	// Same pairs inserted in different orders must encode identically
	a := &PublishMessage{Metadata: map[string]string{"zeta": "1", "alpha": "2", "mid": "3"}}
	b := &PublishMessage{Metadata: map[string]string{"mid": "3", "zeta": "1", "alpha": "2"}}

	assert.Equal(t, a.Marshal(), b.Marshal())
}

func TestStringMap_EntryWithMissingValue(t *testing.T) {
	// An entry carrying only a key decodes with an empty value
	key, value, err := consumeStringMapEntry([]byte{0x0A, 0x01, 'k'}, "test")
	require.NoError(t, err)
	assert.Equal(t, "k", key)
	assert.Equal(t, "", value)
}
