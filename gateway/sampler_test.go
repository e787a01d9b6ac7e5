package gateway

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistorySampler_RecordAndRead(t *testing.T) {
	s := newHistorySampler(newStubBroker(), slog.Default())

	assert.Nil(t, s.samples("events", "worker-1", 10), "never-sampled consumer answers nil")

	for i := 1; i <= 4; i++ {
		s.record("events/worker-1", consumerSample{Delivered: uint64(i)})
	}

	samples := s.samples("events", "worker-1", 2)
	require.Len(t, samples, 2)
	assert.Equal(t, uint64(3), samples[0].Delivered, "oldest first")
	assert.Equal(t, uint64(4), samples[1].Delivered)

	// Asking for more than recorded returns everything
	assert.Len(t, s.samples("events", "worker-1", 100), 4)
}

func TestHistorySampler_Overwrite(t *testing.T) {
	s := newHistorySampler(newStubBroker(), slog.Default())

	for i := 1; i <= historyCapacity+10; i++ {
		s.record("events/w", consumerSample{Delivered: uint64(i)})
	}

	samples := s.samples("events", "w", historyCapacity+10)
	require.Len(t, samples, historyCapacity)
	assert.Equal(t, uint64(11), samples[0].Delivered, "oldest samples are overwritten")
}

func TestHistorySampler_Sweep(t *testing.T) {
	broker := newStubBroker()
	broker.listStreamsFn = func(context.Context) ([]*jetstream.StreamInfo, error) {
		return []*jetstream.StreamInfo{
			{Config: jetstream.StreamConfig{Name: "events"}},
		}, nil
	}
	broker.listConsumersFn = func(_ context.Context, stream string) ([]*jetstream.ConsumerInfo, error) {
		return []*jetstream.ConsumerInfo{
			{
				Stream:        stream,
				Name:          "worker-1",
				Delivered:     jetstream.SequenceInfo{Stream: 7},
				AckFloor:      jetstream.SequenceInfo{Stream: 5},
				NumPending:    2,
				NumAckPending: 1,
			},
		}, nil
	}

	s := newHistorySampler(broker, slog.Default())
	s.sweep(context.Background())

	samples := s.samples("events", "worker-1", 10)
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(7), samples[0].Delivered)
	assert.Equal(t, uint64(5), samples[0].AckFloor)
	assert.Equal(t, uint64(2), samples[0].Pending)

	// A consumer that disappears loses its history on the next sweep
	broker.listConsumersFn = func(context.Context, string) ([]*jetstream.ConsumerInfo, error) {
		return nil, nil
	}
	s.sweep(context.Background())
	assert.Nil(t, s.samples("events", "worker-1", 10))
}

func TestHistorySampler_SweepSkipsOnBrokerError(t *testing.T) {
	broker := newStubBroker()
	calls := 0
	broker.listStreamsFn = func(context.Context) ([]*jetstream.StreamInfo, error) {
		calls++
		return nil, context.DeadlineExceeded
	}

	s := newHistorySampler(broker, slog.Default())
	s.record("events/w", consumerSample{Delivered: 1})

	s.sweep(context.Background())
	assert.Equal(t, 1, calls)
	assert.Len(t, s.samples("events", "w", 10), 1,
		"a failed sweep must not drop existing history")
}

func TestHistorySampler_StartStopsWithContext(t *testing.T) {
	s := newHistorySampler(newStubBroker(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	s.start(ctx, &wg)

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler goroutine did not stop with its context")
	}
}
