package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/natsgate/pkg/buffer"
)

const (
	// defaultHistorySamples applies when ?samples is absent
	defaultHistorySamples = 10

	// samplerInterval is the cadence of the background consumer sweep
	samplerInterval = 15 * time.Second

	// historyCapacity bounds per-consumer retention (one hour at the
	// sampling cadence). Older samples are overwritten.
	historyCapacity = 240
)

// consumerSample is one point-in-time consumer state snapshot
type consumerSample struct {
	Timestamp   time.Time `json:"timestamp"`
	Delivered   uint64    `json:"delivered"`
	AckFloor    uint64    `json:"ack_floor"`
	Pending     uint64    `json:"pending"`
	AckPending  int       `json:"ack_pending"`
	Redelivered int       `json:"redelivered"`
}

// historySampler sweeps every consumer on every stream in the background
// and keeps a bounded ring of state samples per consumer. The history
// endpoint reads from the rings, never from the broker.
type historySampler struct {
	broker Broker
	logger *slog.Logger

	mu    sync.RWMutex
	rings map[string]*buffer.Ring[consumerSample]
}

func newHistorySampler(broker Broker, logger *slog.Logger) *historySampler {
	return &historySampler{
		broker: broker,
		logger: logger,
		rings:  make(map[string]*buffer.Ring[consumerSample]),
	}
}

// start launches the background sweep loop
func (s *historySampler) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(samplerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// sweep samples every consumer once and drops rings for consumers that no
// longer exist, so deleted consumers do not leak history.
func (s *historySampler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, samplerInterval)
	defer cancel()

	streams, err := s.broker.ListStreams(sweepCtx)
	if err != nil {
		// Transient broker trouble; the next sweep retries
		s.logger.Debug("Consumer sampling skipped", "error", err)
		return
	}

	seen := make(map[string]struct{})
	now := time.Now()

	for _, stream := range streams {
		infos, err := s.broker.ListConsumers(sweepCtx, stream.Config.Name)
		if err != nil {
			s.logger.Debug("Consumer sampling skipped for stream",
				"stream", stream.Config.Name, "error", err)
			continue
		}

		for _, info := range infos {
			key := historyKey(info.Stream, info.Name)
			seen[key] = struct{}{}

			s.record(key, consumerSample{
				Timestamp:   now,
				Delivered:   info.Delivered.Stream,
				AckFloor:    info.AckFloor.Stream,
				Pending:     info.NumPending,
				AckPending:  info.NumAckPending,
				Redelivered: info.NumRedelivered,
			})
		}
	}

	s.mu.Lock()
	for key := range s.rings {
		if _, ok := seen[key]; !ok {
			delete(s.rings, key)
		}
	}
	s.mu.Unlock()
}

func (s *historySampler) record(key string, sample consumerSample) {
	s.mu.Lock()
	ring, ok := s.rings[key]
	if !ok {
		ring = buffer.NewRing[consumerSample](historyCapacity)
		s.rings[key] = ring
	}
	s.mu.Unlock()

	ring.Append(sample)
}

// samples returns the most recent n samples, oldest first. A nil return
// means the sampler has never seen this consumer.
func (s *historySampler) samples(streamName, consumerName string, n int) []consumerSample {
	s.mu.RLock()
	ring, ok := s.rings[historyKey(streamName, consumerName)]
	s.mu.RUnlock()

	if !ok {
		return nil
	}
	return ring.Last(n)
}

func historyKey(streamName, consumerName string) string {
	return streamName + "/" + consumerName
}
