package component

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory returns a fresh component instance for a lifecycle
// test. Each invocation must produce an independent instance; the suite
// starts several of them.
type LifecycleFactory func() LifecycleComponent

// StandardLifecycleTests verifies the lifecycle contract every shipped
// component must honor: Initialize before Start, idempotent Stop, clean
// restart, context validation on Start, and safety under concurrent
// Start/Stop calls. Both the gateway and the metrics server run this
// suite against their real factories.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("Transitions", func(t *testing.T) {
		testTransitions(t, factory)
	})
	t.Run("StartContext", func(t *testing.T) {
		testStartContext(t, factory)
	})
	t.Run("ConcurrentStartStop", func(t *testing.T) {
		testConcurrentStartStop(t, factory)
	})
	t.Run("GoroutineCleanup", func(t *testing.T) {
		testGoroutineCleanup(t, factory)
	})
}

func testTransitions(t *testing.T, factory LifecycleFactory) {
	tests := []struct {
		name string
		run  func(t *testing.T, comp LifecycleComponent)
	}{
		{"FullCycle", func(t *testing.T, comp LifecycleComponent) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"StopWithoutStart", func(t *testing.T, comp LifecycleComponent) {
			assert.NoError(t, comp.Stop(5*time.Second), "Stop on a never-started component is a no-op")
		}},
		{"DoubleStart", func(t *testing.T, comp LifecycleComponent) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			assert.NoError(t, comp.Start(context.Background()), "second Start is idempotent")
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
		{"DoubleStop", func(t *testing.T, comp LifecycleComponent) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			require.NoError(t, comp.Stop(5*time.Second))
			assert.NoError(t, comp.Stop(5*time.Second), "second Stop is idempotent")
		}},
		{"RestartAfterStop", func(t *testing.T, comp LifecycleComponent) {
			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()))
			require.NoError(t, comp.Stop(5*time.Second))

			require.NoError(t, comp.Initialize())
			require.NoError(t, comp.Start(context.Background()), "component restarts after a clean Stop")
			assert.NoError(t, comp.Stop(5*time.Second))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := factory()
			require.NotNil(t, comp, "factory returned nil component")
			tt.run(t, comp)
		})
	}
}

func testStartContext(t *testing.T, factory LifecycleFactory) {
	t.Run("NilContext", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())
		//nolint:staticcheck // nil context rejection is part of the contract
		assert.Error(t, comp.Start(nil))
		assert.NoError(t, comp.Stop(5*time.Second))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		comp := factory()
		require.NoError(t, comp.Initialize())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := comp.Start(ctx)
		assert.Error(t, err, "Start must refuse an already-cancelled context")
		assert.NoError(t, comp.Stop(5*time.Second))
	})
}

// testConcurrentStartStop races Start and Stop calls against a single
// instance. The contract is panic-free execution and a component that
// is still stoppable afterwards; which individual calls win is
// scheduling-dependent.
func testConcurrentStartStop(t *testing.T, factory LifecycleFactory) {
	comp := factory()
	require.NotNil(t, comp)
	require.NoError(t, comp.Initialize())

	const racers = 16
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(start bool) {
			defer wg.Done()
			if start {
				_ = comp.Start(context.Background())
			} else {
				_ = comp.Stop(5 * time.Second)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.NoError(t, comp.Stop(5*time.Second), "component remains stoppable after racing Start/Stop")
}

func testGoroutineCleanup(t *testing.T, factory LifecycleFactory) {
	if testing.Short() {
		t.Skip("skipping goroutine cleanup check in short mode")
	}

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	before := runtime.NumGoroutine()

	const cycles = 20
	for i := 0; i < cycles; i++ {
		comp := factory()
		require.NotNil(t, comp)
		require.NoError(t, comp.Initialize())
		if err := comp.Start(context.Background()); err != nil {
			t.Fatalf("Start failed on cycle %d: %v", i, err)
		}
		require.NoError(t, comp.Stop(5*time.Second))
	}

	runtime.GC()
	time.Sleep(200 * time.Millisecond)
	after := runtime.NumGoroutine()

	// Allow slack for runtime background goroutines.
	if after > before+5 {
		t.Errorf("goroutine count grew from %d to %d across %d start/stop cycles", before, after, cycles)
	}
}
