package component

import (
	"context"
	"time"
)

// LifecycleComponent is implemented by components the runner starts
// and stops. Initialize performs setup that cannot fail at creation
// time and takes no context; Start receives the runner's context and
// must not store it; Stop bounds graceful shutdown with the timeout.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
