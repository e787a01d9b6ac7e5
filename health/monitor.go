package health

import (
	"sync"
	"time"

	"github.com/c360/natsgate/component"
)

// Monitor tracks the health of the gateway's components. Components that
// implement component.Discoverable are watched and polled via Refresh;
// infrastructure that has no component wrapper (the NATS connection, for
// example) can be reported manually with Update.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	watched  map[string]component.Discoverable
}

// NewMonitor creates an empty health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		watched:  make(map[string]component.Discoverable),
	}
}

// Watch registers a component for health polling. The component is polled
// immediately so callers see a status without waiting for the next Refresh.
func (m *Monitor) Watch(name string, c component.Discoverable) {
	status := FromComponentHealth(name, c.Health())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[name] = c
	m.statuses[name] = status
}

// Unwatch stops polling a component and drops its last known status
func (m *Monitor) Unwatch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, name)
	delete(m.statuses, name)
}

// Refresh polls every watched component and records its current status.
// Manually reported statuses are left untouched.
func (m *Monitor) Refresh() {
	m.mu.RLock()
	watched := make(map[string]component.Discoverable, len(m.watched))
	for name, c := range m.watched {
		watched[name] = c
	}
	m.mu.RUnlock()

	// Health() may take a lock inside the component, so poll outside ours
	fresh := make(map[string]Status, len(watched))
	for name, c := range watched {
		fresh[name] = FromComponentHealth(name, c.Health())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, status := range fresh {
		if _, still := m.watched[name]; still {
			m.statuses[name] = status
		}
	}
}

// Update records a health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to report a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to report a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded is a convenience method to report a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get retrieves the last known status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// AggregateHealth returns the aggregated health of everything the monitor
// knows about, suitable for a liveness endpoint
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the names of all components with a recorded status
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	return names
}

// Count returns the number of components with a recorded status
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}
