package registry

import (
	"sync"

	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure Registry implements domain.Registry
var _ domain.Registry = (*Registry)(nil)

// Registry maps user identities to their set of live connections. A
// user may hold several connections at once (tabs, devices); every
// connection belongs to exactly one user entry. An entry whose set
// becomes empty is removed so the map never accumulates dead users.
type Registry struct {
	users   map[string]map[string]domain.Connection // userID -> connID -> connection
	mu      sync.RWMutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	logger := log.With().Str("component", "registry").Logger()

	return &Registry{
		users:   make(map[string]map[string]domain.Connection),
		logger:  logger,
		metrics: metrics.GetMetrics(),
	}
}

// Register adds a connection to the user's live set, creating the set
// if absent. Re-registering the same connection id replaces it.
func (r *Registry) Register(userID string, conn domain.Connection) {
	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]domain.Connection)
		r.users[userID] = conns
		r.metrics.RegistryUsersActive.Inc()
	}
	if _, exists := conns[conn.ID()]; !exists {
		r.metrics.RegistryConnectionsActive.Inc()
	}
	conns[conn.ID()] = conn
	r.mu.Unlock()

	r.logger.Debug().
		Str("user_id", userID).
		Str("connection_id", conn.ID()).
		Msg("Connection registered")
}

// Unregister removes a connection from the user's set; if the set
// becomes empty, the user entry is removed entirely. Unregistering a
// connection that is not present is a no-op.
func (r *Registry) Unregister(userID string, conn domain.Connection) {
	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := conns[conn.ID()]; !exists {
		r.mu.Unlock()
		return
	}
	delete(conns, conn.ID())
	r.metrics.RegistryConnectionsActive.Dec()
	if len(conns) == 0 {
		delete(r.users, userID)
		r.metrics.RegistryUsersActive.Dec()
	}
	r.mu.Unlock()

	r.logger.Debug().
		Str("user_id", userID).
		Str("connection_id", conn.ID()).
		Msg("Connection unregistered")
}

// ActiveConnections returns a point-in-time snapshot of the user's
// live connections. Callers must tolerate connections closing between
// the snapshot and use.
func (r *Registry) ActiveConnections(userID string) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.users[userID]
	if !ok {
		return nil
	}

	snapshot := make([]domain.Connection, 0, len(conns))
	for _, conn := range conns {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Send pushes payload to every connection currently registered for
// userID and returns the number of successful sends. An offline user
// is a silent no-op. A failed send on one connection never affects the
// others; the broken connection is lazily evicted and closed.
func (r *Registry) Send(userID string, payload []byte) int {
	conns := r.ActiveConnections(userID)
	if len(conns) == 0 {
		r.metrics.RegistrySendsTotal.WithLabelValues("offline").Inc()
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		// Transport writes happen outside the registry lock
		if err := conn.Send(payload); err != nil {
			r.metrics.RegistrySendsTotal.WithLabelValues("failed").Inc()
			r.metrics.RegistryEvictionsTotal.Inc()
			r.logger.Debug().
				Err(err).
				Str("user_id", userID).
				Str("connection_id", conn.ID()).
				Msg("Transport send failed, evicting connection")

			r.Unregister(userID, conn)
			conn.Close()
			continue
		}
		delivered++
		r.metrics.RegistrySendsTotal.WithLabelValues("delivered").Inc()
	}
	return delivered
}

// ConnectionCount returns the total number of live connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}
	return total
}

// UserCount returns the number of users with at least one live connection
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// CloseAll terminates every live connection and empties the registry.
// Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	users := r.users
	r.users = make(map[string]map[string]domain.Connection)
	r.mu.Unlock()

	closed := 0
	for _, conns := range users {
		for _, conn := range conns {
			conn.Close()
			closed++
		}
	}
	r.metrics.RegistryConnectionsActive.Sub(float64(closed))
	r.metrics.RegistryUsersActive.Sub(float64(len(users)))

	r.logger.Info().Int("closed_connections", closed).Msg("All connections closed")
}
