package webrtc

import (
	"fmt"
	"sync"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"

	"go.uber.org/zap"
)

const eventBufferSize = 128

// Registry is the keyed collection of per-viewer transports. It owns the
// shared event channel all transports emit into, and serializes mutation so
// concurrent viewer flows cannot corrupt each other.
type Registry struct {
	factory ports.TransportFactory
	logger  *zap.SugaredLogger
	events  chan ports.TransportEvent

	mu         sync.RWMutex
	transports map[domain.ViewerID]ports.ViewerTransport
}

func NewRegistry(factory ports.TransportFactory, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		factory:    factory,
		logger:     logger,
		events:     make(chan ports.TransportEvent, eventBufferSize),
		transports: make(map[domain.ViewerID]ports.ViewerTransport),
	}
}

// Create instantiates a transport for the viewer with the source's tracks
// attached. Admitting the same viewer twice is refused; callers wanting
// idempotent admission check Exists first.
func (r *Registry) Create(viewer domain.ViewerID, source ports.MediaSource) (ports.ViewerTransport, error) {
	transport, err := r.factory.NewViewerTransport(viewer, source, r.events)
	if err != nil {
		return nil, fmt.Errorf("create transport for viewer %s: %w", viewer, err)
	}

	r.mu.Lock()
	if _, exists := r.transports[viewer]; exists {
		r.mu.Unlock()
		transport.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrViewerExists, viewer)
	}
	r.transports[viewer] = transport
	r.mu.Unlock()

	r.logger.Debugw("viewer transport registered", "viewer_id", viewer)
	return transport, nil
}

func (r *Registry) Exists(viewer domain.ViewerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.transports[viewer]
	return exists
}

func (r *Registry) Get(viewer domain.ViewerID) (ports.ViewerTransport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transport, exists := r.transports[viewer]
	return transport, exists
}

// Remove closes and discards the viewer's transport. No-op if absent.
func (r *Registry) Remove(viewer domain.ViewerID) {
	r.mu.Lock()
	transport, exists := r.transports[viewer]
	delete(r.transports, viewer)
	r.mu.Unlock()

	if !exists {
		return
	}
	transport.Close()
	r.logger.Debugw("viewer transport removed", "viewer_id", viewer)
}

// ForEach iterates a snapshot of the current transports, so adding or
// removing a viewer mid-iteration cannot corrupt or duplicate the walk.
// Iteration order is unspecified.
func (r *Registry) ForEach(fn func(ports.ViewerTransport)) {
	r.mu.RLock()
	snapshot := make([]ports.ViewerTransport, 0, len(r.transports))
	for _, transport := range r.transports {
		snapshot = append(snapshot, transport)
	}
	r.mu.RUnlock()

	for _, transport := range snapshot {
		fn(transport)
	}
}

// Clear closes every transport and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	snapshot := make([]ports.ViewerTransport, 0, len(r.transports))
	for _, transport := range r.transports {
		snapshot = append(snapshot, transport)
	}
	r.transports = make(map[domain.ViewerID]ports.ViewerTransport)
	r.mu.Unlock()

	for _, transport := range snapshot {
		transport.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports)
}

// Events is the stream of state changes and candidates from every transport.
func (r *Registry) Events() <-chan ports.TransportEvent {
	return r.events
}
