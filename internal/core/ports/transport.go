package ports

import (
	"lumecast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// TransportEventKind tags events emitted by viewer transports.
type TransportEventKind string

const (
	TransportStateChanged TransportEventKind = "state_changed"
	TransportCandidate    TransportEventKind = "candidate"
)

// TransportEvent is emitted by a viewer transport and consumed by the
// orchestrator. State is set for state_changed events, Candidate for
// candidate events.
type TransportEvent struct {
	Viewer    domain.ViewerID
	Kind      TransportEventKind
	State     webrtc.PeerConnectionState
	Candidate webrtc.ICECandidateInit
}

// ViewerTransport is one negotiated peer session: local media attached,
// offer/answer exchange, candidate accumulation, disposal. Never shared
// across viewers.
type ViewerTransport interface {
	Viewer() domain.ViewerID
	Negotiate(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AddRemoteCandidate(candidate webrtc.ICECandidateInit) error
	ReplaceTracks(source MediaSource)
	Close()
}

// TransportFactory builds viewer transports. Implementations are constructed
// with the ICE server configuration; SetICEServers lets the orchestrator
// merge servers handed back by the backend at session creation.
type TransportFactory interface {
	SetICEServers(servers []webrtc.ICEServer)
	NewViewerTransport(viewer domain.ViewerID, source MediaSource, events chan<- TransportEvent) (ViewerTransport, error)
}

// ConnectionRegistry is the keyed collection of per-viewer transports and
// the sole shared mutable resource across concurrent viewer flows. ForEach
// iterates a snapshot, so mutation during a bulk operation cannot corrupt
// or duplicate the iteration; iteration order is unspecified.
type ConnectionRegistry interface {
	Create(viewer domain.ViewerID, source MediaSource) (ViewerTransport, error)
	Exists(viewer domain.ViewerID) bool
	Get(viewer domain.ViewerID) (ViewerTransport, bool)
	Remove(viewer domain.ViewerID)
	ForEach(fn func(ViewerTransport))
	Clear()
	Len() int
	Events() <-chan TransportEvent
}
