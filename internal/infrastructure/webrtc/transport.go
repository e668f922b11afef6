package webrtc

import (
	"fmt"
	"sync"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Transport is one viewer's negotiated peer session. Local tracks are
// attached at creation; state transitions and discovered candidates are
// emitted as events rather than handled in ad hoc closures, so the
// orchestrator can be driven by a fake transport in tests.
type Transport struct {
	viewer domain.ViewerID
	pc     PeerConnection
	events chan<- ports.TransportEvent
	logger *zap.SugaredLogger

	mu      sync.Mutex
	senders []RTPSender
	closed  bool
}

// NewTransport attaches every track of source (if present) and wires the
// candidate and state callbacks. A nil source gives a track-less transport,
// which is legal during the quality-change gap.
func NewTransport(viewer domain.ViewerID, pc PeerConnection, source ports.MediaSource, events chan<- ports.TransportEvent, logger *zap.SugaredLogger) (*Transport, error) {
	t := &Transport{
		viewer: viewer,
		pc:     pc,
		events: events,
		logger: logger,
	}

	if source != nil {
		for _, track := range source.Tracks() {
			sender, err := pc.AddTrack(track.Local())
			if err != nil {
				pc.Close()
				return nil, fmt.Errorf("%w: attach %s track: %v", domain.ErrNegotiationFailed, track.Kind(), err)
			}
			t.senders = append(t.senders, sender)
			go t.drainRTCP(sender)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			t.logger.Debugw("ice gathering complete", "viewer_id", viewer)
			return
		}
		t.emit(ports.TransportEvent{
			Viewer:    viewer,
			Kind:      ports.TransportCandidate,
			Candidate: c.ToJSON(),
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Infow("viewer connection state changed",
			"viewer_id", viewer,
			"state", state.String(),
		)
		t.emit(ports.TransportEvent{
			Viewer: viewer,
			Kind:   ports.TransportStateChanged,
			State:  state,
		})
	})

	return t, nil
}

func (t *Transport) Viewer() domain.ViewerID {
	return t.viewer
}

// Negotiate applies the viewer's offer and produces the local answer.
func (t *Transport) Negotiate(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set remote description: %v", domain.ErrNegotiationFailed, err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailed, err)
	}

	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local description: %v", domain.ErrNegotiationFailed, err)
	}

	return answer, nil
}

func (t *Transport) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	if err := t.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("%w: add ice candidate: %v", domain.ErrNegotiationFailed, err)
	}
	return nil
}

// ReplaceTracks swaps each sender's track for the new source's track of the
// same kind, in place, without a renegotiation round-trip. Senders with no
// matching kind are left untouched.
func (t *Transport) ReplaceTracks(source ports.MediaSource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sender := range t.senders {
		current := sender.Track()
		if current == nil {
			continue
		}
		for _, track := range source.Tracks() {
			if track.Local().Kind() != current.Kind() {
				continue
			}
			if err := sender.ReplaceTrack(track.Local()); err != nil {
				t.logger.Warnw("failed to replace track",
					"viewer_id", t.viewer,
					"kind", current.Kind().String(),
					"error", err,
				)
			}
			break
		}
	}
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.pc.Close(); err != nil {
		t.logger.Debugw("error closing peer connection", "viewer_id", t.viewer, "error", err)
	}
}

// emit delivers an event without ever blocking a pion callback. Events can
// only be dropped when the consumer has stopped; terminal cleanup does not
// depend on them because stop closes transports directly.
func (t *Transport) emit(event ports.TransportEvent) {
	select {
	case t.events <- event:
	default:
		t.logger.Warnw("transport event dropped, consumer not keeping up",
			"viewer_id", event.Viewer,
			"kind", event.Kind,
		)
	}
}

// drainRTCP reads sender reports until the transport closes, surfacing
// keyframe requests and loss indications as diagnostics.
func (t *Transport) drainRTCP(sender RTPSender) {
	for {
		packets, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.PictureLossIndication:
				t.logger.Debugw("received PLI", "viewer_id", t.viewer)
			case *rtcp.TransportLayerNack:
				t.logger.Debugw("received NACK", "viewer_id", t.viewer, "nacks", len(p.Nacks))
			}
		}
	}
}
