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

// PeerConnection is the subset of the negotiation transport API the viewer
// transport needs. Tests inject a fake; production wraps pion.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (RTPSender, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(handler func(*webrtc.ICECandidate))
	OnConnectionStateChange(handler func(webrtc.PeerConnectionState))
	Close() error
}

// RTPSender is one outbound media sender whose track can be swapped in
// place without renegotiation.
type RTPSender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(track webrtc.TrackLocal) error
	ReadRTCP() ([]rtcp.Packet, error)
}

// PionFactory builds viewer transports over real pion peer connections,
// configured with a fixed list of STUN endpoints that the backend may
// extend at session creation.
type PionFactory struct {
	logger *zap.SugaredLogger

	mu         sync.RWMutex
	iceServers []webrtc.ICEServer
}

func NewPionFactory(iceServers []webrtc.ICEServer, logger *zap.SugaredLogger) *PionFactory {
	return &PionFactory{
		iceServers: iceServers,
		logger:     logger,
	}
}

// SetICEServers replaces the ICE configuration for transports created from
// now on. Existing transports keep the servers they were built with.
func (f *PionFactory) SetICEServers(servers []webrtc.ICEServer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iceServers = servers
}

func (f *PionFactory) NewViewerTransport(viewer domain.ViewerID, source ports.MediaSource, events chan<- ports.TransportEvent) (ports.ViewerTransport, error) {
	f.mu.RLock()
	servers := make([]webrtc.ICEServer, len(f.iceServers))
	copy(servers, f.iceServers)
	f.mu.RUnlock()

	api := webrtc.NewAPI()
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return NewTransport(viewer, &pionConn{pc: pc}, source, events, f.logger)
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) (RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &pionSender{sender: sender}, nil
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(options)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) OnICECandidate(handler func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(handler)
}

func (c *pionConn) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(handler)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

type pionSender struct {
	sender *webrtc.RTPSender
}

func (s *pionSender) Track() webrtc.TrackLocal {
	return s.sender.Track()
}

func (s *pionSender) ReplaceTrack(track webrtc.TrackLocal) error {
	return s.sender.ReplaceTrack(track)
}

func (s *pionSender) ReadRTCP() ([]rtcp.Packet, error) {
	packets, _, err := s.sender.ReadRTCP()
	return packets, err
}
