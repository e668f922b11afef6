package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"
	"lumecast/internal/infrastructure/monitoring"
	"lumecast/internal/media"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// State is the observable snapshot exposed to the surrounding application.
type State struct {
	Active    bool
	Session   domain.SessionState
	SessionID domain.SessionID
	Quality   domain.QualityKey
	Viewers   []domain.Viewer
	LastError string
	Loading   bool
	Thumbnail []byte
	Qualities []domain.QualityProfile
}

// Orchestrator coordinates one publisher's broadcast session: it owns the
// media source, the connection registry and the session identifier, reacts
// to inbound viewer offers from the relay and to local commands, and
// enforces the idle/starting/live/stopping lifecycle. At most one session is
// active per orchestrator; idle is re-enterable.
type Orchestrator struct {
	backend     ports.BackendAPI
	identity    ports.IdentitySource
	relay       ports.SignalRelay
	registry    ports.ConnectionRegistry
	factory     ports.TransportFactory
	media       *media.Manager
	thumbs      *media.Capturer
	metrics     *monitoring.Collector
	logger      *zap.SugaredLogger
	sessionType string

	mu        sync.Mutex
	state     domain.SessionState
	session   domain.Session
	viewers   map[domain.ViewerID]domain.Viewer
	source    ports.MediaSource
	lastError string
	loading   bool
	thumbnail domain.Thumbnail

	// quality changes take the write side; admissions hold the read side
	// while reading the source and registering the transport, so a swap can
	// never fall between the two
	qualityMu sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewOrchestrator(
	backend ports.BackendAPI,
	identity ports.IdentitySource,
	relay ports.SignalRelay,
	registry ports.ConnectionRegistry,
	factory ports.TransportFactory,
	mediaManager *media.Manager,
	thumbs *media.Capturer,
	metrics *monitoring.Collector,
	sessionType string,
	logger *zap.SugaredLogger,
) *Orchestrator {
	o := &Orchestrator{
		backend:     backend,
		identity:    identity,
		relay:       relay,
		registry:    registry,
		factory:     factory,
		media:       mediaManager,
		thumbs:      thumbs,
		metrics:     metrics,
		logger:      logger,
		sessionType: sessionType,
		state:       domain.SessionIdle,
		viewers:     make(map[domain.ViewerID]domain.Viewer),
		done:        make(chan struct{}),
	}

	go o.consumeEvents()
	return o
}

// StartStreaming acquires media, registers the session with the backend and
// moves the orchestrator to live. Any failure fully unwinds: the device is
// released, no session record is left behind, one user-facing message is
// surfaced and the state reverts to idle.
func (o *Orchestrator) StartStreaming(ctx context.Context, quality domain.QualityKey) error {
	if _, err := domain.ResolveQuality(quality); err != nil {
		return err
	}

	o.mu.Lock()
	if o.state != domain.SessionIdle {
		o.mu.Unlock()
		return domain.ErrSessionAlreadyLive
	}
	o.state = domain.SessionStarting
	o.loading = true
	o.lastError = ""
	o.mu.Unlock()

	user, err := o.identity.CurrentUser(ctx)
	if err != nil {
		return o.failStart(fmt.Errorf("%w: %v", domain.ErrNotAuthorized, err), "could not verify your account")
	}
	if !user.CanPublish() {
		return o.failStart(domain.ErrNotAuthorized, "only model accounts can broadcast")
	}

	source, err := o.media.Acquire(ctx, quality)
	if err != nil {
		return o.failStart(err, "camera or microphone unavailable, check permissions")
	}

	profileID, err := o.backend.GetDashboard(ctx)
	if err != nil {
		o.media.Release()
		return o.failStart(fmt.Errorf("%w: dashboard: %v", domain.ErrBackendCallFailed, err), "could not reach the server")
	}

	if err := o.backend.UpdateModelStatus(ctx, true, true); err != nil {
		o.media.Release()
		return o.failStart(fmt.Errorf("%w: status update: %v", domain.ErrBackendCallFailed, err), "could not reach the server")
	}

	sessionID, iceServers, err := o.backend.CreateSession(ctx, profileID, o.sessionType)
	if err != nil {
		// roll the live flag back so no orphaned state is left on the backend
		if revertErr := o.backend.UpdateModelStatus(ctx, false, true); revertErr != nil {
			o.logger.Warnw("failed to revert live status after create failure", "error", revertErr)
		}
		o.media.Release()
		return o.failStart(fmt.Errorf("%w: create session: %v", domain.ErrBackendCallFailed, err), "could not start the session")
	}

	if len(iceServers) > 0 {
		o.factory.SetICEServers(iceServers)
	}
	o.relay.Bind(sessionID)

	o.mu.Lock()
	o.session = domain.Session{
		ID:        sessionID,
		ProfileID: profileID,
		State:     domain.SessionLive,
		Quality:   quality,
		StartedAt: time.Now(),
	}
	o.state = domain.SessionLive
	o.source = source
	o.loading = false
	o.mu.Unlock()

	o.metrics.SessionStarted()
	o.logger.Infow("streaming started",
		"session_id", sessionID,
		"profile_id", profileID,
		"quality", quality,
	)

	go o.captureThumbnail(profileID, source)
	return nil
}

// StopStreaming tears the session down. Local resources are always
// released; failures of the backend end/offline calls are logged and do not
// block completion. Idempotent: stopping an idle orchestrator is a no-op.
func (o *Orchestrator) StopStreaming(ctx context.Context) error {
	o.mu.Lock()
	if o.state == domain.SessionIdle {
		o.mu.Unlock()
		return nil
	}
	o.state = domain.SessionStopping
	session := o.session
	o.mu.Unlock()

	o.registry.Clear()
	o.media.Release()
	o.relay.Unbind()

	if session.ID != "" {
		if err := o.backend.EndSession(ctx, session.ID); err != nil {
			o.logger.Warnw("failed to end backend session", "session_id", session.ID, "error", err)
		}
	}
	if err := o.backend.UpdateModelStatus(ctx, false, false); err != nil {
		o.logger.Warnw("failed to mark status offline", "error", err)
	}

	o.mu.Lock()
	o.state = domain.SessionIdle
	o.session = domain.Session{}
	o.source = nil
	o.viewers = make(map[domain.ViewerID]domain.Viewer)
	o.loading = false
	o.mu.Unlock()

	o.metrics.SessionEnded()
	o.logger.Infow("streaming stopped", "session_id", session.ID)
	return nil
}

// ChangeQuality re-acquires the media source at the new quality and pushes
// the replacement tracks into every live transport without renegotiation.
// Overlapping calls are serialized by a single in-flight guard. On failure
// the session stays live with the previous source released; the caller may
// retry or accept the degraded state.
func (o *Orchestrator) ChangeQuality(ctx context.Context, quality domain.QualityKey) error {
	if _, err := domain.ResolveQuality(quality); err != nil {
		return err
	}

	o.qualityMu.Lock()
	defer o.qualityMu.Unlock()

	o.mu.Lock()
	if o.state != domain.SessionLive {
		o.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	o.mu.Unlock()

	source, err := o.media.Acquire(ctx, quality)
	if err != nil {
		o.mu.Lock()
		o.source = nil
		o.lastError = "quality change failed, local preview lost"
		o.mu.Unlock()
		o.metrics.QualityChanged(string(quality), "error")
		return err
	}

	o.mu.Lock()
	o.session.Quality = quality
	o.source = source
	o.mu.Unlock()

	o.registry.ForEach(func(t ports.ViewerTransport) {
		t.ReplaceTracks(source)
	})

	o.metrics.QualityChanged(string(quality), "ok")
	o.logger.Infow("quality changed", "quality", quality, "viewers", o.registry.Len())
	return nil
}

// HandleOffer admits a viewer: create its transport with the current tracks
// attached, negotiate the answer, send it back through the relay and add the
// viewer to the observable list. A failure at any step leaves no partial
// viewer entry; the error is returned for the relay's diagnostic log and
// never escalates to session state.
func (o *Orchestrator) HandleOffer(ctx context.Context, viewer domain.ViewerID, offer domain.SDPPayload) error {
	o.mu.Lock()
	if o.state != domain.SessionLive {
		o.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	sessionID := o.session.ID
	o.mu.Unlock()

	if o.registry.Exists(viewer) {
		return fmt.Errorf("%w: %s", domain.ErrViewerExists, viewer)
	}

	start := time.Now()

	// pin the current source for the create: a concurrent quality change
	// either completes first (the transport gets the new tracks) or waits
	// and then replaces them through ForEach
	o.qualityMu.RLock()
	transport, err := o.registry.Create(viewer, o.media.Current())
	o.qualityMu.RUnlock()
	if err != nil {
		o.metrics.NegotiationFailed()
		return err
	}

	answer, err := transport.Negotiate(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	})
	if err != nil {
		o.registry.Remove(viewer)
		o.metrics.NegotiationFailed()
		return err
	}

	// the live check at entry is advisory: the session may have stopped, or
	// a new one started, while negotiation was in flight. Re-validate before
	// the viewer becomes visible; a stale admission is torn down.
	o.mu.Lock()
	if o.state != domain.SessionLive || o.session.ID != sessionID {
		o.mu.Unlock()
		o.registry.Remove(viewer)
		return domain.ErrNoActiveSession
	}
	o.viewers[viewer] = domain.Viewer{ID: viewer, Connected: true, JoinedAt: time.Now()}
	total := len(o.viewers)
	o.mu.Unlock()

	o.relay.Send(ctx, viewer, domain.SignalAnswer, domain.SDPPayload{
		Type: "answer",
		SDP:  answer.SDP,
	})

	o.metrics.ViewerAdmitted(total)
	o.metrics.ObserveNegotiation(time.Since(start))
	o.logger.Infow("viewer admitted", "viewer_id", viewer, "viewers", total)
	return nil
}

// HandleRemoteCandidate feeds a viewer's ICE candidate into its transport.
func (o *Orchestrator) HandleRemoteCandidate(ctx context.Context, viewer domain.ViewerID, candidate domain.ICECandidatePayload) error {
	transport, ok := o.registry.Get(viewer)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrViewerNotFound, viewer)
	}

	mid := candidate.SDPMid
	idx := candidate.SDPMLineIndex
	return transport.AddRemoteCandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

// Snapshot returns the current observable state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	viewers := make([]domain.Viewer, 0, len(o.viewers))
	for _, v := range o.viewers {
		viewers = append(viewers, v)
	}
	sort.Slice(viewers, func(i, j int) bool { return viewers[i].ID < viewers[j].ID })

	return State{
		Active:    o.state == domain.SessionLive,
		Session:   o.state,
		SessionID: o.session.ID,
		Quality:   o.session.Quality,
		Viewers:   viewers,
		LastError: o.lastError,
		Loading:   o.loading,
		Thumbnail: o.thumbnail.Image,
		Qualities: domain.QualityKeys(),
	}
}

// Close force-stops an active session and shuts the event loop down.
func (o *Orchestrator) Close(ctx context.Context) error {
	err := o.StopStreaming(ctx)
	o.closeOnce.Do(func() { close(o.done) })
	return err
}

func (o *Orchestrator) failStart(err error, userMsg string) error {
	o.mu.Lock()
	o.state = domain.SessionIdle
	o.loading = false
	o.lastError = userMsg
	o.mu.Unlock()

	o.logger.Warnw("failed to start streaming", "error", err)
	return err
}

// consumeEvents drives the state machine from transport events: terminal
// disconnects remove the viewer, local candidates are forwarded to the
// addressed viewer. A failing viewer never affects the rest of the session.
func (o *Orchestrator) consumeEvents() {
	for {
		select {
		case <-o.done:
			return
		case event := <-o.registry.Events():
			switch event.Kind {
			case ports.TransportStateChanged:
				o.handleStateChange(event)
			case ports.TransportCandidate:
				o.forwardCandidate(event)
			}
		}
	}
}

func (o *Orchestrator) handleStateChange(event ports.TransportEvent) {
	switch event.State {
	case webrtc.PeerConnectionStateConnected:
		o.mu.Lock()
		if viewer, ok := o.viewers[event.Viewer]; ok {
			viewer.Connected = true
			o.viewers[event.Viewer] = viewer
		}
		o.mu.Unlock()

	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		// the sole automatic-recovery action: drop this viewer, leave the
		// rest of the session untouched
		o.registry.Remove(event.Viewer)

		o.mu.Lock()
		_, existed := o.viewers[event.Viewer]
		delete(o.viewers, event.Viewer)
		total := len(o.viewers)
		o.mu.Unlock()

		if existed {
			o.metrics.ViewerRemoved(event.State.String(), total)
			o.logger.Infow("viewer removed after terminal state",
				"viewer_id", event.Viewer,
				"state", event.State.String(),
			)
		}
	}
}

func (o *Orchestrator) forwardCandidate(event ports.TransportEvent) {
	payload := domain.ICECandidatePayload{Candidate: event.Candidate.Candidate}
	if event.Candidate.SDPMid != nil {
		payload.SDPMid = *event.Candidate.SDPMid
	}
	if event.Candidate.SDPMLineIndex != nil {
		payload.SDPMLineIndex = *event.Candidate.SDPMLineIndex
	}

	o.relay.Send(context.Background(), event.Viewer, domain.SignalICECandidate, payload)
}

// captureThumbnail runs after session start. Upload failure is logged and
// never surfaced to the caller.
func (o *Orchestrator) captureThumbnail(profileID domain.ProfileID, source ports.MediaSource) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	thumbnail, err := o.thumbs.CaptureAndUpload(ctx, profileID, source)
	if err != nil {
		o.metrics.ThumbnailUpload("error")
		o.logger.Warnw("thumbnail capture failed", "profile_id", profileID, "error", err)
		return
	}

	o.mu.Lock()
	o.thumbnail = thumbnail
	o.mu.Unlock()
	o.metrics.ThumbnailUpload("ok")
}
