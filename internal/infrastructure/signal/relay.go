package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"
	"lumecast/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Relay is the client side of the out-of-band signaling channel. Outbound
// sends are best-effort: a transport failure is logged and the message
// dropped, because a lost offer/answer/candidate surfaces as a stalled or
// failed viewer transport, which is independently observable. Sends before
// a session is bound are no-ops since there is nothing to address. A single
// mutex-serialized writer preserves candidate order per viewer.
type Relay struct {
	url          string
	clientID     string
	pingInterval time.Duration
	writeTimeout time.Duration
	metrics      *monitoring.Collector
	logger       *zap.SugaredLogger

	handler ports.SignalHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID domain.SessionID

	closed    chan struct{}
	closeOnce sync.Once
}

func NewRelay(url, clientID string, pingInterval, writeTimeout time.Duration, metrics *monitoring.Collector, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		url:          url,
		clientID:     clientID,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		metrics:      metrics,
		logger:       logger,
		closed:       make(chan struct{}),
	}
}

// SetHandler wires the consumer of inbound negotiation messages. Must be
// called before Connect.
func (r *Relay) SetHandler(handler ports.SignalHandler) {
	r.handler = handler
}

// Connect dials the signaling channel and starts the read and ping loops.
func (r *Relay) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	r.logger.Infow("signaling relay connected", "url", r.url, "client_id", r.clientID)

	go r.readLoop(conn)
	go r.pingLoop(conn)
	return nil
}

// Close shuts the connection down.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.closed) })

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Bind scopes outbound sends to the session.
func (r *Relay) Bind(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = sessionID
}

// Unbind clears the session scope; subsequent sends become no-ops.
func (r *Relay) Unbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
}

// Send delivers one negotiation message to the addressed viewer.
func (r *Relay) Send(ctx context.Context, viewer domain.ViewerID, kind domain.SignalKind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warnw("failed to marshal signal payload", "kind", kind, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		r.logger.Debugw("no active session, dropping signal", "kind", kind, "viewer_id", viewer)
		return
	}
	if r.conn == nil {
		r.logger.Warnw("relay not connected, dropping signal", "kind", kind, "viewer_id", viewer)
		r.metrics.SignalDropped()
		return
	}

	msg := domain.SignalMessage{
		SessionID: r.sessionID,
		ViewerID:  viewer,
		Kind:      kind,
		Payload:   data,
	}

	r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	if err := r.conn.WriteJSON(msg); err != nil {
		r.logger.Warnw("signal send failed, dropping",
			"kind", kind,
			"viewer_id", viewer,
			"error", err,
		)
		r.metrics.SignalDropped()
		return
	}

	r.metrics.SignalSent(string(kind))
}

func (r *Relay) readLoop(conn *websocket.Conn) {
	defer r.Close()

	for {
		select {
		case <-r.closed:
			return
		default:
		}

		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-r.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					r.logger.Warnw("signaling read error", "error", err)
				}
			}
			return
		}

		r.dispatch(msg)
	}
}

// dispatch routes one inbound message. Offers run in their own goroutine so
// a slow negotiation for one viewer never blocks another viewer's flow;
// candidates are applied in arrival order.
func (r *Relay) dispatch(msg domain.SignalMessage) {
	if r.handler == nil {
		r.logger.Warnw("no signal handler registered, dropping message", "kind", msg.Kind)
		return
	}

	switch msg.Kind {
	case domain.SignalOffer:
		var offer domain.SDPPayload
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			r.logger.Warnw("malformed offer payload", "viewer_id", msg.ViewerID, "error", err)
			return
		}
		go func() {
			if err := r.handler.HandleOffer(context.Background(), msg.ViewerID, offer); err != nil {
				r.logger.Infow("offer not admitted", "viewer_id", msg.ViewerID, "error", err)
			}
		}()

	case domain.SignalICECandidate:
		var candidate domain.ICECandidatePayload
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			r.logger.Warnw("malformed candidate payload", "viewer_id", msg.ViewerID, "error", err)
			return
		}
		if err := r.handler.HandleRemoteCandidate(context.Background(), msg.ViewerID, candidate); err != nil {
			r.logger.Debugw("candidate not applied", "viewer_id", msg.ViewerID, "error", err)
		}

	default:
		r.logger.Debugw("ignoring signal", "kind", msg.Kind, "viewer_id", msg.ViewerID)
	}
}

func (r *Relay) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(r.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				select {
				case <-r.closed:
				default:
					r.logger.Warnw("signaling ping failed", "error", err)
				}
				return
			}
		}
	}
}
