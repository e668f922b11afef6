package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type wsHarness struct {
	relay    *Relay
	received chan domain.SignalMessage

	mu   sync.Mutex
	conn *websocket.Conn
}

// push sends a message from the server side to the relay.
func (h *wsHarness) push(t *testing.T, msg domain.SignalMessage) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotNil(t, h.conn)
	require.NoError(t, h.conn.WriteJSON(msg))
}

type recordingHandler struct {
	mu         sync.Mutex
	offers     []domain.ViewerID
	candidates []domain.ViewerID
}

func (r *recordingHandler) HandleOffer(ctx context.Context, viewer domain.ViewerID, offer domain.SDPPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, viewer)
	return nil
}

func (r *recordingHandler) HandleRemoteCandidate(ctx context.Context, viewer domain.ViewerID, candidate domain.ICECandidatePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, viewer)
	return nil
}

func (r *recordingHandler) offerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

func (r *recordingHandler) candidateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.candidates)
}

func newWSHarness(t *testing.T, handler *recordingHandler) *wsHarness {
	t.Helper()

	h := &wsHarness{received: make(chan domain.SignalMessage, 32)}
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()

		go func() {
			for {
				var msg domain.SignalMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				h.received <- msg
			}
		}()
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	metrics := monitoring.NewCollectorWith(prometheus.NewRegistry())
	relay := NewRelay(url, "pub-test", time.Second, time.Second, metrics, zaptest.NewLogger(t).Sugar())
	if handler != nil {
		relay.SetHandler(handler)
	}
	require.NoError(t, relay.Connect(context.Background()))
	t.Cleanup(relay.Close)

	h.relay = relay
	return h
}

func TestRelay_SendBeforeBindIsNoOp(t *testing.T) {
	h := newWSHarness(t, &recordingHandler{})

	h.relay.Send(context.Background(), "viewer-1", domain.SignalAnswer, domain.SDPPayload{Type: "answer", SDP: "v=0"})

	select {
	case msg := <-h.received:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelay_SendAfterBindDelivers(t *testing.T) {
	h := newWSHarness(t, &recordingHandler{})
	h.relay.Bind("session-7")

	h.relay.Send(context.Background(), "viewer-1", domain.SignalAnswer, domain.SDPPayload{Type: "answer", SDP: "v=0 answer"})

	select {
	case msg := <-h.received:
		assert.Equal(t, domain.SessionID("session-7"), msg.SessionID)
		assert.Equal(t, domain.ViewerID("viewer-1"), msg.ViewerID)
		assert.Equal(t, domain.SignalAnswer, msg.Kind)

		var sdp domain.SDPPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &sdp))
		assert.Equal(t, "v=0 answer", sdp.SDP)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestRelay_UnbindStopsDelivery(t *testing.T) {
	h := newWSHarness(t, &recordingHandler{})
	h.relay.Bind("session-7")
	h.relay.Unbind()

	h.relay.Send(context.Background(), "viewer-1", domain.SignalICECandidate, domain.ICECandidatePayload{Candidate: "candidate:1"})

	select {
	case msg := <-h.received:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelay_SendAfterCloseDoesNotPanic(t *testing.T) {
	h := newWSHarness(t, &recordingHandler{})
	h.relay.Bind("session-7")
	h.relay.Close()

	h.relay.Send(context.Background(), "viewer-1", domain.SignalAnswer, domain.SDPPayload{Type: "answer", SDP: "v=0"})
}

func TestRelay_CandidateOrderPreserved(t *testing.T) {
	h := newWSHarness(t, &recordingHandler{})
	h.relay.Bind("session-7")

	for i := 0; i < 5; i++ {
		h.relay.Send(context.Background(), "viewer-1", domain.SignalICECandidate, domain.ICECandidatePayload{
			Candidate: string(rune('a' + i)),
		})
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-h.received:
			var candidate domain.ICECandidatePayload
			require.NoError(t, json.Unmarshal(msg.Payload, &candidate))
			assert.Equal(t, string(rune('a'+i)), candidate.Candidate)
		case <-time.After(2 * time.Second):
			t.Fatalf("candidate %d never arrived", i)
		}
	}
}

func TestRelay_DispatchesInboundOffer(t *testing.T) {
	handler := &recordingHandler{}
	h := newWSHarness(t, handler)

	payload, _ := json.Marshal(domain.SDPPayload{Type: "offer", SDP: "v=0 offer"})
	h.push(t, domain.SignalMessage{
		SessionID: "session-7",
		ViewerID:  "viewer-1",
		Kind:      domain.SignalOffer,
		Payload:   payload,
	})

	assert.Eventually(t, func() bool { return handler.offerCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_DispatchesInboundCandidate(t *testing.T) {
	handler := &recordingHandler{}
	h := newWSHarness(t, handler)

	payload, _ := json.Marshal(domain.ICECandidatePayload{Candidate: "candidate:1"})
	h.push(t, domain.SignalMessage{
		SessionID: "session-7",
		ViewerID:  "viewer-1",
		Kind:      domain.SignalICECandidate,
		Payload:   payload,
	})

	assert.Eventually(t, func() bool { return handler.candidateCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_MalformedPayloadIgnored(t *testing.T) {
	handler := &recordingHandler{}
	h := newWSHarness(t, handler)

	h.push(t, domain.SignalMessage{
		SessionID: "session-7",
		ViewerID:  "viewer-1",
		Kind:      domain.SignalOffer,
		Payload:   json.RawMessage(`"not an object"`),
	})

	// give the read loop a moment; the handler must never fire
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, handler.offerCount())
}

func TestRelay_ConnectFailure(t *testing.T) {
	metrics := monitoring.NewCollectorWith(prometheus.NewRegistry())
	relay := NewRelay("ws://127.0.0.1:1/ws", "pub-test", time.Second, time.Second, metrics, zaptest.NewLogger(t).Sugar())

	err := relay.Connect(context.Background())
	require.Error(t, err)
}
