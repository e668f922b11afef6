package domain

import "encoding/json"

// SignalKind tags the negotiation message union.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice_candidate"
)

// SignalMessage is one negotiation message addressed to a viewer within a
// session. The relay guarantees at-least-once delivery and preserves the
// order of candidate messages to the same viewer; nothing is guaranteed
// across viewers.
type SignalMessage struct {
	SessionID SessionID       `json:"session_id"`
	ViewerID  ViewerID        `json:"target_user_id"`
	Kind      SignalKind      `json:"signal_type"`
	Payload   json.RawMessage `json:"signal_data"`
}

// SDPPayload carries an offer or answer description.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload carries one discovered connectivity option.
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}
