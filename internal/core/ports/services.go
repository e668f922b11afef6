package ports

import (
	"context"

	"lumecast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// BackendAPI is the external session/profile registry. Every call is a
// fallible network call, attempted at least once and never retried by the
// core.
type BackendAPI interface {
	GetDashboard(ctx context.Context) (domain.ProfileID, error)
	UpdateModelStatus(ctx context.Context, isLive, isAvailable bool) error
	CreateSession(ctx context.Context, profileID domain.ProfileID, sessionType string) (domain.SessionID, []webrtc.ICEServer, error)
	EndSession(ctx context.Context, sessionID domain.SessionID) error
	UpdateThumbnail(ctx context.Context, profileID domain.ProfileID, image []byte) error
	SendSignal(ctx context.Context, msg domain.SignalMessage) error
}

// IdentitySource exposes the locally cached user record.
type IdentitySource interface {
	CurrentUser(ctx context.Context) (domain.User, error)
}

// SignalRelay sends negotiation messages through the out-of-band signaling
// channel, scoped to the bound session. The delivery contract is explicit:
// at-least-once from the relay's side, zero retry from ours. Send before
// Bind is a no-op because there is nothing to address; transport failures
// are logged and dropped, never surfaced. Candidate order to one viewer is
// preserved.
type SignalRelay interface {
	Bind(sessionID domain.SessionID)
	Unbind()
	Send(ctx context.Context, viewer domain.ViewerID, kind domain.SignalKind, payload any)
}

// SignalHandler receives inbound negotiation messages from the relay.
type SignalHandler interface {
	HandleOffer(ctx context.Context, viewer domain.ViewerID, offer domain.SDPPayload) error
	HandleRemoteCandidate(ctx context.Context, viewer domain.ViewerID, candidate domain.ICECandidatePayload) error
}
