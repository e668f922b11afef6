package domain

import "time"

type SessionID string
type ViewerID string
type ProfileID string

// SessionState is the orchestrator lifecycle state. Idle is re-enterable:
// a stopped session may be started again with the same orchestrator.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionLive     SessionState = "live"
	SessionStopping SessionState = "stopping"
)

// Session is one publisher's active broadcast instance. The identifier is
// assigned by the backend on creation; at most one Session is active per
// orchestrator.
type Session struct {
	ID        SessionID
	ProfileID ProfileID
	State     SessionState
	Quality   QualityKey
	StartedAt time.Time
}

// Viewer is a remote party receiving the broadcast through its own
// negotiated transport.
type Viewer struct {
	ID        ViewerID
	Connected bool
	JoinedAt  time.Time
}

// Thumbnail is an ephemeral still frame sampled from the live source,
// uploaded once and kept only as the orchestrator's in-memory reference.
type Thumbnail struct {
	ProfileID  ProfileID
	Image      []byte
	CapturedAt time.Time
}
