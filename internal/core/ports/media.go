package ports

import (
	"context"

	"lumecast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// MediaTrack is one live capture track, stoppable and attachable to any
// number of viewer transports by reference.
type MediaTrack interface {
	Kind() webrtc.RTPCodecType
	Local() webrtc.TrackLocal
	Stop()
}

// MediaSource is an acquired capture handle. It is owned exclusively by the
// session; viewer transports share its tracks without owning them.
// Release stops every track and is idempotent. SnapshotFrame returns nil
// (not an error) while no decoded frame is available, which is expected
// right after acquisition.
type MediaSource interface {
	Tracks() []MediaTrack
	SnapshotFrame() []byte
	Release()
}

// CaptureDevice acquires the local capture hardware at the requested
// constraints. A failed acquisition must not leave partially acquired
// tracks behind.
type CaptureDevice interface {
	Acquire(ctx context.Context, constraints domain.CaptureConstraints) (MediaSource, error)
}
