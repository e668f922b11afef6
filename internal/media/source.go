package media

import (
	"context"
	"fmt"
	"sync"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"

	"go.uber.org/zap"
)

// Manager owns the session's current media source. Exactly one source is
// held at a time; acquiring a new one while another is held releases the old
// one first.
type Manager struct {
	device ports.CaptureDevice
	logger *zap.SugaredLogger

	mu      sync.Mutex
	current ports.MediaSource
}

func NewManager(device ports.CaptureDevice, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		device: device,
		logger: logger,
	}
}

// Acquire resolves the quality profile and requests capture at its
// constraints. A previously held source is released before the new
// acquisition, so a brief no-frame gap is expected during quality changes.
func (m *Manager) Acquire(ctx context.Context, key domain.QualityKey) (ports.MediaSource, error) {
	profile, err := domain.ResolveQuality(key)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Release()
		m.current = nil
	}

	source, err := m.device.Acquire(ctx, profile.Constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceAccessDenied, err)
	}

	m.logger.Infow("media source acquired",
		"quality", profile.Key,
		"width", profile.Constraints.Width,
		"height", profile.Constraints.Height,
		"frame_rate", profile.Constraints.FrameRate,
		"tracks", len(source.Tracks()),
	)

	m.current = source
	return source, nil
}

// Release stops every track of the current source. Safe to call with no
// source held and safe to call repeatedly.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.Release()
	m.current = nil
	m.logger.Debugw("media source released")
}

// Current returns the held source, or nil.
func (m *Manager) Current() ports.MediaSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SnapshotFrame samples a still frame from the current source. Returns nil
// when no source is held or no frame has been decoded yet.
func (m *Manager) SnapshotFrame() []byte {
	m.mu.Lock()
	source := m.current
	m.mu.Unlock()

	if source == nil {
		return nil
	}
	return source.SnapshotFrame()
}
