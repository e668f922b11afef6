package media

import (
	"context"
	"errors"
	"testing"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	released int
	frame    []byte
}

func (s *fakeSource) Tracks() []ports.MediaTrack { return nil }
func (s *fakeSource) SnapshotFrame() []byte      { return s.frame }
func (s *fakeSource) Release()                   { s.released++ }

type fakeDevice struct {
	err     error
	sources []*fakeSource
}

func (d *fakeDevice) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.MediaSource, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSource{}
	d.sources = append(d.sources, s)
	return s, nil
}

func TestManager_AcquireUnknownQuality(t *testing.T) {
	m := NewManager(&fakeDevice{}, zaptest.NewLogger(t).Sugar())

	_, err := m.Acquire(context.Background(), "bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownQuality))
	assert.Nil(t, m.Current())
}

func TestManager_AcquireDeviceFailure(t *testing.T) {
	device := &fakeDevice{err: errors.New("camera busy")}
	m := NewManager(device, zaptest.NewLogger(t).Sugar())

	_, err := m.Acquire(context.Background(), domain.QualityMedium)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeviceAccessDenied))
	assert.Nil(t, m.Current())
}

func TestManager_ReacquireReleasesPrevious(t *testing.T) {
	device := &fakeDevice{}
	m := NewManager(device, zaptest.NewLogger(t).Sugar())

	first, err := m.Acquire(context.Background(), domain.QualityMedium)
	require.NoError(t, err)

	second, err := m.Acquire(context.Background(), domain.QualityHigh)
	require.NoError(t, err)

	require.Len(t, device.sources, 2)
	assert.Equal(t, 1, device.sources[0].released)
	assert.Equal(t, 0, device.sources[1].released)
	assert.NotSame(t, first, second)
	assert.Same(t, second, m.Current())
}

func TestManager_ReleaseIdempotent(t *testing.T) {
	device := &fakeDevice{}
	m := NewManager(device, zaptest.NewLogger(t).Sugar())

	_, err := m.Acquire(context.Background(), domain.QualityLow)
	require.NoError(t, err)

	m.Release()
	m.Release()

	assert.Equal(t, 1, device.sources[0].released)
	assert.Nil(t, m.Current())
}

func TestManager_SnapshotFrame(t *testing.T) {
	device := &fakeDevice{}
	m := NewManager(device, zaptest.NewLogger(t).Sugar())

	assert.Nil(t, m.SnapshotFrame())

	_, err := m.Acquire(context.Background(), domain.QualityLow)
	require.NoError(t, err)
	assert.Nil(t, m.SnapshotFrame())

	device.sources[0].frame = []byte{0xff, 0xd8}
	assert.Equal(t, []byte{0xff, 0xd8}, m.SnapshotFrame())
}
