package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const (
	videoPayloadType = 96
	videoClockRate   = 90000
	audioFrameDur    = 20 * time.Millisecond
)

// TestPatternDevice is the default capture device: it synthesizes an audio
// track of silence and a video track carrying a moving test pattern. It
// stands in for real camera hardware while exercising the full track and
// snapshot plumbing.
type TestPatternDevice struct {
	logger *zap.SugaredLogger
}

func NewTestPatternDevice(logger *zap.SugaredLogger) *TestPatternDevice {
	return &TestPatternDevice{logger: logger}
}

// Acquire builds both tracks and starts their pumps. If the video track
// cannot be created the already-created audio track is stopped before the
// error propagates, so no partially acquired source is left behind.
func (d *TestPatternDevice) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.MediaSource, error) {
	if constraints.Width <= 0 || constraints.Height <= 0 || constraints.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid capture constraints: %dx%d@%d", constraints.Width, constraints.Height, constraints.FrameRate)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: uint32(constraints.SampleRate), Channels: 2},
		"audio",
		"lumecast-audio",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate},
		"video",
		"lumecast-video",
	)
	if err != nil {
		// audio pump has not started yet, nothing to roll back
		return nil, fmt.Errorf("create video track: %w", err)
	}

	audioCtx, stopAudio := context.WithCancel(context.Background())
	videoCtx, stopVideo := context.WithCancel(context.Background())

	source := &patternSource{}
	source.tracks = []ports.MediaTrack{
		&patternTrack{kind: webrtc.RTPCodecTypeAudio, local: audioTrack, stop: stopAudio},
		&patternTrack{kind: webrtc.RTPCodecTypeVideo, local: videoTrack, stop: stopVideo},
	}

	go source.pumpAudio(audioCtx, audioTrack)
	go source.pumpVideo(videoCtx, videoTrack, constraints)

	d.logger.Debugw("test pattern device acquired",
		"width", constraints.Width,
		"height", constraints.Height,
		"frame_rate", constraints.FrameRate,
		"sample_rate", constraints.SampleRate,
	)

	return source, nil
}

type patternTrack struct {
	kind  webrtc.RTPCodecType
	local webrtc.TrackLocal
	stop  func()
	once  sync.Once
}

func (t *patternTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *patternTrack) Local() webrtc.TrackLocal  { return t.local }
func (t *patternTrack) Stop()                     { t.once.Do(t.stop) }

type patternSource struct {
	tracks []ports.MediaTrack
	frame  atomic.Value // []byte, last encoded JPEG frame
}

func (s *patternSource) Tracks() []ports.MediaTrack { return s.tracks }

func (s *patternSource) SnapshotFrame() []byte {
	if frame, ok := s.frame.Load().([]byte); ok {
		return frame
	}
	return nil
}

// Release stops every track. Idempotent through each track's stop-once.
func (s *patternSource) Release() {
	for _, track := range s.tracks {
		track.Stop()
	}
}

func (s *patternSource) pumpAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	// 20ms of Opus silence
	silence := []byte{0xf8, 0xff, 0xfe}

	ticker := time.NewTicker(audioFrameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: silence, Duration: audioFrameDur}); err != nil {
				return
			}
		}
	}
}

func (s *patternSource) pumpVideo(ctx context.Context, track *webrtc.TrackLocalStaticRTP, c domain.CaptureConstraints) {
	interval := time.Second / time.Duration(c.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		seq   uint16
		ts    uint32
		phase int
	)
	tsStep := uint32(videoClockRate / c.FrameRate)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			encoded := renderPattern(c.Width, c.Height, phase)
			phase++
			if encoded != nil {
				s.frame.Store(encoded)
			}

			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					PayloadType:    videoPayloadType,
					SequenceNumber: seq,
					Timestamp:      ts,
				},
				Payload: patternPayload(phase),
			}
			seq++
			ts += tsStep

			if err := track.WriteRTP(pkt); err != nil {
				return
			}
		}
	}
}

// renderPattern draws a moving vertical bar and returns it JPEG-encoded.
// Returns nil for zero-dimension frames.
func renderPattern(width, height, phase int) []byte {
	if width <= 0 || height <= 0 {
		return nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bar := (phase * 8) % width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: 16, G: 16, B: 32, A: 255}
			if x >= bar && x < bar+width/16 {
				c = color.RGBA{R: 220, G: 220, B: 240, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil
	}
	return buf.Bytes()
}

func patternPayload(phase int) []byte {
	// minimal synthetic payload, enough to keep the RTP pipeline moving
	return []byte{0x10, 0x00, byte(phase), byte(phase >> 8)}
}
