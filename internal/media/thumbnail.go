package media

import (
	"context"
	"errors"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"
	"lumecast/pkg/retry"

	"go.uber.org/zap"
)

var errNoFrame = errors.New("no frame available yet")

// Capturer samples a still frame from a live source and uploads it as the
// session preview. The capture pipeline needs a moment to produce its first
// frame, so the capturer waits a settle delay and then polls with a bounded
// retry instead of trusting a single fixed delay.
type Capturer struct {
	backend  ports.BackendAPI
	settle   time.Duration
	retryCfg retry.Config
	logger   *zap.SugaredLogger
}

func NewCapturer(backend ports.BackendAPI, settle time.Duration, retryCfg retry.Config, logger *zap.SugaredLogger) *Capturer {
	return &Capturer{
		backend:  backend,
		settle:   settle,
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// CaptureAndUpload polls the source until a frame is available, then uploads
// it. The caller decides what a failure means; for session start it is
// logged and swallowed.
func (c *Capturer) CaptureAndUpload(ctx context.Context, profileID domain.ProfileID, source ports.MediaSource) (domain.Thumbnail, error) {
	if c.settle > 0 {
		select {
		case <-ctx.Done():
			return domain.Thumbnail{}, ctx.Err()
		case <-time.After(c.settle):
		}
	}

	image, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]byte, error) {
		frame := source.SnapshotFrame()
		if frame == nil {
			return nil, errNoFrame
		}
		return frame, nil
	})
	if err != nil {
		return domain.Thumbnail{}, err
	}

	if err := c.backend.UpdateThumbnail(ctx, profileID, image); err != nil {
		return domain.Thumbnail{}, err
	}

	c.logger.Infow("thumbnail uploaded", "profile_id", profileID, "bytes", len(image))

	return domain.Thumbnail{
		ProfileID:  profileID,
		Image:      image,
		CapturedAt: time.Now(),
	}, nil
}
