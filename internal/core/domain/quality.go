package domain

import "fmt"

// QualityKey identifies a capture quality profile. The enumeration is closed;
// Resolve rejects anything outside it.
type QualityKey string

const (
	QualityLow    QualityKey = "low"
	QualityMedium QualityKey = "medium"
	QualityHigh   QualityKey = "high"
	QualityAuto   QualityKey = "auto"
)

// CaptureConstraints are ideal hints passed to the capture device, not hard
// requirements. Audio processing options are fixed across profiles.
type CaptureConstraints struct {
	Width     int
	Height    int
	FrameRate int

	EchoCancellation bool
	NoiseSuppression bool
	SampleRate       int
}

// QualityProfile pairs a quality key with its capture constraints and a
// human-readable label.
type QualityProfile struct {
	Key         QualityKey
	Label       string
	Constraints CaptureConstraints
}

const audioSampleRate = 48000

func audioDefaults(c CaptureConstraints) CaptureConstraints {
	c.EchoCancellation = true
	c.NoiseSuppression = true
	c.SampleRate = audioSampleRate
	return c
}

var qualityProfiles = map[QualityKey]QualityProfile{
	QualityLow: {
		Key:         QualityLow,
		Label:       "Low (480p)",
		Constraints: audioDefaults(CaptureConstraints{Width: 854, Height: 480, FrameRate: 15}),
	},
	QualityMedium: {
		Key:         QualityMedium,
		Label:       "Medium (720p)",
		Constraints: audioDefaults(CaptureConstraints{Width: 1280, Height: 720, FrameRate: 24}),
	},
	QualityHigh: {
		Key:         QualityHigh,
		Label:       "High (1080p)",
		Constraints: audioDefaults(CaptureConstraints{Width: 1920, Height: 1080, FrameRate: 30}),
	},
	QualityAuto: {
		Key:         QualityAuto,
		Label:       "Auto",
		Constraints: audioDefaults(CaptureConstraints{Width: 1280, Height: 720, FrameRate: 24}),
	},
}

// ResolveQuality looks up the profile for a key. Pure lookup, no side effects.
func ResolveQuality(key QualityKey) (QualityProfile, error) {
	profile, ok := qualityProfiles[key]
	if !ok {
		return QualityProfile{}, fmt.Errorf("%w: %q", ErrUnknownQuality, key)
	}
	return profile, nil
}

// QualityKeys returns the supported keys in a stable order for display.
func QualityKeys() []QualityProfile {
	keys := []QualityKey{QualityLow, QualityMedium, QualityHigh, QualityAuto}
	profiles := make([]QualityProfile, 0, len(keys))
	for _, k := range keys {
		profiles = append(profiles, qualityProfiles[k])
	}
	return profiles
}
