package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID returns a unique id for one backend request.
func GenerateRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// GenerateClientID returns a unique id identifying this publisher process on
// the signaling channel.
func GenerateClientID() string {
	return fmt.Sprintf("pub_%s", uuid.NewString())
}

// GenerateTraceID returns a unique trace id.
func GenerateTraceID() string {
	return uuid.NewString()
}
