package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/ports"
	"lumecast/internal/core/services"
	"lumecast/internal/infrastructure/middleware"
	"lumecast/internal/infrastructure/monitoring"
	webrtcinfra "lumecast/internal/infrastructure/webrtc"
	"lumecast/internal/media"
	"lumecast/pkg/retry"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubBackend struct{}

func (stubBackend) GetDashboard(ctx context.Context) (domain.ProfileID, error) {
	return "profile-1", nil
}
func (stubBackend) UpdateModelStatus(ctx context.Context, isLive, isAvailable bool) error {
	return nil
}
func (stubBackend) CreateSession(ctx context.Context, profileID domain.ProfileID, sessionType string) (domain.SessionID, []webrtc.ICEServer, error) {
	return "session-1", nil, nil
}
func (stubBackend) EndSession(ctx context.Context, sessionID domain.SessionID) error { return nil }
func (stubBackend) UpdateThumbnail(ctx context.Context, profileID domain.ProfileID, image []byte) error {
	return nil
}
func (stubBackend) SendSignal(ctx context.Context, msg domain.SignalMessage) error { return nil }

type stubIdentity struct{}

func (stubIdentity) CurrentUser(ctx context.Context) (domain.User, error) {
	return domain.User{ID: "user-1", Role: domain.RoleModel}, nil
}

type stubRelay struct{}

func (stubRelay) Bind(sessionID domain.SessionID) {}
func (stubRelay) Unbind()                         {}
func (stubRelay) Send(ctx context.Context, viewer domain.ViewerID, kind domain.SignalKind, payload any) {
}

type stubMediaSource struct{}

func (stubMediaSource) Tracks() []ports.MediaTrack { return nil }
func (stubMediaSource) SnapshotFrame() []byte      { return []byte{0xff, 0xd8} }
func (stubMediaSource) Release()                   {}

type stubDevice struct{}

func (stubDevice) Acquire(ctx context.Context, constraints domain.CaptureConstraints) (ports.MediaSource, error) {
	return stubMediaSource{}, nil
}

type stubTransport struct{ viewer domain.ViewerID }

func (t stubTransport) Viewer() domain.ViewerID { return t.viewer }
func (t stubTransport) Negotiate(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}
func (t stubTransport) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error { return nil }
func (t stubTransport) ReplaceTracks(source ports.MediaSource)                     {}
func (t stubTransport) Close()                                                     {}

type stubFactory struct{}

func (stubFactory) SetICEServers(servers []webrtc.ICEServer) {}
func (stubFactory) NewViewerTransport(viewer domain.ViewerID, source ports.MediaSource, events chan<- ports.TransportEvent) (ports.ViewerTransport, error) {
	return stubTransport{viewer: viewer}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.Orchestrator) {
	return newTestRouterWithDefault(t, "")
}

func newTestRouterWithDefault(t *testing.T, defaultQuality domain.QualityKey) (*gin.Engine, *services.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	registry := webrtcinfra.NewRegistry(stubFactory{}, logger)
	manager := media.NewManager(stubDevice{}, logger)
	capturer := media.NewCapturer(stubBackend{}, 0, retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond}, logger)
	metrics := monitoring.NewCollectorWith(prometheus.NewRegistry())

	orch := services.NewOrchestrator(
		stubBackend{}, stubIdentity{}, stubRelay{}, registry, stubFactory{},
		manager, capturer, metrics, "public", logger,
	)
	t.Cleanup(func() { orch.Close(context.Background()) })

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	NewControlHandler(orch, defaultQuality, logger).RegisterRoutes(router)
	return router, orch
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestControlHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestControlHandler_Qualities(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodGet, "/api/v1/qualities", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Qualities []qualityView `json:"qualities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Qualities, 4)
	assert.Equal(t, "low", resp.Qualities[0].Key)
	assert.Equal(t, 1280, resp.Qualities[1].Width)
}

func TestControlHandler_StatusWhenIdle(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Active)
	assert.Equal(t, "idle", resp.State)
	assert.Zero(t, resp.ViewerTotal)
}

func TestControlHandler_StartAndStopSession(t *testing.T) {
	router, orch := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{"quality": "high"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp["session_id"])
	assert.Equal(t, "high", resp["quality"])
	assert.True(t, orch.Snapshot().Active)

	w = doJSON(router, http.MethodPost, "/api/v1/session/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, orch.Snapshot().Active)
}

func TestControlHandler_StartDefaultsToMedium(t *testing.T) {
	router, orch := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.QualityMedium, orch.Snapshot().Quality)
}

func TestControlHandler_StartDefaultsToConfiguredQuality(t *testing.T) {
	router, orch := newTestRouterWithDefault(t, domain.QualityLow)

	w := doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.QualityLow, orch.Snapshot().Quality)
}

func TestControlHandler_StartUnknownQuality(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{"quality": "potato"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN_QUALITY", resp["error"])
}

func TestControlHandler_StartWhileActiveConflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{"quality": "medium"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/session/start", map[string]string{"quality": "medium"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestControlHandler_ChangeQualityWhenIdle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/quality", map[string]string{"quality": "high"})
	require.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CONFLICT", resp["error"])
}

func TestControlHandler_ChangeQualityMissingBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/quality", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControlHandler_StopWhenIdleSucceeds(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/session/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
