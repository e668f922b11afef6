package http

import (
	"net/http"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/internal/core/services"
	"lumecast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ControlHandler is the local control surface for the publisher: start and
// stop the session, switch quality, inspect state. Errors are pushed onto the
// gin context and rendered by the error middleware.
type ControlHandler struct {
	orchestrator   *services.Orchestrator
	defaultQuality domain.QualityKey
	logger         *zap.SugaredLogger
}

func NewControlHandler(orchestrator *services.Orchestrator, defaultQuality domain.QualityKey, logger *zap.SugaredLogger) *ControlHandler {
	if defaultQuality == "" {
		defaultQuality = domain.QualityMedium
	}
	return &ControlHandler{
		orchestrator:   orchestrator,
		defaultQuality: defaultQuality,
		logger:         logger,
	}
}

// RegisterRoutes attaches the control endpoints to the router.
func (h *ControlHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.GET("/qualities", h.Qualities)
		api.POST("/session/start", h.StartSession)
		api.POST("/session/stop", h.StopSession)
		api.POST("/session/quality", h.ChangeQuality)
	}
}

func (h *ControlHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type viewerView struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	JoinedAt  string `json:"joined_at"`
}

type statusResponse struct {
	Active      bool         `json:"active"`
	State       string       `json:"state"`
	SessionID   string       `json:"session_id,omitempty"`
	Quality     string       `json:"quality,omitempty"`
	Viewers     []viewerView `json:"viewers"`
	ViewerTotal int          `json:"viewer_total"`
	LastError   string       `json:"last_error,omitempty"`
	Loading     bool         `json:"loading"`
	Thumbnail   bool         `json:"thumbnail_captured"`
}

// Status reports the observable session state.
func (h *ControlHandler) Status(c *gin.Context) {
	state := h.orchestrator.Snapshot()

	viewers := make([]viewerView, 0, len(state.Viewers))
	for _, v := range state.Viewers {
		viewers = append(viewers, viewerView{
			ID:        string(v.ID),
			Connected: v.Connected,
			JoinedAt:  v.JoinedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, statusResponse{
		Active:      state.Active,
		State:       string(state.Session),
		SessionID:   string(state.SessionID),
		Quality:     string(state.Quality),
		Viewers:     viewers,
		ViewerTotal: len(viewers),
		LastError:   state.LastError,
		Loading:     state.Loading,
		Thumbnail:   len(state.Thumbnail) > 0,
	})
}

type qualityView struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate int    `json:"frame_rate"`
}

// Qualities lists the selectable capture presets.
func (h *ControlHandler) Qualities(c *gin.Context) {
	profiles := domain.QualityKeys()
	out := make([]qualityView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, qualityView{
			Key:       string(p.Key),
			Label:     p.Label,
			Width:     p.Constraints.Width,
			Height:    p.Constraints.Height,
			FrameRate: p.Constraints.FrameRate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"qualities": out})
}

type sessionRequest struct {
	Quality string `json:"quality"`
}

// StartSession starts broadcasting at the requested quality.
func (h *ControlHandler) StartSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrCodeInvalidInput, "invalid request body", http.StatusBadRequest))
		return
	}
	if req.Quality == "" {
		req.Quality = string(h.defaultQuality)
	}

	if err := h.orchestrator.StartStreaming(c.Request.Context(), domain.QualityKey(req.Quality)); err != nil {
		c.Error(err)
		return
	}

	state := h.orchestrator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"session_id": string(state.SessionID),
		"quality":    string(state.Quality),
	})
}

// StopSession ends the broadcast. Stopping when idle succeeds.
func (h *ControlHandler) StopSession(c *gin.Context) {
	if err := h.orchestrator.StopStreaming(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// ChangeQuality switches the live capture preset in place.
func (h *ControlHandler) ChangeQuality(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quality == "" {
		c.Error(errors.New(errors.ErrCodeInvalidInput, "quality is required", http.StatusBadRequest))
		return
	}

	if err := h.orchestrator.ChangeQuality(c.Request.Context(), domain.QualityKey(req.Quality)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quality": req.Quality})
}
