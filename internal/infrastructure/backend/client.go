package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lumecast/internal/core/domain"
	"lumecast/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Client talks to the session/profile backend over REST. Every call carries
// the bearer token and a generated request id; non-2xx responses come back
// wrapped in domain.ErrBackendCallFailed so callers can classify without
// inspecting status codes.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *zap.SugaredLogger
}

func NewClient(baseURL, accessToken string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type dashboardResponse struct {
	Profile struct {
		ID string `json:"id"`
	} `json:"profile"`
}

// GetDashboard resolves the publisher's profile id.
func (c *Client) GetDashboard(ctx context.Context) (domain.ProfileID, error) {
	var resp dashboardResponse
	if err := c.do(ctx, http.MethodGet, "/auth/model/dashboard", nil, &resp); err != nil {
		return "", err
	}
	if resp.Profile.ID == "" {
		return "", fmt.Errorf("%w: dashboard response missing profile id", domain.ErrBackendCallFailed)
	}
	return domain.ProfileID(resp.Profile.ID), nil
}

type statusRequest struct {
	IsLive      bool `json:"is_live"`
	IsAvailable bool `json:"is_available"`
}

// UpdateModelStatus publishes the live/available flags.
func (c *Client) UpdateModelStatus(ctx context.Context, isLive, isAvailable bool) error {
	return c.do(ctx, http.MethodPatch, "/streaming/models/status", statusRequest{
		IsLive:      isLive,
		IsAvailable: isAvailable,
	}, nil)
}

type createSessionRequest struct {
	ProfileID   string `json:"profile_id"`
	SessionType string `json:"session_type"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	WebRTCConfig struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username,omitempty"`
			Credential string   `json:"credential,omitempty"`
		} `json:"iceServers"`
	} `json:"webrtc_config"`
}

// CreateSession registers a broadcast session and returns its id together
// with the ICE servers the backend hands out for it.
func (c *Client) CreateSession(ctx context.Context, profileID domain.ProfileID, sessionType string) (domain.SessionID, []webrtc.ICEServer, error) {
	var resp createSessionResponse
	err := c.do(ctx, http.MethodPost, "/streaming/session", createSessionRequest{
		ProfileID:   string(profileID),
		SessionType: sessionType,
	}, &resp)
	if err != nil {
		return "", nil, err
	}
	if resp.SessionID == "" {
		return "", nil, fmt.Errorf("%w: session response missing session id", domain.ErrBackendCallFailed)
	}

	servers := make([]webrtc.ICEServer, 0, len(resp.WebRTCConfig.ICEServers))
	for _, s := range resp.WebRTCConfig.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return domain.SessionID(resp.SessionID), servers, nil
}

// EndSession tells the backend the session is over.
func (c *Client) EndSession(ctx context.Context, sessionID domain.SessionID) error {
	return c.do(ctx, http.MethodDelete, "/streaming/session/"+string(sessionID), nil, nil)
}

type thumbnailRequest struct {
	Image []byte `json:"image"`
}

// UpdateThumbnail uploads a preview frame for the profile.
func (c *Client) UpdateThumbnail(ctx context.Context, profileID domain.ProfileID, image []byte) error {
	path := "/streaming/models/" + string(profileID) + "/thumbnail"
	return c.do(ctx, http.MethodPost, path, thumbnailRequest{Image: image}, nil)
}

// SendSignal posts a negotiation message to the backend's HTTP signaling
// endpoint. The websocket relay is the delivery path in normal operation;
// this covers the endpoint for tooling and manual recovery.
func (c *Client) SendSignal(ctx context.Context, msg domain.SignalMessage) error {
	return c.do(ctx, http.MethodPost, "/streaming/signal", msg, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Request-ID", utils.GenerateRequestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrBackendCallFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warnw("backend call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrBackendCallFailed, method, path, resp.StatusCode, string(snippet))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s response: %v", domain.ErrBackendCallFailed, method, path, err)
	}
	return nil
}
