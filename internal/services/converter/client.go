// Package converter talks to the local audio conversion sidecar that turns
// AAC recordings into M4A before upload.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 3456

	// HealthTimeout bounds the availability probe
	HealthTimeout = 5 * time.Second
	// ConvertTimeout bounds a single conversion
	ConvertTimeout = 60 * time.Second

	statusRunning  = "running"
	maxOutputBytes = 200 << 20
)

// ErrUnavailable is returned when the sidecar is not running or lacks ffmpeg.
var ErrUnavailable = errors.New("audio converter is not available")

// Health is the sidecar health document.
type Health struct {
	Status          string `json:"status"`
	FFmpegAvailable bool   `json:"ffmpeg_available"`
	Version         string `json:"version,omitempty"`
}

// Ready reports whether the sidecar can convert files.
func (h Health) Ready() bool {
	return h.Status == statusRunning && h.FFmpegAvailable
}

// Client is a converter sidecar client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	healthTimeout  time.Duration
	convertTimeout time.Duration
	logger         *zap.Logger
}

// NewClient creates a client for the sidecar at host:port. Zero values fall
// back to 127.0.0.1:3456.
func NewClient(host string, port int, logger *zap.Logger) *Client {
	if strings.TrimSpace(host) == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		httpClient:     &http.Client{},
		healthTimeout:  HealthTimeout,
		convertTimeout: ConvertTimeout,
		logger:         logger,
	}
}

// newClientWithBaseURL is used by tests pointing at an httptest server.
func newClientWithBaseURL(baseURL string) *Client {
	c := NewClient("", 0, nil)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// BaseURL returns the sidecar root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the sidecar health document.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build health request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converter health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("converter health check returned status %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode converter health: %w", err)
	}
	return &h, nil
}

// Available reports whether the sidecar is running with ffmpeg. Failures are
// logged and reported as unavailable.
func (c *Client) Available(ctx context.Context) bool {
	h, err := c.Health(ctx)
	if err != nil {
		c.logger.Warn("converter_health_check_failed",
			zap.String("url", c.baseURL),
			zap.Error(err),
		)
		return false
	}
	return h.Ready()
}

// ConvertToM4A uploads data and returns the converted bytes.
func (c *Client) ConvertToM4A(ctx context.Context, data []byte, filename string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.convertTimeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.WriteField("output_format", "m4a"); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build convert request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("conversion timed out after %s", c.convertTimeout)
		}
		return nil, fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read converted audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversion failed: %d - %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	if len(out) == 0 {
		return nil, errors.New("conversion returned no data")
	}

	c.logger.Info("audio_converted",
		zap.String("file_name", filename),
		zap.Int("original_size", len(data)),
		zap.Int("converted_size", len(out)),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}
