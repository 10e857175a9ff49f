package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dreamforge/api/internal/config"
)

// MediaClient implements MediaTools against the ffmpeg microservice.
type MediaClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewMediaClient(cfg *config.MediaToolsConfig) *MediaClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &MediaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

// IsConfigured returns true if a service URL is set
func (c *MediaClient) IsConfigured() bool {
	return c.baseURL != ""
}

type upscaleRequest struct {
	InputURL string `json:"input_url"`
	Factor   int    `json:"factor"`
}

type encodeRequest struct {
	InputURL string `json:"input_url"`
	Format   string `json:"format"`
}

type concatRequest struct {
	InputURLs []string `json:"input_urls"`
	// Copy streams without re-encoding; the join is container-level only.
	StreamCopy bool `json:"stream_copy"`
}

type mediaResponse struct {
	OutputURL string `json:"output_url"`
}

func (c *MediaClient) Upscale(ctx context.Context, artifactURL string, factor int) (string, error) {
	if factor <= 1 {
		return artifactURL, nil
	}
	var resp mediaResponse
	if err := c.post(ctx, "/v1/upscale", upscaleRequest{InputURL: artifactURL, Factor: factor}, &resp); err != nil {
		return "", err
	}
	if resp.OutputURL == "" {
		return "", fmt.Errorf("upscale returned no output")
	}
	return resp.OutputURL, nil
}

func (c *MediaClient) Encode(ctx context.Context, artifactURL string, format string) (string, error) {
	var resp mediaResponse
	if err := c.post(ctx, "/v1/encode", encodeRequest{InputURL: artifactURL, Format: format}, &resp); err != nil {
		return "", err
	}
	if resp.OutputURL == "" {
		return "", fmt.Errorf("encode returned no output")
	}
	return resp.OutputURL, nil
}

func (c *MediaClient) Stitch(ctx context.Context, orderedURLs []string) (string, error) {
	if len(orderedURLs) == 0 {
		return "", fmt.Errorf("nothing to stitch")
	}
	var resp mediaResponse
	if err := c.post(ctx, "/v1/concat", concatRequest{InputURLs: orderedURLs, StreamCopy: true}, &resp); err != nil {
		return "", err
	}
	if resp.OutputURL == "" {
		return "", fmt.Errorf("concat returned no output")
	}
	return resp.OutputURL, nil
}

func (c *MediaClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("media service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read media service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("media service returned status %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, result)
}
