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

// Client implements Generator against the HTTP generation provider. A call
// submits a task and polls it to a terminal state; the caller bounds the
// whole exchange with its context.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
}

// NewClient creates a generation provider client.
func NewClient(cfg *config.ProviderConfig) *Client {
	poll := time.Duration(cfg.PollSeconds) * time.Second
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		pollInterval: poll,
	}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Fingerprint identifies the provider/model pair recorded in manifests.
func (c *Client) Fingerprint() string {
	return fmt.Sprintf("%s@%s", c.model, c.baseURL)
}

type generateRequest struct {
	Model           string  `json:"model"`
	Type            string  `json:"type"`
	Prompt          string  `json:"prompt"`
	NegativePrompt  string  `json:"negative_prompt,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds int     `json:"duration,omitempty"`
	FPS             int     `json:"fps,omitempty"`
	Steps           int     `json:"steps,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`
	Mode            string  `json:"mode,omitempty"`
	Format          string  `json:"format,omitempty"`
	ReferenceURL    string  `json:"reference_url,omitempty"`
}

type generateResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type taskStatusResponse struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Generate submits a generation task and polls it until it finishes. The
// returned URL is the provider's raw artifact location.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	body := generateRequest{
		Model:           c.model,
		Type:            string(req.Type),
		Prompt:          req.Prompt,
		NegativePrompt:  req.Options.NegativePrompt,
		Width:           req.Options.Width,
		Height:          req.Options.Height,
		DurationSeconds: req.Options.DurationSeconds,
		FPS:             req.Options.FPS,
		Steps:           req.Options.Steps,
		Seed:            req.Seed,
		Mode:            string(req.Options.ThreeDMode),
		Format:          string(req.Options.CADFormat),
		ReferenceURL:    req.ReferenceURL,
	}

	var submitted generateResponse
	if err := c.post(ctx, "/v1/generate", body, &submitted); err != nil {
		return "", err
	}
	if submitted.TaskID == "" {
		return "", fmt.Errorf("provider accepted the task but returned no task id")
	}

	return c.pollTask(ctx, submitted.TaskID)
}

// pollTask polls a task until it reaches a terminal state or ctx expires.
func (c *Client) pollTask(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		var task taskStatusResponse
		if err := c.get(ctx, fmt.Sprintf("/v1/tasks/%s", taskID), &task); err != nil {
			return "", err
		}

		switch task.Status {
		case "completed", "succeeded":
			url, ok := ExtractArtifactURL(task.Output)
			if !ok {
				return "", fmt.Errorf("provider returned no artifact for task %s", taskID)
			}
			return url, nil
		case "failed", "cancelled", "timed_out":
			if task.Error != "" {
				return "", fmt.Errorf("provider task %s failed: %s", taskID, task.Error)
			}
			return "", fmt.Errorf("provider task %s failed", taskID)
		}
		// pending / running: keep polling
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(data))
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to unmarshal provider response: %w", err)
		}
	}
	return nil
}
