// Package imagegen calls an OpenAI-compatible image generation
// endpoint and returns raw image bytes.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config points at the generation endpoint.
type Config struct {
	Endpoint string // e.g. "https://api.example.com/v1/images/generations"
	APIKey   string
	Model    string
}

// Client generates one image per request.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Endpoint != ""
}

// Generate renders prompt into PNG bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("image generation not configured")
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model":           c.cfg.Model,
		"prompt":          prompt,
		"n":               1,
		"response_format": "b64_json",
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("image generation failed: %s", apiErr.Error.Message)
		}
		return nil, fmt.Errorf("image generation failed: status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("image response contains no data")
	}
	if result.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image response missing b64_json payload")
	}
	data, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image bytes: %w", err)
	}
	return data, nil
}
