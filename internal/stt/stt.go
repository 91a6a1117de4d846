// Package stt transcribes inbound audio through an OpenAI-compatible
// transcription endpoint.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Config points at the transcription endpoint.
type Config struct {
	Endpoint string // e.g. "https://api.example.com/v1/audio/transcriptions"
	APIKey   string
	Model    string
}

// Client transcribes one audio clip per request.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Endpoint != ""
}

// Transcribe converts audio bytes to text. fileName hints the format
// to the endpoint (e.g. "voice.opus").
func (c *Client) Transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("speech-to-text not configured")
	}
	if fileName == "" {
		fileName = "audio.opus"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if c.cfg.Model != "" {
		writer.WriteField("model", c.cfg.Model)
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	if result.Text == "" {
		return "", fmt.Errorf("transcription returned empty text")
	}
	return result.Text, nil
}
