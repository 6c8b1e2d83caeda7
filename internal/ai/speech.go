package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SpeechClient calls the transcription service for voice attachments.
// Failures are non-fatal; the submitted text description stands.
type SpeechClient struct {
	baseURL string
	client  *http.Client
}

// NewSpeechClient constructs a client targeting the provided base URL.
func NewSpeechClient(baseURL string, timeout time.Duration) *SpeechClient {
	return &SpeechClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe converts a voice attachment to text.
func (c *SpeechClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/transcribe", c.baseURL), bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription failed: %s", resp.Status)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
