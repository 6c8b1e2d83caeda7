// Package ai holds the REST clients for the external analysis services the
// pipeline depends on: vision gating, waste-value estimation, speech
// transcription, text enrichment and the LLM before/after comparator.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VisionResult is the vision service's analysis of a report image.
type VisionResult struct {
	HasGarbage   bool    `json:"has_garbage"`
	WasteType    string  `json:"waste_type"`
	Severity     string  `json:"severity"`
	DrainBlocked bool    `json:"drain_blocked"`
	Confidence   float64 `json:"confidence"`
}

// VisionClient calls the vision-analysis service. It is the pipeline's single
// hard gate: callers treat any transport failure here as fatal.
type VisionClient struct {
	baseURL string
	client  *http.Client
}

// NewVisionClient constructs a client targeting the provided base URL.
func NewVisionClient(baseURL string, timeout time.Duration) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Analyze submits the image for garbage detection.
func (c *VisionClient) Analyze(ctx context.Context, image []byte) (VisionResult, error) {
	var result VisionResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/analyze", c.baseURL), bytes.NewReader(image))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return result, fmt.Errorf("vision analyze failed: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, err
	}
	return result, nil
}
