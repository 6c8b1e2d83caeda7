package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MaterialValue is one line of the recyclable-value breakdown.
type MaterialValue struct {
	Material string  `json:"material"`
	WeightKg float64 `json:"weight_kg"`
	Revenue  float64 `json:"revenue"`
}

// ValueEstimate is the waste-value service's appraisal of a report image.
type ValueEstimate struct {
	Materials  []string        `json:"materials"`
	WeightKg   float64         `json:"weight_kg"`
	Revenue    float64         `json:"revenue"`
	Breakdown  []MaterialValue `json:"breakdown"`
	Confidence float64         `json:"confidence"`
}

// ValueClient calls the waste-value estimation service. Failures are
// non-fatal; callers default to zero values.
type ValueClient struct {
	baseURL string
	client  *http.Client
}

// NewValueClient constructs a client targeting the provided base URL.
func NewValueClient(baseURL string, timeout time.Duration) *ValueClient {
	return &ValueClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Estimate submits the image for recyclable-value appraisal.
func (c *ValueClient) Estimate(ctx context.Context, image []byte) (ValueEstimate, error) {
	var result ValueEstimate
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/estimate", c.baseURL), bytes.NewReader(image))
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
		return result, fmt.Errorf("value estimate failed: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, err
	}
	return result, nil
}
