package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Enrichment is the NLP service's cleaned/translated view of a description,
// with optional classification hints. It is advisory, never a gate.
type Enrichment struct {
	TranslatedText string `json:"translated_text"`
	WasteType      string `json:"waste_type,omitempty"`
	DrainMentioned *bool  `json:"drain_mentioned,omitempty"`
}

// NLPClient calls the text-enrichment service. Failures are non-fatal.
type NLPClient struct {
	baseURL string
	client  *http.Client
}

// NewNLPClient constructs a client targeting the provided base URL.
func NewNLPClient(baseURL string, timeout time.Duration) *NLPClient {
	return &NLPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Enrich translates and cleans a report description.
func (c *NLPClient) Enrich(ctx context.Context, text string) (Enrichment, error) {
	var result Enrichment
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/enrich", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return result, fmt.Errorf("text enrichment failed: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, err
	}
	return result, nil
}
