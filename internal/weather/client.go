// Package weather fetches the 24h rain forecast used by the risk scorer.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// forecastIntervals covers 24h of 3-hourly intervals.
const forecastIntervals = 8

// Client calls the weather forecast service. Failures are non-fatal; the
// scorer falls back to NORMAL priority.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a client targeting the provided base URL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// MaxRainProbability returns the worst-case rain probability (0-100) across
// all forecast intervals in the coming period. The maximum, not the average,
// models the risk a blocked drain poses within the horizon. Services report
// probability-of-precipitation as a 0-1 fraction; it is converted to percent
// at this boundary.
func (c *Client) MaxRainProbability(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("cnt", fmt.Sprintf("%d", forecastIntervals))
	if c.apiKey != "" {
		q.Set("appid", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/data/2.5/forecast?%s", c.baseURL, q.Encode()), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("forecast failed: %s", resp.Status)
	}

	var payload struct {
		List []struct {
			Pop float64 `json:"pop"`
		} `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}

	max := 0.0
	for _, interval := range payload.List {
		if interval.Pop > max {
			max = interval.Pop
		}
	}
	// Tolerate services that already report percentages.
	if max <= 1 {
		max = max * 100
	}
	if max > 100 {
		max = 100
	}
	return max, nil
}
