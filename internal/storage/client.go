// Package storage uploads report images to the object-storage collaborator
// and resolves stored references to retrievable URLs.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const inlinePrefix = "data:"

// Client talks to the object-storage REST API. When the store is down,
// callers fall back to InlineRef so a submission never fails on storage.
type Client struct {
	baseURL string
	bucket  string
	token   string
	client  *http.Client
}

// NewClient constructs a client for one bucket.
func NewClient(baseURL, bucket, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		bucket:  bucket,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload stores the bytes under a random object name and returns the
// reference to record on the ticket.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	name := uuid.New().String() + extensionFor(contentType)
	ref := fmt.Sprintf("%s/%s", c.bucket, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/object/%s", c.baseURL, ref), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("object upload failed: %s", resp.Status)
	}
	return ref, nil
}

// Resolve converts a stored reference to a retrievable URL. Inline references
// are already self-contained and pass through unchanged.
func (c *Client) Resolve(ref string) string {
	if strings.HasPrefix(ref, inlinePrefix) {
		return ref
	}
	return fmt.Sprintf("%s/object/public/%s", c.baseURL, ref)
}

// InlineRef encodes image bytes as a data URI, the degraded-storage fallback.
func InlineRef(data []byte, contentType string) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}

// IsInline reports whether a reference is a data URI fallback.
func IsInline(ref string) bool {
	return strings.HasPrefix(ref, inlinePrefix)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
