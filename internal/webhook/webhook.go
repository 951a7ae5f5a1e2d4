// Package webhook broadcasts a finished execution's result envelope to the
// observability service as two POST routes, one per result shape.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cito-data/test-engine/internal/apperror"
)

// Client posts result envelopes to the observability service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client rooted at baseURL. An empty baseURL disables
// broadcasting: SendQuant and SendQual become no-ops, for deployments that don't wire an
// observability webhook.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// SendQuant broadcasts a quantitative result envelope for testSuiteID.
func (c *Client) SendQuant(ctx context.Context, testSuiteID string, result any, jwt string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/test-suite/%s/result", testSuiteID), result, jwt)
}

// SendQual broadcasts a qualitative result envelope for testSuiteID.
func (c *Client) SendQual(ctx context.Context, testSuiteID string, result any, jwt string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/qual-test-suite/%s/result", testSuiteID), result, jwt)
}

func (c *Client) post(ctx context.Context, path string, result any, jwt string) error {
	if c.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "marshal webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if jwt != "" {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindDownstream, "send webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(resp.Body)
		msg := string(text)
		if msg == "" {
			msg = "unknown error"
		}
		return apperror.New(apperror.KindDownstream, "observability webhook: "+msg)
	}
	return nil
}
