package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kessan/internal/models"
)

// apiClient talks to a running kessan server, for use while the server holds the index lock.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}, want int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Analyze(ctx context.Context, params models.Params) (*models.Envelope, error) {
	var env models.Envelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/analyze", params, &env, http.StatusOK); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *apiClient) Companies(ctx context.Context) ([]string, error) {
	var out struct {
		Companies []string `json:"companies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/companies", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Companies, nil
}

func (c *apiClient) Quarters(ctx context.Context) ([]models.Period, error) {
	var out struct {
		Quarters []models.Period `json:"quarters"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/quarters", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Quarters, nil
}

func (c *apiClient) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats, http.StatusOK); err != nil {
		return nil, err
	}
	return &stats, nil
}
