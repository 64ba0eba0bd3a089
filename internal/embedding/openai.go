package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// OpenAIConfig configures an OpenAI-compatible /embeddings client.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// BatchSize caps the number of inputs sent per request.
	BatchSize int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. The dimension
// is learned from the first response.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	batchSize  int

	mu        sync.RWMutex
	dimension int
}

// NewOpenAIEmbedder returns a client for cfg. APIKey may be empty for local servers.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		batchSize:  cfg.BatchSize,
	}
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in order, splitting into requests of at most BatchSize inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		embs, err := e.request(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, embs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, eris.Wrap(err, "embeddings: encode request")
	}
	url := e.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, eris.Wrap(err, "embeddings: canceled")
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "embeddings: build request")
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "embeddings: request")
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = eris.Errorf("embeddings: %s", resp.Status)
			if ra, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && attempt < e.maxRetries {
				if err := sleepCtx(ctx, time.Duration(ra)*time.Second); err != nil {
					return nil, eris.Wrap(err, "embeddings: canceled")
				}
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, eris.Errorf("embeddings: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		}
		if readErr != nil {
			lastErr = eris.Wrap(readErr, "embeddings: read response")
			continue
		}
		return e.decode(payload, len(texts))
	}
	return nil, lastErr
}

func (e *OpenAIEmbedder) decode(payload []byte, n int) ([][]float32, error) {
	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, eris.Wrap(err, "embeddings: decode response")
	}
	if len(parsed.Data) != n {
		return nil, eris.Errorf("embeddings: got %d vectors for %d inputs", len(parsed.Data), n)
	}
	out := make([][]float32, n)
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= n {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, eris.Errorf("embeddings: empty vector at index %d", idx)
		}
		out[idx] = d.Embedding
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}

// Dimensions returns the dimension learned from the first response, or 0 before any call.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
