package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mirusearch/miru/pkg/vecmath"
)

// Retry configuration.
const (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// retryableStatuses are HTTP status codes that trigger a retry.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client talks to the CLIP embedding sidecar over HTTP. It implements
// Embedder and Captioner. Text embeddings are cached in an LRU keyed by the
// input string; image embeddings and VQA answers are not cached.
type Client struct {
	baseURL    string
	apiKey     string
	dimensions int
	retries    int
	httpClient *http.Client
	cache      *Cache
}

// NewClient creates a sidecar client. baseURL is the sidecar address
// (e.g. "http://localhost:9090"); dimensions must match the served model.
func NewClient(baseURL string, dimensions int, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}

	var cache *Cache
	if cfg.cacheSize > 0 {
		cache = NewCache(cfg.cacheSize)
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.apiKey,
		dimensions: dimensions,
		retries:    cfg.retries,
		httpClient: httpClient,
		cache:      cache,
	}, nil
}

type embedTextRequest struct {
	Texts []string `json:"texts"`
}

type embedImageRequest struct {
	Images []string `json:"images"` // base64-encoded
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

type vqaRequest struct {
	Image    string `json:"image"` // base64-encoded
	Question string `json:"question"`
}

type vqaResponse struct {
	Answer string `json:"answer"`
}

// EmbedText embeds texts in batch order. Results are normalized before return.
func (c *Client) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	misses := make([]string, 0, len(texts))
	missIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if c.cache != nil {
			if vec, ok := c.cache.Get(text); ok {
				out[i] = vec
				continue
			}
		}
		misses = append(misses, text)
		missIdx = append(missIdx, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	var resp embedResponse
	if err := c.doRequest(ctx, "/v1/embed/text", embedTextRequest{Texts: misses}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(misses) {
		return nil, &ServerError{APIError{
			Message: fmt.Sprintf("embed text: got %d vectors for %d texts", len(resp.Vectors), len(misses)),
		}}
	}
	for i, vec := range resp.Vectors {
		if len(vec) != c.dimensions {
			return nil, &ServerError{APIError{
				Message: fmt.Sprintf("embed text: vector dimension %d, expected %d", len(vec), c.dimensions),
			}}
		}
		norm := vecmath.Normalize(vec)
		out[missIdx[i]] = norm
		if c.cache != nil {
			c.cache.Set(misses[i], norm)
		}
	}
	return out, nil
}

// EmbedImages embeds raw image bytes in batch order. Results are normalized.
func (c *Client) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}
	var resp embedResponse
	if err := c.doRequest(ctx, "/v1/embed/image", embedImageRequest{Images: encoded}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(images) {
		return nil, &ServerError{APIError{
			Message: fmt.Sprintf("embed image: got %d vectors for %d images", len(resp.Vectors), len(images)),
		}}
	}
	out := make([][]float32, len(resp.Vectors))
	for i, vec := range resp.Vectors {
		if len(vec) != c.dimensions {
			return nil, &ServerError{APIError{
				Message: fmt.Sprintf("embed image: vector dimension %d, expected %d", len(vec), c.dimensions),
			}}
		}
		out[i] = vecmath.Normalize(vec)
	}
	return out, nil
}

// Describe asks the sidecar's VQA model a question about the image.
func (c *Client) Describe(ctx context.Context, image []byte, question string) (string, error) {
	req := vqaRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Question: question,
	}
	var resp vqaResponse
	if err := c.doRequest(ctx, "/v1/vqa", req, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Dimensions returns the embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// doRequest POSTs body as JSON and decodes the response into result, retrying
// retryable statuses and network errors with exponential backoff.
func (c *Client) doRequest(ctx context.Context, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return &NetworkError{Message: fmt.Sprintf("marshal request: %v", err), Cause: err}
	}

	var lastErr error
	maxAttempts := c.retries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return &NetworkError{Message: fmt.Sprintf("create request: %v", err), Cause: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return &NetworkError{Message: fmt.Sprintf("request cancelled: %v", ctx.Err()), Cause: ctx.Err()}
			}
			lastErr = &NetworkError{Message: fmt.Sprintf("request failed: %v", err), Cause: err}
			if attempt < maxAttempts-1 {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return lastErr
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &NetworkError{Message: fmt.Sprintf("read response: %v", err), Cause: err}
			if attempt < maxAttempts-1 {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return lastErr
		}

		if resp.StatusCode == http.StatusOK {
			if err := json.Unmarshal(respBody, result); err != nil {
				return &ServerError{APIError{Message: fmt.Sprintf("decode response: %v", err), StatusCode: resp.StatusCode}}
			}
			return nil
		}

		apiErr := parseAPIError(resp.StatusCode, respBody)
		if retryableStatuses[resp.StatusCode] && attempt < maxAttempts-1 {
			lastErr = apiErr
			time.Sleep(retryDelay(attempt))
			continue
		}
		return apiErr
	}
	return lastErr
}

// parseAPIError maps a non-200 response to a typed error.
func parseAPIError(status int, body []byte) error {
	var msg struct {
		Error string `json:"error"`
	}
	message := fmt.Sprintf("sidecar returned status %d", status)
	if err := json.Unmarshal(body, &msg); err == nil && msg.Error != "" {
		message = msg.Error
	}
	base := APIError{Message: message, StatusCode: status}
	switch {
	case status == http.StatusBadRequest:
		return &ValidationError{base}
	case status >= 500:
		return &ServerError{base}
	default:
		return &base
	}
}

// retryDelay returns the backoff for a retry attempt: base * 2^attempt, capped.
func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
