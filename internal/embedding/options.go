package embedding

import (
	"net/http"
	"time"
)

// clientConfig holds configuration for the sidecar client.
type clientConfig struct {
	apiKey     string
	timeout    time.Duration
	retries    int
	cacheSize  int
	httpClient *http.Client
}

// defaultClientConfig returns a clientConfig with default values.
func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout:   30 * time.Second,
		retries:   2,
		cacheSize: 10000,
	}
}

// ClientOption configures the sidecar client.
type ClientOption func(*clientConfig)

// WithAPIKey sets the bearer token sent with requests.
func WithAPIKey(key string) ClientOption {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithRetries sets the number of retry attempts for failed requests.
func WithRetries(n int) ClientOption {
	return func(c *clientConfig) {
		c.retries = n
	}
}

// WithCacheSize sets the text embedding LRU cache capacity. Zero disables caching.
func WithCacheSize(n int) ClientOption {
	return func(c *clientConfig) {
		c.cacheSize = n
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}
