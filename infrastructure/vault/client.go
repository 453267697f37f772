// Package vault provides the HTTP Credential Vault client.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"portalpilot-go/domain/credential"
)

// ClientConfig contains configuration for the vault client.
type ClientConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	Logger         *slog.Logger
}

// DefaultClientConfig returns default vault client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:8200",
		Timeout:        10 * time.Second,
		HealthInterval: 15 * time.Second,
		HealthTimeout:  3 * time.Second,
	}
}

// HTTPClient implements credential.Vault over the vault's REST API:
//
//	GET {base}/v1/bindings/{binding}/fields          -> {"fields": ["email", ...]}
//	GET {base}/v1/bindings/{binding}/fields/{field}  -> {"value": "..."}
//	GET {base}/health
//
// A 404 maps to apperr.ErrCredentialNotFound.
type HTTPClient struct {
	config       *ClientConfig
	httpClient   *http.Client
	logger       *slog.Logger
	healthy      atomic.Bool
	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewHTTPClient creates a new HTTP vault client and starts its health loop.
func NewHTTPClient(config *ClientConfig) *HTTPClient {
	if config == nil {
		config = DefaultClientConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:       logger.With("component", "vault"),
		healthCtx:    ctx,
		healthCancel: cancel,
	}

	client.performHealthCheck()

	if config.HealthInterval > 0 {
		client.healthWg.Add(1)
		go client.healthCheckLoop()
	}

	return client
}

// ListAvailableFields implements credential.Vault.
func (c *HTTPClient) ListAvailableFields(ctx context.Context, binding string) ([]string, error) {
	if binding == "" {
		return nil, credential.NotFound("", "")
	}

	var resp struct {
		Fields []string `json:"fields"`
	}
	path := fmt.Sprintf("/v1/bindings/%s/fields", url.PathEscape(binding))
	if err := c.get(ctx, path, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, credential.NotFound(binding, "")
		}
		return nil, err
	}
	return resp.Fields, nil
}

// GetFieldValue implements credential.Vault. The value is never logged.
func (c *HTTPClient) GetFieldValue(ctx context.Context, binding, field string) (string, error) {
	if binding == "" || field == "" {
		return "", credential.NotFound(binding, field)
	}

	var resp struct {
		Value string `json:"value"`
	}
	path := fmt.Sprintf("/v1/bindings/%s/fields/%s", url.PathEscape(binding), url.PathEscape(field))
	if err := c.get(ctx, path, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", credential.NotFound(binding, field)
		}
		return "", err
	}
	return resp.Value, nil
}

var errNotFound = errors.New("not found")

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	if !c.IsHealthy() {
		return fmt.Errorf("credential vault is currently unavailable")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.config.BaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}

	if resp.StatusCode != http.StatusOK {
		// Bodies may echo secrets; report the status only.
		c.logger.Warn("Vault request failed", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("unexpected vault status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// IsHealthy returns true if the vault is reachable.
func (c *HTTPClient) IsHealthy() bool {
	return c.healthy.Load()
}

// Close stops the health loop.
func (c *HTTPClient) Close() {
	if c.healthCancel != nil {
		c.healthCancel()
	}
	c.healthWg.Wait()
}

func (c *HTTPClient) healthCheckLoop() {
	defer c.healthWg.Done()

	ticker := time.NewTicker(c.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.healthCtx.Done():
			return
		case <-ticker.C:
			c.performHealthCheck()
		}
	}
}

func (c *HTTPClient) performHealthCheck() {
	ctx, cancel := context.WithTimeout(c.healthCtx, c.config.HealthTimeout)
	defer cancel()

	was := c.healthy.Load()
	ok := c.probe(ctx)
	c.healthy.Store(ok)

	if was != ok {
		c.logger.Info("Vault health changed", "healthy", ok)
	}
}

func (c *HTTPClient) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.config.BaseURL, "/")+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Ensure HTTPClient implements credential.Vault
var _ credential.Vault = (*HTTPClient)(nil)
