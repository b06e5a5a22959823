package perplexica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

const (
	searchPath = "/api/search"
	modelsPath = "/api/models"

	// healthTimeout bounds the reachability probe independently of the
	// configured request timeout.
	healthTimeout = 5 * time.Second

	// maxErrorBodyBytes caps how much of an upstream error body is kept.
	maxErrorBodyBytes = 64 * 1024
)

// Config holds the client-side settings for talking to Perplexica.
type Config struct {
	BaseURL               string
	RequestTimeout        time.Duration
	RateLimit             float64
	RateBurst             int
	MaxIdleConns          int
	IdleConnTimeout       time.Duration
	DefaultChatModel      *types.ChatModelSpec
	DefaultEmbeddingModel *types.EmbeddingModelSpec
	DefaultOptimization   types.OptimizationMode
}

// NewConfigFromTypes derives a client Config from the root configuration.
func NewConfigFromTypes(cfg *types.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Config{
		BaseURL:               cfg.BaseURL,
		RequestTimeout:        cfg.Timeout(),
		RateLimit:             cfg.RateLimit,
		RateBurst:             cfg.RateBurst,
		DefaultChatModel:      cfg.DefaultChatModelSpec(),
		DefaultEmbeddingModel: cfg.DefaultEmbeddingModelSpec(),
		DefaultOptimization:   types.OptimizationMode(cfg.OptimizationMode),
	}, nil
}

// Validate checks the configuration before a client is built from it.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}

	return nil
}

// Client talks to a Perplexica instance over HTTP. It is safe for concurrent
// use; outgoing requests are paced by a shared rate limiter.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      *Config
	logger      *log.Logger
}

// NewClient creates a Perplexica client from the given configuration.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config validation failed: %w", err)
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		httpClient:  &http.Client{Transport: transport},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:      cfg,
		logger:      log.New(os.Stderr, "[Perplexica] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// applyDefaults fills unset request fields from the configured defaults and
// normalizes model specs so the name/model mirroring the upstream expects is
// in place before serialization.
func (c *Client) applyDefaults(req *types.SearchRequest) {
	if req.ChatModel == nil && c.config.DefaultChatModel != nil {
		spec := *c.config.DefaultChatModel
		req.ChatModel = &spec
	}
	if req.EmbeddingModel == nil && c.config.DefaultEmbeddingModel != nil {
		spec := *c.config.DefaultEmbeddingModel
		req.EmbeddingModel = &spec
	}
	if req.OptimizationMode == "" {
		req.OptimizationMode = c.config.DefaultOptimization
	}

	if req.ChatModel != nil {
		req.ChatModel.Normalize()
	}
	if req.EmbeddingModel != nil {
		req.EmbeddingModel.Normalize()
	}
}

// validateRequest enforces the dispatch invariant: a non-empty query and a
// known focus mode, before any network traffic.
func validateRequest(req *types.SearchRequest) error {
	if req == nil {
		return types.NewValidationError("search request cannot be nil")
	}
	if strings.TrimSpace(req.Query) == "" {
		return types.NewValidationError("query cannot be empty")
	}
	if !req.FocusMode.IsValid() {
		return types.NewValidationError("unknown focus mode: %q", req.FocusMode)
	}
	if req.OptimizationMode != "" && !req.OptimizationMode.IsValid() {
		return types.NewValidationError("unknown optimization mode: %q", req.OptimizationMode)
	}
	return nil
}

// Search POSTs the request to {base}/api/search and returns the parsed
// response together with the verbatim body bytes. Failures follow the error
// taxonomy: validation before any I/O, transport on network/timeout errors,
// upstream on non-2xx responses. No retries.
func (c *Client) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	c.applyDefaults(req)
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	requestID := uuid.NewString()
	c.logger.Printf("search request %s: focus=%s optimization=%s", requestID, req.FocusMode, req.OptimizationMode)

	respBody, _, err := c.doJSON(ctx, http.MethodPost, searchPath, body, requestID, c.config.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var result types.SearchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, types.NewUpstreamError(http.StatusOK, string(respBody)).
			WithMessage(fmt.Sprintf("invalid JSON response from Perplexica: %v", err))
	}
	result.Raw = respBody

	c.logger.Printf("search request %s: completed with %d sources", requestID, len(result.Sources))
	return &result, nil
}

// ListModels GETs {base}/api/models and returns the provider catalog with the
// verbatim body preserved for pass-through output.
func (c *Client) ListModels(ctx context.Context) (*types.ModelCatalog, error) {
	requestID := uuid.NewString()

	respBody, _, err := c.doJSON(ctx, http.MethodGet, modelsPath, nil, requestID, c.config.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var catalog types.ModelCatalog
	if err := json.Unmarshal(respBody, &catalog); err != nil {
		return nil, types.NewUpstreamError(http.StatusOK, string(respBody)).
			WithMessage(fmt.Sprintf("invalid JSON response from Perplexica: %v", err))
	}
	catalog.Raw = respBody

	return &catalog, nil
}

// HealthCheck probes {base}/api/models with a short timeout. It never fails:
// any error is folded into the returned status.
func (c *Client) HealthCheck(ctx context.Context) *types.HealthStatus {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.config.BaseURL+modelsPath, nil)
	if err != nil {
		return &types.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to build probe request: %v", err)}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &types.HealthStatus{
			Healthy:   false,
			Message:   "Perplexica API is not accessible",
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))

	if resp.StatusCode != http.StatusOK {
		return &types.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("Perplexica API returned HTTP %d", resp.StatusCode),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	return &types.HealthStatus{
		Healthy:   true,
		Message:   "Perplexica API is accessible",
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

// Diagnose probes reachability and fetches the model catalog concurrently.
// An unreachable upstream is not an error; the returned diagnostics carry
// status "unhealthy" and omit the catalog.
func (c *Client) Diagnose(ctx context.Context) (*types.Diagnostics, error) {
	var (
		health  *types.HealthStatus
		catalog *types.ModelCatalog
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health = c.HealthCheck(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		catalog, err = c.ListModels(gctx)
		if err != nil {
			c.logger.Printf("diagnose: model catalog unavailable: %v", err)
			catalog = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diag := &types.Diagnostics{
		Status:    "unhealthy",
		BaseURL:   c.config.BaseURL,
		LatencyMS: health.LatencyMS,
	}
	if health.Healthy {
		diag.Status = "healthy"
	}
	if catalog != nil {
		diag.AvailableModels = catalog.Raw
	}

	return diag, nil
}

// doJSON performs one rate-limited HTTP round-trip and returns the response
// body. Non-2xx responses and connection failures are classified into the
// error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, requestID string, timeout time.Duration) ([]byte, int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, ClassifyConnectionError(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, ClassifyConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, resp.StatusCode, ClassifyHTTPError(resp.StatusCode, string(errBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, ClassifyConnectionError(err)
	}

	return respBody, resp.StatusCode, nil
}
