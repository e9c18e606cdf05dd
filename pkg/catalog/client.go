package catalog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/retry"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

const defaultTimeout = 30 * time.Second

// Options configures a catalog client.
type Options struct {
	// Config is the catalog connection configuration.
	Config config.CatalogConfig

	// DryRun makes Create and Update return their input without any
	// request. Reads stay live so dependency checks see the real catalog.
	DryRun bool

	// Telemetry provides logging, metrics, and tracing. Nil means no-op.
	Telemetry *telemetry.Telemetry
}

// Client is the catalog REST client. It implements engine.CatalogClient.
type Client struct {
	baseURL    string
	apiVersion string
	auth       config.AuthConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Executor
	telemetry  *telemetry.Telemetry
	logger     *telemetry.Logger
	dryRun     bool
}

// NewClient creates a catalog client from the connection configuration.
func NewClient(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg.Host == "" {
		return nil, fmt.Errorf("catalog host is required")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v1"
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.Host, "/"),
		apiVersion: apiVersion,
		auth:       cfg.Auth,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter:   limiter,
		retrier:   retry.NewExecutor(retry.ClassifierFunc(IsTransient), backoffFromConfig(cfg.Retry)),
		telemetry: tel,
		logger:    tel.Logger.WithField("component", "catalog"),
		dryRun:    opts.DryRun,
	}, nil
}

// backoffFromConfig builds the retry strategy, falling back to the
// package defaults for unset tuning fields.
func backoffFromConfig(cfg config.RetryConfig) *retry.ExponentialBackoff {
	var opts []retry.BackoffOption
	if d := cfg.InitialDelay.Std(); d > 0 {
		opts = append(opts, retry.WithInitialDelay(d))
	}
	if d := cfg.MaxDelay.Std(); d > 0 {
		opts = append(opts, retry.WithMaxDelay(d))
	}
	if cfg.Multiplier > 0 {
		opts = append(opts, retry.WithMultiplier(cfg.Multiplier))
	}
	if cfg.Jitter > 0 {
		opts = append(opts, retry.WithJitter(cfg.Jitter))
	}
	return retry.NewExponentialBackoff(cfg.MaxAttempts, opts...)
}

// Ping checks that the catalog is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := c.telemetry.Tracer.StartCatalogSpan(ctx, "ping")
	defer span.End()

	if err := c.send(ctx, http.MethodGet, "health", nil, nil); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("catalog health check failed for %s: %w", c.baseURL, err)
	}
	telemetry.RecordSuccess(span)
	return nil
}

// FindByFqn fetches an entity by fully qualified name. A nil entity with
// a nil error means the entity does not exist.
func (c *Client) FindByFqn(ctx context.Context, entityType config.EntityType, fqn string) (engine.Entity, error) {
	path, err := PathFor(entityType)
	if err != nil {
		return nil, err
	}
	entity, err := New(entityType)
	if err != nil {
		return nil, err
	}

	ctx, span := c.telemetry.Tracer.StartCatalogSpan(ctx, "find_by_fqn")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.AttrEntityType.String(string(entityType)),
		telemetry.AttrEntityFqn.String(fqn),
	)

	err = c.send(ctx, http.MethodGet, path+"/name/"+url.PathEscape(fqn), nil, entity)
	if err != nil {
		if IsNotFound(err) {
			telemetry.RecordSuccess(span)
			return nil, nil
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return entity, nil
}

// Create creates the entity in the catalog and returns the stored form.
func (c *Client) Create(ctx context.Context, entity engine.Entity) (engine.Entity, error) {
	return c.write(ctx, http.MethodPost, "create", entity)
}

// Update replaces the existing entity in the catalog and returns the
// stored form.
func (c *Client) Update(ctx context.Context, entity engine.Entity) (engine.Entity, error) {
	return c.write(ctx, http.MethodPut, "update", entity)
}

func (c *Client) write(ctx context.Context, method, operation string, entity engine.Entity) (engine.Entity, error) {
	if c.dryRun {
		return entity, nil
	}

	path, err := PathFor(entity.EntityType())
	if err != nil {
		return nil, err
	}
	stored, err := New(entity.EntityType())
	if err != nil {
		return nil, err
	}

	ctx, span := c.telemetry.Tracer.StartCatalogSpan(ctx, operation)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.AttrEntityType.String(string(entity.EntityType())),
		telemetry.AttrEntityFqn.String(entity.Fqn()),
	)

	if err := c.send(ctx, method, path, entity, stored); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return stored, nil
}

// send issues one request with rate limiting and classified retry. The
// response body is decoded into out when out is non-nil.
func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	executor := c.retrier.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.telemetry.Metrics.RecordCatalogRetry(method)
		c.logger.Warnf("Retrying %s %s in %s after attempt %d: %v", method, path, delay, attempt+1, err)
	})

	return executor.Execute(ctx, func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, payload, out)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.telemetry.Metrics.RecordCatalogRequest(method, 0, time.Since(start))
		return fmt.Errorf("catalog request failed: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.telemetry.Metrics.RecordCatalogRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(data, resp.StatusCode),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.apiVersion, path)
}

func (c *Client) authorize(req *http.Request) {
	switch c.auth.Type {
	case config.AuthJWT:
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case config.AuthBasic:
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
}

// errorMessage extracts the error message from a response body, falling
// back to the status text.
func errorMessage(data []byte, statusCode int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(statusCode)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
