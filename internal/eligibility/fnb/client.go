// Package fnb queries the FNB (Financiamiento No Bancario) credit line API.
package fnb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const (
	providerName     = "fnb"
	defaultUserAgent = "creditsales-eligibility/1.0"
)

// Config controls how the FNB client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Segment    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client implements eligibility.Provider over the FNB REST API.
type Client struct {
	baseURL    string
	apiKey     string
	segment    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

type creditLine struct {
	Eligible     bool    `json:"eligible"`
	CreditLine   float64 `json:"credit_line"`
	CustomerName string  `json:"customer_name"`
	NSE          string  `json:"nse"`
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("fnb: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("fnb: API key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	segment := strings.TrimSpace(cfg.Segment)
	if segment == "" {
		segment = providerName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		segment:    segment,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return providerName }

// Query looks up the pre-approved credit line for dni. A 404 means the
// customer has no line, which is a business answer rather than a failure.
func (c *Client) Query(ctx context.Context, dni string) (eligibility.Result, error) {
	q := url.Values{}
	q.Set("dni", dni)
	status, data, err := c.invoke(ctx, "/v1/credit-lines", q)
	if err != nil {
		return eligibility.Result{}, err
	}
	if status == http.StatusNotFound {
		return eligibility.NotEligible(providerName), nil
	}

	var wrapper struct {
		Data creditLine `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return eligibility.Result{}, eligibility.NewProviderError(providerName, eligibility.CategoryInvalidResponse, status, fmt.Errorf("decode response: %w", err))
	}
	line := wrapper.Data
	if !line.Eligible || line.CreditLine <= 0 {
		return eligibility.NotEligible(providerName), nil
	}
	return eligibility.Result{
		Status:   eligibility.StatusEligible,
		Segment:  c.segment,
		Credit:   line.CreditLine,
		Name:     strings.TrimSpace(line.CustomerName),
		NSE:      strings.TrimSpace(line.NSE),
		Provider: providerName,
	}, nil
}

func (c *Client) invoke(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("fnb: build request: %w", err)
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, eligibility.NewProviderError(providerName, eligibility.CategoryTimeout, 0, ctx.Err())
			}
			category := eligibility.CategoryUnavailable
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				category = eligibility.CategoryTimeout
			}
			lastErr = eligibility.NewProviderError(providerName, category, 0, err)
			if attempt == c.maxRetries {
				return 0, nil, lastErr
			}
			c.logRetry(attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return 0, nil, eligibility.NewProviderError(providerName, eligibility.CategoryTimeout, 0, sleepErr)
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return 0, nil, eligibility.NewProviderError(providerName, eligibility.CategoryUnavailable, resp.StatusCode, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, data, nil
		}
		apiErr := eligibility.NewProviderError(providerName, eligibility.CategoryForStatus(resp.StatusCode), resp.StatusCode, errors.New(truncate(string(data), 200)))
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode) {
			lastErr = apiErr
			c.logRetry(attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return 0, nil, eligibility.NewProviderError(providerName, eligibility.CategoryTimeout, 0, sleepErr)
			}
			continue
		}
		return 0, nil, apiErr
	}
	return 0, nil, lastErr
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(attempt int, status int, err error) {
	c.logger.Warn("fnb retry", "attempt", attempt+1, "status", status, "error", err)
}

// shouldRetry reports whether a status is worth another attempt. Auth and
// block answers are final.
func shouldRetry(status int) bool {
	return status >= 500 && status <= 599 && status != http.StatusNotImplemented
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
