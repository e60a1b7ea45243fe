package llm

import (
	"context"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// FallbackClient tries primary first and fallback when it fails. Each
// attempt is bounded by timeout when one is set.
type FallbackClient struct {
	primary  Client
	fallback Client
	timeout  time.Duration
	logger   *logging.Logger
}

func NewFallbackClient(primary, fallback Client, timeout time.Duration, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, timeout: timeout, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.attempt(ctx, c.primary, req)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("primary llm failed", "error", err, "fallback_available", c.fallback != nil)
	if c.fallback == nil {
		return Response{}, err
	}

	resp, fallbackErr := c.attempt(ctx, c.fallback, req)
	if fallbackErr != nil {
		c.logger.Error("fallback llm also failed", "primary_error", err, "fallback_error", fallbackErr)
		return Response{}, fallbackErr
	}
	return resp, nil
}

func (c *FallbackClient) attempt(ctx context.Context, client Client, req Request) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return client.Complete(ctx, req)
}
