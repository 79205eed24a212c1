package llm

import (
	"context"
	"time"
)

// timeoutClient bounds every completion call with a deadline. A timeout
// surfaces as the context error and follows the normal upstream-failure
// path.
type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// WithTimeout wraps a client so each call runs under its own deadline. A
// non-positive timeout returns the client unchanged.
func WithTimeout(client Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return client
	}
	return &timeoutClient{inner: client, timeout: timeout}
}

func (c *timeoutClient) Complete(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, prompt, tier)
}

func (c *timeoutClient) CompleteJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.CompleteJSON(ctx, prompt, tier)
}

func (c *timeoutClient) Close() error {
	return c.inner.Close()
}
