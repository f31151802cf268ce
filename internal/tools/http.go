package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/lexiqai/voice-assistant/internal/resilience"
)

const maxResponseBytes = 4 << 20

// doJSON sends the request built by newRequest and decodes a JSON body into
// out. Transport failures, 429 and 5xx responses are retried with backoff.
func doJSON(ctx context.Context, client *http.Client, retry *resilience.RetryConfig, newRequest func(ctx context.Context) (*http.Request, error), out any) error {
	return resilience.Retry(ctx, func(ctx context.Context) error {
		req, err := newRequest(ctx)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return resilience.NewRetryableError(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("%s returned status %d: %s", req.URL.Host, resp.StatusCode, truncate(strings.TrimSpace(string(body)), 200))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return resilience.NewRetryableError(statusErr)
			}
			return statusErr
		}

		if err := sonic.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}, retry, resilience.IsRetryableNetworkError)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
