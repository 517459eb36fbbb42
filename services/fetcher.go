package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// RetryPolicy bounds the download retry loop. Delay doubles after every
// failed attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	BackoffFactor   int
	RetryableStatus func(status int) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2,
		// providers serve 404 while the asset is still propagating, so every
		// non-2xx is worth another attempt
		RetryableStatus: func(status int) bool { return status < 200 || status > 299 },
	}
}

// MaterializedResult is where the generated image ended up. Address is our
// own storage key unless Degraded is set, in which case it is the provider's
// remote URL surfaced as-is.
type MaterializedResult struct {
	Address  string
	Degraded bool
	Attempts int
}

// ResultFetcher turns a backend reply into a stored asset: inline bytes are
// persisted directly, remote URLs are downloaded with bounded retries first.
type ResultFetcher struct {
	Media      MediaStoreProvider
	Policy     RetryPolicy
	HTTPClient *http.Client
}

func NewResultFetcher(media MediaStoreProvider) *ResultFetcher {
	return &ResultFetcher{
		Media:      media,
		Policy:     DefaultRetryPolicy(),
		// per-attempt cap: five attempts plus backoff have to finish
		// inside the one-minute materialize window
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *ResultFetcher) Materialize(ctx context.Context, generation *GenerationResult, apiKey string, storageKey string) (*MaterializedResult, error) {
	if generation.InlineData != nil {
		address, err := f.Media.Persist(ctx, storageKey, generation.InlineData)
		if err != nil {
			return nil, err
		}
		return &MaterializedResult{Address: address}, nil
	}

	if generation.RemoteURL == "" {
		return nil, NewPipelineError(ErrUnrecognizedResponseShape, "generation carried neither inline data nor a remote URL")
	}

	content, attempts, err := f.download(ctx, generation.RemoteURL, apiKey)
	if err != nil {
		// reachable remote URL is still a usable outcome for the user even
		// when we never managed to mirror it into our own storage
		fmt.Printf("[Fetcher] Download exhausted after %d attempts, serving remote URL: %v\n", attempts, err)
		sentry.CaptureException(err)
		return &MaterializedResult{Address: generation.RemoteURL, Degraded: true, Attempts: attempts}, nil
	}

	address, err := f.Media.Persist(ctx, storageKey, content)
	if err != nil {
		return nil, err
	}
	return &MaterializedResult{Address: address, Attempts: attempts}, nil
}

func (f *ResultFetcher) download(ctx context.Context, url string, apiKey string) ([]byte, int, error) {
	delay := f.Policy.InitialDelay
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= f.Policy.MaxAttempts; attempt++ {
		attempts = attempt
		content, err := f.fetchOnce(ctx, url, apiKey)
		if err == nil {
			return content, attempts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if attempt == f.Policy.MaxAttempts {
			break
		}
		fmt.Printf("[Fetcher] Attempt %d/%d failed (%v), retrying in %s\n",
			attempt, f.Policy.MaxAttempts, err, delay)
		select {
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		case <-time.After(delay):
		}
		delay *= time.Duration(f.Policy.BackoffFactor)
	}
	return nil, attempts, WrapPipelineError(ErrDownloadExhausted,
		fmt.Sprintf("all %d download attempts failed for %s", f.Policy.MaxAttempts, url), lastErr)
}

func (f *ResultFetcher) fetchOnce(ctx context.Context, url string, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("X-Goog-Api-Key", apiKey)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if f.Policy.RetryableStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
