package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"signal-streamer/src/helpers"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("bad status %d", e.StatusCode)
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config    models.MNetworkConfig
	Client    *http.Client
	Logger    *logger.Logger
	username  string
	baseDelay time.Duration
}

// -----------------------------------------------------------------------------

// NewAsyncNetworkManager creates an HTTP manager. A non-empty username is sent
// as HTTP basic auth with an empty password.
func NewAsyncNetworkManager(cfg models.MNetworkConfig, username string, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config:    cfg,
		Client:    &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second},
		Logger:    log,
		username:  username,
		baseDelay: time.Second,
	}
}

// -----------------------------------------------------------------------------

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and exponential backoff. Client
// errors other than 429 are returned immediately.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()
	finalUrl := reqUrl.String()

	maxRetries := nm.Config.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			if !helpers.SleepContext(ctx, helpers.ScaledBackoff(nm.baseDelay, i-1)) {
				return nil, ctx.Err()
			}
		}

		body, err := nm.do(ctx, finalUrl)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if se, ok := err.(*StatusError); ok && !retryable(se.StatusCode) {
			return nil, err
		}
		nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalUrl string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalUrl, nil)
	if err != nil {
		return nil, err
	}
	if nm.Config.UserAgent != "" {
		req.Header.Set("User-Agent", nm.Config.UserAgent)
	}
	if nm.username != "" {
		req.SetBasicAuth(nm.username, "")
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}
