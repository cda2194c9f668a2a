package priorartsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxHTTPAttempts = 4

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code: %d", e.Code)
	}
	return fmt.Sprintf("status code: %d body=%s", e.Code, e.Body)
}

// jsonPoster posts JSON and retries rate limits, 5xx and a single timeout.
type jsonPoster struct {
	client *http.Client
	sleep  func(context.Context, time.Duration) error
}

func newJSONPoster(client *http.Client) jsonPoster {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return jsonPoster{client: client, sleep: sleepCtx}
}

func (p jsonPoster) post(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	var lastErr error
	timeoutRetried := false
	for attempt := 1; attempt <= maxHTTPAttempts; attempt++ {
		code, retryAfter, err := p.postOnce(ctx, url, headers, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxHTTPAttempts || ctx.Err() != nil {
			break
		}

		switch {
		case code == http.StatusTooManyRequests:
			wait := retryAfter
			if wait <= 0 {
				wait = backoffDelay(attempt)
			}
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		case code >= 500:
			if err := p.sleep(ctx, backoffDelay(attempt)); err != nil {
				return err
			}
		case code == 0 && isTimeoutError(err):
			if timeoutRetried {
				return err
			}
			timeoutRetried = true
			if err := p.sleep(ctx, backoffDelay(attempt)); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return lastErr
}

func (p jsonPoster) postOnce(ctx context.Context, url string, headers map[string]string, payload []byte, out any) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))

	retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
	if res.StatusCode == http.StatusTooManyRequests {
		return res.StatusCode, retryAfter, &StatusError{Code: res.StatusCode}
	}
	if res.StatusCode >= 400 {
		return res.StatusCode, retryAfter, &StatusError{Code: res.StatusCode, Body: truncateRunes(string(b), 200)}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return res.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}
	return res.StatusCode, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if strings.TrimSpace(v) == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

var errMissingAPIKey = errors.New("api key not configured")
