package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxErrorBody caps how much of a failed response is kept on ProviderError.
const maxErrorBody = 4 << 10

// Request describes one call to the provider.
type Request struct {
	Method        string
	URL           string
	Body          io.Reader
	ContentLength int64
	Headers       map[string]string
}

// Send performs req and returns the raw response body.
// Non-2xx responses are returned as *ProviderError along with the body.
func Send(ctx context.Context, client *http.Client, r Request, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, r.Body)
	if err != nil {
		logger.Error("stt.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if r.ContentLength > 0 {
		req.ContentLength = r.ContentLength
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	logger.Info("stt.http.request",
		"req_id", reqID,
		"method", r.Method,
		"url", r.URL,
		"content_length", req.ContentLength,
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("stt.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("stt.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("stt.http.read_error", "req_id", reqID, "error", err)
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	logger.Info("stt.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		body := raw
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return raw, resp.StatusCode, &ProviderError{Status: resp.StatusCode, Body: string(body)}
	}
	return raw, resp.StatusCode, nil
}
