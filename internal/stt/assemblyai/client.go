// Package assemblyai implements stt.Provider against the AssemblyAI v2 REST API.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/joseph-ayodele/transcripts-tracker/internal/stt"
)

var _ stt.Provider = (*Client)(nil)

func (c *Client) headers(contentType string) map[string]string {
	h := map[string]string{"authorization": c.cfg.APIKey}
	if contentType != "" {
		h["Content-Type"] = contentType
	}
	return h
}

func (c *Client) Upload(ctx context.Context, r io.Reader, size int64) (string, error) {
	raw, _, err := stt.Send(ctx, c.http, stt.Request{
		Method:        http.MethodPost,
		URL:           c.cfg.BaseURL + "/upload",
		Body:          r,
		ContentLength: size,
		Headers:       c.headers("application/octet-stream"),
	}, c.logger)
	if err != nil {
		return "", err
	}

	if err := stt.ValidateJSON("upload_response", stt.UploadResponseSchema, raw); err != nil {
		c.logger.Error("stt.upload.invalid_response", "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("upload response: %w", err)
	}
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.UploadURL, nil
}

func (c *Client) Submit(ctx context.Context, req stt.SubmitRequest) (stt.Job, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return stt.Job{}, fmt.Errorf("marshal request: %w", err)
	}
	raw, _, err := stt.Send(ctx, c.http, stt.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + "/transcript",
		Body:    bytes.NewReader(b),
		Headers: c.headers("application/json"),
	}, c.logger)
	if err != nil {
		return stt.Job{}, err
	}

	if err := stt.ValidateJSON("job_response", stt.JobResponseSchema, raw); err != nil {
		c.logger.Error("stt.submit.invalid_response", "error", err, "raw_bytes", len(raw))
		return stt.Job{}, fmt.Errorf("%w: %v", stt.ErrMissingJobID, err)
	}
	var job stt.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return stt.Job{}, fmt.Errorf("decode submit response: %w", err)
	}
	return job, nil
}

func (c *Client) Get(ctx context.Context, id string) (stt.Transcript, error) {
	raw, _, err := stt.Send(ctx, c.http, stt.Request{
		Method:  http.MethodGet,
		URL:     c.cfg.BaseURL + "/transcript/" + url.PathEscape(id),
		Headers: c.headers(""),
	}, c.logger)
	if err != nil {
		return stt.Transcript{}, err
	}

	var t stt.Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.Error("stt.get.decode_error", "job_id", id, "error", err, "raw_bytes", len(raw))
		return stt.Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	if t.ID == "" {
		t.ID = id
	}
	return t, nil
}

func (c *Client) List(ctx context.Context, limit int) ([]stt.JobSummary, error) {
	u := c.cfg.BaseURL + "/transcript"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	raw, _, err := stt.Send(ctx, c.http, stt.Request{
		Method:  http.MethodGet,
		URL:     u,
		Headers: c.headers(""),
	}, c.logger)
	if err != nil {
		return nil, err
	}

	if err := stt.ValidateJSON("list_response", stt.ListResponseSchema, raw); err != nil {
		c.logger.Error("stt.list.invalid_response", "error", err, "raw_bytes", len(raw))
		return nil, fmt.Errorf("list response: %w", err)
	}
	var out struct {
		Transcripts []stt.JobSummary `json:"transcripts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return out.Transcripts, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, _, err := stt.Send(ctx, c.http, stt.Request{
		Method:  http.MethodDelete,
		URL:     c.cfg.BaseURL + "/transcript/" + url.PathEscape(id),
		Headers: c.headers(""),
	}, c.logger)
	return err
}
