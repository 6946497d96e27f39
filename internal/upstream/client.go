// ABOUTME: HTTP client for the upstream workflow API
// ABOUTME: Submits multipart jobs and issues advance/approve calls for review checkpoints

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of an upstream error response gets copied
// into the returned error.
const maxErrorBody = 512

// FormField is one submission input forwarded to the upstream API.
// Reader is set only for file fields.
type FormField struct {
	Name     string
	Value    string
	Filename string
	Reader   io.Reader
}

// IsFile reports whether the field carries a file attachment.
func (f FormField) IsFile() bool {
	return f.Reader != nil
}

// Client talks to the upstream workflow API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "upstream"),
	}
}

// submitResponse is the upstream API's reply to a job submission.
type submitResponse struct {
	JobID string `json:"job_id"`
}

// SubmitJob forwards a job submission as a multipart request and
// returns the upstream job ID. The webhook URL is included so the API
// can call back when the job progresses.
func (c *Client) SubmitJob(ctx context.Context, apiKey string, fields []FormField, webhookURL string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, f := range fields {
		if f.IsFile() {
			part, err := writer.CreateFormFile(f.Name, f.Filename)
			if err != nil {
				return "", fmt.Errorf("creating file part %q: %w", f.Name, err)
			}
			if _, err := io.Copy(part, f.Reader); err != nil {
				return "", fmt.Errorf("copying file part %q: %w", f.Name, err)
			}
			continue
		}
		if err := writer.WriteField(f.Name, f.Value); err != nil {
			return "", fmt.Errorf("writing field %q: %w", f.Name, err)
		}
	}

	if err := writer.WriteField("webhook_url", webhookURL); err != nil {
		return "", fmt.Errorf("writing webhook_url field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", &body)
	if err != nil {
		return "", fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("submit", resp)
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("submit response missing job_id")
	}

	return parsed.JobID, nil
}

// advanceRequest is the JSON body of an advance/approve call.
type advanceRequest struct {
	Approval string `json:"approval"`
}

// AdvanceJob approves a review checkpoint for jobID so the job resumes.
func (c *Client) AdvanceJob(ctx context.Context, apiKey, jobID, approval string) error {
	payload, err := json.Marshal(advanceRequest{Approval: approval})
	if err != nil {
		return fmt.Errorf("encoding advance payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/jobs/%s/advance", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building advance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("advancing job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("advance", resp)
	}

	return nil
}

// statusError builds an error from a non-2xx upstream response,
// including a truncated copy of the body.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("upstream %s failed: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
