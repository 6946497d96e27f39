// ABOUTME: Tests for the upstream workflow API client
// ABOUTME: Covers multipart submission, auth headers, advance calls, and error mapping

package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SubmitJob(t *testing.T) {
	var gotAuth, gotPrompt, gotWebhook, gotFile string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPrompt = r.FormValue("Prompt")
		gotWebhook = r.FormValue("webhook_url")

		file, header, err := r.FormFile("Attachment")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename

		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-99"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())
	fields := []FormField{
		{Name: "Prompt", Value: "hello"},
		{Name: "Attachment", Filename: "notes.txt", Reader: strings.NewReader("contents")},
	}

	jobID, err := c.SubmitJob(context.Background(), "key-123", fields, "https://relay.example/webhook/abc?token=t")
	require.NoError(t, err)

	assert.Equal(t, "job-99", jobID)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "hello", gotPrompt)
	assert.Equal(t, "https://relay.example/webhook/abc?token=t", gotWebhook)
	assert.Equal(t, "notes.txt", gotFile)
}

func TestClient_SubmitJob_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())

	_, err := c.SubmitJob(context.Background(), "key", nil, "https://relay.example/webhook/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_SubmitJob_MissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())

	_, err := c.SubmitJob(context.Background(), "key", nil, "https://relay.example/webhook/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_id")
}

func TestClient_AdvanceJob(t *testing.T) {
	var gotPath, gotAuth, gotApproval string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var req advanceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotApproval = req.Approval

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())

	err := c.AdvanceJob(context.Background(), "key-123", "job-42", "APPROVED: looks good")
	require.NoError(t, err)

	assert.Equal(t, "/v1/jobs/job-42/advance", gotPath)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "APPROVED: looks good", gotApproval)
}

func TestClient_AdvanceJob_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())

	err := c.AdvanceJob(context.Background(), "key", "job-0", "APPROVED: ok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_TrailingSlashBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", slog.Default())

	_, err := c.SubmitJob(context.Background(), "key", nil, "https://relay.example/webhook/x")
	require.NoError(t, err)
}
