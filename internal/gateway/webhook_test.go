// ABOUTME: Tests for the inbound webhook handler state machine
// ABOUTME: Covers auth failures, terminal broadcast, review advance, and fallback credentials

package gateway

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/aq-gateway/internal/token"
)

// postWebhook sends a callback to the test gateway with the given
// query string and headers.
func postWebhook(t *testing.T, tg *testGateway, requestID, query, body string, headers map[string]string) *http.Response {
	t.Helper()

	url := tg.srv.URL + "/webhook/" + requestID
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// validQuery builds the requestId+token query the upstream API would use.
func validQuery(t *testing.T, requestID string) string {
	t.Helper()

	tok, err := token.New(testSecret).Issue(requestID)
	require.NoError(t, err)
	return "requestId=" + requestID + "&token=" + tok
}

func TestParseEventKind(t *testing.T) {
	assert.Equal(t, EventResponse, ParseEventKind("response"))
	assert.Equal(t, EventReview, ParseEventKind("review"))
	assert.Equal(t, EventUnknown, ParseEventKind(""))
	assert.Equal(t, EventUnknown, ParseEventKind("RESPONSE"))
	assert.Equal(t, EventUnknown, ParseEventKind("completed"))
}

func TestWebhook_Terminal_BroadcastsAndClears(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	msgs := tg.listen(t)

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "hello",
		map[string]string{headerEventType: "response"})

	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	select {
	case msg := <-msgs:
		assert.Equal(t, "req-1", msg["id"])
		assert.Equal(t, "hello", msg["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}

	_, ok := tg.gw.registry.Resolve("req-1")
	assert.False(t, ok, "terminal callback should clear the pending entry")
}

func TestWebhook_BadToken_Rejected(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	msgs := tg.listen(t)

	resp := postWebhook(t, tg, "req-1", "requestId=req-1&token=forged", "hello",
		map[string]string{headerEventType: "response"})

	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["ok"])

	// No broadcast, registry untouched.
	select {
	case msg := <-msgs:
		t.Fatalf("unexpected broadcast: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	agent, ok := tg.gw.registry.Resolve("req-1")
	require.True(t, ok)
	assert.Equal(t, "demo", agent)
}

func TestWebhook_MissingToken_Rejected(t *testing.T) {
	tg := newTestGateway(t)

	resp := postWebhook(t, tg, "req-1", "", "hello",
		map[string]string{headerEventType: "response"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_QueryIDMismatch_Rejected(t *testing.T) {
	tg := newTestGateway(t)

	tok, err := token.New(testSecret).Issue("req-1")
	require.NoError(t, err)

	resp := postWebhook(t, tg, "req-1", "requestId=req-2&token="+tok, "hello",
		map[string]string{headerEventType: "response"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, tg.upstream.advanceCalls())
}

func TestWebhook_AuthDisabled_AcceptsAnything(t *testing.T) {
	tg := newTestGateway(t, withWebhookSecret(""))
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	msgs := tg.listen(t)

	resp := postWebhook(t, tg, "req-1", "", "hello",
		map[string]string{headerEventType: "response"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case msg := <-msgs:
		assert.Equal(t, "hello", msg["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestWebhook_Review_SchedulesAdvance(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "please review",
		map[string]string{
			headerEventType:     "review",
			headerActivityJobID: "job-42",
			headerReviewID:      "rev-7",
		})

	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	// The ack returns before the advance call fires.
	assert.Empty(t, tg.upstream.advanceCalls())

	require.Eventually(t, func() bool {
		return len(tg.upstream.advanceCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	calls := tg.upstream.advanceCalls()
	assert.Equal(t, "/v1/jobs/job-42/advance", calls[0].Path)
	assert.Equal(t, "Bearer key-demo", calls[0].Auth)
	assert.Equal(t, "APPROVED: please review", calls[0].Approval)

	// Non-terminal: the pending entry survives.
	agent, ok := tg.gw.registry.Resolve("req-1")
	require.True(t, ok)
	assert.Equal(t, "demo", agent)
}

func TestWebhook_Review_MissingJobID_AcksWithoutAdvance(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "please review",
		map[string]string{headerEventType: "review"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, tg.upstream.advanceCalls())
}

func TestWebhook_Review_FallbackCredential(t *testing.T) {
	tg := newTestGateway(t, withFallbackAgent("backup"))
	tg.addAgent(t, "backup", "key-backup")

	// No registry entry for this request ID: the documented lenient
	// fallback applies.
	resp := postWebhook(t, tg, "req-unknown", validQuery(t, "req-unknown"), "checkpoint",
		map[string]string{
			headerEventType:     "review",
			headerActivityJobID: "job-9",
		})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(tg.upstream.advanceCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Bearer key-backup", tg.upstream.advanceCalls()[0].Auth)
}

func TestWebhook_Review_FirstAgentFallback(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "only", "key-only")

	resp := postWebhook(t, tg, "req-unknown", validQuery(t, "req-unknown"), "checkpoint",
		map[string]string{
			headerEventType:     "review",
			headerActivityJobID: "job-10",
		})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(tg.upstream.advanceCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Bearer key-only", tg.upstream.advanceCalls()[0].Auth)
}

func TestWebhook_Review_NoAgents_AcksWithoutAdvance(t *testing.T) {
	tg := newTestGateway(t)

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "checkpoint",
		map[string]string{
			headerEventType:     "review",
			headerActivityJobID: "job-11",
		})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, tg.upstream.advanceCalls())
}

func TestWebhook_UnknownEventKind_AcksAndNoops(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "demo", "key-demo")
	tg.gw.registry.Register("req-1", "demo")

	msgs := tg.listen(t)

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "payload",
		map[string]string{headerEventType: "heartbeat"})

	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected broadcast: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	_, ok := tg.gw.registry.Resolve("req-1")
	assert.True(t, ok, "unrecognized kinds must not clear the entry")
}

func TestWebhook_Terminal_RegistryMiss_StillBroadcasts(t *testing.T) {
	tg := newTestGateway(t)

	msgs := tg.listen(t)

	resp := postWebhook(t, tg, "req-late", validQuery(t, "req-late"), "late result",
		map[string]string{headerEventType: "response"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case msg := <-msgs:
		assert.Equal(t, "req-late", msg["id"])
		assert.Equal(t, "late result", msg["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestWebhook_WrongMethod(t *testing.T) {
	tg := newTestGateway(t)

	resp, err := http.Get(tg.srv.URL + "/webhook/req-1?" + validQuery(t, "req-1"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebhook_StoreAgentGone_FallsBack(t *testing.T) {
	tg := newTestGateway(t)
	tg.addAgent(t, "other", "key-other")

	// Registered under an agent that has since been deleted.
	tg.gw.registry.Register("req-1", "ghost")

	resp := postWebhook(t, tg, "req-1", validQuery(t, "req-1"), "checkpoint",
		map[string]string{
			headerEventType:     "review",
			headerActivityJobID: "job-12",
		})
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return len(tg.upstream.advanceCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "Bearer key-other", tg.upstream.advanceCalls()[0].Auth)
}
