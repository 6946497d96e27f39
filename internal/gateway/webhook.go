// ABOUTME: Inbound webhook handler correlating upstream callbacks to pending requests
// ABOUTME: Broadcasts terminal payloads to live connections and auto-approves review checkpoints

package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/aq-gateway/internal/hub"
	"github.com/2389/aq-gateway/internal/store"
)

// Callback headers set by the upstream API.
const (
	headerEventType          = "aq-event-type"
	headerActivityJobID      = "aq-activity-job-id"
	headerReviewID           = "aq-review-id"
	headerReviewInstructions = "aq-review-instructions"
)

// approvalPrefix marks an auto-approved review payload in the advance call.
const approvalPrefix = "APPROVED: "

// maxWebhookBody bounds the callback payload size.
const maxWebhookBody = 1 << 20

// EventKind classifies an inbound callback.
type EventKind int

const (
	// EventUnknown is any kind the relay does not dispatch on. Still
	// acknowledged.
	EventUnknown EventKind = iota
	// EventResponse is the terminal kind: broadcast and clear.
	EventResponse
	// EventReview is the non-terminal checkpoint kind: auto-approve,
	// keep the pending entry.
	EventReview
)

// ParseEventKind maps the aq-event-type header value to an EventKind.
func ParseEventKind(s string) EventKind {
	switch s {
	case "response":
		return EventResponse
	case "review":
		return EventReview
	default:
		return EventUnknown
	}
}

// handleWebhook handles POST /webhook/{requestID} callbacks from the
// upstream API.
//
// Flow:
//  1. Authenticate (when a secret is configured): the path ID must match
//     any requestId query value, and the token query must verify. Fail
//     closed on either mismatch.
//  2. Resolve the agent from the pending registry, falling back to the
//     configured default when the entry is missing.
//  3. Dispatch by event kind: terminal -> broadcast + clear; review ->
//     schedule a delayed advance call; anything else -> no-op.
//  4. Acknowledge unconditionally unless authentication failed.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID := strings.TrimPrefix(r.URL.Path, "/webhook/")
	if requestID == "" || strings.Contains(requestID, "/") {
		g.sendJSONError(w, http.StatusNotFound, "missing request id")
		return
	}

	if g.codec.Enabled() {
		if queryID := r.URL.Query().Get("requestId"); queryID != "" && queryID != requestID {
			g.logger.Warn("webhook request id mismatch", "path_id", requestID, "query_id", queryID)
			g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ok, err := g.codec.Verify(requestID, r.URL.Query().Get("token"))
		if err != nil {
			g.logger.Error("webhook token verification failed", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			g.logger.Warn("webhook token rejected", "request_id", requestID)
			g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "reading body")
		return
	}

	agent := g.resolveAgent(r.Context(), requestID)

	switch ParseEventKind(r.Header.Get(headerEventType)) {
	case EventResponse:
		g.hub.Broadcast(hub.Message{ID: requestID, Content: string(body)})
		g.registry.Clear(requestID)
		g.logger.Info("terminal callback delivered", "request_id", requestID)

	case EventReview:
		g.handleReview(r, requestID, agent, body)

	case EventUnknown:
		g.logger.Debug("ignoring callback with unrecognized event type",
			"request_id", requestID,
			"event_type", r.Header.Get(headerEventType),
		)
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReview schedules the delayed advance call for a review
// checkpoint. The pending entry is NOT cleared; a terminal callback for
// the same request is still expected.
func (g *Gateway) handleReview(r *http.Request, requestID string, agent *store.Agent, body []byte) {
	jobID := r.Header.Get(headerActivityJobID)
	if jobID == "" {
		g.logger.Warn("review callback missing job id", "request_id", requestID)
		return
	}
	if agent == nil {
		g.logger.Error("no credential available for review advance",
			"request_id", requestID,
			"job_id", jobID,
		)
		return
	}

	g.logger.Info("review checkpoint received",
		"request_id", requestID,
		"job_id", jobID,
		"review_id", r.Header.Get(headerReviewID),
		"instructions", r.Header.Get(headerReviewInstructions),
	)

	approval := approvalPrefix + string(body)
	apiKey := agent.APIKey

	// Deferred fire-and-forget: the ack below must not wait on the
	// advance call, and its failure is logged, never retried or
	// surfaced to the caller.
	time.AfterFunc(g.config.Relay.AdvanceDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := g.upstream.AdvanceJob(ctx, apiKey, jobID, approval); err != nil {
			g.logger.Error("advance call failed",
				"request_id", requestID,
				"job_id", jobID,
				"error", err,
			)
		}
	})
}

// resolveAgent finds the credential for a callback. A registry miss
// falls back to the configured default agent, then to the first stored
// agent. Returns nil when nothing is configured; terminal callbacks
// proceed without a credential, review callbacks cannot advance.
func (g *Gateway) resolveAgent(ctx context.Context, requestID string) *store.Agent {
	name, ok := g.registry.Resolve(requestID)
	if ok {
		agent, err := g.store.GetAgent(ctx, name)
		if err == nil {
			return agent
		}
		g.logger.Warn("registered agent missing from store", "request_id", requestID, "agent", name, "error", err)
	}

	if g.config.Relay.FallbackAgent != "" {
		agent, err := g.store.GetAgent(ctx, g.config.Relay.FallbackAgent)
		if err == nil {
			g.logger.Warn("using fallback agent for unmatched webhook",
				"request_id", requestID,
				"agent", agent.Name,
			)
			return agent
		}
		g.logger.Warn("configured fallback agent missing", "agent", g.config.Relay.FallbackAgent, "error", err)
	}

	agent, err := g.store.FirstAgent(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrAgentNotFound) {
			g.logger.Error("looking up fallback agent", "error", err)
		}
		return nil
	}

	if !ok {
		g.logger.Warn("using first configured agent for unmatched webhook",
			"request_id", requestID,
			"agent", agent.Name,
		)
	}
	return agent
}
