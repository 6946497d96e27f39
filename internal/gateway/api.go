// ABOUTME: HTTP API handlers for webhook registration, job submission, and agent admin
// ABOUTME: Submission mints request IDs, registers them, and forwards multipart jobs upstream

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/aq-gateway/internal/store"
	"github.com/2389/aq-gateway/internal/upstream"
)

// maxSubmitBody bounds multipart submissions held in memory.
const maxSubmitBody = 32 << 20

// RegisterWebhookRequest is the JSON request body for POST /api/webhooks/register.
type RegisterWebhookRequest struct {
	RequestID string `json:"request_id"`
}

// AgentResponse is the JSON shape of an agent in API responses.
// Credentials are never included.
type AgentResponse struct {
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	Fields []store.Field `json:"fields"`
}

// CreateAgentRequest is the JSON request body for POST /api/agents.
type CreateAgentRequest struct {
	Name   string        `json:"name"`
	Label  string        `json:"label"`
	APIKey string        `json:"api_key"`
	Fields []store.Field `json:"fields"`
}

// webhookURL constructs the callback URL the upstream API will invoke
// for requestID, embedding a freshly issued token.
func (g *Gateway) webhookURL(requestID string) (string, error) {
	base := strings.TrimRight(g.config.Upstream.PublicBaseURL, "/")
	u := fmt.Sprintf("%s/webhook/%s", base, url.PathEscape(requestID))

	if !g.codec.Enabled() {
		return u, nil
	}

	tok, err := g.codec.Issue(requestID)
	if err != nil {
		return "", fmt.Errorf("issuing webhook token: %w", err)
	}

	query := url.Values{}
	query.Set("requestId", requestID)
	query.Set("token", tok)
	return u + "?" + query.Encode(), nil
}

// handleRegisterWebhook handles POST /api/webhooks/register requests.
// It returns a callback URL for a caller-supplied request ID without
// creating a pending entry; callers that submit through this relay use
// /api/submit instead.
func (g *Gateway) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RegisterWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RequestID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	u, err := g.webhookURL(req.RequestID)
	if err != nil {
		g.logger.Error("building webhook url", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"ok": true, "url": u})
}

// handleSubmit handles POST /api/submit requests.
//
// The multipart form selects an agent via the "agent" value; the
// remaining parts are matched against that agent's declared field list.
// A fresh request ID is minted and registered before the job is
// forwarded upstream, so the callback can never race the registration.
func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxSubmitBody); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	agentName := r.FormValue("agent")
	if agentName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent is required")
		return
	}

	agent, err := g.store.GetAgent(r.Context(), agentName)
	if errors.Is(err, store.ErrAgentNotFound) {
		g.sendJSONError(w, http.StatusBadRequest, "unknown agent")
		return
	}
	if err != nil {
		g.logger.Error("looking up agent", "agent", agentName, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	fields, err := g.collectFields(r, agent)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestID := uuid.New().String()
	callbackURL, err := g.webhookURL(requestID)
	if err != nil {
		g.logger.Error("building webhook url", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Register before forwarding so a fast callback finds the entry.
	g.registry.Register(requestID, agent.Name)

	jobID, err := g.upstream.SubmitJob(r.Context(), agent.APIKey, fields, callbackURL)
	if err != nil {
		g.registry.Clear(requestID)
		g.logger.Error("forwarding submission upstream", "agent", agent.Name, "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "upstream submission failed")
		return
	}

	g.logger.Info("job submitted",
		"request_id", requestID,
		"job_id", jobID,
		"agent", agent.Name,
	)

	g.sendJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"request_id": requestID,
		"job_id":     jobID,
	})
}

// collectFields gathers the submitted values for an agent's declared
// field list. Text fields come from form values, file fields from
// attached parts. Missing fields are skipped; the upstream API applies
// its own requiredness rules.
func (g *Gateway) collectFields(r *http.Request, agent *store.Agent) ([]upstream.FormField, error) {
	fields := make([]upstream.FormField, 0, len(agent.Fields))

	for _, f := range agent.Fields {
		switch f.Type {
		case store.FieldTypeFile:
			file, header, err := r.FormFile(f.Name)
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading file field %q", f.Name)
			}
			fields = append(fields, upstream.FormField{
				Name:     f.Name,
				Filename: header.Filename,
				Reader:   file,
			})

		default:
			if !r.Form.Has(f.Name) {
				continue
			}
			fields = append(fields, upstream.FormField{
				Name:  f.Name,
				Value: r.FormValue(f.Name),
			})
		}
	}

	return fields, nil
}

// handleAgents handles GET (list) and POST (create) on /api/agents.
func (g *Gateway) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.listAgents(w, r)
	case http.MethodPost:
		if !g.requireAdmin(w, r) {
			return
		}
		g.createAgent(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAgentByName handles DELETE /api/agents/{name}.
func (g *Gateway) handleAgentByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !g.requireAdmin(w, r) {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent name is required")
		return
	}

	err := g.store.DeleteAgent(r.Context(), name)
	if errors.Is(err, store.ErrAgentNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "unknown agent")
		return
	}
	if err != nil {
		g.logger.Error("deleting agent", "agent", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// listAgents returns all configured agents with credentials redacted.
func (g *Gateway) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := g.store.ListAgents(r.Context())
	if err != nil {
		g.logger.Error("listing agents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		response = append(response, AgentResponse{
			Name:   a.Name,
			Label:  a.Label,
			Fields: a.Fields,
		})
	}

	g.sendJSON(w, http.StatusOK, response)
}

// createAgent inserts or updates an agent definition.
func (g *Gateway) createAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.APIKey == "" {
		g.sendJSONError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	for _, f := range req.Fields {
		if f.Type != store.FieldTypeText && f.Type != store.FieldTypeFile {
			g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("field %q has invalid type %q", f.Name, f.Type))
			return
		}
	}

	agent := &store.Agent{
		Name:   req.Name,
		Label:  req.Label,
		APIKey: req.APIKey,
		Fields: req.Fields,
	}
	if err := g.store.SaveAgent(r.Context(), agent); err != nil {
		g.logger.Error("saving agent", "agent", req.Name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{"ok": true, "name": agent.Name})
}

// requireAdmin enforces the admin bearer token on mutating routes.
// Returns true when the request may proceed. A nil verifier means admin
// auth is disabled.
func (g *Gateway) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if g.adminVerifier == nil {
		return true
	}

	header := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tok == "" {
		g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}

	if _, err := g.adminVerifier.Verify(tok); err != nil {
		g.logger.Warn("admin token rejected", "error", err)
		g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}

	return true
}
