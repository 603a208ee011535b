// Package backend implements the two teammate hosting strategies:
// spawning a local claude process under tmux, or driving a remote
// opencode session over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// RemoteClient drives an opencode server's session API over HTTP,
// using plain REST endpoints rather than JSON-RPC.
type RemoteClient struct {
	ServerURL string
	client    *http.Client
}

// NewRemoteClient returns a client bound to serverURL with a 15s
// per-request timeout.
func NewRemoteClient(serverURL string) *RemoteClient {
	return &RemoteClient{
		ServerURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RemoteClient) request(ctx context.Context, method, path string, body any) ([]byte, *teamserr.Error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, teamserr.Wrap(teamserr.IO, err, "marshal request body for %s", path)
		}
		reader = bytes.NewReader(data)
	}

	url := c.ServerURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, teamserr.Wrap(teamserr.External, err, "build request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, teamserr.Wrap(teamserr.External, ctxErr, "opencode server at %s timed out", url)
		}
		return nil, teamserr.Wrap(teamserr.External, err, "cannot reach opencode server at %s", url)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, teamserr.FromHTTPStatus(resp.StatusCode, path, snippet)
	}
	return respBody, nil
}

const mcpNotConfiguredTemplate = `cannot spawn opencode teammate: the claude-teams MCP server is not configured (or not connected) in the opencode instance at %s; add it to the opencode MCP config and restart the server`

// VerifyMCPConfigured checks that the opencode instance has the
// claude-teams MCP server connected before a session is created.
func (c *RemoteClient) VerifyMCPConfigured(ctx context.Context) *teamserr.Error {
	raw, err := c.request(ctx, http.MethodGet, "/mcp", nil)
	if err != nil {
		return err
	}
	var status map[string]struct {
		Status string `json:"status"`
	}
	if jsonErr := json.Unmarshal(raw, &status); jsonErr != nil {
		return teamserr.Wrap(teamserr.External, jsonErr, "parse /mcp response")
	}
	entry, ok := status["claude-teams"]
	if !ok || entry.Status != "connected" {
		return teamserr.New(teamserr.External, mcpNotConfiguredTemplate, c.ServerURL)
	}
	return nil
}

// Permission is an opencode session permission grant.
type Permission struct {
	Permission string `json:"permission"`
	Pattern    string `json:"pattern"`
	Action     string `json:"action"`
}

// CreateSession opens a new opencode session and returns its id.
func (c *RemoteClient) CreateSession(ctx context.Context, title string, permissions []Permission) (string, *teamserr.Error) {
	body := map[string]any{"title": title}
	if permissions != nil {
		body["permission"] = permissions
	}
	raw, err := c.request(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
		return "", teamserr.Wrap(teamserr.External, jsonErr, "parse /session response")
	}
	if parsed.ID == "" {
		return "", teamserr.New(teamserr.External, "opencode session creation returned no session ID")
	}
	return parsed.ID, nil
}

// SendPromptAsync posts a fire-and-forget prompt into a session.
func (c *RemoteClient) SendPromptAsync(ctx context.Context, sessionID, text, agent string) *teamserr.Error {
	body := map[string]any{
		"parts": []map[string]string{{"type": "text", "text": text}},
	}
	if agent != "" {
		body["agent"] = agent
	}
	_, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/session/%s/prompt_async", sessionID), body)
	return err
}

// AbortSession cancels an in-flight session.
func (c *RemoteClient) AbortSession(ctx context.Context, sessionID string) *teamserr.Error {
	_, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/session/%s/abort", sessionID), nil)
	return err
}

// DeleteSession removes a session.
func (c *RemoteClient) DeleteSession(ctx context.Context, sessionID string) *teamserr.Error {
	_, err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/session/%s", sessionID), nil)
	return err
}

// Agent describes an opencode subagent entry returned by /agent.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var opencodeInternalAgents = map[string]bool{"title": true, "summary": true, "compaction": true}

// ListAgents returns the user-facing subagents an opencode server
// exposes, filtering out its internal ones and any without a
// description.
func (c *RemoteClient) ListAgents(ctx context.Context) ([]Agent, *teamserr.Error) {
	raw, err := c.request(ctx, http.MethodGet, "/agent", nil)
	if err != nil {
		return nil, err
	}
	var all []any
	if jsonErr := json.Unmarshal(raw, &all); jsonErr != nil {
		return nil, nil // best-effort: malformed agent list yields no agents rather than an error
	}
	var agents []Agent
	for _, entry := range all {
		a, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := a["name"].(string)
		desc, _ := a["description"].(string)
		if name == "" || desc == "" || opencodeInternalAgents[name] {
			continue
		}
		agents = append(agents, Agent{Name: name, Description: desc})
	}
	return agents, nil
}

// GetSessionStatus returns a session's status, or "unknown" if the
// server doesn't report one for this session id.
func (c *RemoteClient) GetSessionStatus(ctx context.Context, sessionID string) (string, *teamserr.Error) {
	raw, err := c.request(ctx, http.MethodGet, "/session/status", nil)
	if err != nil {
		return "", err
	}
	var statuses map[string]string
	if jsonErr := json.Unmarshal(raw, &statuses); jsonErr != nil {
		return "", teamserr.Wrap(teamserr.External, jsonErr, "parse /session/status response")
	}
	if s, ok := statuses[sessionID]; ok {
		return s, nil
	}
	return "unknown", nil
}
