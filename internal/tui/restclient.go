package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"codeberg.org/collabkit/engine/internal/protocol"
)

// manages HTTP requests to the coordinator REST API
type APIClient struct {
	endpoint   string
	httpClient *http.Client
}

// creates a new coordinator REST client
func NewAPIClient() *APIClient {
	endpoint := os.Getenv("COLLAB_API_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}

	return &APIClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: statsTimeout,
		},
	}
}

// asks the coordinator to mint a signed collaborator credential
func (c *APIClient) MintCredential(ctx context.Context, collaboratorID, displayName string) (string, error) {
	payload := credentialRequest{
		CollaboratorID: collaboratorID,
		DisplayName:    displayName,
	}

	var result credentialResponse
	if err := c.post(ctx, "/api/v1/auth/credential", payload, &result); err != nil {
		return "", err
	}

	if result.Credential == "" {
		return "", fmt.Errorf("coordinator returned an empty credential")
	}

	return result.Credential, nil
}

// fetches the read-only view of one session, the out-of-band directory
// lookup joiners use for sessions they were told about by id
func (c *APIClient) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	var result SessionView
	if err := c.get(ctx, "/api/v1/sessions/"+sessionID, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// fetches coordinator occupancy
func (c *APIClient) GetStats(ctx context.Context) (*StatsView, error) {
	var result StatsView
	if err := c.get(ctx, "/api/v1/stats", &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, out)
}

func (c *APIClient) post(ctx context.Context, path string, payload, out any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// REST API request/response types

type credentialRequest struct {
	CollaboratorID string `json:"collaborator_id"`
	DisplayName    string `json:"display_name,omitempty"`
}

type credentialResponse struct {
	Credential     string `json:"credential"`
	CollaboratorID string `json:"collaborator_id"`
}

// SessionView mirrors the coordinator's session response
type SessionView struct {
	Session     protocol.WireSession `json:"session"`
	ClientCount int                  `json:"client_count"`
}

// StatsView mirrors the coordinator's stats response
type StatsView struct {
	ActiveSessions int `json:"active_sessions"`
}

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
