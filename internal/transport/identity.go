package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const identityAPIVersion = "2022-06-01"

// ScopeChat is the token scope needed to call the chat API.
const ScopeChat = "chat"

// AccessToken is a transport credential minted for one identity.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// IdentityClient creates identities and issues access tokens against the
// transport's identity API. Requests are HMAC-signed with the access key
// from the connection string.
type IdentityClient struct {
	endpoint   string
	accessKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewIdentityClient creates an identity client from parsed connection
// details.
func NewIdentityClient(log *slog.Logger, details ConnectionDetails, httpClient *http.Client) *IdentityClient {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &IdentityClient{
		endpoint:   details.Endpoint,
		accessKey:  details.AccessKey,
		httpClient: httpClient,
		logger:     log.With(slog.String("client", "transport_identity")),
	}
}

// CreateIdentity mints a new transport identity and returns its user id.
func (c *IdentityClient) CreateIdentity(ctx context.Context) (string, error) {
	var resp struct {
		Identity struct {
			ID string `json:"id"`
		} `json:"identity"`
	}
	if err := c.post(ctx, "/identities", map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("create identity: %w", err)
	}
	if strings.TrimSpace(resp.Identity.ID) == "" {
		return "", fmt.Errorf("create identity: empty id in response")
	}
	return resp.Identity.ID, nil
}

// IssueToken issues an access token for an existing identity.
func (c *IdentityClient) IssueToken(ctx context.Context, userID string, scopes []string) (AccessToken, error) {
	if strings.TrimSpace(userID) == "" {
		return AccessToken{}, fmt.Errorf("issue token: user id is required")
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeChat}
	}
	var token AccessToken
	path := "/identities/" + userID + "/:issueAccessToken"
	if err := c.post(ctx, path, map[string]any{"scopes": scopes}, &token); err != nil {
		return AccessToken{}, fmt.Errorf("issue token: %w", err)
	}
	if strings.TrimSpace(token.Token) == "" {
		return AccessToken{}, fmt.Errorf("issue token: empty token in response")
	}
	return token, nil
}

func (c *IdentityClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := c.endpoint + path + "?api-version=" + identityAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := signRequest(req, c.accessKey, body); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("identity api error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return fmt.Errorf("identity api error: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse identity response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
