package vault

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	roterrors "github.com/systmms/rotavault/internal/errors"
	"github.com/systmms/rotavault/internal/logging"
	"github.com/zalando/go-keyring"
)

// HTTPClient implements Client against the Vault HTTP API.
type HTTPClient struct {
	config Config
	logger *logging.Logger
	cache  *TokenCache
	authed bool
}

// NewHTTPClient creates a Vault client. Environment variables override
// the passed config: VAULT_ADDR, VAULT_TOKEN, VAULT_NAMESPACE,
// GITHUB_TOKEN and VAULT_SKIP_VERIFY.
func NewHTTPClient(config Config, logger *logging.Logger) (*HTTPClient, error) {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		config.Token = token
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && config.GitHubToken == "" {
		config.GitHubToken = token
	}
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		config.Namespace = ns
	}
	if skip := os.Getenv("VAULT_SKIP_VERIFY"); skip == "1" || strings.EqualFold(skip, "true") {
		config.TLSSkip = true
	}

	if config.Address == "" {
		return nil, roterrors.ConfigError{
			Field:      "address",
			Message:    "Vault address is required",
			Suggestion: "Set vault_url in rotavault.yaml or the VAULT_ADDR environment variable",
		}
	}
	if config.AuthMethod == "" {
		if config.Token != "" {
			config.AuthMethod = "token"
		} else {
			config.AuthMethod = "github"
		}
	}

	return &HTTPClient{
		config: config,
		logger: logger,
		cache:  NewTokenCache(),
	}, nil
}

// Authenticate establishes a session. Order: in-process cache, OS keyring
// (validated against token lookup-self before trust), then a fresh login
// with the configured method.
func (c *HTTPClient) Authenticate(ctx context.Context) error {
	if _, ok := c.cache.Get(); ok && c.authed {
		return nil
	}

	if token, err := c.loadCachedToken(); err == nil && token != "" {
		c.cache.Set(token, DefaultTimeout*10)
		if err := c.validateToken(ctx, token); err == nil {
			c.authed = true
			return nil
		}
		c.cache.Clear()
		c.clearCachedToken()
	}

	var token string
	var ttl int
	var err error
	switch c.config.AuthMethod {
	case "token":
		token, err = c.tokenFromConfig()
		ttl = 0
	case "github":
		token, ttl, err = c.loginGitHub(ctx)
	default:
		err = fmt.Errorf("unsupported auth method: %s", c.config.AuthMethod)
	}
	if err != nil {
		return roterrors.AuthenticationError{Method: c.config.AuthMethod, Err: err}
	}

	if err := c.validateToken(ctx, token); err != nil {
		return roterrors.AuthenticationError{Method: c.config.AuthMethod, Err: err}
	}

	cacheTTL := DefaultTimeout * 10
	if ttl > 0 {
		cacheTTL = timeSeconds(ttl)
	}
	c.cache.Set(token, cacheTTL)
	c.saveCachedToken(token)
	c.authed = true
	return nil
}

// IsAuthenticated reports whether a validated session token is held.
func (c *HTTPClient) IsAuthenticated() bool {
	_, ok := c.cache.Get()
	return ok && c.authed
}

// Read fetches one secret version. A missing path returns ErrPathNotFound
// so callers can treat it as an empty mapping.
func (c *HTTPClient) Read(ctx context.Context, path string) (*Secret, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", path, roterrors.ErrPathNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, vaultStatusError(resp)
	}

	var envelope struct {
		Data struct {
			Data     map[string]interface{} `json:"data"`
			Metadata struct {
				Version int `json:"version"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Secret{
		Data:    stringifyFields(envelope.Data.Data),
		Version: envelope.Data.Metadata.Version,
	}, nil
}

// Write replaces the field mapping at path. cas is the version previously
// read (0 for a path that did not exist); a version race surfaces as
// WriteConflictError.
func (c *HTTPClient) Write(ctx context.Context, path string, data map[string]string, cas int) error {
	body := map[string]interface{}{
		"data":    data,
		"options": map[string]interface{}{"cas": cas},
	}

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(raw), "check-and-set") {
			return roterrors.WriteConflictError{Path: path, Version: cas}
		}
		return fmt.Errorf("vault returned status 400: %s", string(raw))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return vaultStatusError(resp)
	}
	return nil
}

// Close drops the in-process session. The keyring copy survives so the
// next invocation can reuse it.
func (c *HTTPClient) Close() error {
	c.cache.Clear()
	c.authed = false
	return nil
}

func (c *HTTPClient) tokenFromConfig() (string, error) {
	if c.config.Token != "" {
		return c.config.Token, nil
	}
	return "", fmt.Errorf("no vault token found in config or VAULT_TOKEN environment variable")
}

// loginGitHub performs auth/github/login with a personal access token.
func (c *HTTPClient) loginGitHub(ctx context.Context) (string, int, error) {
	if c.config.GitHubToken == "" {
		return "", 0, fmt.Errorf("no GitHub token found in config or GITHUB_TOKEN environment variable")
	}

	payload, err := json.Marshal(map[string]string{"token": c.config.GitHubToken})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal auth data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL("auth/github/login"), bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setNamespace(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to make auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("github login failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var authResp struct {
		Auth struct {
			ClientToken   string `json:"client_token"`
			LeaseDuration int    `json:"lease_duration"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if authResp.Auth.ClientToken == "" {
		return "", 0, fmt.Errorf("no token received from vault")
	}

	c.logger.Debug("GitHub login succeeded, lease %ds", authResp.Auth.LeaseDuration)
	return authResp.Auth.ClientToken, authResp.Auth.LeaseDuration, nil
}

func (c *HTTPClient) validateToken(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiURL("auth/token/lookup-self"), nil)
	if err != nil {
		return fmt.Errorf("failed to create token validation request: %w", err)
	}
	req.Header.Set("X-Vault-Token", token)
	c.setNamespace(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token validation failed with status %d", resp.StatusCode)
	}
	return nil
}

// do issues an authenticated API request under /v1/.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, ok := c.cache.Get()
	if !ok {
		return nil, fmt.Errorf("not authenticated")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setNamespace(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

func (c *HTTPClient) apiURL(path string) string {
	return strings.TrimSuffix(c.config.Address, "/") + "/v1/" + strings.TrimPrefix(path, "/")
}

func (c *HTTPClient) setNamespace(req *http.Request) {
	if c.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.config.Namespace)
	}
}

func (c *HTTPClient) httpClient() *http.Client {
	client := &http.Client{Timeout: DefaultTimeout}
	if c.config.TLSSkip {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return client
}

func (c *HTTPClient) keyringUser() string {
	u, err := url.Parse(c.config.Address)
	if err != nil || u.Host == "" {
		return c.config.Address
	}
	return u.Host
}

func (c *HTTPClient) loadCachedToken() (string, error) {
	if c.config.DisableKeyring {
		return "", nil
	}
	token, err := keyring.Get(keyringService, c.keyringUser())
	if err != nil {
		return "", err
	}
	return token, nil
}

func (c *HTTPClient) saveCachedToken(token string) {
	if c.config.DisableKeyring {
		return
	}
	if err := keyring.Set(keyringService, c.keyringUser(), token); err != nil {
		c.logger.Debug("Could not cache session token in keyring: %v", err)
	}
}

func (c *HTTPClient) clearCachedToken() {
	if c.config.DisableKeyring {
		return
	}
	if err := keyring.Delete(keyringService, c.keyringUser()); err != nil {
		c.logger.Debug("Could not clear cached session token: %v", err)
	}
}

func vaultStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(raw))
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("vault returned status 403: permission denied: %s", msg)
	}
	return fmt.Errorf("vault returned status %d: %s", resp.StatusCode, msg)
}

// stringifyFields flattens a KV data map to strings. Vault stores JSON,
// so non-string values keep their JSON rendering.
func stringifyFields(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprintf("%v", val)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}
