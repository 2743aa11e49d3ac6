package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
)

// OAuth scopes required for Realtime Database REST access with a service account.
var scopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

const (
	// defaultRequestTimeout applies when no timeout is configured.
	defaultRequestTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// Client talks to a Firebase Realtime Database over its REST API.
//
// Paths map to "{databaseURL}/{path}.json". A GET of a missing path returns
// JSON null, which Get reports as absent.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Connect builds an authenticated client from configuration.
//
// Credentials come from ServiceAccountJSON when set, otherwise from the file
// at ServiceAccountFile. No network call is made: a key the database later
// rejects surfaces as ErrUnauthorized on the first request.
//
// Parameters:
//   - ctx: Context whose values (e.g. oauth2.HTTPClient) are used for token fetches
//   - cfg: Firebase configuration
//   - timeout: Per-request timeout; zero uses a 10s default
//
// Returns:
//   - *Client: Client ready for use
//   - error: ErrNotConfigured or ErrInvalidCredentials
func Connect(ctx context.Context, cfg config.FirebaseConfig, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("%w: database_url is not set", ErrNotConfigured)
	}

	key, err := loadServiceAccount(cfg)
	if err != nil {
		return nil, err
	}

	jwtConf, err := google.JWTConfigFromJSON(key, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Token refreshes outlive any single request, so they must not inherit
	// a request's cancellation.
	tokenCtx := context.WithoutCancel(ctx)
	if _, ok := tokenCtx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	}

	httpClient := oauth2.NewClient(tokenCtx, jwtConf.TokenSource(tokenCtx))
	httpClient.Timeout = timeout

	return NewClient(cfg.DatabaseURL, httpClient)
}

// loadServiceAccount returns the raw service-account JSON.
func loadServiceAccount(cfg config.FirebaseConfig) ([]byte, error) {
	if s := strings.TrimSpace(cfg.ServiceAccountJSON); s != "" {
		return []byte(s), nil
	}
	if cfg.ServiceAccountFile == "" {
		return nil, fmt.Errorf("%w: no service account credentials", ErrNotConfigured)
	}

	data, err := os.ReadFile(cfg.ServiceAccountFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: service account file %s not found", ErrNotConfigured, cfg.ServiceAccountFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidCredentials, cfg.ServiceAccountFile, err)
	}
	return data, nil
}

// NewClient creates a client for databaseURL using httpClient for every
// request. httpClient is expected to add authentication.
//
// Returns:
//   - *Client: Client ready for use
//   - error: ErrNotConfigured if databaseURL is not an absolute http(s) URL
func NewClient(databaseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(databaseURL))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid database_url %q", ErrNotConfigured, databaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    httpClient,
	}, nil
}

// Get returns the value at path, decoded as encoding/json decodes into any.
// exists is false when the database holds null at path.
func (c *Client) Get(ctx context.Context, path string) (any, bool, error) {
	var v any
	if err := c.do(ctx, http.MethodGet, c.endpoint(path, nil), nil, &v); err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// Set replaces the value at path. A nil value deletes the path.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return c.do(ctx, http.MethodDelete, c.endpoint(path, nil), nil, nil)
	}
	return c.do(ctx, http.MethodPut, c.endpoint(path, nil), value, nil)
}

// Update writes several top-level paths in one multi-path PATCH, which the
// database applies atomically. Nil values delete their path.
func (c *Client) Update(ctx context.Context, values map[string]any) error {
	return c.do(ctx, http.MethodPatch, c.endpoint("", nil), values, nil)
}

// HealthCheck issues a shallow read of the root to verify reachability and
// that the credentials are accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.endpoint("", url.Values{"shallow": {"true"}}), nil, nil)
}

// endpoint builds the REST URL for path. An empty path addresses the root.
func (c *Client) endpoint(path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteByte('/')
	if path != "" {
		b.WriteString(url.PathEscape(path))
	}
	b.WriteString(".json")
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

// do performs one REST call. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded response.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encoding body: %w", ErrRequestFailed, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Writes don't need the value echoed back.
	if method != http.MethodGet {
		req.Header.Set("X-Firebase-Print", "silent")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token exchange: %w", ErrUnauthorized, err)
		}
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, redact(endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(method, endpoint, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return nil
}

// responseError maps a non-2xx response to a package error, including the
// database's own error message when present.
func responseError(method, endpoint string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best effort

	msg := strings.TrimSpace(string(raw))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	base := ErrRequestFailed
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		base = ErrUnauthorized
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", base, method, redact(endpoint), resp.StatusCode, msg)
}

// redact strips the query string so tokens never reach logs.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
