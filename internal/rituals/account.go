package rituals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the Rituals cloud API used by the official app.
const DefaultBaseURL = "https://rituals.sense-company.com"

var (
	// ErrAuthenticationFailed is returned when the login endpoint rejects the credentials.
	ErrAuthenticationFailed = errors.New("rituals: authentication failed")

	// ErrNotAuthenticated is returned when an account call is made before Authenticate.
	ErrNotAuthenticated = errors.New("rituals: account not authenticated")
)

// StatusError carries a non-200 response from the Rituals API.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Status)
}

// Account handles communication with the Rituals cloud API on behalf of a
// single user account.
type Account struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	logger     *logrus.Logger

	mu          sync.RWMutex
	accountHash string
}

// NewAccount creates a new Rituals account client. A nil httpClient falls
// back to http.DefaultClient.
func NewAccount(baseURL, email, password string, httpClient *http.Client, logger *logrus.Logger) *Account {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Account{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccountHash string `json:"account_hash"`
}

// Authenticate logs in and stores the account hash used by later calls.
func (a *Account) Authenticate(ctx context.Context) error {
	payload, err := json.Marshal(loginRequest{Email: a.email, Password: a.password})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	body, err := a.do(ctx, http.MethodPost, "/ocapi/login", bytes.NewReader(payload))
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return fmt.Errorf("login request failed: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal login response: %w", err)
	}
	if resp.AccountHash == "" {
		return fmt.Errorf("%w: no account hash in response", ErrAuthenticationFailed)
	}

	a.mu.Lock()
	a.accountHash = resp.AccountHash
	a.mu.Unlock()

	a.logger.WithField("email", a.email).Info("Authenticated with Rituals API")
	return nil
}

// AccountHash returns the hash obtained by Authenticate, or "" before login.
func (a *Account) AccountHash() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accountHash
}

// Diffusers lists every hub registered to the account.
func (a *Account) Diffusers(ctx context.Context) ([]*Diffuser, error) {
	hash := a.AccountHash()
	if hash == "" {
		return nil, ErrNotAuthenticated
	}

	body, err := a.do(ctx, http.MethodGet, "/api/account/hubs/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("hub listing failed: %w", err)
	}

	diffusers, err := ParseHubs(body)
	if err != nil {
		return nil, err
	}

	a.logger.WithField("count", len(diffusers)).Debug("Fetched diffusers")
	return diffusers, nil
}

// Refresh fetches a fresh snapshot of the hub identified by hash.
func (a *Account) Refresh(ctx context.Context, hash string) (*Diffuser, error) {
	body, err := a.do(ctx, http.MethodGet, "/api/account/hub/"+hash, nil)
	if err != nil {
		return nil, fmt.Errorf("hub %s refresh failed: %w", hash, err)
	}
	return ParseHub(body)
}

func (a *Account) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"method":        method,
		"path":          path,
		"status_code":   resp.StatusCode,
		"response_size": len(data),
	}).Debug("Received API response")

	return data, nil
}
