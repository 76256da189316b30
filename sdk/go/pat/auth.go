package pat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// tokenSource yields a bearer token for each request.
type tokenSource interface {
	getToken(ctx context.Context) (string, error)
}

// staticToken is a pre-issued JWT supplied by the caller.
type staticToken string

func (t staticToken) getToken(context.Context) (string, error) {
	return string(t), nil
}

// tokenManager mints user JWTs from the admin bootstrap key via /auth/token
// and refreshes them before expiry. Safe for concurrent use.
type tokenManager struct {
	baseURL  string
	adminKey string
	userID   string
	role     Role
	timezone string
	client   *http.Client
	margin   time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, adminKey, userID string, role Role, timezone string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL:  baseURL,
		adminKey: adminKey,
		userID:   userID,
		role:     role,
		timezone: timezone,
		client:   client,
		margin:   30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}

	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

type authRequest struct {
	AdminKey string `json:"admin_key"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Timezone string `json:"timezone,omitempty"`
}

type authResponseEnvelope struct {
	Data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(authRequest{
		AdminKey: tm.adminKey,
		UserID:   tm.userID,
		Role:     tm.role,
		Timezone: tm.timezone,
	})
	if err != nil {
		return fmt.Errorf("pat: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pat: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("pat: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pat: auth failed with status %d", resp.StatusCode)
	}

	var envelope authResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("pat: decode auth response: %w", err)
	}

	tm.token = envelope.Data.Token
	tm.expiresAt = envelope.Data.ExpiresAt
	return nil
}
