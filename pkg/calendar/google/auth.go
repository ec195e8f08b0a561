package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// Scopes requested for read/write access to events and the calendar list
var Scopes = []string{calendar.CalendarScope}

// TokenManager handles OAuth2 token management including refresh. Refreshed
// tokens are written back to the token file.
type TokenManager struct {
	config    *oauth2.Config
	tokenFile string
	logger    *slog.Logger
}

// NewTokenManager creates a token manager from a client credentials file
func NewTokenManager(credentialsPath, tokenPath string, logger *slog.Logger) (*TokenManager, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if config.RedirectURL == "" {
		config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}

	return NewTokenManagerWithConfig(config, tokenPath, logger), nil
}

// NewTokenManagerWithConfig creates a token manager for an existing OAuth2 config
func NewTokenManagerWithConfig(config *oauth2.Config, tokenPath string, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		config:    config,
		tokenFile: tokenPath,
		logger:    logger,
	}
}

// GetAuthURL generates the OAuth2 authorization URL for initial authentication
func (tm *TokenManager) GetAuthURL(state string) string {
	// offline access plus a forced consent screen yields a refresh token
	return tm.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode exchanges an authorization code for a token and saves it
func (tm *TokenManager) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := tm.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := tm.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	tm.logger.Info("Obtained and saved OAuth2 token", "token_file", tm.tokenFile)
	return token, nil
}

// LoadToken loads a saved token from disk
func (tm *TokenManager) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(tm.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	return &token, nil
}

// SaveToken saves a token to disk
func (tm *TokenManager) SaveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(tm.tokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(tm.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// TokenSource returns a refreshing token source that persists new tokens
func (tm *TokenManager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := tm.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w (run google-auth first)", err)
	}

	return &savingTokenSource{
		base:    tm.config.TokenSource(ctx, token),
		last:    token.AccessToken,
		manager: tm,
	}, nil
}

// GetClient returns an HTTP client with a valid token, refreshing if necessary
func (tm *TokenManager) GetClient(ctx context.Context) (*http.Client, error) {
	ts, err := tm.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	// Fail early when the refresh token has been revoked
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("failed to get valid token: %w", err)
	}

	return oauth2.NewClient(ctx, ts), nil
}

// IsTokenValid checks if a stored token exists and can be used or refreshed
func (tm *TokenManager) IsTokenValid() bool {
	token, err := tm.LoadToken()
	if err != nil {
		return false
	}
	return token.Valid() || token.RefreshToken != ""
}

// GetTokenExpiry returns the expiry time of the stored token
func (tm *TokenManager) GetTokenExpiry() (time.Time, error) {
	token, err := tm.LoadToken()
	if err != nil {
		return time.Time{}, err
	}
	return token.Expiry, nil
}

type savingTokenSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	last    string
	manager *TokenManager
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		s.manager.logger.Info("Token refreshed, saving new token")
		if err := s.manager.SaveToken(token); err != nil {
			s.manager.logger.Warn("Failed to save refreshed token", "error", err)
		}
	}
	return token, nil
}
