// Package auth manages the OAuth2 credentials used by the Drive backend.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	stdsync "sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/sync"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("not logged in, run 'padsync auth login'")

// Session holds an OAuth2 token and persists it whenever it changes. It is
// safe for concurrent use.
type Session struct {
	config    *oauth2.Config
	tokenFile string

	mu    stdsync.Mutex
	token *oauth2.Token
}

// LoadConfig reads OAuth client credentials downloaded from the Google
// Cloud console.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	// #nosec G304 - credentials path comes from user configuration
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, drive.DriveAppdataScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return cfg, nil
}

// NewSession returns a session for cfg, loading any token stored in tokenFile.
func NewSession(cfg *oauth2.Config, tokenFile string) (*Session, error) {
	s := &Session{config: cfg, tokenFile: tokenFile}

	// #nosec G304 - token path comes from user configuration
	data, err := os.ReadFile(tokenFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", tokenFile, err)
	}
	s.token = &tok
	return s, nil
}

// Authenticated reports whether a token is available.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Current returns a copy of the stored token, or nil.
func (s *Session) Current() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	tok := *s.token
	return &tok
}

// Token implements oauth2.TokenSource, refreshing an expired token.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return nil, sync.NewError(sync.KindNotAuthenticated, "token", ErrNoToken)
	}
	if s.token.Valid() {
		return s.token, nil
	}
	if err := s.refreshLocked(context.Background(), s.token); err != nil {
		return nil, err
	}
	return s.token, nil
}

// Refresh exchanges the refresh token for a new access token even if the
// current one has not expired yet.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.RefreshToken == "" {
		return sync.NewError(sync.KindNotAuthenticated, "refresh", ErrNoToken)
	}
	return s.refreshLocked(ctx, &oauth2.Token{RefreshToken: s.token.RefreshToken})
}

func (s *Session) refreshLocked(ctx context.Context, old *oauth2.Token) error {
	tok, err := s.config.TokenSource(ctx, old).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return sync.NewError(sync.KindNotAuthenticated, "refresh", err)
		}
		return sync.NewError(sync.KindNetwork, "refresh", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	if err := s.saveLocked(tok); err != nil {
		return err
	}
	logging.Debug("refreshed access token", logging.Path(s.tokenFile))
	return nil
}

// AuthCodeURL returns the consent page URL for a manual login.
func (s *Session) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (s *Session) Exchange(ctx context.Context, code string) error {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(tok)
}

// Logout deletes the stored token.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	if err := os.Remove(s.tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// Client returns an HTTP client that authorizes requests with the session.
// Every request asks the session for its token, so refreshes are shared.
func (s *Session) Client() *http.Client {
	return &http.Client{Transport: &oauth2.Transport{Source: s, Base: http.DefaultTransport}}
}

func (s *Session) saveLocked(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp := s.tokenFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp, s.tokenFile); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	s.token = tok
	return nil
}
