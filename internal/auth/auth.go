package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deckpilot/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "deckpilot"
	keyringUser    = "access_token"
)

var authLog = logger.Named("auth")

// ErrTokenExpired is returned when the bearer token is a JWT past its exp.
var ErrTokenExpired = errors.New("access token expired, run `deckpilot login` again")

type Credentials struct {
	Token   string    `json:"token"`
	Updated time.Time `json:"updated"`
}

func authPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".deckpilot", "auth.json"), nil
}

// SaveToken persists the bearer token for later use by the CLI. The system
// keychain is preferred; without one the token goes to ~/.deckpilot/auth.json.
func SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err == nil {
		// drop an older file copy
		return removeFile()
	}
	return saveFile(token)
}

func saveFile(token string) error {
	path, err := authPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Credentials{Token: token, Updated: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadToken loads the stored token, returning an empty string when none is present.
func LoadToken() (string, error) {
	if token, err := keyring.Get(keyringService, keyringUser); err == nil {
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	return loadFile()
}

func loadFile() (string, error) {
	path, err := authPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", err
	}
	return strings.TrimSpace(creds.Token), nil
}

// Clear removes any stored credentials.
func Clear() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		authLog.WithError(err).Debug("keychain unavailable, clearing file credentials only")
	}
	return removeFile()
}

func removeFile() error {
	path, err := authPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// TokenSource resolves the bearer token: the configured token first, then
// the stored one. Tokens are opaque to the client except for the exp claim
// of JWTs, which is checked so an expired login fails before the request.
type TokenSource struct {
	Static string
	// Skew treats tokens expiring within this window as expired.
	Skew time.Duration
	Now  func() time.Time
}

func (s TokenSource) Token() (string, error) {
	token := strings.TrimSpace(s.Static)
	if token == "" {
		stored, err := LoadToken()
		if err != nil {
			return "", fmt.Errorf("load token: %w", err)
		}
		token = stored
	}
	if token == "" {
		return "", nil
	}
	if err := s.checkExpiry(token); err != nil {
		return "", err
	}
	return token, nil
}

// Check rejects token when it is a JWT that expired or expires within Skew.
func (s TokenSource) Check(token string) error {
	return s.checkExpiry(token)
}

func (s TokenSource) checkExpiry(token string) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// not a JWT after all; the service decides
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if !claims.ExpiresAt.Time.After(now().Add(s.Skew)) {
		return ErrTokenExpired
	}
	return nil
}
