// Package credentials keeps bearer tokens for certificate servers on the
// local filesystem.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrTokenNotFound is returned when no token is stored for a server.
	ErrTokenNotFound = errors.New("no token stored for server")

	// ErrTokenExpired is returned when the stored token has expired.
	ErrTokenExpired = errors.New("stored token has expired")
)

const configVersion = 1

// Token is a stored bearer token.
type Token struct {
	Server    string    `json:"server"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SavedAt   time.Time `json:"saved_at"`
}

// Expired reports whether the token is past its expiry.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Config represents the credentials file.
type Config struct {
	Version int              `json:"version"`
	Tokens  map[string]Token `json:"tokens"`
}

// Store manages the credentials file.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store in baseDir. If baseDir is empty, uses ~/.coursecert/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".coursecert")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store initialized")

	return &Store{
		path: filepath.Join(baseDir, "credentials.json"),
		now:  time.Now,
	}, nil
}

// Save stores token for its server, replacing any previous token.
func (s *Store) Save(token Token) error {
	if token.Token == "" {
		return errors.New("token is empty")
	}

	cfg, err := s.load()
	if err != nil {
		return err
	}

	token.Server = normalizeServer(token.Server)
	token.SavedAt = s.now().UTC()
	cfg.Tokens[token.Server] = token

	return s.write(cfg)
}

// Get returns the token stored for server.
func (s *Store) Get(server string) (*Token, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}

	token, ok := cfg.Tokens[normalizeServer(server)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if token.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	return &token, nil
}

// Delete removes the token stored for server. Missing tokens are ignored.
func (s *Store) Delete(server string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}

	delete(cfg.Tokens, normalizeServer(server))
	return s.write(cfg)
}

func (s *Store) load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{Version: configVersion, Tokens: map[string]Token{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", s.path, err)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = map[string]Token{}
	}
	return &cfg, nil
}

// write replaces the file atomically so a failed write never truncates it.
func (s *Store) write(cfg *Config) error {
	cfg.Version = configVersion

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	return os.Rename(tmp.Name(), s.path)
}

func normalizeServer(server string) string {
	return strings.TrimSuffix(strings.TrimSpace(server), "/")
}
