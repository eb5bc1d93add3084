package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TokenFile holds persisted credentials.
type TokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true if the token has expired (with margin). A zero
// expiry means the lifetime is unknown and the token is used as-is.
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// LoadTokenFile reads a token file from disk.
func LoadTokenFile(path string) (*TokenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tf.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access token", path)
	}
	return &tf, nil
}

// Save writes the token file with owner-only permissions.
func (t *TokenFile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	// Write via temp file then rename so a crash never leaves a torn file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

// RemoveTokenFile deletes the persisted credentials, ignoring absence.
func RemoveTokenFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
