// Package tokenfile writes the token set obtained by a login to disk.
package tokenfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/al-bashkir/oidc-tunnel-login/internal/oidc"
)

const (
	fileMode = 0600
	dirMode  = 0700
)

// document is the on-disk format.
type document struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Username     string    `json:"username,omitempty"`
	Expiry       time.Time `json:"expiry"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// Write stores tokens as JSON at path with 0600 permissions.
//
// The file is written to a temporary file in the same directory and renamed
// into place, so readers never observe a partial token set.
func Write(path string, tokens *oidc.TokenData) error {
	if path == "" {
		return fmt.Errorf("token file path is empty")
	}

	if tokens == nil || tokens.AccessToken == "" {
		return fmt.Errorf("no access token to write")
	}

	data, err := json.MarshalIndent(document{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		TokenType:    tokens.TokenType,
		Username:     tokens.Username,
		Expiry:       tokens.Expiry,
		ObtainedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create token file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op after a successful rename

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move token file into place: %w", err)
	}

	slog.Debug("wrote token file", "path", path, "has_refresh_token", tokens.RefreshToken != "")
	return nil
}
