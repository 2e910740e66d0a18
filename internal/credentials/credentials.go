// Package credentials persists the staff client's session between runs in a
// small TOML file readable only by its owner.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Credentials is the persisted session.
type Credentials struct {
	AccessToken string    `toml:"access_token"`
	ExpiresAt   time.Time `toml:"expires_at"`
	UserID      string    `toml:"user_id"`
	Email       string    `toml:"email"`
	CreatedAt   time.Time `toml:"created_at,omitempty"`
}

// Valid reports whether the credentials carry a token that has not expired at now.
func (c Credentials) Valid(now time.Time) bool {
	if strings.TrimSpace(c.AccessToken) == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

type document struct {
	Session Credentials `toml:"session"`
}

// File reads and writes one credential file.
type File struct {
	path string
}

// NewFile returns a credential file at path. Nothing is touched until Load
// or Save is called.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load returns the stored credentials. ok is false when no file exists.
func (f *File) Load() (creds Credentials, ok bool, err error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Credentials{}, false, fmt.Errorf("decode credentials %s: %w", f.path, err)
	}
	if strings.TrimSpace(doc.Session.AccessToken) == "" {
		return Credentials{}, false, nil
	}
	return doc.Session, true, nil
}

// Save replaces the stored credentials atomically.
func (f *File) Save(creds Credentials) error {
	data, err := toml.Marshal(document{Session: creds})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create credentials file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("restrict credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
