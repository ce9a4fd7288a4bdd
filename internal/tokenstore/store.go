// Package tokenstore persists the CLI's bearer credential as a single JSON
// file. Writes go through a temp file in the same directory followed by a
// rename, so readers never observe a partially written credential.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Store(cred *model.Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return apperrors.Persistence("failed to encode credential", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return apperrors.Persistence("failed to create config directory", err)
	}

	tmp, err := os.CreateTemp(dir, "token-*.json")
	if err != nil {
		return apperrors.Persistence("failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Persistence("failed to write credential", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Persistence("failed to write credential", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return apperrors.Persistence("failed to set credential file mode", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperrors.Persistence("failed to replace credential file", err)
	}
	return nil
}

// Load returns nil without error when no credential is stored.
func (s *Store) Load() (*model.Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Persistence("failed to read credential", err)
	}

	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, apperrors.Persistence(fmt.Sprintf("corrupt credential file at %s", s.path), err)
	}
	return &cred, nil
}

// Clear removes the credential file. Clearing an absent file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Persistence("failed to remove credential", err)
	}
	return nil
}

// IsExpired reports whether the stored credential is absent or past its
// expiry. A load failure counts as expired; the caller will be asked to
// login again.
func (s *Store) IsExpired() bool {
	cred, err := s.Load()
	if err != nil || cred == nil {
		return true
	}
	return cred.IsExpired()
}
