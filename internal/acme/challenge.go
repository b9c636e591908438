package acme

import (
	"os"
	"path/filepath"
	"strings"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// wellKnownPath is where certbot's webroot plugin places challenge files
// relative to the webroot.
const wellKnownPath = ".well-known/acme-challenge"

// fileChallengeStore implements ChallengeStore on the shared challenge
// directory. Certbot writes under .well-known/acme-challenge/; tokens
// dropped directly into the directory root are honored as a legacy layout.
type fileChallengeStore struct {
	dir    string
	logger observability.Logger
}

// NewChallengeStore creates the file-backed challenge store and its
// directory tree.
func NewChallengeStore(dir string, logger observability.Logger) (ChallengeStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, wellKnownPath), 0o755); err != nil {
		return nil, vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, dir, err)
	}

	return &fileChallengeStore{
		dir:    dir,
		logger: logger.WithFields(observability.Component("challenge")),
	}, nil
}

func (s *fileChallengeStore) Set(token, keyAuth string) error {
	path, err := s.tokenPath(token)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(keyAuth), 0o644); err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, path, err)
	}
	return nil
}

func (s *fileChallengeStore) Get(token string) (string, error) {
	path, err := s.tokenPath(token)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, path, err)
	}

	// Legacy layout: token file at the challenge dir root.
	data, legacyErr := os.ReadFile(filepath.Join(s.dir, filepath.Base(token)))
	if legacyErr == nil {
		return string(data), nil
	}

	return "", vaulterrors.ErrChallengeNotFound
}

func (s *fileChallengeStore) Remove(token string) error {
	path, err := s.tokenPath(token)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, path, err)
	}
	return nil
}

// tokenPath validates the token and resolves it inside the well-known
// directory. Tokens are opaque filenames; anything that would escape the
// directory is rejected.
func (s *fileChallengeStore) tokenPath(token string) (string, error) {
	if token == "" || token != filepath.Base(token) || strings.HasPrefix(token, ".") {
		return "", vaulterrors.WrapError(
			vaulterrors.ErrCodePathTraversal,
			"invalid challenge token",
			nil,
		).WithContext("token", token)
	}
	return filepath.Join(s.dir, wellKnownPath, token), nil
}
