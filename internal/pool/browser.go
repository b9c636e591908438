package pool

import (
	"context"
	"os"
	"path/filepath"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// maxFileSize caps content downloads; pool files are PEM-sized.
const maxFileSize = 10 << 20

// browser implements Browser.
type browser struct {
	paths  *Paths
	logger observability.Logger
}

// NewBrowser creates the read-only pool browser.
func NewBrowser(paths *Paths, logger observability.Logger) Browser {
	return &browser{
		paths:  paths,
		logger: logger.WithFields(observability.Component("browser")),
	}
}

func (b *browser) List(ctx context.Context, store certstore.Store, rel string) ([]Entry, error) {
	dir, err := b.paths.Resolve(store, rel)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterrors.NewPoolError(vaulterrors.ErrCodeFolderNotFound, rel, err)
		}
		return nil, vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, rel, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

func (b *browser) ReadFile(ctx context.Context, store certstore.Store, rel string) ([]byte, string, error) {
	path, err := b.paths.Resolve(store, rel)
	if err != nil {
		return nil, "", err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, "", vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, rel, err)
	}
	if err != nil {
		return nil, "", vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, rel, err)
	}
	if info.IsDir() {
		return nil, "", vaulterrors.NewValidationError("path", "path is a directory")
	}
	if info.Size() > maxFileSize {
		return nil, "", vaulterrors.NewValidationError("path", "file is too large to download")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, rel, err)
	}

	return data, filepath.Base(path), nil
}
