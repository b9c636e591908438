package pool

import (
	"context"
	"os"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
)

// deleter implements Deleter.
type deleter struct {
	paths  *Paths
	logger observability.Logger
}

// NewDeleter creates the pool deleter.
func NewDeleter(paths *Paths, logger observability.Logger) Deleter {
	return &deleter{
		paths:  paths,
		logger: logger.WithFields(observability.Component("deleter")),
	}
}

func (d *deleter) DeleteFolder(ctx context.Context, store certstore.Store, folderName string) error {
	dir, err := d.paths.FolderDir(store, folderName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		d.logger.Debug(ctx, "folder already absent",
			observability.Store(store.String()),
			observability.FolderName(folderName))
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, dir, err)
	}

	d.logger.Info(ctx, "pool folder deleted",
		observability.Store(store.String()),
		observability.FolderName(folderName))
	return nil
}

func (d *deleter) DeleteFileOrFolder(ctx context.Context, store certstore.Store, rel string, itemType events.ItemType) error {
	path, err := d.paths.Resolve(store, rel)
	if err != nil {
		return err
	}

	storeDir, err := d.paths.StoreDir(store)
	if err != nil {
		return err
	}
	if path == storeDir {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePathTraversal, rel, nil)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodeFileNotFound, path, err)
	}

	switch itemType {
	case events.ItemFolder:
		if !info.IsDir() {
			return vaulterrors.NewValidationError("item_type", "path is a file, not a folder")
		}
		err = os.RemoveAll(path)
	case events.ItemFile:
		if info.IsDir() {
			return vaulterrors.NewValidationError("item_type", "path is a folder, not a file")
		}
		err = os.Remove(path)
	default:
		return vaulterrors.NewValidationError("item_type", "item_type must be file or folder")
	}

	if err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, path, err)
	}

	d.logger.Info(ctx, "pool entry deleted",
		observability.Store(store.String()),
		observability.Path(rel),
		observability.String("item_type", string(itemType)))
	return nil
}
