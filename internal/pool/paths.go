// Package pool manages the on-disk certificate folders: importing them into
// the database, exporting database rows back to disk, browsing and deleting
// entries, and optionally watching the tree for changes. All paths are
// validated against the store root; nothing in this package follows a path
// outside it.
package pool

import (
	"path/filepath"
	"strings"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

const (
	// CertFileName and KeyFileName are the fixed names of the material
	// inside each pool folder.
	CertFileName = "cert.crt"
	KeyFileName  = "key.key"
)

// Paths resolves locations inside the certificate pool.
type Paths struct {
	root string
}

// NewPaths creates a resolver rooted at the pool directory.
func NewPaths(root string) *Paths {
	return &Paths{root: root}
}

// Root returns the pool root directory.
func (p *Paths) Root() string { return p.root }

// StoreDir returns the on-disk directory of a store. Errors for the
// database store, which has no folder tree.
func (p *Paths) StoreDir(store certstore.Store) (string, error) {
	if !store.HasPoolDir() {
		return "", vaulterrors.WrapError(
			vaulterrors.ErrCodeInvalidStore,
			"store "+store.String()+" has no pool directory",
			nil,
		)
	}
	return filepath.Join(p.root, store.DirName()), nil
}

// FolderDir returns the directory of one certificate folder. The folder
// name must be a plain path segment.
func (p *Paths) FolderDir(store certstore.Store, folderName string) (string, error) {
	storeDir, err := p.StoreDir(store)
	if err != nil {
		return "", err
	}
	if folderName == "" || folderName != filepath.Base(folderName) || strings.HasPrefix(folderName, ".") {
		return "", traversalErr(folderName)
	}
	return filepath.Join(storeDir, folderName), nil
}

// Resolve joins a client-supplied relative path onto a store directory,
// rejecting anything that would escape it.
func (p *Paths) Resolve(store certstore.Store, rel string) (string, error) {
	storeDir, err := p.StoreDir(store)
	if err != nil {
		return "", err
	}

	if filepath.IsAbs(rel) {
		return "", traversalErr(rel)
	}

	joined := filepath.Join(storeDir, filepath.Clean(rel))
	if joined != storeDir && !strings.HasPrefix(joined, storeDir+string(filepath.Separator)) {
		return "", traversalErr(rel)
	}

	return joined, nil
}

func traversalErr(path string) error {
	return vaulterrors.NewPoolError(
		vaulterrors.ErrCodePathTraversal,
		path,
		nil,
	)
}
