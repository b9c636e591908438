package pool

import (
	"github.com/google/wire"

	"github.com/albedosehen/certvault/internal/config"
)

// ProviderSet provides pool dependencies.
var ProviderSet = wire.NewSet(
	ProvidePaths,
	NewImporter,
	NewExporter,
	NewDeleter,
	NewBrowser,
	NewWatcher,
)

// ProvidePaths creates the path resolver from configuration.
func ProvidePaths(cfg *config.Config) *Paths {
	return NewPaths(cfg.Certs.Dir)
}
