package acme

import (
	"github.com/google/wire"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/observability"
)

// ProviderSet provides ACME issuance dependencies.
var ProviderSet = wire.NewSet(
	NewExecRunner,
	NewDriver,
	ProvideChallengeStore,
)

// ProvideChallengeStore creates the challenge store rooted at the configured
// challenge directory.
func ProvideChallengeStore(cfg config.CertsConfig, logger observability.Logger) (ChallengeStore, error) {
	return NewChallengeStore(cfg.ACMEChallengeDir, logger)
}
