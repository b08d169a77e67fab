package orchestrator

import (
	"fmt"
	"strings"

	"github.com/AmosPulse/proof-stamp/internal/config"
	"github.com/AmosPulse/proof-stamp/internal/state"
)

// checkStartup verifies the run can proceed before anything remote happens:
//
//   - REPO_TOKEN must be present in the environment, unless this is a dry
//     run (dry runs never call the tracker)
//   - repo_owner and repo_name must be set, in factory.yaml or via the
//     environment
//   - the state directory must exist or be creatable
//
// Returns a descriptive error listing every missing setting; nil if the run
// is cleared to start.
func checkStartup(cfg *config.FactoryConfig, dryRun bool) error {
	var missing []string
	if cfg.Token == "" && !dryRun {
		missing = append(missing, "REPO_TOKEN (environment)")
	}
	if cfg.RepoOwner == "" {
		missing = append(missing, "repo_owner")
	}
	if cfg.RepoName == "" {
		missing = append(missing, "repo_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if err := state.EnsureDir(cfg.StateDir); err != nil {
		return fmt.Errorf("state directory: %w", err)
	}
	return nil
}
