package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/config"
)

// initResult is printed by init in --json mode.
type initResult struct {
	ConfigFile   string `json:"config_file"`
	ResourcesDir string `json:"resources_dir"`
	Backend      string `json:"backend"`
	DataDir      string `json:"data_dir,omitempty"`
}

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize pantry configuration and storage",
		Long: "Create the configuration directory with a default config.yaml, the\n" +
			"resources directory and the signing secret, then create every\n" +
			"resource table in the configured database. Safe to run again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			if err := os.MkdirAll(e.cfg.ResourcesDir, 0o755); err != nil {
				return sysError(fmt.Errorf("create resources dir: %w", err))
			}
			if _, err := auth.LoadOrCreateSecret(e.cfg.Auth.SecretFile); err != nil {
				return sysError(fmt.Errorf("create secret: %w", err))
			}
			res := initResult{
				ConfigFile:   config.Path(e.cfg.ConfigDir),
				ResourcesDir: e.cfg.ResourcesDir,
				Backend:      e.cfg.Database.Backend,
				DataDir:      e.cfg.Database.DataDir,
			}
			return a.report(cmd, res, "pantry initialized\nconfig: %s\nresources: %s\ntables: %d",
				res.ConfigFile, res.ResourcesDir, len(e.store.Resources()))
		},
	}
}
