package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/scaffold"
)

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pantry version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]string{"version": a.build.Version, "module": scaffold.KitModule}
			return a.report(cmd, out, "pantry v%s\nmodule: %s", a.build.Version, scaffold.KitModule)
		},
	}
}
