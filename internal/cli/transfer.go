package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <resource> [file]",
		Short: "Write every record of a resource as JSON lines",
		Long: `Export writes one JSON object per line, oldest record first. Without a file
the records go to standard output; with a file it is replaced atomically.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			if len(args) == 1 {
				_, err := e.store.Export(cmd.Context(), args[0], cmd.OutOrStdout())
				return err
			}
			n, err := e.store.ExportFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.report(cmd, map[string]int{"exported": n}, "exported %d %s to %s", n, args[0], args[1])
		},
	}
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <resource> <file>",
		Short: "Load JSON lines into a resource",
		Long: `Import reads one JSON object per line in a single transaction. Records
whose id exists are updated, the rest are created with their id and
timestamps kept. Malformed lines are skipped and counted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return userError(fmt.Errorf("open %s: %w", args[1], err))
			}
			defer f.Close()

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.store.Import(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			return a.report(cmd, res, "imported %s: %d created, %d updated, %d skipped",
				args[0], res.Created, res.Updated, res.Skipped)
		},
	}
}
