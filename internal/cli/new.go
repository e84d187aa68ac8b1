package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/scaffold"
)

func (a *app) newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a project or a resource definition",
	}
	cmd.AddCommand(a.newProjectCmd(), a.newResourceCmd())
	return cmd
}

func (a *app) newProjectCmd() *cobra.Command {
	var opts scaffold.ProjectOptions
	cmd := &cobra.Command{
		Use:   "project <dir>",
		Short: "Create a new pantry project",
		Long: `Project writes a runnable project into dir: go.mod, main.go, config.yaml,
.env.example, .gitignore, pantry.yaml and an example resource.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KitVersion = a.build.Version
			written, err := scaffold.Project(args[0], opts)
			if err != nil {
				if errors.Is(err, scaffold.ErrNotEmpty) {
					return userError(fmt.Errorf("%w (use --force to write anyway)", err))
				}
				return sysError(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"dir": args[0], "files": written})
			}
			w := cmd.OutOrStdout()
			for _, p := range written {
				fmt.Fprintln(w, "created", p)
			}
			fmt.Fprintf(w, "\nNext:\n  cd %s\n  go mod tidy\n  go run . serve --seed\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Module, "module", "", "Go module path (default: example.com/<name>)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name (default: the directory name)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "write into a non-empty directory")
	return cmd
}

func (a *app) newResourceCmd() *cobra.Command {
	var dir string
	opts := scaffold.ResourceOptions{Format: resources.FormatYAML}
	cmd := &cobra.Command{
		Use:   "resource <name> <field>...",
		Short: "Write a resource definition file",
		Long: `Resource writes resources/<name>.yaml (or .toml) in the project directory.

Fields are name:type with an optional ! for required and arguments in
parentheses. Types: string, text, integer, money, decimal, boolean,
timestamp, enum, reference.

Example:
  pantry new resource recipes title:string!(120) body:text servings:integer
  pantry new resource reviews product_id:ref(products)! rating:enum(1|2|3|4|5)`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.KitVersion = a.build.Version
			path, err := scaffold.Resource(dir, args[0], args[1:], opts)
			if err != nil {
				var pathErr *fs.PathError
				if errors.As(err, &pathErr) {
					return sysError(err)
				}
				return userError(err)
			}
			return a.report(cmd, map[string]string{"path": path}, "created %s with fields %s",
				path, strings.Join(args[1:], " "))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "project directory")
	cmd.Flags().StringVar(&opts.Format, "format", resources.FormatYAML, "yaml or toml")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing definition")
	return cmd
}
