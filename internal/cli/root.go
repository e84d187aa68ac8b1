// Package cli implements the pantry command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/config"
	"github.com/mesh-intelligence/pantry/internal/httputils"
	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/internal/scaffold"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Build describes the running binary.
type Build struct {
	Version string
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	build Build
	flags rootFlags
	// skipEnvFiles is set by tests so that .env files in the working
	// directory are not read.
	skipEnvFiles bool
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error {
	return &exitError{code: exitUserError, err: err}
}

func sysError(err error) error {
	return &exitError{code: exitSysError, err: err}
}

// classify attaches an exit code to an error returned by a command.
// Errors that would be a 4xx over HTTP are user errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	switch {
	case errors.Is(err, scaffold.ErrNotEmpty), errors.Is(err, scaffold.ErrIncompatible),
		errors.Is(err, resources.ErrUnknownRef), errors.Is(err, resources.ErrDuplicate),
		errors.Is(err, resources.ErrIncompatible), errors.Is(err, types.ErrInvalidResource):
		return userError(err)
	}
	if status := httputils.StatusFor(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return userError(err)
	}
	return sysError(err)
}

// exitCode maps an error to the process exit code. Errors that did not
// come from a command body are usage errors raised by cobra.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// classifyAll wraps the RunE of cmd and its descendants with classify.
func classifyAll(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			return classify(run(cmd, args))
		}
	}
	for _, c := range cmd.Commands() {
		classifyAll(c)
	}
}

// NewRootCmd creates the top-level "pantry" command with global flags
// and all subcommands registered.
func NewRootCmd(build Build) *cobra.Command {
	return newRootCmd(&app{build: build})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pantry",
		Short: "A config-driven CRUD starter kit",
		Long: "pantry serves a storefront, an admin UI and a REST API generated from\n" +
			"resource definitions, and scaffolds new projects and resources.",
		Version:       a.build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir, or $PANTRY_CONFIG_DIR)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: from config.yaml, or $PANTRY_DATA_DIR)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		a.newVersionCmd(),
		a.newInitCmd(),
		a.newServeCmd(),
		a.newMigrateCmd(),
		a.newSeedCmd(),
		a.newResourcesCmd(),
		a.newListCmd(),
		a.newGetCmd(),
		a.newSetCmd(),
		a.newDeleteCmd(),
		a.newExportCmd(),
		a.newImportCmd(),
		a.newUserCmd(),
		a.newNewCmd(),
	)
	classifyAll(root)
	return root
}

// Execute runs the root command with args and returns the process exit
// code. Errors are printed to stderr.
func Execute(build Build, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(build)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(stderr, "pantry:", err)
	}
	return exitCode(err)
}

// Main runs the CLI with the process arguments and exits.
func Main(build Build) {
	os.Exit(Execute(build, os.Args[1:], os.Stdout, os.Stderr))
}

// loadConfig reads the configuration selected by the global flags.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigDir:    a.flags.configDir,
		DataDir:      a.flags.dataDir,
		SkipEnvFiles: a.skipEnvFiles,
	})
	if err != nil {
		return nil, userError(err)
	}
	return cfg, nil
}

// registry loads the built-in resources and the resource files in the
// configured directory.
func registry(cfg *config.Config) (*resources.Registry, error) {
	reg := resources.NewWithBuiltins()
	if err := reg.LoadDir(cfg.ResourcesDir); err != nil {
		return nil, userError(err)
	}
	return reg, nil
}

// env is an opened configuration, registry and store.
type env struct {
	cfg   *config.Config
	reg   *resources.Registry
	store *sqlstore.Backend
}

// open loads the configuration and attaches the store, migrating every
// resource table. The caller must call close.
func (a *app) open() (*env, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	reg, err := registry(cfg)
	if err != nil {
		return nil, err
	}
	store := sqlstore.NewBackend(reg.All())
	if err := store.Attach(cfg.Database); err != nil {
		return nil, sysError(fmt.Errorf("attach %s store: %w", cfg.Database.Backend, err))
	}
	return &env{cfg: cfg, reg: reg, store: store}, nil
}

func (e *env) close() {
	_ = e.store.Detach()
}

// logger builds the configured logger.
func (a *app) logger(cfg *config.Config) (logging.Logger, error) {
	lggr, err := logging.New(cfg.Log)
	if err != nil {
		return nil, userError(err)
	}
	return lggr, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints v as JSON in --json mode and the text otherwise.
func (a *app) report(cmd *cobra.Command, v any, format string, args ...any) error {
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), v)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	return err
}
