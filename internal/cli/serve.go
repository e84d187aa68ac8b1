package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/server"
	"github.com/mesh-intelligence/pantry/internal/sqlstore"
)

func (a *app) newServeCmd() *cobra.Command {
	var seed bool
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront, admin UI and REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()
			if addr != "" {
				e.cfg.HTTP.Addr = addr
			}

			lggr, err := a.logger(e.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lggr.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if seed {
				res, err := sqlstore.Seed(ctx, e.store)
				if err != nil {
					return sysError(fmt.Errorf("seed: %w", err))
				}
				lggr.Infow("Seeded catalog", "categories", res.Categories, "products", res.Products)
			}

			srv, err := server.New(e.cfg, e.store, e.reg.Exposed(), lggr)
			if err != nil {
				return sysError(err)
			}
			if err := srv.Run(ctx); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "fill an empty catalog with demo data before serving")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables, columns and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			applied := e.store.Migrations()
			if applied == nil {
				applied = []string{}
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string][]string{"applied": applied})
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(applied, ";\n")+";")
			return nil
		},
	}
}

func (a *app) newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty catalog with demo categories and products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			res, err := sqlstore.Seed(cmd.Context(), e.store)
			if err != nil {
				return err
			}
			return a.report(cmd, res, "seeded %d categories and %d products", res.Categories, res.Products)
		},
	}
}
