package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/internal/resources"
)

func (a *app) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage admin users",
	}
	cmd.AddCommand(a.newUserAddCmd(), a.newUserPasswordCmd())
	return cmd
}

func (a *app) newUserAddCmd() *cobra.Command {
	var email, name, role, password string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an admin UI user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			u, err := auth.NewUsers(e.store).Create(cmd.Context(), email, name, role, password)
			if err != nil {
				return err
			}
			return a.report(cmd, u, "created %s user %s (%s)", u.Role, u.Email, u.ID)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", resources.RoleEditor, "admin or editor")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) newUserPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "password <id>",
		Short: "Replace a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.close()

			if err := auth.NewUsers(e.store).SetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			return a.report(cmd, map[string]string{"updated": args[0]}, "password updated for %s", args[0])
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password, at least 8 characters (required)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
