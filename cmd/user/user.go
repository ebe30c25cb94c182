// Package user implements account management commands.
package user

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/spamguard-go/internal/app"
)

// Command creates the user command group.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(addCommand(ctx), statsCommand(ctx), listCommand(ctx), deleteCommand(ctx))
	return cmd
}

// withStore opens only the database for the duration of fn.
func withStore(ctx context.Context, appCtx *app.Context, fn func(*app.App) error) error {
	a, err := app.Build(ctx, appCtx.Settings, appCtx.Build, app.Options{Database: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func addCommand(ctx *app.Context) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), ctx, func(a *app.App) error {
				u, err := a.Accounts.Register(cmd.Context(), username, email, password)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "E-mail address")
	cmd.Flags().StringVar(&password, "password", "", "Password, at least 6 characters")
	for _, name := range []string{"username", "email", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func statsCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <username>",
		Short: "Print classification statistics for a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), ctx, func(a *app.App) error {
				u, err := a.Store.GetUserByUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				stats, err := a.Store.GetUserStats(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"username": u.Username,
					"stats":    stats,
				})
			})
		},
	}
}

func listCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), ctx, func(a *app.App) error {
				users, err := a.Store.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tCREATED")
				for _, u := range users {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func deleteCommand(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), ctx, func(a *app.App) error {
				u, err := a.Store.GetUserByUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := a.Store.DeleteUser(cmd.Context(), u.ID); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", u.Username)
				return err
			})
		},
	}
}
