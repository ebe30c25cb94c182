// Package serve implements the serve command.
package serve

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/spamguard-go/internal/app"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// Command creates the serve command.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Loads the models, opens the database and serves the JSON API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags binds serve flags to their configuration keys
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", ":8080", "Address to listen on (host:port)")
	cmd.Flags().Float64("ratelimit", 0, "Per-client requests per second for predictions, 0 disables")

	if err := viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("server.ratelimit", cmd.Flags().Lookup("ratelimit")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func run(ctx context.Context, appCtx *app.Context) error {
	log := app.GetLogger()

	a, err := app.Build(ctx, appCtx.Settings, appCtx.Build, app.ServeOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown completed with errors", logger.Error(err))
		}
	}()

	srv, err := a.NewServer()
	if err != nil {
		return err
	}

	log.Info("spamguard started",
		logger.String("version", appCtx.Build.Version()),
		logger.String("listen", appCtx.Settings.Server.Listen),
		logger.Int("models", len(a.Models.Loaded())),
		logger.Bool("verifier", a.Verifier != nil))

	return srv.Run(ctx)
}
