// Package cmd defines the spamguard command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/spamguard-go/cmd/classify"
	"github.com/tphakala/spamguard-go/cmd/config"
	"github.com/tphakala/spamguard-go/cmd/extract"
	"github.com/tphakala/spamguard-go/cmd/serve"
	"github.com/tphakala/spamguard-go/cmd/user"
	"github.com/tphakala/spamguard-go/cmd/version"
	"github.com/tphakala/spamguard-go/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "spamguard",
		Short:         "Spam, smishing and phishing classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		// flag definitions are static, a failure here is a programming error
		panic(err)
	}

	versionCmd := version.Command(ctx)
	rootCmd.AddCommand(
		serve.Command(ctx),
		classify.Command(ctx),
		extract.Command(ctx),
		user.Command(ctx),
		config.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !needsConfig(cmd, versionCmd) {
			return nil
		}
		return ctx.Initialize(configFile)
	}

	return rootCmd
}

// needsConfig reports whether cmd loads configuration. version, help and
// shell completion run without it.
func needsConfig(cmd, versionCmd *cobra.Command) bool {
	if cmd == versionCmd || cmd.Name() == "help" {
		return false
	}
	if p := cmd.Parent(); p != nil && p.Name() == "completion" {
		return false
	}
	return true
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default: search standard locations)")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
