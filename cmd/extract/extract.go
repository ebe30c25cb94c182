// Package extract implements the extract command.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/spamguard-go/internal/app"
	"github.com/tphakala/spamguard-go/internal/extract"
)

// Command creates the extract command.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text extracted from a document",
		Long:  "Extracts text the way the upload endpoint does. Supported: " + strings.Join(extract.AllowedExtensions, ", ") + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := filepath.Base(path)
			if !extract.Allowed(name) {
				return fmt.Errorf("unsupported file type %q", extract.Extension(name))
			}

			f, err := os.Open(path) //nolint:gosec // path supplied by the operator
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			x := extract.New(extract.ConfigFromSettings(&ctx.Settings.Upload))
			text, err := x.Extract(cmd.Context(), name, f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}
