// Package classify implements the classify command.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/spamguard-go/internal/app"
	"github.com/tphakala/spamguard-go/internal/classifier"
)

type options struct {
	contentType string
	file        string
	noVerify    bool
}

// Command creates the classify command.
func Command(ctx *app.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify text and print the result as JSON",
		Long: `Runs the same pipeline as the API: model prediction followed by AI
verification when a verifier is configured. Text is taken from the
arguments, from --file, or from standard input.`,
		Example: `  spamguard classify --type sms "You won a prize, reply now"
  spamguard classify --type email --file message.eml
  echo "http://example.com/login" | spamguard classify --type url`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), ctx, opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.contentType, "type", "t", "", "Content type: email, sms or url")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read text from a document (txt, pdf, docx, eml, image)")
	cmd.Flags().BoolVar(&opts.noVerify, "no-verify", false, "Skip AI verification")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func run(ctx context.Context, appCtx *app.Context, opts *options, args []string, in io.Reader, out io.Writer) error {
	t, err := classifier.ParseContentType(opts.contentType)
	if err != nil {
		return fmt.Errorf("unknown content type %q", opts.contentType)
	}

	a, err := app.Build(ctx, appCtx.Settings, appCtx.Build, app.Options{Models: true, Verifier: !opts.noVerify})
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := input(ctx, a, opts.file, args, in)
	if err != nil {
		return err
	}

	res, err := a.Detection.Classify(ctx, t, text, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// input picks the text source: arguments, then --file, then stdin.
func input(ctx context.Context, a *app.App, file string, args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if file != "" {
		f, err := os.Open(file) //nolint:gosec // path supplied by the operator
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		return a.Extractor.Extract(ctx, filepath.Base(file), f)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read standard input: %w", err)
	}
	return string(data), nil
}
