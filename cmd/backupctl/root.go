package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cobrancas/internal/app"
	"github.com/joseph-ayodele/cobrancas/internal/common"
)

type rootOptions struct {
	output  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "backupctl",
		Short:         "Export, commit, restore and inspect cobranças backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: json|text")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newCommitCmd(opts))
	root.AddCommand(newRestoreCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newInitRepoCmd(opts))
	root.AddCommand(newXLSXCmd(opts))
	return root
}

// withApp loads configuration, opens the application and runs fn with a CLI-triggered context.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := common.WithTrigger(common.EnsureRequestID(cmd.Context()), "cli")
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// render writes v as indented JSON, or calls text for the human format.
func render(w io.Writer, opts *rootOptions, v any, text func(w io.Writer)) error {
	if opts.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if opts.output != "" && opts.output != "text" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	text(w)
	return nil
}
