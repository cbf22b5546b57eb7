package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cobrancas/internal/app"
	"github.com/joseph-ayodele/cobrancas/internal/backup"
	"github.com/joseph-ayodele/cobrancas/internal/utils"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot file without committing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				m := backup.ParseMode(mode)
				path, err := a.Backups.Export(ctx, m)
				if err != nil {
					return err
				}
				out := map[string]any{"filepath": path, "filename": filepath.Base(path), "backup_type": m}
				return render(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "exported %s snapshot to %s\n", m, path)
				})
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "full", "snapshot mode: full|latest")
	return cmd
}

func newCommitCmd(opts *rootOptions) *cobra.Command {
	var mode, message string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Export a snapshot and commit it to git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res := a.Backups.BackupAndCommit(ctx, backup.ParseMode(mode), message)
				if !res.Success {
					return fmt.Errorf("%s", res.Error)
				}
				return render(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
					fmt.Fprintf(w, "exported %s snapshot to %s\n", res.BackupType, res.BackupFile)
					if res.GitResult.Success {
						fmt.Fprintf(w, "committed: %s\n", res.GitResult.CommitMessage)
					} else {
						fmt.Fprintf(w, "commit failed (%s): %s\n", res.GitResult.Code, res.GitResult.Error)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "full", "snapshot mode: full|latest")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (default names the backup type and time)")
	return cmd
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <filename>",
		Short: "Insert records from a snapshot that are not yet stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Backups.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts, res, func(w io.Writer) {
					fmt.Fprintf(w, "restored %d, skipped %d, total in backup %d\n",
						res.RestoredCount, res.SkippedCount, res.TotalInBackup)
					if res.CountMismatch {
						fmt.Fprintf(w, "warning: snapshot declares %d records\n", *res.DeclaredTotal)
					}
				})
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshot files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				files := a.Backups.ListBackups(ctx)
				return render(cmd.OutOrStdout(), opts, files, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "FILENAME\tSIZE\tMODIFIED")
					for _, f := range files {
						fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Filename, f.Size, f.Modified.Local().Format(time.DateTime))
					}
					_ = tw.Flush()
				})
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backup directory and repository state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				st := a.Backups.Status(ctx)
				return render(cmd.OutOrStdout(), opts, st, func(w io.Writer) {
					fmt.Fprintf(w, "git repository:   %t\n", st.GitRepository)
					fmt.Fprintf(w, "backup directory: %s (exists: %t)\n", st.BackupDirectory, st.BackupDirectoryExists)
					fmt.Fprintf(w, "backup files:     %d\n", st.TotalBackupFiles)
					if st.LatestBackup != nil {
						fmt.Fprintf(w, "latest backup:    %s\n", st.LatestBackup.Filename)
					}
				})
			})
		},
	}
}

func newInitRepoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-repo",
		Short: "Create the git repository at BACKUP_REPO_ROOT if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Backups.InitRepository(ctx); err != nil {
					return err
				}
				out := map[string]any{"repo_root": a.Git.Root(), "git_repository": true}
				return render(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "git repository ready at %s\n", a.Git.Root())
				})
			})
		},
	}
}

func newXLSXCmd(opts *rootOptions) *cobra.Command {
	var since, outPath string
	cmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Export cobranças to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sincePtr *time.Time
			if since != "" {
				d, err := utils.ParseYMD(since)
				if err != nil {
					return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
				}
				sincePtr = &d
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				b, err := a.XLSX.ExportCobrancasXLSX(ctx, sincePtr)
				if err != nil {
					return err
				}
				if err := os.WriteFile(outPath, b, 0o644); err != nil {
					return err
				}
				out := map[string]any{"path": outPath, "bytes": len(b)}
				return render(cmd.OutOrStdout(), opts, out, func(w io.Writer) {
					fmt.Fprintf(w, "wrote %s (%d bytes)\n", outPath, len(b))
				})
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only cobranças updated since this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&outPath, "out", "cobrancas.xlsx", "output file")
	return cmd
}
