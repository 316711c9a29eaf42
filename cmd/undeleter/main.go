// Command undeleter runs the iMessage retraction reconciler: it polls
// a chat.db snapshot, detects unsent messages, and preserves their
// text and attachments to an append-only log and a permanent/
// directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/archerheffern/imessage-undeleter/internal/apperr"
	"github.com/archerheffern/imessage-undeleter/internal/config"
	"github.com/archerheffern/imessage-undeleter/internal/logger"
	"github.com/archerheffern/imessage-undeleter/internal/querycontext"
	"github.com/archerheffern/imessage-undeleter/internal/reconcile"
	"github.com/archerheffern/imessage-undeleter/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "undeleter",
		Short: "Detect and preserve retracted iMessages",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newDiagnoseCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconciler(cmd.Context())
		},
	}
}

// newDiagnoseCommand is a Collaborator stub: it resolves and prints
// Options without starting the engine, per the reconciler's argument
// semantics being out of scope. Nothing more belongs here.
func newDiagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print the resolved configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions()
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", opts)
			return nil
		},
	}
}

func buildOptions() (reconcile.Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return reconcile.Options{}, err
	}

	var qc querycontext.QueryContext
	if cfg.QueryLimit > 0 {
		qc.SetLimit(cfg.QueryLimit)
	}
	if len(cfg.SelectedChatIDs) > 0 {
		qc.SetSelectedChatIDs(cfg.SelectedChatIDs)
	}
	if len(cfg.SelectedHandleIDs) > 0 {
		qc.SetSelectedHandleIDs(cfg.SelectedHandleIDs)
	}

	return reconcile.Options{
		DBPath:                cfg.DBPath,
		ExportPath:            cfg.ExportPath,
		AttachmentRoot:        cfg.AttachmentRoot,
		Platform:              cfg.ResolvedPlatform(),
		BackupRoot:            cfg.BackupRoot,
		Query:                 qc,
		CustomName:            cfg.CustomName,
		UseCallerID:           cfg.UseCallerID,
		AttachmentManagerMode: cfg.ResolvedAttachmentManagerMode(),
		TickInterval:          time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		HomeDir:               cfg.HomeDir,
	}, nil
}

func runReconciler(ctx context.Context) error {
	opts, err := buildOptions()
	if err != nil {
		logger.FatalCF("main", "config load failed", map[string]any{"error": err.Error()})
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, opts.DBPath)
	if err != nil {
		logger.FatalCF("main", "database open failed", map[string]any{"error": err.Error()})
		return err
	}
	defer st.Close()

	logFile, err := os.OpenFile(opts.ExportPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.New(apperr.Config, "open export path", err)
	}
	defer logFile.Close()

	engine, err := reconcile.New(ctx, opts, st, logFile)
	if err != nil {
		logger.FatalCF("main", "engine init failed", map[string]any{"error": err.Error()})
		return err
	}

	logger.InfoCF("main", "reconciler starting", map[string]any{
		"db_path":     opts.DBPath,
		"export_path": opts.ExportPath,
		"platform":    opts.Platform.String(),
	})

	return engine.Run(ctx)
}
