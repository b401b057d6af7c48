package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/justinpbarnett/devcompanion/internal/api"
	"github.com/justinpbarnett/devcompanion/internal/config"
	"github.com/justinpbarnett/devcompanion/internal/executor"
	"github.com/justinpbarnett/devcompanion/internal/git"
	"github.com/justinpbarnett/devcompanion/internal/logging"
	"github.com/justinpbarnett/devcompanion/internal/remote"
	"github.com/justinpbarnett/devcompanion/internal/safety"
	"github.com/justinpbarnett/devcompanion/internal/session"
	"github.com/justinpbarnett/devcompanion/internal/tail"
)

const batchBuffer = 64

type watchFlags struct {
	events     bool
	noRemote   bool
	debounceMS int
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var wf watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail transcript files and report sessions (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, wf)
		},
	}
	cmd.Flags().BoolVar(&wf.events, "events", false, "print diagnostic events to stdout as JSON lines")
	cmd.Flags().BoolVar(&wf.noRemote, "no-remote", false, "skip remote command execution after a session ends")
	cmd.Flags().IntVar(&wf.debounceMS, "debounce-ms", 0, "override the response debounce window")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globalFlags, wf watchFlags) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if wf.noRemote {
		off := false
		cfg.Remote.Enabled = &off
	}
	if wf.debounceMS > 0 {
		cfg.Session.DebounceMS = wf.debounceMS
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	dir, err := cfg.WatchDir()
	if err != nil {
		return fmt.Errorf("resolve watch directory: %w", err)
	}

	engineOpts, err := engineOptions(cfg, logger)
	if err != nil {
		return err
	}
	if wf.events {
		engineOpts.Emitter = newEventPrinter(cmd.OutOrStdout())
	} else {
		engineOpts.Emitter = session.LogEmitter(logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := tail.NewWatcher(dir, tail.NewTailer(tail.NewRegistry()), tail.Options{
		Scanner:      tail.Scanner{Pattern: cfg.Watch.Pattern, IgnorePrefixes: cfg.Watch.IgnorePrefixes},
		ScanInterval: cfg.ScanInterval(),
		Logger:       logger,
	})
	engine := session.NewEngine(api.NewClientFromConfig(cfg), engineOpts)

	logger.Info("devcompanion starting",
		"dir", dir,
		"api", cfg.API.BaseURL,
		"remote", cfg.RemoteEnabled(),
		"debounce", cfg.DebounceWindow())

	batches := make(chan tail.Batch, batchBuffer)
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer close(batches)
		return watcher.Run(gctx, batches)
	})
	grp.Go(func() error {
		return engine.Run(gctx, batches)
	})

	err = grp.Wait()
	logger.Info("devcompanion stopped", "state", engine.Snapshot().State.String())
	return err
}

// engineOptions wires the optional collaborators the config enables.
func engineOptions(cfg *config.Config, logger *slog.Logger) (session.Options, error) {
	opts := session.Options{
		DebounceWindow:     cfg.DebounceWindow(),
		MaxStartBatchLines: cfg.Session.MaxStartBatchLines,
		PromptLimit:        cfg.Session.PromptLimit,
		Logger:             logger,
	}
	if cfg.RemoteEnabled() {
		runner, err := newRunner(cfg, logger)
		if err != nil {
			return opts, err
		}
		opts.Executor = remote.NewClientFromConfig(cfg, runner, logger)
	}
	if cfg.GitInfoEnabled() {
		opts.Inspect = git.Inspect
	}
	return opts, nil
}

func newRunner(cfg *config.Config, logger *slog.Logger) (*executor.Runner, error) {
	guard, err := safety.NewGuard(cfg.Executor.BlockedPatterns)
	if err != nil {
		return nil, fmt.Errorf("blocked patterns: %w", err)
	}
	logger.Debug("command guard ready", "patterns", guard.Matcher().Len())
	return executor.NewRunner(cfg.Executor, guard, logger), nil
}
