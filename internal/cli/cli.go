// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ownai/internal/config"
	"github.com/jeranaias/ownai/internal/connection"
	"github.com/jeranaias/ownai/internal/logging"
	"github.com/jeranaias/ownai/internal/render"
	"github.com/jeranaias/ownai/internal/session"
	"github.com/jeranaias/ownai/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// errReported marks an error whose message was already shown to the user.
var errReported = errors.New("reported")

// =============================================================================
// ROOT COMMAND
// =============================================================================

type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	chatCmd := newChatCommand(opts)

	root := &cobra.Command{
		Use:           "ownai",
		Short:         "Chat with models served by a local Ollama",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          chatCmd.RunE,
	}
	root.Flags().AddFlagSet(chatCmd.Flags())

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.ownai/config.toml)")
	pf.StringVarP(&opts.logLevel, "log-level", "l", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		chatCmd,
		newProbeCommand(opts),
		newModelsCommand(opts),
		newSessionsCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is the per-invocation wiring shared by all commands.
type app struct {
	configPath string
	dir        string
	cfg        *config.Config

	log      *slog.Logger
	closeLog func() error
	store    storage.Store

	out io.Writer
	r   *render.Renderer
}

func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	path := opts.configPath
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFromPath(path, ".env")
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	dir := filepath.Dir(path)
	logger, closeLog, err := logging.Open(cfg.Logging, cfg.LogPath(dir))
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	color := !opts.noColor && colorsEnabled(out)
	applyColorProfile(color)

	logger.Debug("starting", "command", cmd.CommandPath(), "config", path, "version", Version)
	return &app{
		configPath: path,
		dir:        dir,
		cfg:        cfg,
		log:        logger,
		closeLog:   closeLog,
		out:        out,
		r:          render.New(color, TerminalWidth()),
	}, nil
}

// sessions opens the configured store and the session manager over it.
func (a *app) sessions(ctx context.Context) (*session.Manager, error) {
	if a.store == nil {
		store, err := storage.Open(a.cfg.Storage.Backend, a.cfg.StoragePath(a.dir), a.dir, a.log)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		a.store = store
	}
	return session.Open(ctx, a.store, session.WithLogger(a.log))
}

func (a *app) monitor() *connection.Monitor {
	return connection.NewMonitor(
		connection.WithLogger(a.log),
		connection.WithClientConfig(a.cfg.ClientConfig()),
	)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing session store", "error", err)
		}
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// target snapshots the server settings for one attempt.
func target(cfg *config.Config) connection.Target {
	return connection.Target{
		Address: cfg.Server.Address,
		Port:    cfg.Server.Port,
		Model:   cfg.Server.Model,
	}
}

// withApp adapts a command body that needs the wiring.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
