package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/lunexa/internal/config"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("lunexa command failed", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "lunexa",
		Short:         "Reliability scoring for chat assistant answers",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.config/lunexa/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")

	root.AddCommand(newWatchCmd(g))
	root.AddCommand(newServeCmd(g))
	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newConfigCmd())
	return root
}

// load reads the configuration and installs the JSON logger on stderr.
func (g *globalFlags) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
