// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const rootLongDesc string = `rigchat is a terminal chat client for hosted language models.

It keeps one conversation per session, streams each reply as it arrives,
and accepts pasted images as context. Type "clear" to start over.

Examples:
  rigchat                              Start the TUI
  rigchat chat --model sonnet          Chat on the command line
  rigchat config set model.max_tokens 2048`

const rootShortDesc string = "Terminal chat client for hosted language models"

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	model      string
	provider   string
	debug      bool
}

// NewRootCmd builds the rigchat command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "rigchat",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to a config file (default ~/.rigchat/config.toml)")
	pf.StringVarP(&flags.model, "model", "m", "", "Model name or alias (overrides config)")
	pf.StringVarP(&flags.provider, "provider", "p", "", "Provider: "+strings.Join(cloud.Providers(), " or ")+" (overrides config)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newTUICmd(flags),
		newChatCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command with signal-aware context and returns the
// process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// =============================================================================
// CONFIG RESOLUTION
// =============================================================================

// loadConfig reads the configuration named by --config, or the default
// location, and applies the flag overrides.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFromPath(config.ExpandPath(f.configPath))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := f.apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply layers the flag overrides over cfg and revalidates it.
func (f *rootFlags) apply(cfg *config.Config) error {
	if f.model != "" {
		cfg.Model.Name = f.model
	}
	if f.provider != "" {
		cfg.Model.Provider = strings.ToLower(strings.TrimSpace(f.provider))
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// watchPath returns the config file to follow for live reload, or "" if
// there is none on disk.
func (f *rootFlags) watchPath() string {
	if f.configPath != "" {
		return config.ExpandPath(f.configPath)
	}
	for _, pathFn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rigchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
