// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/access"
	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
)

const configLongDesc string = `Show and change rigchat configuration.

The configuration lives in ~/.rigchat/config.toml unless --config names
another file. Keys use dot notation matching the file sections.

Examples:
  rigchat config show
  rigchat config get model.name
  rigchat config set model.max_tokens 2048
  rigchat config hash-key --save
  rigchat config totp-secret --account me@laptop --save`

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change configuration",
		Long:  configLongDesc,
	}
	cmd.AddCommand(
		newConfigShowCmd(flags),
		newConfigPathCmd(flags),
		newConfigGetCmd(flags),
		newConfigSetCmd(flags),
		newConfigInitCmd(flags),
		newConfigHashKeyCmd(flags),
		newConfigTOTPCmd(flags),
	)
	return cmd
}

// configFile returns the file config commands read and write.
func (f *rootFlags) configFile() (string, error) {
	if f.configPath != "" {
		return config.ExpandPath(f.configPath), nil
	}
	return config.ConfigPathTOML()
}

// loadFileConfig reads only the config file over the defaults, without
// environment or flag overrides, so a save writes back what the user wrote.
func (f *rootFlags) loadFileConfig() (*config.Config, string, error) {
	path, err := f.configFile()
	if err != nil {
		return nil, "", err
	}
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if strings.HasSuffix(path, ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return nil, "", err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}
	return cfg, path, nil
}

// saveFileConfig validates cfg and writes it to path in its format.
func saveFileConfig(cfg *config.Config, path string) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

// =============================================================================
// SHOW / PATH / GET / SET / INIT
// =============================================================================

func newConfigShowCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, cfg.String())
				return nil
			}
			text, err := cfg.TOML()
			if err != nil {
				return err
			}
			return writeHighlighted(out, text, "toml", out == io.Writer(os.Stdout) && ColorsEnabled())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// writeHighlighted prints src, syntax-highlighted when color is wanted.
func writeHighlighted(w io.Writer, src, lexer string, color bool) error {
	if color {
		if err := quick.Highlight(w, src, lexer, "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := io.WriteString(w, src)
	return err
}

func newConfigPathCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := flags.configFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigGetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Long:  "Print one configuration value.\n\nKeys:\n  " + strings.Join(config.GetAllKeys(), "\n  "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			val, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			if config.IsSecretKey(args[0]) {
				s, _ := val.(string)
				val = cloud.MaskKey(s)
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}
}

func newConfigSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value and save",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := flags.loadFileConfig()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := saveFileConfig(cfg, path); err != nil {
				return err
			}
			shown := args[1]
			if config.IsSecretKey(args[0]) {
				shown = cloud.MaskKey(shown)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", commandStyle.Render("[OK]"), args[0], shown)
			return nil
		},
	}
}

func newConfigInitCmd(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := flags.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := saveFileConfig(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", commandStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// =============================================================================
// ACCESS SECRETS
// =============================================================================

func newConfigHashKeyCmd(flags *rootFlags) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Hash a shared access key for access.key_hash",
		Long: `Hash a shared access key for access.key_hash.

The key is read without echo on a terminal, or as one line from stdin.
With --save the hash is stored and access.mode is set to "key".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt := terminalPrompter
			if !IsTTY() {
				prompt = readerPrompter(newPlainReader(cmd.InOrStdin()), cmd.ErrOrStderr())
			}
			key, err := prompt("New access key: ")
			if err != nil {
				return err
			}
			hash, err := access.HashKey(strings.TrimSpace(key))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !save {
				fmt.Fprintln(out, hash)
				return nil
			}
			return saveAccess(flags, out, func(cfg *config.Config) {
				cfg.Access.Mode = config.AccessKey
				cfg.Access.KeyHash = hash
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Store the hash and enable key access")
	return cmd
}

func newConfigTOTPCmd(flags *rootFlags) *cobra.Command {
	var (
		account string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "totp-secret",
		Short: "Generate a TOTP secret for an authenticator app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account == "" {
				account = defaultAccount()
			}
			key, err := access.NewTOTPKey(account)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Secret:"), key.Secret())
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("URL:"), key.URL())
			if !save {
				return nil
			}
			return saveAccess(flags, out, func(cfg *config.Config) {
				cfg.Access.Mode = config.AccessTOTP
				cfg.Access.TOTPSecret = key.Secret()
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account name shown in the authenticator (default user@host)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the secret and enable TOTP access")
	return cmd
}

func saveAccess(flags *rootFlags, out io.Writer, edit func(*config.Config)) error {
	cfg, path, err := flags.loadFileConfig()
	if err != nil {
		return err
	}
	edit(cfg)
	if err := saveFileConfig(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s access.mode = %s in %s\n", commandStyle.Render("[OK]"), cfg.Access.Mode, path)
	return nil
}

func defaultAccount() string {
	name := "rigchat"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		name += "@" + host
	}
	return name
}
