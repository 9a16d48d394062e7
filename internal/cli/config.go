// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ownai/internal/config"
)

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings, including environment overrides",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(_ *cobra.Command, a *app, _ []string) error {
				return toml.NewEncoder(a.out).Encode(a.cfg)
			}),
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file path",
			Args:  cobra.NoArgs,
			RunE: withApp(opts, func(_ *cobra.Command, a *app, _ []string) error {
				a.println(a.configPath)
				return nil
			}),
		},
		&cobra.Command{
			Use:       "get KEY",
			Short:     "Print one effective setting",
			Args:      cobra.ExactArgs(1),
			ValidArgs: config.Keys(),
			RunE: withApp(opts, func(_ *cobra.Command, a *app, args []string) error {
				v, err := a.cfg.Get(args[0])
				if err != nil {
					return err
				}
				a.println(v)
				return nil
			}),
		},
		&cobra.Command{
			Use:       "set KEY VALUE",
			Short:     "Change one setting in the settings file",
			Args:      cobra.ExactArgs(2),
			ValidArgs: config.Keys(),
			RunE: withApp(opts, func(_ *cobra.Command, a *app, args []string) error {
				raw, err := config.ReadFile(a.configPath)
				if err != nil {
					return err
				}
				if err := raw.Set(args[0], args[1]); err != nil {
					return err
				}
				raw.SetDefaults()
				if err := raw.Validate(); err != nil {
					return err
				}
				if err := config.Save(raw, a.configPath); err != nil {
					return err
				}
				a.log.Info("setting changed", "key", args[0])
				a.printf("%s = %s\n", args[0], args[1])
				return nil
			}),
		},
	)
	return cmd
}
