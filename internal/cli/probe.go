// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ownai/internal/config"
	"github.com/jeranaias/ownai/internal/ollama"
)

// =============================================================================
// PROBE
// =============================================================================

func newProbeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the configured server is reachable",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			m := a.monitor()
			_, err := m.Probe(cmd.Context(), target(a.cfg))
			a.println(a.r.Status(m.State().Status, err == nil))
			if err != nil {
				if hint := connectHint(err, "ownai probe"); hint != "" {
					a.println(a.r.Muted(hint))
				}
				return errors.Join(errReported, err)
			}
			return nil
		}),
	}
}

// connectHint suggests the next step after a failed connection attempt.
// retry is the command that repeats the attempt.
func connectHint(err error, retry string) string {
	switch {
	case ollama.IsConfigError(err):
		return "Fix it with `ownai config set server.address HOST` or `ownai config set server.port PORT`."
	case ollama.IsTimeout(err):
		return "The server did not answer in time. Check that it is not overloaded, then retry with `" + retry + "`."
	default:
		return ""
	}
}

// =============================================================================
// MODELS
// =============================================================================

func newModelsCommand(opts *rootOptions) *cobra.Command {
	var selectName string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models and show or change the selection",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			t := target(a.cfg)
			if selectName != "" {
				t.Model = selectName
			}

			names, selected, err := a.monitor().FetchModels(cmd.Context(), t)
			if err != nil {
				return err
			}
			if selectName != "" && selected != selectName {
				return fmt.Errorf("model %q is not available on %s:%s", selectName, t.Address, t.Port)
			}

			if len(names) == 0 {
				a.println(a.r.Muted("No models installed. Pull one with `ollama pull <model>`."))
			}
			for _, name := range names {
				if name == selected {
					a.printf("* %s\n", name)
				} else {
					a.printf("  %s\n", name)
				}
			}
			return a.persistSelection(selected)
		}),
	}
	cmd.Flags().StringVarP(&selectName, "select", "s", "", "select `NAME` and save it to the config file")
	return cmd
}

// persistSelection writes the selected model back to the config file when
// it differs from what the file holds. Environment overrides are not
// written.
func (a *app) persistSelection(selected string) error {
	raw, err := config.ReadFile(a.configPath)
	if err != nil {
		return err
	}
	if raw.Server.Model == selected {
		return nil
	}
	raw.Server.Model = selected
	if err := config.Save(raw, a.configPath); err != nil {
		return err
	}
	a.log.Info("model selection saved", "model", selected)
	return nil
}

// hasModel reports whether name is one of models.
func hasModel(models []string, name string) bool {
	return slices.Contains(models, name)
}
