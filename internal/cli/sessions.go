// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/render"
	"github.com/jeranaias/ownai/internal/session"
)

// shortIDLen is how much of an ID list views show. Any unique prefix is
// accepted as input.
const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// =============================================================================
// SESSIONS
// =============================================================================

func newSessionsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved chat sessions",
	}

	// sessionCmd builds a subcommand that needs the session manager.
	sessionCmd := func(use, short string, args cobra.PositionalArgs, fn func(cmd *cobra.Command, a *app, m *session.Manager, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
				m, err := a.sessions(cmd.Context())
				if err != nil {
					return err
				}
				return fn(cmd, a, m, args)
			}),
		}
	}

	cmd.AddCommand(
		sessionCmd("list", "List sessions", cobra.NoArgs,
			func(_ *cobra.Command, a *app, m *session.Manager, _ []string) error {
				writeSessionList(a.out, m)
				return nil
			}),

		sessionCmd("show ID", "Print a session transcript", cobra.ExactArgs(1),
			func(_ *cobra.Command, a *app, m *session.Manager, args []string) error {
				s, err := resolve(m, args[0])
				if err != nil {
					return err
				}
				a.println(a.r.Muted(fmt.Sprintf("%s  %s", s.DisplayTitle(), s.CreatedAt.Local().Format("2006-01-02 15:04"))))
				writeTranscript(a.out, a.r, s.Messages)
				return nil
			}),

		sessionCmd("rename ID TITLE", "Set a session title; an empty title resets it", cobra.MinimumNArgs(1),
			func(cmd *cobra.Command, a *app, m *session.Manager, args []string) error {
				s, err := resolve(m, args[0])
				if err != nil {
					return err
				}
				if err := m.Rename(cmd.Context(), s.ID, strings.Join(args[1:], " ")); err != nil {
					return err
				}
				renamed, _ := m.Get(s.ID)
				a.printf("Renamed %s to %q\n", shortID(s.ID), renamed.DisplayTitle())
				return nil
			}),

		sessionCmd("delete ID", "Delete a session", cobra.ExactArgs(1),
			func(cmd *cobra.Command, a *app, m *session.Manager, args []string) error {
				s, err := resolve(m, args[0])
				if err != nil {
					return err
				}
				if err := m.Delete(cmd.Context(), s.ID); err != nil {
					return err
				}
				a.printf("Deleted %s\n", shortID(s.ID))
				return nil
			}),

		sessionCmd("export ID PATH", "Write a session to .json, .yaml or .md", cobra.ExactArgs(2),
			func(_ *cobra.Command, a *app, m *session.Manager, args []string) error {
				s, err := resolve(m, args[0])
				if err != nil {
					return err
				}
				if err := m.ExportToFile(s, args[1]); err != nil {
					return err
				}
				a.printf("Exported %s to %s\n", shortID(s.ID), args[1])
				return nil
			}),

		sessionCmd("import PATH", "Import a session from .json or .yaml and make it current", cobra.ExactArgs(1),
			func(cmd *cobra.Command, a *app, m *session.Manager, args []string) error {
				id, err := m.ImportFromFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.printf("Imported %s as %s\n", args[0], shortID(id))
				return nil
			}),
	)
	return cmd
}

func resolve(m *session.Manager, ref string) (model.Session, error) {
	id, err := m.Resolve(ref)
	if err != nil {
		return model.Session{}, err
	}
	s, ok := m.Get(id)
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", session.ErrSessionNotFound, ref)
	}
	return s, nil
}

// writeSessionList prints one line per session, current one starred.
func writeSessionList(w io.Writer, m *session.Manager) {
	current := m.CurrentID()
	sessions := m.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	for _, s := range sessions {
		mark := " "
		if s.ID == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %3d msgs  %s\n",
			mark,
			shortID(s.ID),
			runewidth.FillRight(s.DisplayTitle(), model.TitleWidth),
			len(s.Messages),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
}

// writeTranscript prints finished messages separated by blank lines.
func writeTranscript(w io.Writer, r *render.Renderer, msgs []model.Message) {
	for _, m := range msgs {
		fmt.Fprintln(w)
		fmt.Fprintln(w, r.Message(m))
	}
}
