// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ownai/internal/chat"
	"github.com/jeranaias/ownai/internal/config"
	"github.com/jeranaias/ownai/internal/connection"
	"github.com/jeranaias/ownai/internal/model"
	"github.com/jeranaias/ownai/internal/ollama"
	"github.com/jeranaias/ownai/internal/session"
)

type chatOptions struct {
	sessionRef string
	render     bool
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	copts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			return runChat(cmd.Context(), a, copts)
		}),
	}
	cmd.Flags().StringVarP(&copts.sessionRef, "session", "s", "", "resume session `ID` (a unique prefix is enough)")
	cmd.Flags().BoolVarP(&copts.render, "render", "r", false, "render finished replies as markdown instead of streaming raw text")
	return cmd
}

// =============================================================================
// REPL STATE
// =============================================================================

// repl is the interactive chat loop minus the line editor, so commands
// can be driven from tests.
type repl struct {
	a          *app
	sessions   *session.Manager
	monitor    *connection.Monitor
	controller *chat.Controller
	provider   *config.Provider

	render bool
	outMu  sync.Mutex
}

func newREPL(ctx context.Context, a *app, mgr *session.Manager, copts *chatOptions) (*repl, error) {
	r := &repl{
		a:        a,
		sessions: mgr,
		monitor:  a.monitor(),
		provider: config.NewProvider(a.cfg),
		render:   copts.render,
	}

	if copts.sessionRef != "" {
		s, err := resolve(mgr, copts.sessionRef)
		if err != nil {
			return nil, err
		}
		if err := mgr.SwitchTo(ctx, s.ID); err != nil {
			return nil, err
		}
	}

	c, err := chat.New(ctx, mgr, chat.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	r.controller = c
	return r, nil
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.a.out, format, args...)
}

func (r *repl) println(args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.a.out, args...)
}

// connect probes, fetches models and points the controller at the
// result. Only the latest call wins when several overlap.
func (r *repl) connect(ctx context.Context, cfg *config.Config) {
	state, err := r.monitor.Connect(ctx, target(cfg))
	if errors.Is(err, connection.ErrSuperseded) {
		return
	}
	r.println(r.a.r.Status(state.Status, err == nil))
	if err != nil {
		if hint := connectHint(err, "/probe"); hint != "" {
			r.println(r.a.r.Muted(hint))
		}
		r.controller.SetTarget(nil, "")
		return
	}

	client, err := ollama.NewClientWithConfig(cfg.Server.Address, cfg.Server.Port, cfg.ClientConfig())
	if err != nil {
		r.controller.SetTarget(nil, "")
		return
	}
	r.controller.SetTarget(client, state.Selected)
	if state.Selected == "" {
		r.println(r.a.r.Status("No models available. Pull one with `ollama pull <model>`.", false))
		return
	}
	if state.Selected != cfg.Server.Model {
		r.println(r.a.r.Muted("Using model " + state.Selected + "."))
		if err := r.a.persistSelection(state.Selected); err != nil {
			r.a.log.Warn("could not save model selection", "error", err)
		}
	}
}

// onConfigChange reconnects when the server moved and re-selects when
// only the model changed.
func (r *repl) onConfigChange(ctx context.Context, old, cur *config.Config) {
	if old.Server.Address != cur.Server.Address || old.Server.Port != cur.Server.Port ||
		old.Chat != cur.Chat {
		r.println()
		r.println(r.a.r.Muted("Settings changed, reconnecting..."))
		r.connect(ctx, cur)
		return
	}
	if old.Server.Model != cur.Server.Model {
		state := r.monitor.State()
		if hasModel(state.Models, cur.Server.Model) && r.controller.Model() != cur.Server.Model {
			client, err := ollama.NewClientWithConfig(cur.Server.Address, cur.Server.Port, cur.ClientConfig())
			if err == nil {
				r.controller.SetTarget(client, cur.Server.Model)
				r.println()
				r.println(r.a.r.Muted("Model switched to " + cur.Server.Model + "."))
			}
		}
	}
}

// =============================================================================
// TURNS
// =============================================================================

// replyPrinter streams one reply to the output as it grows.
type replyPrinter struct {
	r       *repl
	id      string
	mu      sync.Mutex
	printed int
	failed  bool
}

func (p *replyPrinter) update(m model.Message) {
	if m.ID != p.id || p.r.render {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.IsError() {
		if !p.failed {
			p.failed = true
			if p.printed > 0 {
				p.r.println()
			}
			p.r.printf("%s", p.r.a.r.Error(m.Content))
		}
		return
	}
	if len(m.Content) > p.printed {
		p.r.printf("%s", m.Content[p.printed:])
		p.printed = len(m.Content)
	}
}

// send runs one turn to completion. interrupt cancels the reply.
func (r *repl) send(ctx context.Context, prompt string, interrupt <-chan os.Signal) error {
	turn, err := r.controller.Send(ctx, prompt)
	if err != nil {
		return err
	}
	store := r.controller.Store()
	printer := &replyPrinter{r: r, id: turn.ReplyID}
	unsubscribe := store.Subscribe(func(ch model.Change) { printer.update(ch.Message) })
	defer unsubscribe()

	if r.render {
		r.println(r.a.r.Muted("..."))
	}

	select {
	case <-turn.Done():
	case <-interrupt:
		r.controller.Cancel()
		r.println()
		r.println(r.a.r.Muted("[Cancelled]"))
	case <-ctx.Done():
		r.controller.Cancel()
	}

	final, ok := store.Get(turn.ReplyID)
	if !ok {
		return nil
	}
	if r.render {
		r.println(r.a.r.Message(final))
		return nil
	}
	printer.update(final)
	r.println()
	if final.Stats != "" {
		r.println(r.a.r.Stats(final.Stats))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const chatHelp = `Commands:
  /new              start a new session
  /sessions         list sessions
  /switch ID        switch to a session
  /rename TITLE     rename the current session (empty resets)
  /delete ID        delete a session
  /export PATH      export the current session (.json, .yaml, .md)
  /import PATH      import a session and switch to it
  /models [NAME]    list models or select one
  /probe            reconnect to the server
  /help             show this help
  /quit             leave
Ctrl+C cancels a reply in progress.`

// command runs one slash command. It reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		r.println(chatHelp)

	case "/new":
		if _, err := r.controller.NewSession(ctx); err != nil {
			return false, err
		}
		r.println(r.a.r.Muted("Started a new session."))

	case "/sessions", "/ls":
		r.outMu.Lock()
		writeSessionList(r.a.out, r.sessions)
		r.outMu.Unlock()

	case "/switch":
		s, err := resolve(r.sessions, arg)
		if err != nil {
			return false, err
		}
		if err := r.controller.SwitchSession(ctx, s.ID); err != nil {
			return false, err
		}
		r.showCurrent()

	case "/rename":
		if err := r.sessions.Rename(ctx, r.controller.SessionID(), arg); err != nil {
			return false, err
		}
		s, _ := r.sessions.Get(r.controller.SessionID())
		r.println(r.a.r.Muted("Session is now " + fmt.Sprintf("%q", s.DisplayTitle()) + "."))

	case "/delete":
		s, err := resolve(r.sessions, arg)
		if err != nil {
			return false, err
		}
		if err := r.sessions.Delete(ctx, s.ID); err != nil {
			return false, err
		}
		if err := r.controller.Sync(ctx); err != nil {
			return false, err
		}
		r.println(r.a.r.Muted("Deleted " + shortID(s.ID) + "."))

	case "/export":
		if arg == "" {
			return false, errors.New("usage: /export PATH")
		}
		s, ok := r.sessions.Get(r.controller.SessionID())
		if !ok {
			return false, session.ErrSessionNotFound
		}
		if err := r.sessions.ExportToFile(s, arg); err != nil {
			return false, err
		}
		r.println(r.a.r.Muted("Exported to " + arg + "."))

	case "/import":
		if arg == "" {
			return false, errors.New("usage: /import PATH")
		}
		id, err := r.sessions.ImportFromFile(ctx, arg)
		if err != nil {
			return false, err
		}
		if err := r.controller.Sync(ctx); err != nil {
			return false, err
		}
		r.println(r.a.r.Muted("Imported as " + shortID(id) + "."))
		r.showCurrent()

	case "/models":
		return false, r.models(ctx, arg)

	case "/probe":
		r.connect(ctx, r.provider.Current())

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (r *repl) models(ctx context.Context, name string) error {
	cfg := r.provider.Current()
	t := target(cfg)
	t.Model = r.controller.Model()
	if name != "" {
		t.Model = name
	}
	names, selected, err := r.monitor.FetchModels(ctx, t)
	if err != nil {
		return err
	}
	if name != "" {
		if selected != name {
			return fmt.Errorf("model %q is not available", name)
		}
		client, err := ollama.NewClientWithConfig(cfg.Server.Address, cfg.Server.Port, cfg.ClientConfig())
		if err != nil {
			return err
		}
		r.controller.SetTarget(client, name)
		if err := r.a.persistSelection(name); err != nil {
			return err
		}
	}
	for _, n := range names {
		mark := " "
		if n == r.controller.Model() {
			mark = "*"
		}
		r.printf("%s %s\n", mark, n)
	}
	return nil
}

// showCurrent prints the title and transcript of the attached session.
func (r *repl) showCurrent() {
	s, ok := r.sessions.Get(r.controller.SessionID())
	if !ok {
		return
	}
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.a.out, r.a.r.Muted("Session: "+s.DisplayTitle()))
	writeTranscript(r.a.out, r.a.r, s.Messages)
}

// =============================================================================
// MAIN LOOP
// =============================================================================

func runChat(ctx context.Context, a *app, copts *chatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr, err := a.sessions(ctx)
	if err != nil {
		return err
	}
	r, err := newREPL(ctx, a, mgr, copts)
	if err != nil {
		return err
	}
	defer r.controller.Close()

	watcher := config.NewWatcher(a.configPath, r.provider,
		config.WithWatchLogger(a.log),
		config.WithDotenv(".env"),
		config.OnChange(func(old, cur *config.Config) { r.onConfigChange(ctx, old, cur) }),
	)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			a.log.Warn("config watcher stopped", "error", err)
		}
	}()

	r.println(a.r.Muted(fmt.Sprintf("ownai %s. Type /help for commands.", Version)))
	r.showCurrent()
	r.connect(ctx, r.provider.Current())

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyFile := filepath.Join(a.dir, "chat_history")
	loadHistory(line, historyFile)
	defer saveHistory(line, historyFile, a)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		input, err := line.Prompt("ownai> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin all end the session.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				a.log.Warn("reading input", "error", err)
			}
			r.println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		// Drop a stale interrupt from before this turn.
		select {
		case <-interrupt:
		default:
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				r.println(a.r.Error("Error: " + err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, input, interrupt); err != nil {
			r.println(a.r.Error("Error: " + chatError(err)))
		}
	}
}

// chatError explains why a prompt could not be sent.
func chatError(err error) string {
	switch {
	case errors.Is(err, chat.ErrNoModel):
		return "No model selected. Use /models NAME."
	case errors.Is(err, chat.ErrNotConfigured):
		return "Not connected. Check the server settings and use /probe."
	default:
		return err.Error()
	}
}

func loadHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

func saveHistory(line *liner.State, path string, a *app) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		a.log.Warn("saving chat history", "error", err)
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
