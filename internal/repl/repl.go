// Package repl is the interactive chat front end: a readline loop
// that classifies each message and routes it to the right role agent,
// with slash commands for session and KB management.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/curateops/curator/internal/agents"
	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/session"
	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/tracker"
)

// Config holds REPL configuration. Store is required; Tracker and AI
// may be nil, which degrades chat to retrieval and local commands.
type Config struct {
	Store   storage.Storage
	Tracker *tracker.Client
	AI      *ai.Supervisor
	// SessionID resumes an existing session; empty starts a new one.
	SessionID string
}

// REPL is the interactive shell.
type REPL struct {
	store     storage.Storage
	tracker   *tracker.Client
	ai        *ai.Supervisor
	sessions  *session.Manager
	registry  *agents.Registry
	sessionID string

	out io.Writer
	rl  *readline.Instance

	commands map[string]commandHandler
}

type commandHandler func(ctx context.Context, args []string) error

// errQuit signals a clean exit from the loop.
var errQuit = fmt.Errorf("quit")

// New creates the REPL.
func New(cfg *Config) (*REPL, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	r := &REPL{
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		ai:        cfg.AI,
		sessions:  session.NewManager(cfg.Store),
		sessionID: sessionID,
		out:       os.Stdout,
	}
	r.registry = agents.NewRegistry(agents.Deps{
		Store:    cfg.Store,
		Tracker:  cfg.Tracker,
		AI:       cfg.AI,
		WorkerID: "chat:" + sessionID,
	})
	r.registerCommands()
	return r, nil
}

// SessionID returns the session this REPL reads and writes.
func (r *REPL) SessionID() string { return r.sessionID }

// Run starts the interactive loop and blocks until quit or EOF.
func (r *REPL) Run(ctx context.Context) error {
	prompt := color.New(color.FgCyan).Sprint("curator> ")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      r.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(r.out, "\nGoodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(ctx, line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(r.out, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
		}
	}
}

// processInput dispatches one line: slash commands go to their
// handler, everything else is a chat message.
func (r *REPL) processInput(ctx context.Context, line string) error {
	if strings.HasPrefix(line, "/") {
		parts := strings.Fields(line)
		name := strings.TrimPrefix(parts[0], "/")
		handler, ok := r.commands[name]
		if !ok {
			return fmt.Errorf("unknown command /%s (try /help)", name)
		}
		return handler(ctx, parts[1:])
	}
	return r.handleMessage(ctx, line)
}

func (r *REPL) registerCommands() {
	r.commands = map[string]commandHandler{
		"help":    r.cmdHelp,
		"status":  r.cmdStatus,
		"kb":      r.cmdKB,
		"session": r.cmdSession,
		"clear":   r.cmdClear,
		"quit":    r.cmdQuit,
		"exit":    r.cmdQuit,
	}
}

func (r *REPL) completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/status"),
		readline.PcItem("/kb",
			readline.PcItem("list"),
			readline.PcItem("use"),
		),
		readline.PcItem("/session"),
		readline.PcItem("/clear"),
		readline.PcItem("/quit"),
	)
}

func (r *REPL) printWelcome() {
	bold := color.New(color.FgCyan, color.Bold)
	fmt.Fprintf(r.out, "\n%s\n", bold.Sprint("Curator — knowledge base agent swarm"))
	fmt.Fprintf(r.out, "Session %s\n", r.sessionID)
	if r.ai == nil {
		fmt.Fprintln(r.out, color.New(color.FgYellow).Sprint("No AI configured: chat is limited to retrieval and commands."))
	}
	fmt.Fprintln(r.out, "Ask for content, or use /help for commands.")
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdQuit(ctx context.Context, args []string) error {
	fmt.Fprintf(r.out, "%s Goodbye!\n", color.New(color.FgGreen).Sprint("✓"))
	return errQuit
}

func (r *REPL) cmdHelp(ctx context.Context, args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", color.New(color.FgCyan, color.Bold).Sprint("Commands:"))
	for _, c := range []struct{ name, desc string }{
		{"/status", "Worker instances, ready work, recent activity"},
		{"/kb list", "List knowledge bases"},
		{"/kb use <id>", "Make a knowledge base the session target"},
		{"/session", "Show session context and recent conversation"},
		{"/clear", "Clear this session"},
		{"/quit", "Exit"},
	} {
		fmt.Fprintf(r.out, "  %-16s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(r.out, "\nAnything else is chat:")
	fmt.Fprintln(r.out, "  'Create a knowledge base called Go Basics'")
	fmt.Fprintln(r.out, "  'Find the deployment guide'")
	fmt.Fprintln(r.out, "  'Plan the structure for onboarding docs'")
	fmt.Fprintln(r.out)
	return nil
}
