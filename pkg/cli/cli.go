// Package cli implements the interactive bigsh shell.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/bigsh/pkg/cmdline"
	"github.com/psaab/bigsh/pkg/cmdtree"
	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/logging"
	"github.com/psaab/bigsh/pkg/runconfig"
)

// Config wires a shell to its collaborators. Mutator, Logs and Invalidate
// are optional.
type Config struct {
	Generator  *runconfig.Generator
	Querier    datastore.Querier
	Mutator    datastore.Mutator
	Store      *configstore.Store
	Logs       *logging.Buffer
	Invalidate func()
	// Options is the base for every "show running-config".
	Options     runconfig.Options
	Out         io.Writer
	HistoryFile string
	Logger      *slog.Logger
}

// CLI is the interactive shell.
type CLI struct {
	rl         *readline.Instance
	g          *runconfig.Generator
	q          datastore.Querier
	mut        datastore.Mutator
	store      *configstore.Store
	logs       *logging.Buffer
	invalidate func()
	opts       runconfig.Options
	out        io.Writer
	histFile   string
	log        *slog.Logger
	hostname   string
	username   string
}

var errExit = errors.New("exit")

// New creates a shell.
func New(cfg Config) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "bigsh"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "admin"
	}
	c := &CLI{
		g:          cfg.Generator,
		q:          cfg.Querier,
		mut:        cfg.Mutator,
		store:      cfg.Store,
		logs:       cfg.Logs,
		invalidate: cfg.Invalidate,
		opts:       cfg.Options,
		out:        cfg.Out,
		histFile:   cfg.HistoryFile,
		log:        cfg.Logger,
		hostname:   hostname,
		username:   username,
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.store == nil {
		c.store = configstore.New(50, nil, c.log)
	}
	return c
}

// Run reads commands until exit or end of input.
func (c *CLI) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     c.histFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{c: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()
	c.rl = rl
	c.out = rl.Stdout()

	fmt.Fprintln(c.out, "bigsh - running-config shell")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}

// helpListener prints the completions for the text before the cursor when
// '?' is typed, and removes the '?'.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}
	clean := make([]rune, 0, len(line)-1)
	clean = append(clean, line[:pos-1]...)
	clean = append(clean, line[pos:]...)
	cands, _ := c.complete(string(clean[:pos-1]))
	if len(cands) == 0 {
		fmt.Fprintln(c.out, "  (no help available)")
	} else {
		cmdtree.WriteHelp(c.out, cands)
	}
	return clean, pos - 1, true
}

func (c *CLI) prompt() string {
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

// Execute runs one command line and writes its output. The error ends the
// shell only when it is the exit request.
func (c *CLI) Execute(ctx context.Context, input string) error {
	line, err := cmdline.Parse(input)
	if err != nil {
		return err
	}
	if len(line.Words) == 0 {
		return nil
	}
	resolved, err := cmdtree.Resolve(cmdtree.Tree, line.Args())
	if err != nil {
		return err
	}
	for i := range line.Words {
		line.Words[i].Text = resolved[i]
	}
	c.log.Debug("command", "line", input)

	out, err := c.dispatch(ctx, line.Words)
	if err != nil {
		return err
	}
	out, err = cmdline.Apply(out, line.Pipes)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		io.WriteString(c.out, strings.Join(out, "\n")+"\n")
	}
	return nil
}

func (c *CLI) dispatch(ctx context.Context, words []cmdline.Word) ([]string, error) {
	args := cmdline.Line{Words: words[1:]}
	switch words[0].Text {
	case "show":
		return c.handleShow(ctx, words[1:])
	case "set":
		return nil, c.handleSet(ctx, args)
	case "delete":
		return nil, c.handleDelete(ctx, args)
	case "save":
		return c.handleSave(ctx, args.Positional())
	case "clear":
		return c.handleClear(words[1:])
	case "help":
		cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.Tree))
		return nil, nil
	case "exit", "quit":
		return nil, errExit
	}
	return nil, fmt.Errorf("unknown command: %s", words[0].Text)
}

func (c *CLI) handleClear(words []cmdline.Word) ([]string, error) {
	if len(words) == 0 {
		return nil, errors.New("clear: specify log or cache")
	}
	switch words[0].Text {
	case "log":
		if c.logs == nil {
			return nil, errors.New("log buffer is disabled")
		}
		c.logs.Clear()
		return []string{"log buffer cleared"}, nil
	case "cache":
		if c.invalidate != nil {
			c.invalidate()
		}
		return []string{"datastore cache cleared"}, nil
	}
	return nil, fmt.Errorf("clear: unknown target %s", words[0].Text)
}

// SchemaPaths implements cmdtree.Env.
func (c *CLI) SchemaPaths() []string { return c.g.Model().Paths() }

// TopPaths implements cmdtree.Env.
func (c *CLI) TopPaths() []string { return c.g.TopPaths() }

// Snapshots implements cmdtree.Env with short snapshot ids.
func (c *CLI) Snapshots() []string {
	var out []string
	for _, s := range c.store.History().List() {
		out = append(out, shortID(s.ID))
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
