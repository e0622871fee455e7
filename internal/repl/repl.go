package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/manavm/pixstudio/internal/autosave"
	"github.com/manavm/pixstudio/internal/coordinator"
	"github.com/manavm/pixstudio/internal/history"
	"github.com/manavm/pixstudio/internal/media"
	"github.com/manavm/pixstudio/internal/state"
	"github.com/manavm/pixstudio/internal/storage"
	"github.com/manavm/pixstudio/internal/usage"
	"github.com/manavm/pixstudio/pkg/models"
)

type REPL struct {
	in     io.Reader
	out    io.Writer
	errW   io.Writer
	coord  *coordinator.Coordinator
	state  *state.Store
	ledger *history.Ledger
	saver  *media.Saver
	saved  *autosave.Autosaver
	kv     *storage.Store
	usage  *usage.Recorder

	commands        map[string]Command
	running         bool
	noticeDismissed bool

	errColor     *color.Color
	refusalColor *color.Color
	dimColor     *color.Color
}

type Config struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	Coordinator *coordinator.Coordinator
	State       *state.Store
	Ledger      *history.Ledger
	Saver       *media.Saver
	Autosaver   *autosave.Autosaver
	Storage     *storage.Store
	Usage       *usage.Recorder
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:           cfg.In,
		out:          cfg.Out,
		errW:         cfg.Err,
		coord:        cfg.Coordinator,
		state:        cfg.State,
		ledger:       cfg.Ledger,
		saver:        cfg.Saver,
		saved:        cfg.Autosaver,
		kv:           cfg.Storage,
		usage:        cfg.Usage,
		commands:     make(map[string]Command),
		errColor:     color.New(color.FgRed),
		refusalColor: color.New(color.FgCyan),
		dimColor:     color.New(color.Faint),
	}
	if !isTerminal(cfg.Out) {
		color.NoColor = true
	}
	r.registerCommands()
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	r.offerRestore(scanner)
	r.printWelcome()

	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.errW, "Error: %v\n", err)
		}
		r.printBanner()
	}

	return scanner.Err()
}

// offerRestore shows the pending autosave snapshot once and applies it
// only if the user confirms. Declining discards it either way.
func (r *REPL) offerRestore(scanner *bufio.Scanner) {
	snap, ok := r.saved.Pending()
	if !ok {
		return
	}
	prompt := snap.Prompt
	if len(prompt) > 60 {
		prompt = prompt[:57] + "..."
	}
	fmt.Fprintf(r.out, "An unsaved session was found (prompt: %q).\n", prompt)
	fmt.Fprint(r.out, "Restore it? [y/N] ")
	if !scanner.Scan() {
		return
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer == "y" || answer == "yes" {
		if err := r.saved.Restore(snap); err != nil {
			fmt.Fprintf(r.errW, "Error: restore failed: %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "Session restored. Prompt and settings are back; media is regenerated on demand.")
		return
	}
	_ = r.saved.Discard()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "pixstudio interactive studio")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	if !r.noticeDismissed {
		r.dimColor.Fprintln(r.out, "Note: autosave keeps prompts and settings, not generated media.")
		r.noticeDismissed = true
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	mode := models.DeriveOperationMode(r.state.SelectedCount(), r.state.EditSource() != nil)
	if r.coord.IsBusy() {
		fmt.Fprintf(r.out, "pixstudio (busy)> ")
		return
	}
	fmt.Fprintf(r.out, "pixstudio [%s]> ", mode)
}

// printBanner renders the coordinator's single error-or-refusal banner.
// Refusals are conversational, not faults, and read differently.
func (r *REPL) printBanner() {
	banner := r.coord.Banner()
	if banner == nil {
		return
	}
	switch banner.Kind {
	case coordinator.BannerRefusal:
		r.refusalColor.Fprintf(r.out, "model: %s\n", banner.Text)
	default:
		r.errColor.Fprintf(r.errW, "error: %s (type 'dismiss' to clear)\n", banner.Text)
	}
}

// reportOpError maps coordinator errors onto UI behavior: busy and
// precondition failures block quietly with a hint, the capacity case is
// a blocking warning the user must act on.
func (r *REPL) reportOpError(err error) {
	if err == nil {
		return
	}
	switch {
	case err == coordinator.ErrBusy:
		r.dimColor.Fprintln(r.out, "Another operation is still running.")
	case err == history.ErrCapacityExceeded:
		r.errColor.Fprintf(r.errW, "History is full (%d items). Delete entries or 'history clear' before generating.\n", history.MaxItems)
	default:
		// Other precondition failures; backend failures already raised
		// a banner.
		if models.Classify(err) == models.FailureUnclassified && !models.IsRefusal(err) {
			r.dimColor.Fprintf(r.out, "%v\n", err)
		}
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
