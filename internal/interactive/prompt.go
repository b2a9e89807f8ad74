// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/adamancini/launchkit/internal/plan"
	"github.com/adamancini/launchkit/internal/types"
)

// titleCase capitalizes the first letter of a string.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseYes  Response = iota // Proceed with this change
	ResponseNo                   // Skip this change
	ResponseAll                  // Approve all remaining changes
	ResponseQuit                 // Abort interactive mode
)

// Prompter handles interactive prompts for plan confirmation.
type Prompter struct {
	in         io.Reader
	out        io.Writer
	scanner    *bufio.Scanner
	approveAll bool
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt displays a question and reads the response.
func (p *Prompter) prompt(format string, args ...interface{}) Response {
	if p.approveAll {
		return ResponseYes
	}

	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n/a/q] ")

	if !p.scanner.Scan() {
		return ResponseQuit
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return ResponseYes
	case "n", "no":
		return ResponseNo
	case "a", "all":
		p.approveAll = true
		return ResponseYes
	case "q", "quit":
		return ResponseQuit
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(p.out, "Invalid response, skipping.")
		return ResponseNo
	}
}

// Confirm asks a yes/no question. EOF and anything but yes mean no.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n] ")
	if !p.scanner.Scan() {
		return false
	}
	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	return input == "y" || input == "yes"
}

// PromptForSelection walks the deletions of a plan and asks about each one.
// Transfers are always kept. It returns the plan with declined deletions
// removed, and whether to proceed.
func (p *Prompter) PromptForSelection(pl *plan.Plan) (*plan.Plan, bool) {
	deletions := pl.Deletions()
	approved := make(map[string]bool, len(deletions))
	skipped := 0

	if len(deletions) > 0 {
		_, _ = fmt.Fprintf(p.out, "\n%s: local files not on the server:\n", pl.DirName)
	}
	for _, it := range deletions {
		ok, quit := p.promptItem(it)
		if quit {
			return nil, false
		}
		approved[it.Path] = ok
		if !ok {
			skipped++
		}
	}

	filtered := FilterPlanBySelection(pl, approved)

	_, _ = fmt.Fprintln(p.out, "\nSummary:")
	_, _ = fmt.Fprintf(p.out, "  Will apply: %d changes\n", len(filtered.Items))
	if skipped > 0 {
		_, _ = fmt.Fprintf(p.out, "  Skipped: %d\n", skipped)
	}

	if filtered.Empty() {
		_, _ = fmt.Fprintln(p.out, "No changes selected.")
		return filtered, false
	}

	if !p.Confirm("\nProceed with update?") {
		_, _ = fmt.Fprintln(p.out, "Aborted.")
		return filtered, false
	}

	return filtered, true
}

// promptItem prompts for a single plan item.
func (p *Prompter) promptItem(it plan.Item) (approved bool, quit bool) {
	verb := actionVerb(it.Action)
	path := it.Path
	if it.Dir {
		path += "/"
	}
	_, _ = fmt.Fprintf(p.out, "  %s %s (%s)\n", it.Action.Symbol(), path, humanize.IBytes(uint64(it.Size)))

	resp := p.prompt("    -> %s %s?", titleCase(verb), path)
	switch resp {
	case ResponseYes:
		return true, false
	case ResponseNo:
		_, _ = fmt.Fprintf(p.out, "    %s Skipped\n", skipSymbol)
		return false, false
	case ResponseQuit:
		_, _ = fmt.Fprintln(p.out, "\nAborted.")
		return false, true
	default:
		return true, false
	}
}

const skipSymbol = "-"

// actionVerb returns the verb for a plan action.
func actionVerb(action types.Action) string {
	switch action {
	case types.ActionFetch:
		return "fetch"
	case types.ActionReplace:
		return "replace"
	case types.ActionDelete:
		return "delete"
	default:
		return ""
	}
}

// FilterPlanBySelection returns a copy of pl without the deletions that were
// not approved.
func FilterPlanBySelection(pl *plan.Plan, approved map[string]bool) *plan.Plan {
	filtered := &plan.Plan{DirName: pl.DirName, Items: make([]plan.Item, 0, len(pl.Items))}
	for _, it := range pl.Items {
		if it.Action == types.ActionDelete && !approved[it.Path] {
			continue
		}
		filtered.Items = append(filtered.Items, it)
	}
	return filtered
}
