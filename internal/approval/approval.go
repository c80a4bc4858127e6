// Package approval asks the operator at the terminal whether a paused
// action may run.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

type Prompt struct {
	SessionID      string
	ConfirmationID string
	Action         string
	Risk           string
	Reason         string
}

// Asker reads the answer from In and writes the prompt to Out.
type Asker struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts on stderr and reads stdin. Non-interactive sessions are
// denied without asking.
func Ask(p Prompt) Result {
	return Asker{In: os.Stdin, Out: os.Stderr, Interactive: IsInteractive}.Ask(p)
}

func (a Asker) Ask(p Prompt) Result {
	if a.Interactive != nil && !a.Interactive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}
	out := a.Out

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              ⚠️  CONFIRMATION REQUIRED                        ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Session: %s\n", p.SessionID)
	fmt.Fprintf(out, "Action:  %s\n", p.Action)
	if p.Risk != "" {
		fmt.Fprintf(out, "Risk:    %s\n", p.Risk)
	}
	if p.Reason != "" {
		fmt.Fprintf(out, "Reason:  %s\n", p.Reason)
	}
	if p.ConfirmationID != "" {
		fmt.Fprintf(out, "Token:   %s\n", p.ConfirmationID)
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  [a] Approve once - run this action")
	fmt.Fprintln(out, "  [d] Deny - stop the session here")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(a.In)

	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: "approve_once",
			}
		case "d", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: "deny",
			}
		default:
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
		}
	}
}
