package guardian

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// maxShellDepth bounds recursion into "bash -c '...'" payloads.
const maxShellDepth = 3

var terminalWindowMarkers = []string{
	"terminal", "powershell", "command prompt", "cmd.exe", "bash", "zsh",
	"iterm", "konsole", "xterm", "console", "shell",
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
	"python": true, "python3": true, "perl": true, "ruby": true,
	"powershell": true, "pwsh": true, "iex": true,
}

var downloaders = map[string]bool{"curl": true, "wget": true, "iwr": true, "invoke-webrequest": true}

var diskTools = map[string]bool{
	"mkfs": true, "format": true, "fdisk": true, "diskpart": true, "shred": true,
	"wipefs": true, "shutdown": true, "reboot": true,
}

// shellCall is one simple command with sudo stripped and quotes removed.
type shellCall struct {
	name string
	args []string
}

// looksLikeTerminal reports whether the active window title names a shell.
func looksLikeTerminal(window string) bool {
	lower := strings.ToLower(window)
	for _, m := range terminalWindowMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// dangerousShellCommand parses text as a bash script and reports whether
// any command in it is destructive or runs a downloaded script. Text that
// does not parse is not a command.
func dangerousShellCommand(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return scriptIsDangerous(text, 0)
}

func scriptIsDangerous(text string, depth int) bool {
	if depth >= maxShellDepth {
		return false
	}
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(text), "")
	if err != nil {
		return false
	}
	for _, stmt := range file.Stmts {
		if stmtIsDangerous(stmt, depth) {
			return true
		}
	}
	return false
}

func stmtIsDangerous(stmt *syntax.Stmt, depth int) bool {
	if stmt == nil || stmt.Cmd == nil {
		return false
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return callIsDangerous(toShellCall(cmd), depth)
	case *syntax.BinaryCmd:
		if cmd.Op == syntax.Pipe && pipesDownloadIntoInterpreter(cmd) {
			return true
		}
		return stmtIsDangerous(cmd.X, depth) || stmtIsDangerous(cmd.Y, depth)
	case *syntax.Subshell:
		for _, s := range cmd.Stmts {
			if stmtIsDangerous(s, depth) {
				return true
			}
		}
	case *syntax.Block:
		for _, s := range cmd.Stmts {
			if stmtIsDangerous(s, depth) {
				return true
			}
		}
	}
	return false
}

// pipesDownloadIntoInterpreter matches "curl ... | sh" and its variants.
func pipesDownloadIntoInterpreter(pipe *syntax.BinaryCmd) bool {
	left, ok := lastCall(pipe.X)
	if !ok || !downloaders[left.name] {
		return false
	}
	right, ok := firstCall(pipe.Y)
	return ok && shellInterpreters[right.name]
}

func firstCall(stmt *syntax.Stmt) (shellCall, bool) {
	if stmt == nil {
		return shellCall{}, false
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return toShellCall(cmd), true
	case *syntax.BinaryCmd:
		return firstCall(cmd.X)
	}
	return shellCall{}, false
}

func lastCall(stmt *syntax.Stmt) (shellCall, bool) {
	if stmt == nil {
		return shellCall{}, false
	}
	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return toShellCall(cmd), true
	case *syntax.BinaryCmd:
		return lastCall(cmd.Y)
	}
	return shellCall{}, false
}

func callIsDangerous(c shellCall, depth int) bool {
	name := c.name
	switch {
	case name == "rm":
		return hasAnyFlag(c.args, "--recursive") || hasShortFlag(c.args, 'r', 'R')
	case name == "remove-item":
		return hasAnyFlag(c.args, "-recurse")
	case name == "del" || name == "rd" || name == "rmdir":
		return hasAnyFlag(c.args, "/s", "/S")
	case name == "dd":
		for _, a := range c.args {
			if strings.HasPrefix(a, "of=/dev/") {
				return true
			}
		}
	case diskTools[name] || strings.HasPrefix(name, "mkfs."):
		return true
	case shellInterpreters[name]:
		for i, a := range c.args {
			if (a == "-c" || a == "-Command") && i+1 < len(c.args) {
				return scriptIsDangerous(c.args[i+1], depth+1)
			}
		}
	}
	return false
}

func toShellCall(call *syntax.CallExpr) shellCall {
	words := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		words = append(words, wordToString(w))
	}
	for len(words) > 0 && words[0] == "sudo" {
		words = words[1:]
		for len(words) > 0 && strings.HasPrefix(words[0], "-") {
			words = words[1:]
		}
	}
	if len(words) == 0 {
		return shellCall{}
	}
	return shellCall{name: strings.ToLower(words[0]), args: words[1:]}
}

// wordToString prints a word and strips one level of quoting.
func wordToString(word *syntax.Word) string {
	if lit := word.Lit(); lit != "" {
		return lit
	}
	var sb strings.Builder
	if err := syntax.NewPrinter().Print(&sb, word); err != nil {
		return ""
	}
	s := sb.String()
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}

func hasAnyFlag(args []string, flags ...string) bool {
	for _, a := range args {
		for _, f := range flags {
			if strings.EqualFold(a, f) {
				return true
			}
		}
	}
	return false
}

// hasShortFlag matches bundled short flags such as -rf.
func hasShortFlag(args []string, letters ...rune) bool {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") || strings.HasPrefix(a, "--") {
			continue
		}
		for _, l := range letters {
			if strings.ContainsRune(a[1:], l) {
				return true
			}
		}
	}
	return false
}
