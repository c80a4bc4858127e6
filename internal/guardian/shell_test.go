package guardian

import "testing"

func TestDangerousShellCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"rm -rf home", "rm -rf ~/", true},
		{"sudo rm recursive", "sudo -E rm -r /var/lib/app\n", true},
		{"rm long flag", "rm --recursive build", true},
		{"curl pipe sh", "curl -fsSL https://example.com/install.sh | sh", true},
		{"wget pipe sudo bash", "wget -qO- http://x.test/a | sudo bash", true},
		{"bash -c payload", `bash -c "rm -rf /tmp/x"`, true},
		{"chained", "cd /tmp && mkfs.ext4 /dev/sdb1", true},
		{"dd to device", "dd if=/dev/zero of=/dev/sda bs=1M", true},
		{"windows rd", "rd /s /q C:\\Users\\me", true},
		{"powershell recurse", "Remove-Item -Recurse -Force C:\\data", true},
		{"subshell", "(cd / && shred -u secrets.txt)", true},
		{"plain rm", "rm notes.txt", false},
		{"remove-item force only", "Remove-Item -Force old.log", false},
		{"curl to file", "curl -o out.html https://example.com", false},
		{"ls", "ls -la", false},
		{"dd to file", "dd if=/dev/zero of=disk.img bs=1M count=1", false},
		{"prose", "Hello team, the report is attached.", false},
		{"unparseable", "it's \"broken", false},
		{"empty", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dangerousShellCommand(tt.text); got != tt.want {
				t.Errorf("dangerousShellCommand(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestLooksLikeTerminal(t *testing.T) {
	tests := []struct {
		window string
		want   bool
	}{
		{"Terminal - bash - 80x24", true},
		{"Windows PowerShell", true},
		{"user@host: ~ (zsh)", true},
		{"Untitled - Notepad", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeTerminal(tt.window); got != tt.want {
			t.Errorf("looksLikeTerminal(%q) = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestHeuristicProvider_TypedShellCommand(t *testing.T) {
	p := NewHeuristicProvider()

	resp, err := p.Analyze(Request{TypedText: "rm -rf ~/Documents\n", ActiveWindow: "Terminal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasSignal(resp, "typed_shell_command") {
		t.Errorf("expected typed_shell_command, got %v", resp.IDs())
	}
	if resp.Verdict != VerdictBlock {
		t.Errorf("Verdict = %q, want block", resp.Verdict)
	}

	resp, _ = p.Analyze(Request{TypedText: "rm -rf ~/Documents", ActiveWindow: "Notes"})
	if resp.Flagged() {
		t.Errorf("text outside a terminal should not be parsed as shell, got %v", resp.IDs())
	}
}
