package backend

import (
	"os/exec"
	"strings"
)

// BuildTmuxSpawnArgs builds the tmux invocation that launches command
// in a new pane or window named after the teammate.
func BuildTmuxSpawnArgs(command, name string, windows bool) []string {
	if windows {
		return []string{
			"tmux", "new-window", "-dP", "-F", "#{window_id}",
			"-n", "@claude-team | " + name,
			command,
		}
	}
	return []string{"tmux", "split-window", "-dP", "-F", "#{pane_id}", command}
}

// RunTmuxSpawn executes the spawn command and returns the pane or
// window id tmux printed via -P -F.
func RunTmuxSpawn(args []string) (string, error) {
	cmd := exec.Command(args[0], args[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// KillTmuxTarget tears down the pane or window hosting a teammate.
// Window ids start with "@"; anything else is treated as a pane id.
// Callers log a failure and carry on: a teammate whose pane already
// exited should not block team cleanup.
func KillTmuxTarget(targetID string) error {
	if strings.HasPrefix(targetID, "@") {
		return exec.Command("tmux", "kill-window", "-t", targetID).Run()
	}
	return exec.Command("tmux", "kill-pane", "-t", targetID).Run()
}

// BuildClaudeSpawnCommand renders the shell command line that starts a
// local claude-backed teammate process inside its tmux target.
func BuildClaudeSpawnCommand(claudeBinary, agentID, name, teamName, color, leadSessionID, agentType, model string, planModeRequired bool, cwd string) string {
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellQuote(cwd))
	b.WriteString(" && CLAUDECODE=1 CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS=1 ")
	b.WriteString(shellQuote(claudeBinary))
	b.WriteString(" --agent-id ")
	b.WriteString(shellQuote(agentID))
	b.WriteString(" --agent-name ")
	b.WriteString(shellQuote(name))
	b.WriteString(" --team-name ")
	b.WriteString(shellQuote(teamName))
	b.WriteString(" --agent-color ")
	b.WriteString(shellQuote(color))
	b.WriteString(" --parent-session-id ")
	b.WriteString(shellQuote(leadSessionID))
	b.WriteString(" --agent-type ")
	b.WriteString(shellQuote(agentType))
	b.WriteString(" --model ")
	b.WriteString(shellQuote(model))
	if planModeRequired {
		b.WriteString(" --plan-mode-required")
	}
	return b.String()
}

// BuildOpencodeAttachCommand renders the shell command that attaches a
// terminal to an already-running opencode session.
func BuildOpencodeAttachCommand(opencodeBinary, serverURL, sessionID, cwd string) string {
	var b strings.Builder
	b.WriteString(shellQuote(opencodeBinary))
	b.WriteString(" attach ")
	b.WriteString(shellQuote(serverURL))
	b.WriteString(" -s ")
	b.WriteString(shellQuote(sessionID))
	b.WriteString(" --dir ")
	b.WriteString(shellQuote(cwd))
	return b.String()
}

// shellQuote is a minimal POSIX single-quote escaper for the argument
// shapes this package produces (paths, ids, model names — never
// strings containing a single quote in practice, but escaped
// correctly regardless).
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
