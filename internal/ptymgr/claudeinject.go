package ptymgr

import (
	"path/filepath"

	"github.com/google/uuid"
)

// IsClaudeCommand reports whether command launches the Claude CLI,
// matching on the basename so absolute paths (/usr/local/bin/claude)
// are recognized the same as a bare "claude".
func IsClaudeCommand(command string) bool {
	return filepath.Base(command) == "claude"
}

// HasSessionID reports whether args already carries a --session-id or
// --resume flag.
func HasSessionID(args []string) bool {
	for _, a := range args {
		if a == "--session-id" || a == "--resume" {
			return true
		}
	}
	return false
}

// InjectionResult is the outcome of InjectClaudeSessionID.
type InjectionResult struct {
	Args      []string
	SessionID string
	Injected  bool
}

// InjectClaudeSessionID generates a fresh session ID and prepends
// `--session-id <uuid>` to args when command launches Claude without
// an explicit --session-id or --resume, per spec.md §4.6's "the daemon
// inspects a child command line... injects a freshly generated UUID."
func InjectClaudeSessionID(command string, args []string) InjectionResult {
	if !IsClaudeCommand(command) || HasSessionID(args) {
		return InjectionResult{Args: args}
	}

	sessionID := uuid.New().String()
	newArgs := make([]string, 0, len(args)+2)
	newArgs = append(newArgs, "--session-id", sessionID)
	newArgs = append(newArgs, args...)

	return InjectionResult{Args: newArgs, SessionID: sessionID, Injected: true}
}

// ResumeCommand builds the argv to resume a previously injected Claude
// session: `claude --resume <sessionID>`.
func ResumeCommand(sessionID string) (string, []string) {
	return "claude", []string{"--resume", sessionID}
}

// ExtractSessionIDFromArgs finds the value following --session-id or
// --resume in args, if any. A flag with no following value, or one
// immediately followed by another flag, yields no result.
func ExtractSessionIDFromArgs(args []string) (string, bool) {
	for i, a := range args {
		if a != "--session-id" && a != "--resume" {
			continue
		}
		if i+1 >= len(args) {
			return "", false
		}
		value := args[i+1]
		if len(value) > 0 && value[0] == '-' {
			return "", false
		}
		return value, true
	}
	return "", false
}
