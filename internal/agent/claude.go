package agent

// ClaudeDetector recognizes the Claude Code CLI's banner and prompt text.
type ClaudeDetector struct {
	*textDetector
}

// NewClaudeDetector returns a detector for the Claude Code CLI.
func NewClaudeDetector() *ClaudeDetector {
	return &ClaudeDetector{textDetector: newTextDetector(
		"claude",
		[]string{"Welcome to Claude Code", "Claude Code v"},
		[]activityHint{
			{"Thinking…", ActivityProcessing},
			{"Generating", ActivityGenerating},
			{"Running tool", ActivityToolUse},
			{"(y/n)", ActivityAwaitingConfirmation},
		},
	)}
}
