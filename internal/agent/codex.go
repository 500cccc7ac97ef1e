package agent

// CodexDetector recognizes the Codex CLI's banner and prompt text.
type CodexDetector struct {
	*textDetector
}

// NewCodexDetector returns a detector for the Codex CLI.
func NewCodexDetector() *CodexDetector {
	return &CodexDetector{textDetector: newTextDetector(
		"codex",
		[]string{"OpenAI Codex", "Codex CLI v"},
		[]activityHint{
			{"Thinking", ActivityProcessing},
			{"Generating", ActivityGenerating},
			{"Running", ActivityToolUse},
		},
	)}
}
