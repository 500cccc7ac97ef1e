package agent

// GeminiDetector recognizes the Gemini CLI's banner and prompt text.
type GeminiDetector struct {
	*textDetector
}

// NewGeminiDetector returns a detector for the Gemini CLI.
func NewGeminiDetector() *GeminiDetector {
	return &GeminiDetector{textDetector: newTextDetector(
		"gemini",
		[]string{"Welcome to Gemini CLI", "Gemini CLI v"},
		[]activityHint{
			{"Thinking", ActivityProcessing},
			{"Generating", ActivityGenerating},
			{"Calling tool", ActivityToolUse},
		},
	)}
}
