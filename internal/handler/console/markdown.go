package console

import "github.com/charmbracelet/glamour"

// NewMarkdownRenderer renders assistant replies as terminal markdown.
func NewMarkdownRenderer(wordWrap int) (Renderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
}
