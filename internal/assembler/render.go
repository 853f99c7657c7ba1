package assembler

import (
	"strings"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/mode"
)

// Knowledge renders pool as the text substituted into a system prompt.
func Knowledge(pool memory.Pool) string {
	var b strings.Builder
	static := pool.Items(memory.KindStatic)
	if len(static) == 0 {
		b.WriteString("No drafts yet.")
	}
	for i, it := range static {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(it.Content)
	}
	section(&b, "User memories:", pool.Items(memory.KindProfile))
	section(&b, "Chat event memories:", pool.Items(memory.KindEvent))
	section(&b, "Artifact memories:", pool.Items(memory.KindArtifact))
	return b.String()
}

func section(b *strings.Builder, title string, items []memory.Item) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(title)
	for _, it := range items {
		b.WriteString("\n- ")
		b.WriteString(it.Content)
	}
}

// Render substitutes the rendered pool into prompt.
func Render(prompt string, pool memory.Pool) string {
	return strings.ReplaceAll(prompt, mode.KnowledgePlaceholder, Knowledge(pool))
}
