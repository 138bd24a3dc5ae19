package llm

import (
	"fmt"
	"strings"

	"github.com/scrypster/chronicler/pkg/types"
)

// maxPromptDescriptionChars bounds per-entity description text in prompts.
const maxPromptDescriptionChars = 200

// TruncateForPrompt shortens free text for inclusion in a prompt, appending
// an ellipsis when truncation occurred.
func TruncateForPrompt(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// RelationshipInferencePrompt asks for a yes/no judgment on whether two
// entities plausibly have a meaningful relationship. The response must start
// with "yes" or "no"; a "yes" should be followed by a one-sentence rationale.
func RelationshipInferencePrompt(a, b *types.Entity) string {
	return fmt.Sprintf(`You are reviewing a tabletop campaign codex.

Entity 1: %s (%s)
Description: %s

Entity 2: %s (%s)
Description: %s

Based only on these descriptions, is there likely a meaningful relationship between these two entities that the author forgot to record?

Answer with "yes" or "no" as the first word. If yes, follow with one sentence explaining the likely relationship.`,
		a.Name, a.Type, TruncateForPrompt(a.Description, maxPromptDescriptionChars),
		b.Name, b.Type, TruncateForPrompt(b.Description, maxPromptDescriptionChars))
}

// PlotThreadPrompt asks whether a themed group of entities forms a coherent
// narrative thread. Members are listed with name, type, and summary (or a
// truncated description when no summary exists).
func PlotThreadPrompt(theme string, members []*types.Entity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are reviewing a tabletop campaign codex. The following entities all share the theme %q:

`, theme)

	for _, m := range members {
		text := m.Summary
		if text == "" {
			text = TruncateForPrompt(m.Description, maxPromptDescriptionChars)
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", m.Name, m.Type, text)
	}

	sb.WriteString(`
Do these entities form a coherent plot thread the author may want to develop?

If not, answer "no".
If yes, answer in this format:
Plot Thread: <short title>
<one or two sentences describing the thread>`)

	return sb.String()
}
