package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/chronicler/pkg/types"
)

func TestTruncateForPrompt(t *testing.T) {
	assert.Equal(t, "short", TruncateForPrompt("short", 10))
	assert.Equal(t, "spaced", TruncateForPrompt("  spaced  ", 10), "trimmed before length check")

	long := strings.Repeat("a", 50)
	out := TruncateForPrompt(long, 10)
	assert.Equal(t, strings.Repeat("a", 10)+"...", out)

	assert.Equal(t, long, TruncateForPrompt(long, 0), "non-positive max disables truncation")
}

func TestRelationshipInferencePrompt(t *testing.T) {
	a := &types.Entity{Name: "Brenna", Type: types.EntityTypeNPC, Description: "A smuggler"}
	b := &types.Entity{Name: "Corin", Type: types.EntityTypeNPC, Description: "A customs officer"}

	prompt := RelationshipInferencePrompt(a, b)

	assert.Contains(t, prompt, "Brenna")
	assert.Contains(t, prompt, "Corin")
	assert.Contains(t, prompt, "A smuggler")
	assert.Contains(t, prompt, `"yes" or "no"`)
}

func TestRelationshipInferencePrompt_TruncatesLongDescriptions(t *testing.T) {
	a := &types.Entity{Name: "A", Type: types.EntityTypeNPC, Description: strings.Repeat("x", 500)}
	b := &types.Entity{Name: "B", Type: types.EntityTypeNPC, Description: "short"}

	prompt := RelationshipInferencePrompt(a, b)

	assert.NotContains(t, prompt, strings.Repeat("x", 300))
	assert.Contains(t, prompt, "...")
}

func TestPlotThreadPrompt(t *testing.T) {
	members := []*types.Entity{
		{Name: "Brenna", Type: types.EntityTypeNPC, Summary: "A smuggler with debts"},
		{Name: "Corin", Type: types.EntityTypeNPC, Description: "A customs officer hunting smugglers"},
	}

	prompt := PlotThreadPrompt("smuggling", members)

	assert.Contains(t, prompt, `"smuggling"`)
	assert.Contains(t, prompt, "A smuggler with debts", "summary preferred when present")
	assert.Contains(t, prompt, "A customs officer hunting smugglers", "description used when no summary")
	assert.Contains(t, prompt, "Plot Thread:")
}
