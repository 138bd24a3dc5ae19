package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicler/internal/llm"
	"github.com/scrypster/chronicler/pkg/types"
)

func runPlotThread(t *testing.T, gen llm.TextGenerator, entities []*types.Entity, cfg AnalysisConfig) *AnalysisResult {
	t.Helper()
	a := NewPlotThreadAnalyzer(gen, llm.NewPacer(0))
	res, err := a.Analyze(context.Background(), BuildContext(entities), cfg)
	require.NoError(t, err)
	return res
}

// taggedEntities builds n entities sharing one tag.
func taggedEntities(n int, tag string) []*types.Entity {
	var out []*types.Entity
	for i := 0; i < n; i++ {
		e := testEntity(fmt.Sprintf("e%d", i), types.EntityTypeNPC, fmt.Sprintf("Cultist %d", i))
		e.Tags = []string{tag}
		out = append(out, e)
	}
	return out
}

func TestPlotThread_DisabledMakesNoCalls(t *testing.T) {
	gen := &mockGenerator{response: "Plot Thread: The Serpent Cult\nThey all serve the serpent."}
	cfg := DefaultAnalysisConfig()
	cfg.EnableAIAnalysis = false

	res := runPlotThread(t, gen, taggedEntities(5, "serpent-cult"), cfg)

	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 0, res.APICalls)
	assert.Equal(t, 0, gen.calls)
}

func TestPlotThread_NilGeneratorIsNoop(t *testing.T) {
	res := runPlotThread(t, nil, taggedEntities(5, "serpent-cult"), DefaultAnalysisConfig())

	assert.Empty(t, res.Suggestions)
	assert.Equal(t, 0, res.APICalls)
}

func TestPlotThread_TwoMemberGroupIgnored(t *testing.T) {
	gen := &mockGenerator{response: "Plot Thread: The Serpent Cult\nThey all serve the serpent."}

	res := runPlotThread(t, gen, taggedEntities(2, "serpent-cult"), DefaultAnalysisConfig())

	assert.Empty(t, res.Suggestions, "groups below three members are never analyzed")
	assert.Equal(t, 0, res.APICalls)
}

func TestPlotThread_TaggedGroupBecomesSuggestion(t *testing.T) {
	entities := taggedEntities(3, "serpent-cult")
	gen := &mockGenerator{response: "Plot Thread: The Serpent Cult Rises\nThree cultists are converging on the city."}

	res := runPlotThread(t, gen, entities, DefaultAnalysisConfig())

	assert.Equal(t, 1, res.APICalls)
	require.Len(t, res.Suggestions, 1)
	s := res.Suggestions[0]
	assert.Equal(t, "The Serpent Cult Rises", s.Title)
	assert.Equal(t, "Three cultists are converging on the city.", s.Description)
	assert.Len(t, s.AffectedEntityIDs, 3)
	require.NotNil(t, s.SuggestedAction)
	assert.Equal(t, types.ActionFlagForReview, s.SuggestedAction.ActionType)
	// Base 40 + size bonus 10 for a three-member group.
	assert.Equal(t, 50, s.RelevanceScore)
}

func TestPlotThread_NoResponseSkipsGroup(t *testing.T) {
	gen := &mockGenerator{response: "No, these entities do not form a coherent thread."}

	res := runPlotThread(t, gen, taggedEntities(4, "serpent-cult"), DefaultAnalysisConfig())

	assert.Equal(t, 1, res.APICalls)
	assert.Empty(t, res.Suggestions)
}

func TestPlotThread_DescriptionKeywordsCluster(t *testing.T) {
	var entities []*types.Entity
	for i := 0; i < 3; i++ {
		e := testEntity(fmt.Sprintf("e%d", i), types.EntityTypeNPC, fmt.Sprintf("Witness %d", i))
		e.Description = "Reported nightmares about a sunken lighthouse"
		entities = append(entities, e)
	}

	gen := &mockGenerator{response: "Plot Thread: The Sunken Lighthouse\nAll three dream of the same place."}
	res := runPlotThread(t, gen, entities, DefaultAnalysisConfig())

	assert.GreaterOrEqual(t, res.APICalls, 1)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "The Sunken Lighthouse", res.Suggestions[0].Title)
}

func TestPlotThread_RelevanceScoring(t *testing.T) {
	// Five members, densely linked, with a character and a faction.
	var entities []*types.Entity
	for i := 0; i < 5; i++ {
		et := types.EntityTypeNPC
		switch i {
		case 0:
			et = types.EntityTypeCharacter
		case 1:
			et = types.EntityTypeFaction
		}
		e := testEntity(fmt.Sprintf("e%d", i), et, fmt.Sprintf("Member %d", i))
		e.Tags = []string{"rebellion"}
		entities = append(entities, e)
	}
	// Link everyone to everyone after them: 10 edges over 5 members.
	for i := range entities {
		for j := i + 1; j < len(entities); j++ {
			entities[i].Links = append(entities[i].Links,
				link(entities[j].ID, entities[j].Type, "allied_with"))
		}
	}

	gen := &mockGenerator{response: "Plot Thread: The Rebellion\nA conspiracy binds them."}
	res := runPlotThread(t, gen, entities, DefaultAnalysisConfig())

	require.Len(t, res.Suggestions, 1)
	// 40 base + 20 size + 20 density + 10 character + 5 faction.
	assert.Equal(t, 95, res.Suggestions[0].RelevanceScore)
}

func TestPlotThread_StopsAtMaxSuggestions(t *testing.T) {
	var entities []*types.Entity
	for g := 0; g < 4; g++ {
		for i := 0; i < 3; i++ {
			e := testEntity(fmt.Sprintf("g%de%d", g, i), types.EntityTypeNPC, fmt.Sprintf("G%d Member %d", g, i))
			e.Tags = []string{fmt.Sprintf("theme-%d", g)}
			entities = append(entities, e)
		}
	}

	gen := &mockGenerator{response: "Plot Thread: Something\nDetails."}
	cfg := DefaultAnalysisConfig()
	cfg.MaxSuggestionsPerType = 2
	res := runPlotThread(t, gen, entities, cfg)

	assert.Len(t, res.Suggestions, 2)
	assert.Equal(t, 2, res.APICalls, "analysis stops once the cap is reached")
}

func TestParsePlotThreadResponse(t *testing.T) {
	title, desc, ok := parsePlotThreadResponse("Plot Thread: The Long Night\nDarkness spreads.\nHeed the signs.")
	require.True(t, ok)
	assert.Equal(t, "The Long Night", title)
	assert.Equal(t, "Darkness spreads. Heed the signs.", desc)

	title, desc, ok = parsePlotThreadResponse("A Gathering Storm\nThe factions are arming.")
	require.True(t, ok)
	assert.Equal(t, "A Gathering Storm", title, "first line is the title when no marker is present")
	assert.Equal(t, "The factions are arming.", desc)

	_, _, ok = parsePlotThreadResponse("no")
	assert.False(t, ok)

	_, _, ok = parsePlotThreadResponse("   ")
	assert.False(t, ok)

	longTitle, _, ok := parsePlotThreadResponse("Plot Thread: " + fmt.Sprintf("%0120d", 1))
	require.True(t, ok)
	assert.Len(t, longTitle, maxPlotThreadTitleLen)
}
