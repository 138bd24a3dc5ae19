package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/chronicler/pkg/types"
)

// typeBaseImportance drives the importance score's type component.
var typeBaseImportance = map[string]int{
	types.EntityTypeCharacter: 40,
	types.EntityTypeNPC:       30,
	types.EntityTypeFaction:   30,
	types.EntityTypeLocation:  25,
	types.EntityTypeItem:      20,
	types.EntityTypeSession:   15,
}

const defaultBaseImportance = 20

// importanceTags mark an entity as significant regardless of its type.
var importanceTags = []string{"important", "major", "player", "key"}

// orphanExemptTypes are naturally unconnected and never flagged as orphans.
var orphanExemptTypes = map[string]bool{
	types.EntityTypeSession:       true,
	types.EntityTypeTimelineEvent: true,
	types.EntityTypeNote:          true,
}

// requiredFieldsByType lists the core fields each built-in type should
// carry. Types absent from the table (including custom types) are exempt
// from the completeness check.
var requiredFieldsByType = map[string][]string{
	types.EntityTypeCharacter: {"class", "level", "alignment", "background"},
	types.EntityTypeNPC:       {"role", "location"},
	types.EntityTypeLocation:  {"region", "type"},
	types.EntityTypeFaction:   {"leader", "headquarters", "goals"},
	types.EntityTypeItem:      {"rarity", "value"},
}

// EnhancementAnalyzer flags sparse, orphaned, summary-less and incomplete
// entities. All heuristics are pure; it makes no external calls.
type EnhancementAnalyzer struct{}

func NewEnhancementAnalyzer() *EnhancementAnalyzer {
	return &EnhancementAnalyzer{}
}

func (a *EnhancementAnalyzer) Type() types.SuggestionType {
	return types.SuggestionTypeEnhancement
}

// Analyze runs the four enhancement heuristics per entity.
func (a *EnhancementAnalyzer) Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error) {
	start := time.Now()

	var suggestions []types.Suggestion
	for _, e := range actx.Entities {
		importance := importanceScore(actx, e)

		if s := a.checkSparsity(e); s != nil {
			suggestions = append(suggestions, *s)
		}
		if s := a.checkMissingSummary(e, importance); s != nil {
			suggestions = append(suggestions, *s)
		}
		if s := a.checkOrphan(actx, e, importance); s != nil {
			suggestions = append(suggestions, *s)
		}
		if s := a.checkMissingFields(e, importance); s != nil {
			suggestions = append(suggestions, *s)
		}
	}

	if len(suggestions) > cfg.MaxSuggestionsPerType {
		sort.SliceStable(suggestions, func(i, j int) bool {
			return suggestions[i].RelevanceScore > suggestions[j].RelevanceScore
		})
		suggestions = suggestions[:cfg.MaxSuggestionsPerType]
	}

	return &AnalysisResult{
		Type:           a.Type(),
		Suggestions:    suggestions,
		AnalysisTimeMs: time.Since(start).Milliseconds(),
		APICalls:       0,
	}, nil
}

// sparsityScore rates how underdeveloped an entity is, 0 to 100.
func sparsityScore(e *types.Entity) int {
	score := 0
	desc := strings.TrimSpace(e.Description)
	switch {
	case len(desc) == 0:
		score += 60
	case len(desc) < 20:
		score += 40
	case len(desc) < 50:
		score += 20
	}
	switch {
	case len(e.Fields) == 0:
		score += 30
	case len(e.Fields) <= 2:
		score += 15
	}
	if len(e.Tags) == 0 {
		score += 10
	}
	return types.ClampScore(score)
}

// importanceScore rates how central an entity is, 0 to 100.
func importanceScore(actx *Context, e *types.Entity) int {
	score, ok := typeBaseImportance[e.Type]
	if !ok {
		score = defaultBaseImportance
	}

	degBonus := actx.Relationships.Degree(e.ID) * 5
	if degBonus > 30 {
		degBonus = 30
	}
	score += degBonus

	for _, tag := range importanceTags {
		if e.HasTag(tag) {
			score += 20
			break
		}
	}
	if len(e.Description) > 200 {
		score += 10
	}
	return types.ClampScore(score)
}

func (a *EnhancementAnalyzer) checkSparsity(e *types.Entity) *types.Suggestion {
	score := sparsityScore(e)
	if score < 50 {
		return nil
	}

	var hints []string
	if len(strings.TrimSpace(e.Description)) < 50 {
		hints = append(hints, "expand the description")
	}
	if len(e.Fields) <= 2 {
		hints = append(hints, "fill in detail fields")
	}
	if len(e.Tags) == 0 {
		hints = append(hints, "add tags")
	}

	return &types.Suggestion{
		Type:              types.SuggestionTypeEnhancement,
		Title:             fmt.Sprintf("%s needs more detail", e.Name),
		Description:       fmt.Sprintf("%s has very little recorded about it. To make it usable at the table, %s.", e.Name, strings.Join(hints, " and ")),
		RelevanceScore:    score,
		AffectedEntityIDs: []string{e.ID},
		SuggestedAction: &types.SuggestedAction{
			ActionType: types.ActionUpdateEntity,
			ActionData: map[string]any{
				"entity_id":      e.ID,
				"missing_fields": missingRequiredFields(e),
			},
		},
	}
}

func (a *EnhancementAnalyzer) checkMissingSummary(e *types.Entity, importance int) *types.Suggestion {
	if importance <= 50 || e.Summary != "" || e.HasTag("minor") {
		return nil
	}
	return &types.Suggestion{
		Type:              types.SuggestionTypeEnhancement,
		Title:             fmt.Sprintf("%s has no summary", e.Name),
		Description:       fmt.Sprintf("%s looks important but has no summary. A short summary makes it easier to reference during play.", e.Name),
		RelevanceScore:    importance * 6 / 10,
		AffectedEntityIDs: []string{e.ID},
	}
}

func (a *EnhancementAnalyzer) checkOrphan(actx *Context, e *types.Entity, importance int) *types.Suggestion {
	if orphanExemptTypes[e.Type] {
		return nil
	}
	if actx.Relationships.Degree(e.ID) > 0 {
		return nil
	}

	relevance := importance * 7 / 10
	if relevance < 40 {
		relevance = 40
	}
	return &types.Suggestion{
		Type:              types.SuggestionTypeEnhancement,
		Title:             fmt.Sprintf("%s is not connected to anything", e.Name),
		Description:       fmt.Sprintf("%s has no links to or from any other entity. Connect it to the people, places or factions it belongs with.", e.Name),
		RelevanceScore:    relevance,
		AffectedEntityIDs: []string{e.ID},
	}
}

func (a *EnhancementAnalyzer) checkMissingFields(e *types.Entity, importance int) *types.Suggestion {
	missing := missingRequiredFields(e)
	if len(missing) == 0 {
		return nil
	}

	relevance := 50 + importance*6/10
	if relevance > 85 {
		relevance = 85
	}
	return &types.Suggestion{
		Type:              types.SuggestionTypeEnhancement,
		Title:             fmt.Sprintf("%s is missing core fields", e.Name),
		Description:       fmt.Sprintf("%s is missing: %s.", e.Name, strings.Join(missing, ", ")),
		RelevanceScore:    relevance,
		AffectedEntityIDs: []string{e.ID},
		SuggestedAction: &types.SuggestedAction{
			ActionType: types.ActionUpdateEntity,
			ActionData: map[string]any{
				"entity_id":      e.ID,
				"missing_fields": missing,
			},
		},
	}
}

// missingRequiredFields returns the required fields the entity lacks.
// Types without a schema entry return nil.
func missingRequiredFields(e *types.Entity) []string {
	required, ok := requiredFieldsByType[e.Type]
	if !ok {
		return nil
	}
	var missing []string
	for _, f := range required {
		if !e.HasField(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
