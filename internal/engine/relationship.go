package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/chronicler/internal/llm"
	"github.com/scrypster/chronicler/pkg/types"
)

const (
	// maxAIRelationshipPairs bounds the AI inference pass.
	maxAIRelationshipPairs = 5

	// minAIDescriptionChars is the minimum description length for a pair
	// to be worth an inference call.
	minAIDescriptionChars = 30

	// aiRelationshipScore is the fixed relevance for AI-inferred links.
	aiRelationshipScore = 65

	// Common-location group bounds. Outside this range co-location is
	// too unreliable a signal.
	minLocationGroupSize = 2
	maxLocationGroupSize = 20

	// maxGroupMembersForPairs caps pair generation within one location
	// group to bound combinatorial growth.
	maxGroupMembersForPairs = 10
)

// RelationshipAnalyzer suggests missing links from text mentions, shared
// locations, and AI semantic inference.
type RelationshipAnalyzer struct {
	generator llm.TextGenerator
	pacer     *llm.Pacer
}

// NewRelationshipAnalyzer creates the analyzer. generator may be nil, which
// disables the AI pass regardless of configuration.
func NewRelationshipAnalyzer(generator llm.TextGenerator, pacer *llm.Pacer) *RelationshipAnalyzer {
	return &RelationshipAnalyzer{generator: generator, pacer: pacer}
}

func (a *RelationshipAnalyzer) Type() types.SuggestionType {
	return types.SuggestionTypeRelationship
}

// Analyze runs the three relationship passes in increasing cost order.
func (a *RelationshipAnalyzer) Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error) {
	start := time.Now()

	// suggested tracks pairs already covered by a cheaper pass so the AI
	// pass does not re-examine them.
	suggested := make(map[string]bool)

	var suggestions []types.Suggestion
	suggestions = append(suggestions, a.findTextMentions(actx, suggested)...)
	suggestions = append(suggestions, a.findSharedLocations(actx, suggested)...)

	apiCalls := 0
	if cfg.EnableAIAnalysis && a.generator != nil {
		aiSuggestions, calls := a.inferSemanticLinks(ctx, actx, suggested)
		suggestions = append(suggestions, aiSuggestions...)
		apiCalls = calls
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
		APICalls:       apiCalls,
	}, nil
}

// findTextMentions scans each entity's description and string fields for
// names of other entities it is not yet linked to.
func (a *RelationshipAnalyzer) findTextMentions(actx *Context, suggested map[string]bool) []types.Suggestion {
	var out []types.Suggestion

	for _, e := range actx.Entities {
		desc := strings.ToLower(e.Description)

		var fieldText strings.Builder
		for _, v := range e.Fields {
			if s, ok := v.(string); ok {
				fieldText.WriteString(strings.ToLower(s))
				fieldText.WriteString(" ")
			}
		}
		fields := fieldText.String()

		// Deterministic order over index keys.
		keys := make([]string, 0, len(actx.MentionedNames))
		for k := range actx.MentionedNames {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, name := range keys {
			inDesc := strings.Contains(desc, name)
			inField := strings.Contains(fields, name)
			if !inDesc && !inField {
				continue
			}

			for _, targetID := range actx.MentionedNames[name] {
				if targetID == e.ID {
					continue
				}
				target, ok := actx.EntityMap[targetID]
				if !ok {
					continue
				}
				pk := pairKey(e.ID, targetID)
				if suggested[pk] || actx.Relationships.Connected(e.ID, targetID) {
					continue
				}

				score := 60
				where := "a detail field"
				if inDesc {
					score += 10
					where = "its description"
				}
				if e.Type == types.EntityTypeCharacter || target.Type == types.EntityTypeCharacter {
					score += 10
				}

				suggested[pk] = true
				out = append(out, types.Suggestion{
					Type:  types.SuggestionTypeRelationship,
					Title: fmt.Sprintf("%s mentions %s", e.Name, target.Name),
					Description: fmt.Sprintf("%s mentions %q in %s but has no link to %s. Consider recording the relationship.",
						e.Name, name, where, target.Name),
					RelevanceScore:    score,
					AffectedEntityIDs: []string{e.ID, targetID},
				})
			}
		}
	}
	return out
}

// findSharedLocations proposes "knows" links between unconnected entities
// that share a location.
func (a *RelationshipAnalyzer) findSharedLocations(actx *Context, suggested map[string]bool) []types.Suggestion {
	byLocation := make(map[string][]string)
	for _, e := range actx.Entities {
		for _, loc := range actx.LocationsByEntity[e.ID] {
			byLocation[loc] = append(byLocation[loc], e.ID)
		}
	}

	locIDs := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locIDs = append(locIDs, loc)
	}
	sort.Strings(locIDs)

	var out []types.Suggestion
	for _, loc := range locIDs {
		members := byLocation[loc]
		if len(members) < minLocationGroupSize || len(members) > maxLocationGroupSize {
			continue
		}

		score := 60
		switch {
		case len(members) == minLocationGroupSize:
			score += 20
		case len(members) <= 5:
			score += 10
		}
		score = types.ClampScore(score)
		if score < 30 {
			score = 30
		}

		location, locKnown := actx.EntityMap[loc]

		pairMembers := members
		if len(pairMembers) > maxGroupMembersForPairs {
			pairMembers = pairMembers[:maxGroupMembersForPairs]
		}

		for i := 0; i < len(pairMembers); i++ {
			for j := i + 1; j < len(pairMembers); j++ {
				id1, id2 := pairMembers[i], pairMembers[j]
				pk := pairKey(id1, id2)
				if suggested[pk] || actx.Relationships.Connected(id1, id2) {
					continue
				}
				e1, ok1 := actx.EntityMap[id1]
				e2, ok2 := actx.EntityMap[id2]
				if !ok1 || !ok2 {
					continue
				}

				where := "the same location"
				if locKnown {
					where = location.Name
				}

				suggested[pk] = true
				out = append(out, types.Suggestion{
					Type:              types.SuggestionTypeRelationship,
					Title:             fmt.Sprintf("%s and %s share a location", e1.Name, e2.Name),
					Description:       fmt.Sprintf("%s and %s are both at %s but have no recorded relationship. They probably know each other.", e1.Name, e2.Name, where),
					RelevanceScore:    score,
					AffectedEntityIDs: []string{id1, id2},
					SuggestedAction: &types.SuggestedAction{
						ActionType: types.ActionCreateRelationship,
						ActionData: map[string]any{
							"source_id":     id1,
							"target_id":     id2,
							"relationship":  types.RelKnows,
							"bidirectional": true,
						},
					},
				})
			}
		}
	}
	return out
}

// inferSemanticLinks samples a handful of unlinked pairs with substantial
// descriptions and asks the generator whether a relationship exists. Call
// failures are logged and skipped.
func (a *RelationshipAnalyzer) inferSemanticLinks(ctx context.Context, actx *Context, suggested map[string]bool) ([]types.Suggestion, int) {
	type pair struct{ e1, e2 *types.Entity }
	var candidates []pair

	for i := 0; i < len(actx.Entities) && len(candidates) < maxAIRelationshipPairs; i++ {
		for j := i + 1; j < len(actx.Entities) && len(candidates) < maxAIRelationshipPairs; j++ {
			e1, e2 := actx.Entities[i], actx.Entities[j]
			if len(e1.Description) <= minAIDescriptionChars || len(e2.Description) <= minAIDescriptionChars {
				continue
			}
			if suggested[pairKey(e1.ID, e2.ID)] || actx.Relationships.Connected(e1.ID, e2.ID) {
				continue
			}
			candidates = append(candidates, pair{e1, e2})
		}
	}

	var out []types.Suggestion
	apiCalls := 0
	for _, p := range candidates {
		if a.pacer != nil {
			if err := a.pacer.Wait(ctx); err != nil {
				log.Printf("relationship: rate limit wait aborted: %v", err)
				break
			}
		}

		apiCalls++
		resp, err := a.generator.Complete(ctx, llm.RelationshipInferencePrompt(p.e1, p.e2), llm.CompleteOptions{Temperature: 0.7})
		if err != nil {
			log.Printf("relationship: inference call failed for %s/%s: %v", p.e1.ID, p.e2.ID, err)
			continue
		}

		answer := strings.ToLower(strings.TrimSpace(resp))
		if !strings.HasPrefix(answer, "yes") {
			continue
		}

		rationale := strings.TrimLeft(strings.TrimSpace(resp)[len("yes"):], ".,:;- ")
		if rationale == "" {
			rationale = "Their descriptions suggest a connection."
		}

		suggested[pairKey(p.e1.ID, p.e2.ID)] = true
		out = append(out, types.Suggestion{
			Type:              types.SuggestionTypeRelationship,
			Title:             fmt.Sprintf("%s and %s may be connected", p.e1.Name, p.e2.Name),
			Description:       rationale,
			RelevanceScore:    aiRelationshipScore,
			AffectedEntityIDs: []string{p.e1.ID, p.e2.ID},
			SuggestedAction: &types.SuggestedAction{
				ActionType: types.ActionCreateRelationship,
				ActionData: map[string]any{
					"source_id":     p.e1.ID,
					"target_id":     p.e2.ID,
					"relationship":  types.RelRelatedTo,
					"bidirectional": true,
				},
			},
		})
	}
	return out, apiCalls
}
