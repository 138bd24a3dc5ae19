package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/chronicler/pkg/types"
)

// Relevance scores for inconsistency findings, tunable per finding type.
const (
	scoreLocationConflict   = 75
	scoreStatusConflict     = 70
	scoreExactNameDuplicate = 85
	scoreSimilarName        = 65
	scoreSharedKeyword      = 60
	scoreAsymmetricLink     = 80
)

// nameSimilarityThreshold is the normalized Levenshtein similarity above
// which two entity names are considered likely duplicates.
const nameSimilarityThreshold = 0.85

// InconsistencyConfig holds the keyword tables the inconsistency passes
// consult. Kept as data rather than inline constants so campaigns with
// different conventions can extend them.
type InconsistencyConfig struct {
	// InactiveStatuses are fields.status values and tags that mark an
	// entity as no longer active.
	InactiveStatuses []string

	// PastTenseVerbs are relationship keywords that mark a link as
	// intentionally historical.
	PastTenseVerbs []string

	// GroupTags are tags whose presence on both entities of a
	// similar-name pair marks the resemblance as intentional.
	GroupTags []string
}

// DefaultInconsistencyConfig returns the standard keyword tables.
func DefaultInconsistencyConfig() InconsistencyConfig {
	return InconsistencyConfig{
		InactiveStatuses: []string{"deceased", "disbanded", "destroyed", "inactive"},
		PastTenseVerbs:   []string{"served", "was", "were", "had", "met", "knew", "worked", "fought", "loved", "hated"},
		GroupTags:        []string{"family", "house", "clan", "guild", "order", "siblings", "twins"},
	}
}

// InconsistencyAnalyzer detects location conflicts, status conflicts, name
// duplicates and relationship asymmetry. It makes no external calls.
type InconsistencyAnalyzer struct {
	cfg InconsistencyConfig
}

// NewInconsistencyAnalyzer creates an analyzer with the given keyword
// tables.
func NewInconsistencyAnalyzer(cfg InconsistencyConfig) *InconsistencyAnalyzer {
	return &InconsistencyAnalyzer{cfg: cfg}
}

func (a *InconsistencyAnalyzer) Type() types.SuggestionType {
	return types.SuggestionTypeInconsistency
}

// Analyze runs the four inconsistency passes over the context.
func (a *InconsistencyAnalyzer) Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error) {
	start := time.Now()

	var suggestions []types.Suggestion
	suggestions = append(suggestions, a.findLocationConflicts(actx)...)
	suggestions = append(suggestions, a.findStatusConflicts(actx)...)
	suggestions = append(suggestions, a.findNameDuplicates(actx)...)
	suggestions = append(suggestions, a.findAsymmetricLinks(actx)...)

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

// findLocationConflicts flags entities linked to two or more locations,
// unless every pair of those locations is hierarchically nested.
func (a *InconsistencyAnalyzer) findLocationConflicts(actx *Context) []types.Suggestion {
	var out []types.Suggestion
	for _, e := range actx.Entities {
		locs := actx.LocationsByEntity[e.ID]
		if len(locs) < 2 {
			continue
		}

		conflict := false
		for i := 0; i < len(locs) && !conflict; i++ {
			for j := i + 1; j < len(locs); j++ {
				if !a.locationsNested(actx, locs[i], locs[j]) {
					conflict = true
					break
				}
			}
		}
		if !conflict {
			continue
		}

		names := make([]string, 0, len(locs))
		affected := []string{e.ID}
		for _, id := range locs {
			if loc, ok := actx.EntityMap[id]; ok {
				names = append(names, loc.Name)
				affected = append(affected, id)
			}
		}

		out = append(out, types.Suggestion{
			Type:  types.SuggestionTypeInconsistency,
			Title: fmt.Sprintf("%s is linked to multiple locations", e.Name),
			Description: fmt.Sprintf("%s is linked to %d locations (%s) that are not nested within each other. Consider removing outdated location links.",
				e.Name, len(locs), strings.Join(names, ", ")),
			RelevanceScore:    scoreLocationConflict,
			AffectedEntityIDs: affected,
		})
	}
	return out
}

// locationsNested reports whether one of the two locations contains the
// other via a located_in or part_of link, checked in both directions.
func (a *InconsistencyAnalyzer) locationsNested(actx *Context, locA, locB string) bool {
	return hasContainmentLink(actx, locA, locB) || hasContainmentLink(actx, locB, locA)
}

func hasContainmentLink(actx *Context, from, to string) bool {
	e, ok := actx.EntityMap[from]
	if !ok {
		return false
	}
	for _, link := range e.Links {
		if link.TargetID != to {
			continue
		}
		if link.Relationship == types.RelLocatedIn || link.Relationship == types.RelPartOf {
			return true
		}
	}
	return false
}

// findStatusConflicts flags present-tense links to inactive entities.
func (a *InconsistencyAnalyzer) findStatusConflicts(actx *Context) []types.Suggestion {
	var out []types.Suggestion
	for _, e := range actx.Entities {
		for _, link := range e.Links {
			target, ok := actx.EntityMap[link.TargetID]
			if !ok {
				continue
			}
			if !a.isInactive(target) || a.isPastTense(link.Relationship) {
				continue
			}

			out = append(out, types.Suggestion{
				Type:  types.SuggestionTypeInconsistency,
				Title: fmt.Sprintf("%s has an active link to inactive %s", e.Name, target.Name),
				Description: fmt.Sprintf("%s is linked to %s as %q, but %s appears to be inactive. Reword the relationship in past tense or remove the link.",
					e.Name, target.Name, link.Relationship, target.Name),
				RelevanceScore:    scoreStatusConflict,
				AffectedEntityIDs: []string{e.ID, target.ID},
				SuggestedAction: &types.SuggestedAction{
					ActionType: types.ActionFlagForReview,
					ActionData: map[string]any{
						"source_id":    e.ID,
						"target_id":    target.ID,
						"relationship": link.Relationship,
					},
				},
			})
		}
	}
	return out
}

// isInactive checks both tags and the status field against the inactive
// keyword table.
func (a *InconsistencyAnalyzer) isInactive(e *types.Entity) bool {
	status := strings.ToLower(e.FieldString("status"))
	for _, s := range a.cfg.InactiveStatuses {
		if status == s || e.HasTag(s) {
			return true
		}
	}
	return false
}

// isPastTense reports whether any word of the relationship verb is in the
// past-tense keyword table.
func (a *InconsistencyAnalyzer) isPastTense(relationship string) bool {
	for _, word := range splitWords(strings.ToLower(relationship)) {
		for _, v := range a.cfg.PastTenseVerbs {
			if word == v {
				return true
			}
		}
	}
	return false
}

// findNameDuplicates flags entity pairs with near-identical names, then
// pairs sharing a long name fragment. Pairs that share a group tag or an
// existing link are considered intentionally related and skipped.
func (a *InconsistencyAnalyzer) findNameDuplicates(actx *Context) []types.Suggestion {
	var out []types.Suggestion
	flagged := make(map[string]bool)

	for i := 0; i < len(actx.Entities); i++ {
		for j := i + 1; j < len(actx.Entities); j++ {
			e1, e2 := actx.Entities[i], actx.Entities[j]
			n1 := strings.ToLower(strings.TrimSpace(e1.Name))
			n2 := strings.ToLower(strings.TrimSpace(e2.Name))
			if n1 == "" || n2 == "" {
				continue
			}
			if a.intentionallyConnected(actx, e1, e2) {
				continue
			}

			sim := NameSimilarity(n1, n2)
			if sim <= nameSimilarityThreshold {
				continue
			}

			score := scoreSimilarName
			detail := fmt.Sprintf("%q and %q are %d%% similar", e1.Name, e2.Name, int(sim*100))
			if n1 == n2 {
				score = scoreExactNameDuplicate
				detail = fmt.Sprintf("%q appears twice", e1.Name)
			}

			flagged[pairKey(e1.ID, e2.ID)] = true
			out = append(out, types.Suggestion{
				Type:  types.SuggestionTypeInconsistency,
				Title: fmt.Sprintf("Possible duplicate: %s and %s", e1.Name, e2.Name),
				Description: fmt.Sprintf("%s. If they are the same entity, merge them; if the resemblance is intentional, link them or give them a shared tag.",
					detail),
				RelevanceScore:    score,
				AffectedEntityIDs: []string{e1.ID, e2.ID},
				SuggestedAction: &types.SuggestedAction{
					ActionType: types.ActionFlagForReview,
					ActionData: map[string]any{
						"entity_ids": []string{e1.ID, e2.ID},
						"reason":     "duplicate-name",
					},
				},
			})
		}
	}

	out = append(out, a.findSharedKeywordNames(actx, flagged)...)
	return out
}

// findSharedKeywordNames flags pairs whose names share a fragment of at
// least four characters, skipping pairs the similarity pass already caught.
func (a *InconsistencyAnalyzer) findSharedKeywordNames(actx *Context, flagged map[string]bool) []types.Suggestion {
	var out []types.Suggestion

	keys := make([]string, 0, len(actx.MentionedNames))
	for key := range actx.MentionedNames {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if len(key) < 4 {
			continue
		}
		ids := actx.MentionedNames[key]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pk := pairKey(ids[i], ids[j])
				if flagged[pk] {
					continue
				}
				e1, ok1 := actx.EntityMap[ids[i]]
				e2, ok2 := actx.EntityMap[ids[j]]
				if !ok1 || !ok2 {
					continue
				}
				if a.intentionallyConnected(actx, e1, e2) {
					continue
				}

				flagged[pk] = true
				out = append(out, types.Suggestion{
					Type:  types.SuggestionTypeInconsistency,
					Title: fmt.Sprintf("%s and %s share a name fragment", e1.Name, e2.Name),
					Description: fmt.Sprintf("%s and %s both contain %q in their names but are not linked. Check whether they are duplicates or should be related.",
						e1.Name, e2.Name, key),
					RelevanceScore:    scoreSharedKeyword,
					AffectedEntityIDs: []string{e1.ID, e2.ID},
				})
			}
		}
	}
	return out
}

// intentionallyConnected reports whether a pair shares a group tag or has
// any existing link in either direction.
func (a *InconsistencyAnalyzer) intentionallyConnected(actx *Context, e1, e2 *types.Entity) bool {
	for _, tag := range a.cfg.GroupTags {
		if e1.HasTag(tag) && e2.HasTag(tag) {
			return true
		}
	}
	return actx.Relationships.Connected(e1.ID, e2.ID)
}

// findAsymmetricLinks flags bidirectional links whose target has no
// matching reverse edge, one suggestion per missing direction.
func (a *InconsistencyAnalyzer) findAsymmetricLinks(actx *Context) []types.Suggestion {
	var out []types.Suggestion
	for _, e := range actx.Entities {
		for _, link := range e.Links {
			if !link.Bidirectional {
				continue
			}
			target, ok := actx.EntityMap[link.TargetID]
			if !ok {
				continue
			}

			expected := link.ExpectedReverse()
			if hasOutgoingLink(target, e.ID, expected) {
				continue
			}

			out = append(out, types.Suggestion{
				Type:  types.SuggestionTypeInconsistency,
				Title: fmt.Sprintf("Missing reverse link from %s to %s", target.Name, e.Name),
				Description: fmt.Sprintf("%s links to %s as %q and marks the relationship bidirectional, but %s has no %q link back.",
					e.Name, target.Name, link.Relationship, target.Name, expected),
				RelevanceScore:    scoreAsymmetricLink,
				AffectedEntityIDs: []string{e.ID, target.ID},
				SuggestedAction: &types.SuggestedAction{
					ActionType: types.ActionCreateRelationship,
					ActionData: map[string]any{
						"source_id":            target.ID,
						"target_id":            e.ID,
						"target_type":          e.Type,
						"relationship":         expected,
						"bidirectional":        true,
						"reverse_relationship": link.Relationship,
					},
				},
			})
		}
	}
	return out
}

func hasOutgoingLink(e *types.Entity, targetID, relationship string) bool {
	for _, link := range e.Links {
		if link.TargetID == targetID && link.Relationship == relationship {
			return true
		}
	}
	return false
}

// pairKey builds an order-independent key for an entity pair.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
