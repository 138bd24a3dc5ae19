package engine

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/chronicler/internal/llm"
	"github.com/scrypster/chronicler/pkg/types"
)

const (
	// minThemeGroupSize is the smallest cluster worth a narrative check.
	minThemeGroupSize = 3

	// maxThemeGroups bounds how many clusters get a generation call.
	maxThemeGroups = 10

	// maxThemeGroupMembers bounds prompt size per cluster.
	maxThemeGroupMembers = 8

	// minThemeKeywordLen filters description keywords used for clustering.
	minThemeKeywordLen = 4

	// maxPlotThreadTitleLen truncates titles parsed from responses.
	maxPlotThreadTitleLen = 80
)

// themeStopwords excludes common words from description-keyword clustering.
var themeStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "were": true, "their": true, "they": true, "them": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"would": true, "could": true, "should": true, "about": true, "after": true,
	"before": true, "into": true, "over": true, "under": true, "only": true,
	"also": true, "very": true, "more": true, "most": true, "some": true,
	"such": true, "than": true, "then": true, "there": true, "these": true,
	"those": true, "other": true, "each": true, "both": true, "once": true,
	"here": true, "what": true, "who": true, "whom": true, "does": true,
	"between": true, "through": true, "during": true, "against": true,
	"because": true, "being": true,
}

// PlotThreadAnalyzer clusters entities by shared theme and asks the
// generator whether each cluster forms a coherent narrative thread.
type PlotThreadAnalyzer struct {
	generator llm.TextGenerator
	pacer     *llm.Pacer
}

// NewPlotThreadAnalyzer creates the analyzer. generator may be nil, which
// makes Analyze a no-op.
func NewPlotThreadAnalyzer(generator llm.TextGenerator, pacer *llm.Pacer) *PlotThreadAnalyzer {
	return &PlotThreadAnalyzer{generator: generator, pacer: pacer}
}

func (a *PlotThreadAnalyzer) Type() types.SuggestionType {
	return types.SuggestionTypePlotThread
}

// Analyze clusters entities by theme and evaluates the largest clusters.
// Returns no suggestions and makes no calls when AI analysis is disabled.
func (a *PlotThreadAnalyzer) Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error) {
	start := time.Now()
	result := &AnalysisResult{Type: a.Type()}

	if !cfg.EnableAIAnalysis || a.generator == nil {
		result.AnalysisTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	groups := a.themeGroups(actx)

	for _, g := range groups {
		if len(result.Suggestions) >= cfg.MaxSuggestionsPerType {
			break
		}

		members := make([]*types.Entity, 0, maxThemeGroupMembers)
		for _, id := range g.members {
			if e, ok := actx.EntityMap[id]; ok {
				members = append(members, e)
				if len(members) == maxThemeGroupMembers {
					break
				}
			}
		}
		if len(members) < minThemeGroupSize {
			continue
		}

		if a.pacer != nil {
			if err := a.pacer.Wait(ctx); err != nil {
				log.Printf("plotthread: rate limit wait aborted: %v", err)
				break
			}
		}

		result.APICalls++
		resp, err := a.generator.Complete(ctx, llm.PlotThreadPrompt(g.theme, members), llm.CompleteOptions{Temperature: 0.7})
		if err != nil {
			log.Printf("plotthread: generation failed for theme %q: %v", g.theme, err)
			continue
		}

		title, description, ok := parsePlotThreadResponse(resp)
		if !ok {
			continue
		}

		affected := make([]string, len(members))
		for i, m := range members {
			affected[i] = m.ID
		}

		result.Suggestions = append(result.Suggestions, types.Suggestion{
			Type:              types.SuggestionTypePlotThread,
			Title:             title,
			Description:       description,
			RelevanceScore:    plotThreadRelevance(actx, members),
			AffectedEntityIDs: affected,
			SuggestedAction: &types.SuggestedAction{
				ActionType: types.ActionFlagForReview,
				ActionData: map[string]any{
					"theme":      g.theme,
					"entity_ids": affected,
				},
			},
		})
	}

	result.AnalysisTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

type themeGroup struct {
	theme   string
	members []string
}

// themeGroups clusters entity ids by every tag and every long description
// keyword, keeps clusters of three or more, and returns the largest ten.
func (a *PlotThreadAnalyzer) themeGroups(actx *Context) []themeGroup {
	byTheme := make(map[string]map[string]bool)
	add := func(theme, id string) {
		if byTheme[theme] == nil {
			byTheme[theme] = make(map[string]bool)
		}
		byTheme[theme][id] = true
	}

	for _, e := range actx.Entities {
		for _, tag := range e.Tags {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				add(tag, e.ID)
			}
		}
		for _, word := range splitWords(strings.ToLower(e.Description)) {
			if len(word) >= minThemeKeywordLen && !themeStopwords[word] {
				add(word, e.ID)
			}
		}
	}

	var groups []themeGroup
	for theme, ids := range byTheme {
		if len(ids) < minThemeGroupSize {
			continue
		}
		g := themeGroup{theme: theme}
		// Preserve entity order for stable prompts.
		for _, e := range actx.Entities {
			if ids[e.ID] {
				g.members = append(g.members, e.ID)
			}
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].members) != len(groups[j].members) {
			return len(groups[i].members) > len(groups[j].members)
		}
		return groups[i].theme < groups[j].theme
	})
	if len(groups) > maxThemeGroups {
		groups = groups[:maxThemeGroups]
	}
	return groups
}

// parsePlotThreadResponse extracts a title and description from a
// generation response. A response beginning with "no" means no thread.
func parsePlotThreadResponse(resp string) (title, description string, ok bool) {
	text := strings.TrimSpace(resp)
	if text == "" || strings.HasPrefix(strings.ToLower(text), "no") {
		return "", "", false
	}

	lines := strings.Split(text, "\n")
	rest := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if title == "" {
			if idx := strings.Index(strings.ToLower(line), "plot thread:"); idx >= 0 {
				title = strings.TrimSpace(line[idx+len("plot thread:"):])
				continue
			}
			title = line
			continue
		}
		rest = append(rest, line)
	}

	if title == "" {
		return "", "", false
	}
	if len(title) > maxPlotThreadTitleLen {
		title = title[:maxPlotThreadTitleLen]
	}
	description = strings.Join(rest, " ")
	if description == "" {
		description = title
	}
	return title, description, true
}

// plotThreadRelevance scores a cluster by size, internal connectivity and
// member types.
func plotThreadRelevance(actx *Context, members []*types.Entity) int {
	score := 40

	switch {
	case len(members) >= 5:
		score += 20
	case len(members) >= 3:
		score += 10
	}

	inGroup := make(map[string]bool, len(members))
	for _, m := range members {
		inGroup[m.ID] = true
	}
	edges := 0
	for _, m := range members {
		for _, link := range m.Links {
			if inGroup[link.TargetID] {
				edges++
			}
		}
	}
	avg := float64(edges) / float64(len(members))
	switch {
	case avg >= 2:
		score += 20
	case avg >= 1:
		score += 10
	}

	hasCharacter, hasFaction := false, false
	for _, m := range members {
		switch m.Type {
		case types.EntityTypeCharacter:
			hasCharacter = true
		case types.EntityTypeFaction:
			hasFaction = true
		}
	}
	if hasCharacter {
		score += 10
	}
	if hasFaction {
		score += 5
	}

	return types.ClampScore(score)
}
