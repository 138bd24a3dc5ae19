package engine

import (
	"strings"
	"unicode"

	"github.com/scrypster/chronicler/pkg/types"
)

// Context is the shared view the analyzers read from. It is built once per
// run so each analyzer sees the same snapshot of the codex.
type Context struct {
	// Entities holds every entity in the run, in store order.
	Entities []*types.Entity

	// EntityMap indexes entities by ID.
	EntityMap map[string]*types.Entity

	// Relationships is the link graph extracted from entity links.
	Relationships *RelationshipMap

	// LocationsByEntity maps an entity ID to the IDs of the location
	// entities it links to, regardless of relationship verb.
	LocationsByEntity map[string][]string

	// MentionedNames maps lowercase names and name tokens to the IDs of
	// entities bearing them. Tokens shorter than three characters and
	// common stopwords are excluded.
	MentionedNames map[string][]string
}

// Edge is a directed relationship between two entities.
type Edge struct {
	Source       string
	Target       string
	Relationship string
}

// RelationshipMap holds the link graph for one analysis run.
type RelationshipMap struct {
	Nodes []string
	Edges []Edge

	adjacency map[string]map[string]bool
	degree    map[string]int
}

// Connected reports whether a link exists between a and b in either
// direction.
func (m *RelationshipMap) Connected(a, b string) bool {
	return m.adjacency[a][b] || m.adjacency[b][a]
}

// Degree returns the number of edges touching id, counting both incoming
// and outgoing links.
func (m *RelationshipMap) Degree(id string) int {
	return m.degree[id]
}

var nameTokenStopwords = map[string]bool{
	"the": true,
	"of":  true,
	"and": true,
	"a":   true,
	"an":  true,
}

// BuildContext assembles the shared analysis context from a snapshot of
// entities. Links pointing at entities outside the snapshot still count as
// edges so degree reflects the full link set.
func BuildContext(entities []*types.Entity) *Context {
	actx := &Context{
		Entities:          entities,
		EntityMap:         make(map[string]*types.Entity, len(entities)),
		LocationsByEntity: make(map[string][]string),
		MentionedNames:    make(map[string][]string),
	}

	rm := &RelationshipMap{
		adjacency: make(map[string]map[string]bool),
		degree:    make(map[string]int),
	}

	for _, e := range entities {
		actx.EntityMap[e.ID] = e
		rm.Nodes = append(rm.Nodes, e.ID)

		for _, name := range mentionKeys(e.Name) {
			actx.MentionedNames[name] = append(actx.MentionedNames[name], e.ID)
		}
	}

	for _, e := range entities {
		for _, link := range e.Links {
			rm.Edges = append(rm.Edges, Edge{
				Source:       e.ID,
				Target:       link.TargetID,
				Relationship: link.Relationship,
			})
			if rm.adjacency[e.ID] == nil {
				rm.adjacency[e.ID] = make(map[string]bool)
			}
			rm.adjacency[e.ID][link.TargetID] = true
			rm.degree[e.ID]++
			rm.degree[link.TargetID]++

			if link.TargetType == types.EntityTypeLocation {
				actx.LocationsByEntity[e.ID] = append(actx.LocationsByEntity[e.ID], link.TargetID)
			}
		}
	}

	actx.Relationships = rm
	return actx
}

// mentionKeys derives the lookup keys for a name: the full lowercase name
// plus each token of three or more characters that is not a stopword.
func mentionKeys(name string) []string {
	full := strings.ToLower(strings.TrimSpace(name))
	if full == "" {
		return nil
	}

	keys := []string{full}
	seen := map[string]bool{full: true}
	for _, tok := range splitWords(full) {
		if len(tok) < 3 || nameTokenStopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keys = append(keys, tok)
	}
	return keys
}

// splitWords breaks text on anything that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
