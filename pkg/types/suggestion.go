package types

import "time"

// SuggestionType categorizes which analyzer produced a suggestion.
type SuggestionType string

const (
	// SuggestionTypeInconsistency flags contradictory data between entities
	SuggestionTypeInconsistency SuggestionType = "inconsistency"

	// SuggestionTypeEnhancement flags sparse or incomplete entities
	SuggestionTypeEnhancement SuggestionType = "enhancement"

	// SuggestionTypeRelationship proposes a missing link between entities
	SuggestionTypeRelationship SuggestionType = "relationship"

	// SuggestionTypePlotThread surfaces a potential narrative thread
	SuggestionTypePlotThread SuggestionType = "plot_thread"
)

// ValidSuggestionTypes is a slice of all suggestion types for validation.
var ValidSuggestionTypes = []SuggestionType{
	SuggestionTypeInconsistency,
	SuggestionTypeEnhancement,
	SuggestionTypeRelationship,
	SuggestionTypePlotThread,
}

// IsValidSuggestionType checks if the given suggestion type is valid.
func IsValidSuggestionType(t SuggestionType) bool {
	for _, validType := range ValidSuggestionTypes {
		if validType == t {
			return true
		}
	}
	return false
}

// SuggestionStatus represents the lifecycle state of a persisted suggestion.
type SuggestionStatus string

const (
	// StatusPending indicates the suggestion awaits user review
	StatusPending SuggestionStatus = "pending"

	// StatusAccepted indicates the user applied the suggestion
	StatusAccepted SuggestionStatus = "accepted"

	// StatusDismissed indicates the user rejected the suggestion
	StatusDismissed SuggestionStatus = "dismissed"

	// StatusExpired indicates the suggestion aged past its expiry without review
	StatusExpired SuggestionStatus = "expired"
)

// Suggested action type constants.
const (
	ActionCreateRelationship = "create-relationship"
	ActionUpdateEntity       = "update-entity"
	ActionFlagForReview      = "flag-for-review"
)

// SuggestedAction is an optional machine-applicable remediation attached to a
// suggestion. ActionData carries the fields needed to apply the action (e.g.
// the source/target/relationship of a missing reverse link).
type SuggestedAction struct {
	ActionType string         `json:"action_type"`
	ActionData map[string]any `json:"action_data,omitempty"`
}

// Suggestion is a generated, scored, time-boxed recommendation about one or
// more entities. Analyzers create suggestions without ID or timestamps; the
// orchestrator stamps ID, CreatedAt and ExpiresAt at persistence time.
type Suggestion struct {
	ID          string         `json:"id,omitempty"`
	Type        SuggestionType `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`

	// RelevanceScore is a 0-100 heuristic ranking used for filtering and
	// ordering. Values outside the range are clamped.
	RelevanceScore int `json:"relevance_score"`

	// AffectedEntityIDs lists the entities this suggestion concerns.
	// At least one; at least two for relational findings.
	AffectedEntityIDs []string `json:"affected_entity_ids"`

	SuggestedAction *SuggestedAction `json:"suggested_action,omitempty"`

	Status    SuggestionStatus `json:"status,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
	ExpiresAt time.Time        `json:"expires_at,omitempty"`
}

// ClampScore normalizes the relevance score into the 0-100 range.
func (s *Suggestion) ClampScore() {
	if s.RelevanceScore < 0 {
		s.RelevanceScore = 0
	}
	if s.RelevanceScore > 100 {
		s.RelevanceScore = 100
	}
}

// IsExpired reports whether the suggestion's expiry has passed at the given time.
func (s *Suggestion) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ClampScore normalizes an integer score into the 0-100 range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
