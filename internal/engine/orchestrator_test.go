package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicler/internal/storage"
	"github.com/scrypster/chronicler/pkg/types"
)

// mockEntityStore implements storage.EntityStore over an in-memory slice.
type mockEntityStore struct {
	entities  []types.Entity
	getAllErr error
}

func (m *mockEntityStore) GetAll(ctx context.Context) ([]types.Entity, error) {
	if m.getAllErr != nil {
		return nil, m.getAllErr
	}
	return m.entities, nil
}

func (m *mockEntityStore) GetByID(ctx context.Context, id string) (*types.Entity, error) {
	for i := range m.entities {
		if m.entities[i].ID == id {
			return &m.entities[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockEntityStore) GetByIDs(ctx context.Context, ids []string) ([]types.Entity, error) {
	var out []types.Entity
	for _, id := range ids {
		if e, err := m.GetByID(ctx, id); err == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEntityStore) GetEntitiesLinkingTo(ctx context.Context, id string) ([]types.Entity, error) {
	return nil, nil
}

func (m *mockEntityStore) Store(ctx context.Context, entity *types.Entity) error { return nil }
func (m *mockEntityStore) Delete(ctx context.Context, id string) error           { return nil }
func (m *mockEntityStore) Count(ctx context.Context) (int, error)                { return len(m.entities), nil }
func (m *mockEntityStore) Close() error                                          { return nil }

// mockSuggestionStore implements storage.SuggestionStore and
// storage.RunMarkerStore. Guarded by a mutex so scheduler tests can poll it
// while the scheduler goroutine writes.
type mockSuggestionStore struct {
	mu         sync.Mutex
	added      []types.Suggestion
	stats      *storage.SuggestionStats
	marker     *storage.RunMarker
	bulkAddErr error
}

func (m *mockSuggestionStore) BulkAdd(ctx context.Context, suggestions []types.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkAddErr != nil {
		return m.bulkAddErr
	}
	m.added = append(m.added, suggestions...)
	return nil
}

func (m *mockSuggestionStore) GetAll(ctx context.Context) ([]types.Suggestion, error) {
	return m.added, nil
}

func (m *mockSuggestionStore) GetByID(ctx context.Context, id string) (*types.Suggestion, error) {
	return nil, storage.ErrNotFound
}

func (m *mockSuggestionStore) UpdateStatus(ctx context.Context, id string, status types.SuggestionStatus) error {
	return nil
}

func (m *mockSuggestionStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (m *mockSuggestionStore) ClearAll(ctx context.Context) error { return nil }

func (m *mockSuggestionStore) GetStats(ctx context.Context) (*storage.SuggestionStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &storage.SuggestionStats{
		ByStatus: map[types.SuggestionStatus]int{},
		ByType:   map[types.SuggestionType]int{},
	}, nil
}

func (m *mockSuggestionStore) SetLastRun(ctx context.Context, at time.Time, entityCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = &storage.RunMarker{RanAt: at, EntityCount: entityCount}
	return nil
}

func (m *mockSuggestionStore) GetLastRun(ctx context.Context) (*storage.RunMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marker == nil {
		return nil, storage.ErrNotFound
	}
	return m.marker, nil
}

func (m *mockSuggestionStore) lastMarker() *storage.RunMarker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marker
}

func (m *mockSuggestionStore) Close() error { return nil }

// stubAnalyzer returns canned output, or fails.
type stubAnalyzer struct {
	suggestionType types.SuggestionType
	suggestions    []types.Suggestion
	err            error
	panics         bool
}

func (s *stubAnalyzer) Type() types.SuggestionType { return s.suggestionType }

func (s *stubAnalyzer) Analyze(ctx context.Context, actx *Context, cfg AnalysisConfig) (*AnalysisResult, error) {
	if s.panics {
		panic("stub analyzer exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &AnalysisResult{Type: s.suggestionType, Suggestions: s.suggestions}, nil
}

func newTestOrchestrator(entities *mockEntityStore, suggestions *mockSuggestionStore) *Orchestrator {
	return NewOrchestrator(entities, suggestions, nil, DefaultAnalysisConfig())
}

func TestConfigOverrides(t *testing.T) {
	o := newTestOrchestrator(&mockEntityStore{}, &mockSuggestionStore{})

	cfg := o.Config(nil)
	assert.Equal(t, DefaultAnalysisConfig(), cfg)

	min := 50
	enabled := false
	cfg = o.Config(&ConfigOverrides{MinRelevanceScore: &min, EnableAIAnalysis: &enabled})
	assert.Equal(t, 50, cfg.MinRelevanceScore)
	assert.False(t, cfg.EnableAIAnalysis)
	assert.Equal(t, 10, cfg.MaxSuggestionsPerType, "unset overrides keep defaults")
}

func TestConfigOverrides_Normalization(t *testing.T) {
	o := newTestOrchestrator(&mockEntityStore{}, &mockSuggestionStore{})

	bad := -5
	tooHigh := 150
	cfg := o.Config(&ConfigOverrides{MaxSuggestionsPerType: &bad, MinRelevanceScore: &tooHigh})
	assert.Equal(t, 1, cfg.MaxSuggestionsPerType)
	assert.Equal(t, 100, cfg.MinRelevanceScore)
}

func TestRunFullAnalysis_ZeroEntities(t *testing.T) {
	store := &mockSuggestionStore{}
	o := newTestOrchestrator(&mockEntityStore{}, store)

	result, err := o.RunFullAnalysis(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalSuggestions)
	assert.Empty(t, result.Errors)
	assert.Empty(t, store.added)
	require.NotNil(t, store.marker, "a run marker is recorded even for empty campaigns")
	assert.Equal(t, 0, store.marker.EntityCount)
}

func TestRunFullAnalysis_PersistsStampedSuggestions(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
	}}
	store := &mockSuggestionStore{}
	o := newTestOrchestrator(entities, store)
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{&stubAnalyzer{
			suggestionType: types.SuggestionTypeEnhancement,
			suggestions: []types.Suggestion{{
				Type: types.SuggestionTypeEnhancement, Title: "Flesh out Brenna",
				Description: "desc", RelevanceScore: 70, AffectedEntityIDs: []string{"a"},
			}},
		}}
	}

	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	result, err := o.RunFullAnalysis(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalSuggestions)
	require.Len(t, store.added, 1)
	s := store.added[0]
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, types.StatusPending, s.Status)
	assert.Equal(t, fixed, s.CreatedAt)
	assert.Equal(t, fixed.AddDate(0, 0, 7), s.ExpiresAt)
}

func TestRunFullAnalysis_AnalyzerFailureIsolated(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
	}}
	store := &mockSuggestionStore{}
	o := newTestOrchestrator(entities, store)
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{
			&stubAnalyzer{suggestionType: types.SuggestionTypeInconsistency, err: errors.New("boom")},
			&stubAnalyzer{
				suggestionType: types.SuggestionTypeEnhancement,
				suggestions: []types.Suggestion{{
					Type: types.SuggestionTypeEnhancement, Title: "Still works",
					Description: "desc", RelevanceScore: 60, AffectedEntityIDs: []string{"a"},
				}},
			},
		}
	}

	result, err := o.RunFullAnalysis(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalSuggestions, "healthy analyzers still contribute")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "inconsistency")
	assert.Contains(t, result.Errors[0], "boom")
}

func TestRunFullAnalysis_AnalyzerPanicIsolated(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
	}}
	o := newTestOrchestrator(entities, &mockSuggestionStore{})
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{&stubAnalyzer{suggestionType: types.SuggestionTypePlotThread, panics: true}}
	}

	result, err := o.RunFullAnalysis(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "plot_thread")
}

func TestRunFullAnalysis_EntityLoadFailure(t *testing.T) {
	o := newTestOrchestrator(&mockEntityStore{getAllErr: errors.New("db gone")}, &mockSuggestionStore{})

	_, err := o.RunFullAnalysis(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunFullAnalysis_FiltersAndCaps(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
	}}
	store := &mockSuggestionStore{}
	o := newTestOrchestrator(entities, store)
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{&stubAnalyzer{
			suggestionType: types.SuggestionTypeEnhancement,
			suggestions: []types.Suggestion{
				{Type: types.SuggestionTypeEnhancement, Title: "High", Description: "x", RelevanceScore: 90, AffectedEntityIDs: []string{"a"}},
				{Type: types.SuggestionTypeEnhancement, Title: "Mid", Description: "y", RelevanceScore: 60, AffectedEntityIDs: []string{"a"}},
				{Type: types.SuggestionTypeEnhancement, Title: "Low", Description: "z", RelevanceScore: 10, AffectedEntityIDs: []string{"a"}},
			},
		}}
	}

	max := 2
	result, err := o.RunFullAnalysis(context.Background(), &ConfigOverrides{MaxSuggestionsPerType: &max})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalSuggestions)
	titles := []string{store.added[0].Title, store.added[1].Title}
	assert.ElementsMatch(t, []string{"High", "Mid"}, titles, "low scores are filtered, cap keeps the best")
}

func TestDedupSuggestions(t *testing.T) {
	a := types.Suggestion{Title: "Duplicate Pair", Description: "Same finding", RelevanceScore: 60, AffectedEntityIDs: []string{"x", "y"}}
	b := types.Suggestion{Title: "duplicate pair", Description: "same  finding", RelevanceScore: 80, AffectedEntityIDs: []string{"y", "x"}}
	c := types.Suggestion{Title: "Different", Description: "Other finding", RelevanceScore: 50, AffectedEntityIDs: []string{"x", "y"}}

	out := DedupSuggestions([]types.Suggestion{a, b, c})

	require.Len(t, out, 2)
	assert.Equal(t, 80, out[0].RelevanceScore, "the higher-scoring duplicate wins")
	assert.Equal(t, "Different", out[1].Title)
}

func TestDedupSuggestions_Idempotent(t *testing.T) {
	in := []types.Suggestion{
		{Title: "A", Description: "a", RelevanceScore: 60, AffectedEntityIDs: []string{"x"}},
		{Title: "A", Description: "a", RelevanceScore: 70, AffectedEntityIDs: []string{"x"}},
		{Title: "B", Description: "b", RelevanceScore: 50, AffectedEntityIDs: []string{"y"}},
	}

	once := DedupSuggestions(in)
	twice := DedupSuggestions(once)
	assert.Equal(t, once, twice)
}

func TestAnalyzeEntity_FiltersToTarget(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
		{ID: "b", Type: types.EntityTypeNPC, Name: "Corin"},
	}}
	store := &mockSuggestionStore{}
	o := newTestOrchestrator(entities, store)
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{&stubAnalyzer{
			suggestionType: types.SuggestionTypeEnhancement,
			suggestions: []types.Suggestion{
				{Type: types.SuggestionTypeEnhancement, Title: "About A", Description: "x", RelevanceScore: 70, AffectedEntityIDs: []string{"a"}},
				{Type: types.SuggestionTypeEnhancement, Title: "About B", Description: "y", RelevanceScore: 70, AffectedEntityIDs: []string{"b"}},
				{Type: types.SuggestionTypeEnhancement, Title: "About both", Description: "z", RelevanceScore: 70, AffectedEntityIDs: []string{"a", "b"}},
			},
		}}
	}

	result, err := o.AnalyzeEntity(context.Background(), "a", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalSuggestions, "only suggestions touching the target survive")
	assert.Empty(t, store.added, "entity-scoped analysis does not persist")
}

func TestAnalyzeEntity_NotFound(t *testing.T) {
	o := newTestOrchestrator(&mockEntityStore{}, &mockSuggestionStore{})

	_, err := o.AnalyzeEntity(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestShouldRunAnalysis(t *testing.T) {
	entities := &mockEntityStore{entities: make([]types.Entity, 10)}
	for i := range entities.entities {
		entities.entities[i] = types.Entity{ID: string(rune('a' + i)), Type: types.EntityTypeNPC, Name: "n"}
	}

	t.Run("no prior suggestions", func(t *testing.T) {
		o := newTestOrchestrator(entities, &mockSuggestionStore{})
		due, err := o.ShouldRunAnalysis(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("no pending suggestions", func(t *testing.T) {
		store := &mockSuggestionStore{stats: &storage.SuggestionStats{
			Total:    4,
			ByStatus: map[types.SuggestionStatus]int{types.StatusDismissed: 2, types.StatusExpired: 2},
		}}
		o := newTestOrchestrator(entities, store)
		due, err := o.ShouldRunAnalysis(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("pending suggestions and no growth", func(t *testing.T) {
		store := &mockSuggestionStore{
			stats: &storage.SuggestionStats{
				Total:    4,
				ByStatus: map[types.SuggestionStatus]int{types.StatusPending: 4},
			},
			marker: &storage.RunMarker{RanAt: time.Now(), EntityCount: 10},
		}
		o := newTestOrchestrator(entities, store)
		due, err := o.ShouldRunAnalysis(context.Background())
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("material growth since last run", func(t *testing.T) {
		store := &mockSuggestionStore{
			stats: &storage.SuggestionStats{
				Total:    4,
				ByStatus: map[types.SuggestionStatus]int{types.StatusPending: 4},
			},
			marker: &storage.RunMarker{RanAt: time.Now(), EntityCount: 8},
		}
		o := newTestOrchestrator(entities, store)
		due, err := o.ShouldRunAnalysis(context.Background())
		require.NoError(t, err)
		assert.True(t, due, "ten entities against a marker of eight is material growth")
	})

	t.Run("pending but no marker recorded", func(t *testing.T) {
		store := &mockSuggestionStore{stats: &storage.SuggestionStats{
			Total:    4,
			ByStatus: map[types.SuggestionStatus]int{types.StatusPending: 4},
		}}
		o := newTestOrchestrator(entities, store)
		due, err := o.ShouldRunAnalysis(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})
}

func TestRunFullAnalysis_BulkAddFailure(t *testing.T) {
	entities := &mockEntityStore{entities: []types.Entity{
		{ID: "a", Type: types.EntityTypeNPC, Name: "Brenna"},
	}}
	store := &mockSuggestionStore{bulkAddErr: errors.New("disk full")}
	o := newTestOrchestrator(entities, store)
	o.buildAnalyzers = func(cfg AnalysisConfig) []Analyzer {
		return []Analyzer{&stubAnalyzer{
			suggestionType: types.SuggestionTypeEnhancement,
			suggestions: []types.Suggestion{{
				Type: types.SuggestionTypeEnhancement, Title: "t", Description: "d",
				RelevanceScore: 70, AffectedEntityIDs: []string{"a"},
			}},
		}}
	}

	_, err := o.RunFullAnalysis(context.Background(), nil)
	assert.Error(t, err)
}
