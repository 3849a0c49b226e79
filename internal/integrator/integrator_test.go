package integrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// fakeMemories is an in-memory store.MemoryRepository for pass-level tests.
type fakeMemories struct {
	mu       sync.Mutex
	memories map[string]*domain.Memory
	order    []string
	updates  int
	deletes  int
}

func newFakeMemories() *fakeMemories {
	return &fakeMemories{memories: make(map[string]*domain.Memory)}
}

func (r *fakeMemories) add(m *domain.Memory) {
	r.memories[m.ID] = m
	r.order = append(r.order, m.ID)
}

func (r *fakeMemories) Create(_ context.Context, m *domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[m.ID]; ok {
		return apperr.Conflict("memory %s already exists", m.ID)
	}
	cp := *m
	r.add(&cp)
	return nil
}

func (r *fakeMemories) Get(_ context.Context, tenantID, id string) (*domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok || m.TenantID != tenantID {
		return nil, apperr.NotFound("memory %s not found", id)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemories) Update(_ context.Context, m *domain.Memory, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.memories[m.ID]
	if !ok {
		return apperr.NotFound("memory %s not found", m.ID)
	}
	if existing.Version != expectedVersion {
		return apperr.VersionConflict("memory %s was modified concurrently", m.ID)
	}
	cp := *m
	r.memories[m.ID] = &cp
	r.updates++
	return nil
}

func (r *fakeMemories) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok || m.TenantID != tenantID {
		return apperr.NotFound("memory %s not found", id)
	}
	m.Status = domain.StatusDeleted
	r.deletes++
	return nil
}

func (r *fakeMemories) List(context.Context, store.ListFilter, domain.Kind) (store.Page[*domain.Memory], error) {
	return store.Page[*domain.Memory]{}, nil
}

func (r *fakeMemories) ListCandidates(_ context.Context, tenantID string, limit int) ([]*domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Memory
	for _, id := range r.order {
		m := r.memories[id]
		if m.TenantID == tenantID && m.Status == domain.StatusActive && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMemories) CountByUser(context.Context, string, string) (map[domain.Kind]int64, error) {
	return nil, nil
}

func (r *fakeMemories) GetStats(context.Context, string) (*store.MemoryStats, error) {
	return &store.MemoryStats{}, nil
}

func (r *fakeMemories) status(id string) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memories[id].Status
}

func (r *fakeMemories) get(id string) *domain.Memory {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.memories[id]
	return &cp
}

func newTestIntegrator(repo *fakeMemories) *Integrator {
	return New(DefaultConfig(), repo, nil, nil)
}

func seedMemory(t *testing.T, repo *fakeMemories, id string, importance float64, keywords ...string) *domain.Memory {
	t.Helper()
	m, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, "content of "+id)
	require.NoError(t, err)
	m.ID = id
	m.SetImportance(importance)
	for _, kw := range keywords {
		m.AddKeyword(kw)
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func TestRedundancyPass_ArchivesLessImportant(t *testing.T) {
	repo := newFakeMemories()
	seedMemory(t, repo, "m1", 0.8, "x", "y")
	seedMemory(t, repo, "m2", 0.3, "x", "y")

	ok, err := newTestIntegrator(repo).runRedundancyPass(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusActive, repo.status("m1"))
	assert.Equal(t, domain.StatusArchived, repo.status("m2"))
}

func TestRedundancyPass_ReplacesOnLongerContent(t *testing.T) {
	repo := newFakeMemories()
	m1, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, "a considerably longer description of the very same event")
	require.NoError(t, err)
	m1.ID = "m1"
	m1.AddKeyword("x")
	m1.AddKeyword("y")
	require.NoError(t, repo.Create(context.Background(), m1))
	seedMemory(t, repo, "m2", 0.5, "x", "y")

	_, err = newTestIntegrator(repo).runRedundancyPass(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, repo.status("m1"))
	assert.Equal(t, domain.StatusDeleted, repo.status("m2"))
	assert.Equal(t, 1, repo.deletes)
}

func TestRedundancyPass_MergesEqualPairs(t *testing.T) {
	repo := newFakeMemories()
	m1 := seedMemory(t, repo, "m1", 0.5, "x", "y")
	m2, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, m1.Content+" and then some")
	require.NoError(t, err)
	m2.ID = "m2"
	m2.SetImportance(0.7)
	m2.AddKeyword("x")
	m2.AddKeyword("y")
	m2.AddTag("extra-tag")
	require.NoError(t, repo.Create(context.Background(), m2))

	_, err = newTestIntegrator(repo).runRedundancyPass(context.Background(), "t1")
	require.NoError(t, err)

	merged := repo.get("m1")
	assert.True(t, merged.Tags.Has("extra-tag"), "merge unions tags into the retained memory")
	assert.Equal(t, 0.7, merged.Importance, "merge keeps the larger importance")
	assert.Equal(t, domain.StatusArchived, repo.status("m2"), "the merged-away memory leaves the active set")
}

func TestRedundancyPass_NoSimilarActivePairSurvives(t *testing.T) {
	repo := newFakeMemories()
	for _, id := range []string{"m1", "m2", "m3"} {
		seedMemory(t, repo, id, 0.5+float64(len(id))*0.01, "x", "y", "z")
	}
	// Distinct keywords: must survive untouched.
	seedMemory(t, repo, "m-distinct", 0.5, "unrelated", "terms")

	in := newTestIntegrator(repo)
	_, err := in.runRedundancyPass(context.Background(), "t1")
	require.NoError(t, err)

	active, err := repo.ListCandidates(context.Background(), "t1", 100)
	require.NoError(t, err)
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			assert.Less(t, similarity(active[i], active[j]), in.Config.SimilarityThreshold,
				"no two active memories may remain above the similarity threshold")
		}
	}
	assert.Equal(t, domain.StatusActive, repo.status("m-distinct"))
}

func TestImportancePass_RescoresStaleMemories(t *testing.T) {
	repo := newFakeMemories()
	m := seedMemory(t, repo, "m-stale", 0.9)
	m = repo.get("m-stale")
	m.CreatedAt = time.Now().UTC().Add(-200 * time.Hour)
	m.AccessedAt = time.Now().UTC().Add(-100 * time.Hour)
	repo.memories["m-stale"] = m

	ok, err := newTestIntegrator(repo).runImportancePass(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	// 0.9 * 0.85 = 0.765, delta 0.135 > 0.1 so the new value is written.
	assert.InDelta(t, 0.765, repo.get("m-stale").Importance, 1e-9)
}

func TestImportancePass_SkipsMinorChanges(t *testing.T) {
	repo := newFakeMemories()
	m := seedMemory(t, repo, "m-minor", 0.5)
	m = repo.get("m-minor")
	m.CreatedAt = time.Now().UTC().Add(-200 * time.Hour)
	m.AccessedAt = time.Now().UTC().Add(-100 * time.Hour)
	repo.memories["m-minor"] = m

	_, err := newTestIntegrator(repo).runImportancePass(context.Background(), "t1")
	require.NoError(t, err)
	// 0.5 * 0.85 = 0.425, delta 0.075 <= 0.1: no write, no version bump.
	assert.Equal(t, 0.5, repo.get("m-minor").Importance)
	assert.Equal(t, 0, repo.updates)
}

func TestImportancePass_ArchivesBelowFloor(t *testing.T) {
	repo := newFakeMemories()
	m := seedMemory(t, repo, "m-fading", 0.8)
	m = repo.get("m-fading")
	m.CreatedAt = time.Now().UTC().Add(-200 * time.Hour)
	m.AccessedAt = time.Now().UTC().Add(-100 * time.Hour)
	repo.memories["m-fading"] = m

	in := newTestIntegrator(repo)
	in.Config.MinImportance = 0.7
	_, err := in.runImportancePass(context.Background(), "t1")
	require.NoError(t, err)
	// 0.8 * 0.85 = 0.68 < 0.7: archived.
	assert.Equal(t, domain.StatusArchived, repo.status("m-fading"))
}

func TestImportancePass_ArchivesBelowFloorDespiteSmallDelta(t *testing.T) {
	repo := newFakeMemories()
	m := seedMemory(t, repo, "m-floor", 0.11)
	m = repo.get("m-floor")
	m.CreatedAt = time.Now().UTC().Add(-200 * time.Hour)
	m.AccessedAt = time.Now().UTC().Add(-100 * time.Hour)
	repo.memories["m-floor"] = m

	_, err := newTestIntegrator(repo).runImportancePass(context.Background(), "t1")
	require.NoError(t, err)
	// 0.11 * 0.85 = 0.0935 < 0.1: archived even though the move is well
	// under the 0.1 write threshold.
	assert.Equal(t, domain.StatusArchived, repo.status("m-floor"))
}

func TestNextImportance(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		age      time.Duration
		accessed bool
		want     float64
	}{
		{"fresh untouched", 0.5, 10 * time.Hour, false, 0.5},
		{"fresh accessed bumps additively", 0.5, 10 * time.Hour, true, 0.6},
		{"bump saturates at one", 0.95, 10 * time.Hour, true, 1.0},
		{"week-old decay", 0.5, 100 * time.Hour, false, 0.475},
		{"stale decay", 0.5, 200 * time.Hour, false, 0.425},
		{"stale but accessed", 0.5, 200 * time.Hour, true, 0.525},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, nextImportance(tc.current, tc.age, tc.accessed), 1e-9)
		})
	}
}

func TestSummarizationPass_FillsEmptyGists(t *testing.T) {
	repo := newFakeMemories()
	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone twentytwo"
	m, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, long)
	require.NoError(t, err)
	m.ID = "m-long"
	require.NoError(t, repo.Create(context.Background(), m))

	withGist := seedMemory(t, repo, "m-has-gist", 0.5)
	withGist = repo.get("m-has-gist")
	withGist.SetGist("already summarized")
	repo.memories["m-has-gist"] = withGist

	semantic, err := domain.NewMemory("t1", "u1", domain.KindSemantic, "a semantic fact")
	require.NoError(t, err)
	semantic.ID = "m-semantic"
	require.NoError(t, repo.Create(context.Background(), semantic))

	ok, err := newTestIntegrator(repo).runSummarizationPass(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	summarized := repo.get("m-long")
	assert.NotEmpty(t, summarized.Gist)
	assert.True(t, len(summarized.Gist) < len(long))
	assert.Equal(t, long, summarized.Content, "summarization never rewrites content")
	assert.Equal(t, "already summarized", repo.get("m-has-gist").Gist)
	assert.Empty(t, repo.get("m-semantic").Gist, "only episodic memories are summarized")
}

func TestRelationshipPass_LinksByTopic(t *testing.T) {
	repo := newFakeMemories()
	ids := []string{"m1", "m2", "m3"}
	for _, id := range ids {
		m, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, "about "+id)
		require.NoError(t, err)
		m.ID = id
		m.AddTopic("roadmap")
		require.NoError(t, repo.Create(context.Background(), m))
	}

	_, err := newTestIntegrator(repo).runRelationshipPass(context.Background(), "t1")
	require.NoError(t, err)

	for _, id := range ids {
		m := repo.get(id)
		assert.False(t, m.RelatedIDs.Has(id), "no self references")
		assert.Equal(t, 2, m.RelatedIDs.Len(), "linked to both topic siblings")
	}
}

func TestRelationshipPass_CapsNewLinks(t *testing.T) {
	repo := newFakeMemories()
	for i := 0; i < 10; i++ {
		m, err := domain.NewMemory("t1", "u1", domain.KindEpisodic, "crowded topic")
		require.NoError(t, err)
		m.ID = "m" + string(rune('0'+i))
		m.AddTopic("busy")
		require.NoError(t, repo.Create(context.Background(), m))
	}

	_, err := newTestIntegrator(repo).runRelationshipPass(context.Background(), "t1")
	require.NoError(t, err)

	m := repo.get("m0")
	assert.LessOrEqual(t, m.RelatedIDs.Len(), maxNewRelatedPerRun)
}

// fakeLocks refuses every acquisition, simulating a prior pass still in
// flight.
type fakeLocks struct{ held bool }

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (store.Lock, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return noopLock{}, true, nil
}

type staticTenants []string

func (s staticTenants) ListTenants(context.Context) ([]string, error) { return s, nil }

func TestTick_SkipsWhenLockHeld(t *testing.T) {
	repo := newFakeMemories()
	in := New(DefaultConfig(), repo, &fakeLocks{held: true}, staticTenants{"t1", "t2"})

	in.tick(context.Background(), "summarization", in.runSummarizationPass)
	assert.EqualValues(t, 2, in.SkippedTicks("summarization"))

	in.tick(context.Background(), "summarization", in.runSummarizationPass)
	assert.EqualValues(t, 4, in.SkippedTicks("summarization"))
}

func TestTick_RunsWhenLockFree(t *testing.T) {
	repo := newFakeMemories()
	seedMemory(t, repo, "m1", 0.5)
	in := New(DefaultConfig(), repo, &fakeLocks{}, staticTenants{"t1"})

	in.tick(context.Background(), "summarization", in.runSummarizationPass)
	assert.EqualValues(t, 0, in.SkippedTicks("summarization"))
}

// fakeIndex and fakeTurns back the dehydration test.
type fakeIndex struct{ upserts int }

func (f *fakeIndex) Upsert(context.Context, *domain.IndexRecord, []float32, string) error {
	f.upserts++
	return nil
}
func (f *fakeIndex) Delete(context.Context, string, string) error { return nil }
func (f *fakeIndex) Get(context.Context, string, string) (*domain.IndexRecord, error) {
	return nil, apperr.NotFound("not found")
}

type fakeTurns struct{ dehydrated []string }

func (f *fakeTurns) Create(context.Context, *domain.Turn) error { return nil }
func (f *fakeTurns) ListBySession(context.Context, string, string, int) ([]*domain.Turn, error) {
	return nil, nil
}
func (f *fakeTurns) ListUndehydrated(context.Context, string, int) ([]*domain.Turn, error) {
	return nil, nil
}
func (f *fakeTurns) MarkDehydrated(_ context.Context, _ string, turnID string) error {
	f.dehydrated = append(f.dehydrated, turnID)
	return nil
}

func TestDehydrate(t *testing.T) {
	repo := newFakeMemories()
	index := &fakeIndex{}
	turns := &fakeTurns{}
	d := NewDehydrationService(repo, index, turns, nil, nil)

	turn, err := domain.NewTurn("t1", "s1", domain.RoleUser, "Discussed quarterly roadmap priorities with Alice yesterday afternoon")
	require.NoError(t, err)

	m, err := d.Dehydrate(context.Background(), turn, "u1")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, domain.KindEpisodic, m.Kind)
	assert.Equal(t, turn.Content, m.Content)
	assert.NotEmpty(t, m.Gist)
	assert.Greater(t, m.Keywords.Len(), 0)
	require.NotNil(t, m.Dehydrated)
	assert.Equal(t, turn.ID, m.Dehydrated.TurnID)
	assert.Equal(t, 1, index.upserts)
	assert.Equal(t, []string{turn.ID}, turns.dehydrated)

	// A turn already marked dehydrated is never reprocessed.
	turn.MarkDehydrated()
	again, err := d.Dehydrate(context.Background(), turn, "u1")
	require.NoError(t, err)
	assert.Nil(t, again)
}
