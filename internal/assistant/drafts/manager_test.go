package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grant-assistant/internal/assistant/storage"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Test Helpers
// ==========================

func newTestManager(t *testing.T, store storage.Adapter, opts Options) *Manager {
	t.Helper()
	if store == nil {
		mem := storage.NewMemoryStore()
		require.NoError(t, mem.Initialize(context.Background()))
		store = mem
	}
	m := NewManager(store, logger.NewTestLogger(t), opts)

	var mu sync.Mutex
	seq := 0
	m.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("draft-%d", seq)
	}
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var ticks int64
	m.SetClock(func() time.Time {
		return start.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Minute)
	})
	return m
}

func state(t *testing.T, acronym string) models.DraftState {
	t.Helper()
	var c models.ApplicationContext
	require.NoError(t, c.Set(models.FieldAcronym, acronym))
	return models.DraftState{
		Context:     &c,
		ChatHistory: []models.ChatMessage{{Role: models.RoleUser, Content: "Acronym: " + acronym}},
	}
}

func ids(list []models.Draft) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.ID
	}
	return out
}

// quotaStore rejects draft lists longer than limit the way a full local store would.
type quotaStore struct {
	storage.Adapter
	limit int
	sets  int
}

func (q *quotaStore) Set(ctx context.Context, key string, value []byte) error {
	if key == ListKey {
		q.sets++
		var list []models.Draft
		if err := json.Unmarshal(value, &list); err == nil && len(list) > q.limit {
			return fmt.Errorf("set %s: %w", key, storage.ErrQuotaExceeded)
		}
	}
	return q.Adapter.Set(ctx, key, value)
}

// ==========================
// Save
// ==========================

func TestSave_InsertThenUpdateInPlace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	first, err := m.Save(ctx, state(t, "GREENCITY"))
	require.NoError(t, err)
	assert.Equal(t, "draft-1", first.ID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "GREENCITY", first.Name)
	assert.Equal(t, "draft-1", m.Current())

	second, err := m.Save(ctx, state(t, "BLUECITY"))
	require.NoError(t, err)
	assert.Equal(t, "draft-1", second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, "BLUECITY", *second.Context.Acronym)
	assert.Equal(t, "GREENCITY", second.Name, "an existing name is kept")

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSave_NewDraftAndOrdering(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	_, err := m.Save(ctx, state(t, "ONE1"))
	require.NoError(t, err)
	require.NoError(t, m.NewDraft(ctx))
	assert.Empty(t, m.Current())
	_, err = m.Save(ctx, state(t, "TWO2"))
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft-2", "draft-1"}, ids(list), "most recent first")

	require.NoError(t, m.SetCurrent(ctx, "draft-1"))
	updated, err := m.Save(ctx, state(t, "ONE1"))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	list, err = m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft-1", "draft-2"}, ids(list), "a saved draft moves to the head")

	assert.ErrorIs(t, m.SetCurrent(ctx, "missing"), ErrDraftNotFound)
}

func TestSave_EvictsOldestBeyondCap(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{MaxDrafts: 3})

	for i := 0; i < 5; i++ {
		require.NoError(t, m.NewDraft(ctx))
		_, err := m.Save(ctx, state(t, fmt.Sprintf("ACR%d", i)))
		require.NoError(t, err)
	}

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft-5", "draft-4", "draft-3"}, ids(list))
}

func TestSave_QuotaRetryShrinksList(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Initialize(ctx))
	store := &quotaStore{Adapter: mem, limit: 5}
	m := newTestManager(t, store, Options{MaxDrafts: 10})

	for i := 0; i < 6; i++ {
		require.NoError(t, m.NewDraft(ctx))
		_, err := m.Save(ctx, state(t, fmt.Sprintf("ACR%d", i)))
		require.NoError(t, err, "quota failure must be absorbed by the retry")
	}

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"draft-6", "draft-5", "draft-4", "draft-3", "draft-2"}, ids(list))
	assert.Equal(t, 7, store.sets, "one retry for the sixth save")
}

func TestSave_QuotaRetryFails(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Initialize(ctx))
	m := newTestManager(t, &quotaStore{Adapter: mem, limit: 0}, Options{})

	_, err := m.Save(ctx, state(t, "GREENCITY"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	assert.Empty(t, m.Current())
}

func TestDefaultName(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	title := "Climate-resilient cities"

	assert.Equal(t, "Draft 2025-03-01 09:30", defaultName(nil, now))
	assert.Equal(t, title, defaultName(&models.ApplicationContext{ProjectTitle: &title}, now))
}

// ==========================
// Load / Delete
// ==========================

func TestLoadAndDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	saved, err := m.Save(ctx, state(t, "GREENCITY"))
	require.NoError(t, err)
	require.NoError(t, m.NewDraft(ctx))

	loaded, err := m.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, loaded.ID)
	assert.Equal(t, saved.ChatHistory, loaded.ChatHistory)
	assert.Equal(t, saved.ID, m.Current(), "loading makes the draft current")

	_, err = m.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)

	require.NoError(t, m.Delete(ctx, saved.ID))
	assert.Empty(t, m.Current())
	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, m.Delete(ctx, saved.ID), ErrDraftNotFound)
}

func TestRestoreCurrentPointer(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Initialize(ctx))

	first := newTestManager(t, mem, Options{})
	saved, err := first.Save(ctx, state(t, "GREENCITY"))
	require.NoError(t, err)

	second := newTestManager(t, mem, Options{})
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, saved.ID, second.Current())
}

func TestList_CorruptListIsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Initialize(ctx))
	require.NoError(t, mem.Set(ctx, ListKey, []byte("{broken")))

	list, err := newTestManager(t, mem, Options{}).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// ==========================
// Export / Import
// ==========================

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})

	saved, err := m.Save(ctx, state(t, "GREENCITY"))
	require.NoError(t, err)

	blob, err := m.Export(ctx, saved.ID)
	require.NoError(t, err)

	imported, err := m.Import(ctx, blob)
	require.NoError(t, err)
	assert.NotEqual(t, saved.ID, imported.ID, "import regenerates the id")
	assert.Equal(t, saved.Name, imported.Name)
	assert.Equal(t, saved.Version, imported.Version)
	assert.Equal(t, saved.Context.Values(), imported.Context.Values())
	assert.Equal(t, saved.ChatHistory, imported.ChatHistory)

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{imported.ID, saved.ID}, ids(list))

	_, err = m.Export(ctx, "missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestImport_StructuralFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, Options{})
	_, err := m.Save(ctx, state(t, "GREENCITY"))
	require.NoError(t, err)

	tests := []struct {
		name string
		blob string
	}{
		{"not json", "{nope"},
		{"missing context", `{"name":"a","version":1}`},
		{"bad chat role", `{"name":"a","version":1,"context":{},"chatHistory":[{"role":"robot","content":"hi"}]}`},
		{"context field of wrong type", `{"name":"a","version":1,"context":{"duration":"long"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Import(ctx, []byte(tt.blob))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrStructuralImportFailure))

			list, err := m.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"draft-1"}, ids(list))
		})
	}
}

// ==========================
// Auto-save
// ==========================

func TestStartAutoSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	m := newTestManager(t, nil, Options{AutoSaveInterval: 5 * time.Millisecond})

	var calls int32
	stop := m.StartAutoSave(ctx, func() (models.DraftState, bool) {
		atomic.AddInt32(&calls, 1)
		return state(t, "GREENCITY"), true
	})

	assert.Eventually(t, func() bool {
		list, err := m.List(ctx)
		return err == nil && len(list) == 1 && list[0].Version >= 2
	}, time.Second, 5*time.Millisecond)

	stop()
	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "no ticks after stop")
}

func TestStartAutoSave_SkipsAndSurvivesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Initialize(ctx))
	store := &quotaStore{Adapter: mem, limit: 0}
	m := newTestManager(t, store, Options{AutoSaveInterval: 5 * time.Millisecond})

	var calls int32
	stop := m.StartAutoSave(ctx, func() (models.DraftState, bool) {
		n := atomic.AddInt32(&calls, 1)
		return state(t, "GREENCITY"), n%2 == 0
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 4 }, time.Second, 5*time.Millisecond)
	stop()

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "every save failed on quota and was only logged")
}
