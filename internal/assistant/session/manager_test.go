package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/assistant/validator"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Test Helpers
// ==========================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, opts Options) (*Manager, storage.Adapter, *fakeClock) {
	t.Helper()
	bl, err := validator.DefaultBlacklist()
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	require.NoError(t, store.Initialize(context.Background()))

	log := logger.NewTestLogger(t)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(store, validator.New(bl, log), log, opts)
	m.SetClock(clock.Now)
	return m, store, clock
}

func storedSession(t *testing.T, store storage.Adapter, id string) models.Session {
	t.Helper()
	s, ok, err := storage.GetJSON[models.Session](context.Background(), store, Key(id))
	require.NoError(t, err)
	require.True(t, ok, "session %s not stored", id)
	return s
}

// ==========================
// Lifecycle
// ==========================

func TestCreateSession(t *testing.T) {
	m, store, clock := newTestManager(t, Options{})

	s, err := m.CreateSession(context.Background())
	require.NoError(t, err)

	_, err = ulid.ParseStrict(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, clock.Now(), s.CreatedAt)
	assert.Equal(t, clock.Now().Add(24*time.Hour), s.ExpiresAt)
	assert.Equal(t, models.SessionSchemaVersion, s.Version)
	assert.Zero(t, s.Metadata.InvalidAttempts)

	assert.Equal(t, s.ID, storedSession(t, store, s.ID).ID)
}

func TestValidateAndStore_AcceptsAndNotifies(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Options{})

	var seen []models.Session
	unsubscribe := m.Subscribe(func(s models.Session) { seen = append(seen, s) })

	res, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "  Deutsche Umwelthilfe e.V. ")
	require.NoError(t, err)
	require.True(t, res.IsValid)

	cur, ok := m.Current()
	require.True(t, ok)
	require.NotNil(t, cur.Context.OrganizationName)
	assert.Equal(t, "Deutsche Umwelthilfe e.V.", *cur.Context.OrganizationName)
	assert.NotNil(t, cur.Context.Metadata.LastUpdated)

	stored := storedSession(t, store, cur.ID)
	assert.Equal(t, "Deutsche Umwelthilfe e.V.", *stored.Context.OrganizationName)

	require.Len(t, seen, 1)
	assert.Equal(t, cur.ID, seen[0].ID)
	assert.True(t, seen[0].Context.Has(models.FieldOrganizationName))

	unsubscribe()
	unsubscribe()
	_, err = m.ValidateAndStore(ctx, models.FieldCall, "HORIZON-CL5-2024-D1-01")
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestValidateAndStore_RejectionCountsAttempts(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Options{})

	res, err := m.ValidateAndStore(ctx, models.FieldProjectTitle, "ok")
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	cur, _ := m.Current()
	assert.Equal(t, 1, cur.Metadata.InvalidAttempts)
	assert.Equal(t, 1, storedSession(t, store, cur.ID).Metadata.InvalidAttempts)
	assert.False(t, cur.Context.Has(models.FieldProjectTitle))

	_, err = m.ValidateAndStore(ctx, models.FieldProjectTitle, "Climate-resilient cities")
	require.NoError(t, err)
	cur, _ = m.Current()
	assert.Zero(t, cur.Metadata.InvalidAttempts)
}

func TestValidateAndStore_RotatesAtCeiling(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Options{MaxInvalidAttempts: 3})

	_, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	first, _ := m.Current()

	for i := 0; i < 3; i++ {
		res, err := m.ValidateAndStore(ctx, models.FieldProjectTitle, "next")
		require.NoError(t, err)
		require.False(t, res.IsValid)
	}
	cur, _ := m.Current()
	assert.Equal(t, first.ID, cur.ID)
	assert.Equal(t, 3, cur.Metadata.InvalidAttempts)

	res, err := m.ValidateAndStore(ctx, models.FieldProjectTitle, "Climate-resilient cities")
	require.NoError(t, err)
	require.True(t, res.IsValid)

	rotated, _ := m.Current()
	assert.NotEqual(t, first.ID, rotated.ID)
	assert.False(t, rotated.Context.Has(models.FieldOrganizationName), "previous context is discarded")
	assert.True(t, rotated.Context.Has(models.FieldProjectTitle))

	exists, err := store.Exists(ctx, Key(first.ID))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestValidateAndStore_ExpiredSessionIsReplaced(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, Options{Duration: time.Hour})

	_, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	first, _ := m.Current()

	clock.Advance(2 * time.Hour)
	_, err = m.ValidateAndStore(ctx, models.FieldCall, "HORIZON-CL5-2024-D1-01")
	require.NoError(t, err)

	cur, _ := m.Current()
	assert.NotEqual(t, first.ID, cur.ID)
	assert.False(t, cur.Context.Has(models.FieldOrganizationName))
}

func TestValidateAndStore_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, Options{})
	_, err := m.CreateSession(ctx)
	require.NoError(t, err)

	writes := map[models.FieldName]interface{}{
		models.FieldOrganizationName: "Green Org",
		models.FieldProjectTitle:     "Climate-resilient cities",
		models.FieldCall:             "HORIZON-CL5-2024-D1-01",
		models.FieldDuration:         36,
		models.FieldBudget:           3000000.0,
		models.FieldCountry:          "Germany",
	}

	var wg sync.WaitGroup
	for f, v := range writes {
		wg.Add(1)
		go func(f models.FieldName, v interface{}) {
			defer wg.Done()
			_, err := m.ValidateAndStore(ctx, f, v)
			assert.NoError(t, err)
		}(f, v)
	}
	wg.Wait()

	cur, _ := m.Current()
	assert.Len(t, cur.Context.PresentFields(), len(writes))
}

func TestValidateAndStore_RotationIsPublished(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, Options{MaxInvalidAttempts: 2})

	_, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	first, _ := m.Current()

	var seen []models.Session
	defer m.Subscribe(func(s models.Session) { seen = append(seen, s) })()

	for i := 0; i < 3; i++ {
		res, err := m.ValidateAndStore(ctx, models.FieldProjectTitle, "next")
		require.NoError(t, err)
		require.False(t, res.IsValid)
	}

	require.Len(t, seen, 1, "only the rotation is published")
	assert.NotEqual(t, first.ID, seen[0].ID)
	assert.False(t, seen[0].Context.Has(models.FieldOrganizationName))
}

// flakyStore fails every Set while failing is true.
type flakyStore struct {
	storage.Adapter
	failing bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.Adapter.Set(ctx, key, value)
}

func TestValidateAndStore_FailedPersistLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	bl, err := validator.DefaultBlacklist()
	require.NoError(t, err)
	log := logger.NewTestLogger(t)
	store := &flakyStore{Adapter: storage.NewMemoryStore()}
	require.NoError(t, store.Initialize(ctx))
	m := NewManager(store, validator.New(bl, log), log, Options{})

	_, err = m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	before, _ := m.Current()

	store.failing = true
	tests := []struct {
		name  string
		field models.FieldName
		value interface{}
	}{
		{"accepted value", models.FieldProjectTitle, "Climate-resilient cities"},
		{"rejected value", models.FieldProjectTitle, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateAndStore(ctx, tt.field, tt.value)
			require.Error(t, err)

			cur, _ := m.Current()
			assert.False(t, cur.Context.Has(models.FieldProjectTitle))
			assert.Equal(t, before.Metadata.InvalidAttempts, cur.Metadata.InvalidAttempts)
			assert.Equal(t, before.UpdatedAt, cur.UpdatedAt)
		})
	}
}

// ==========================
// Re-validation
// ==========================

func seedStoredSession(t *testing.T, m *Manager, store storage.Adapter, clock *fakeClock, ctxJSON string) models.Session {
	t.Helper()
	raw := `{"id":"01HZZZZZZZZZZZZZZZZZZZZZZZ","version":1,` +
		`"createdAt":"` + clock.Now().Format(time.RFC3339) + `",` +
		`"updatedAt":"` + clock.Now().Format(time.RFC3339) + `",` +
		`"expiresAt":"` + clock.Now().Add(time.Hour).Format(time.RFC3339) + `",` +
		`"context":` + ctxJSON + `,"metadata":{"invalidAttempts":0}}`
	require.NoError(t, store.Set(context.Background(), Key("01HZZZZZZZZZZZZZZZZZZZZZZZ"), []byte(raw)))

	s, ok, err := m.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func TestGetValidatedContext_DropsStaleFields(t *testing.T) {
	m, store, clock := newTestManager(t, Options{})
	seedStoredSession(t, m, store, clock, `{"organizationName":"Green Org","projectTitle":"ok","duration":36}`)

	validated := m.GetValidatedContext()
	assert.Equal(t, []models.FieldName{models.FieldOrganizationName, models.FieldDuration}, validated.PresentFields())

	// reading never writes
	cur, _ := m.Current()
	assert.True(t, cur.Context.Has(models.FieldProjectTitle))
}

func TestClearInvalidData_SecondCallIsNoop(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t, Options{})
	s := seedStoredSession(t, m, store, clock, `{"organizationName":"Green Org","projectTitle":"ok","acronym":"GREEN CITY"}`)

	dropped, err := m.ClearInvalidData(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.FieldName{models.FieldProjectTitle, models.FieldAcronym}, dropped)

	before, _, err := store.Get(ctx, Key(s.ID))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	dropped, err = m.ClearInvalidData(ctx)
	require.NoError(t, err)
	assert.Empty(t, dropped)

	after, _, err := store.Get(ctx, Key(s.ID))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	stored := storedSession(t, store, s.ID)
	assert.Equal(t, []models.FieldName{models.FieldOrganizationName}, stored.Context.PresentFields())
}

// ==========================
// Export / Import
// ==========================

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newTestManager(t, Options{})

	inputs := []struct {
		field models.FieldName
		value interface{}
	}{
		{models.FieldOrganizationName, "Deutsche Umwelthilfe e.V."},
		{models.FieldOrganizationType, "NGO"},
		{models.FieldKeywords, "climate adaptation, urban heat"},
		{models.FieldDuration, 36},
		{models.FieldBudget, "€3,000,000"},
		{models.FieldConsortium, []models.Partner{
			{Name: "Deutsche Umwelthilfe", Country: "Germany", Role: models.RoleCoordinator},
			{Name: "Kyiv Polytechnic", Country: "Ukraine", Role: models.RolePartner},
		}},
	}
	for _, in := range inputs {
		res, err := src.ValidateAndStore(ctx, in.field, in.value)
		require.NoError(t, err)
		require.True(t, res.IsValid, "%s: %s", in.field, res.Reason)
	}

	first, err := src.ExportSession()
	require.NoError(t, err)

	dst, _, _ := newTestManager(t, Options{})
	result, err := dst.ImportSession(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, result.Dropped)

	second, err := dst.ExportSession()
	require.NoError(t, err)

	var a, b models.Session
	require.NoError(t, json.Unmarshal(first, &a))
	require.NoError(t, json.Unmarshal(second, &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Context.Values(), b.Context.Values())
}

func TestImportSession_MalformedChangesNothing(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, Options{})
	_, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	before, _ := m.Current()

	blobs := map[string]string{
		"not json":          `{"id":`,
		"missing context":   `{"id":"abc","version":1}`,
		"version not int":   `{"id":"abc","version":"1","context":{}}`,
		"context not obj":   `{"id":"abc","version":1,"context":[]}`,
		"future version":    `{"id":"abc","version":99,"context":{}}`,
		"bad timestamp":     `{"id":"abc","version":1,"createdAt":"yesterday","context":{}}`,
		"negative attempts": `{"id":"abc","version":1,"context":{},"metadata":{"invalidAttempts":-1}}`,
	}
	for name, blob := range blobs {
		t.Run(name, func(t *testing.T) {
			_, err := m.ImportSession(ctx, []byte(blob))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrStructuralImportFailure))

			after, _ := m.Current()
			assert.Equal(t, before.ID, after.ID)
			assert.Equal(t, before.Context.Values(), after.Context.Values())
		})
	}
}

func TestImportSession_DropsInvalidFields(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})

	blob := `{"id":"imported","version":1,"context":{"organizationName":"Green Org","projectTitle":"ok","duration":36,"mystery":true}}`
	result, err := m.ImportSession(context.Background(), []byte(blob))
	require.NoError(t, err)

	assert.Equal(t, []models.FieldName{models.FieldProjectTitle}, result.Dropped)
	assert.Equal(t, "imported", result.Session.ID)
	assert.Equal(t, []models.FieldName{models.FieldOrganizationName, models.FieldDuration}, result.Session.Context.PresentFields())
}

func TestExportSession_NoSession(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	_, err := m.ExportSession()
	assert.ErrorIs(t, err, ErrNoSession)
}

// ==========================
// Sweep
// ==========================

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t, Options{Duration: time.Hour})

	old, err := m.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, Key("broken"), []byte("{")))
	require.NoError(t, store.Set(ctx, "grant_drafts", []byte("[]")))

	clock.Advance(2 * time.Hour)
	fresh, err := m.CreateSession(ctx)
	require.NoError(t, err)

	removed, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := store.GetAll(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Contains(t, left, Key(fresh.ID))
	assert.NotContains(t, left, Key(old.ID))

	exists, _ := store.Exists(ctx, "grant_drafts")
	assert.True(t, exists)
}

func TestSweepExpired_DropsExpiredCurrent(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, Options{Duration: time.Hour})
	_, err := m.CreateSession(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = m.SweepExpired(ctx)
	require.NoError(t, err)

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	m, store, clock := newTestManager(t, Options{Duration: time.Hour, SweepInterval: 5 * time.Millisecond})
	s, err := m.CreateSession(ctx)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	m.Start(ctx)
	m.Start(ctx)

	assert.Eventually(t, func() bool {
		ok, _ := store.Exists(ctx, Key(s.ID))
		return !ok
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

// ==========================
// Migration
// ==========================

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Options{LegacyKeys: []string{"grantApplicationContext", "grant_context", "applicationContext"}})

	require.NoError(t, store.Set(ctx, "grantApplicationContext",
		[]byte(`{"organizationName":"Green Org","projectTitle":"ok","unknown":1}`)))
	require.NoError(t, store.Set(ctx, "grant_context",
		[]byte(`{"context":{"call":"HORIZON-CL5-2024-D1-01","organizationName":"Other Org"}}`)))

	report, err := m.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, []string{"grantApplicationContext", "grant_context"}, report.Keys)
	assert.Equal(t, []models.FieldName{models.FieldOrganizationName, models.FieldCall}, report.Accepted)
	assert.Equal(t, []models.FieldName{models.FieldProjectTitle}, report.Rejected)

	cur, _ := m.Current()
	assert.Equal(t, "Green Org", *cur.Context.OrganizationName, "first value wins")
	assert.Zero(t, cur.Metadata.InvalidAttempts)

	for _, key := range report.Keys {
		exists, _ := store.Exists(ctx, key)
		assert.False(t, exists, key)
	}
	exists, _ := store.Exists(ctx, MigrationMarkerKey)
	assert.True(t, exists)

	again, err := m.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestLoad_PicksMostRecentUnexpired(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t, Options{Duration: time.Hour})

	_, err := m.CreateSession(ctx)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	latest, err := m.CreateSession(ctx)
	require.NoError(t, err)

	other := NewManager(store, m.validator, logger.NewTestLogger(t), Options{Duration: time.Hour})
	other.SetClock(clock.Now)
	got, ok, err := other.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, latest.ID, got.ID)

	clock.Advance(2 * time.Hour)
	_, ok, err = other.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Options{})
	_, err := m.ValidateAndStore(ctx, models.FieldOrganizationName, "Green Org")
	require.NoError(t, err)
	before, _ := m.Current()

	after, err := m.Reset(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Empty(t, after.Context.PresentFields())

	exists, _ := store.Exists(ctx, Key(before.ID))
	assert.False(t, exists)
}
