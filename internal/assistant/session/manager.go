// Package session owns the single active, time-bounded session and its
// validate-and-store write path.
package session

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/common/config"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/events"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"

	"github.com/oklog/ulid/v2"
)

const (
	KeyPrefix          = "grant_session_"
	MigrationMarkerKey = "grant_migration_done"
)

// Key returns the storage key of a session id.
func Key(id string) string {
	return KeyPrefix + id
}

// Options tune the session lifecycle.
type Options struct {
	Duration           time.Duration
	SweepInterval      time.Duration
	MaxInvalidAttempts int
	LegacyKeys         []string
	UserAgent          string
	Language           string
}

func OptionsFromConfig(cfg config.SessionConfig, language string) Options {
	return Options{
		Duration:           config.GetDuration(cfg.Duration),
		SweepInterval:      config.GetDuration(cfg.SweepInterval),
		MaxInvalidAttempts: cfg.MaxInvalidAttempts,
		LegacyKeys:         cfg.LegacyKeys,
		Language:           language,
	}
}

func (o Options) withDefaults() Options {
	if o.Duration <= 0 {
		o.Duration = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Hour
	}
	if o.MaxInvalidAttempts <= 0 {
		o.MaxInvalidAttempts = 10
	}
	return o
}

// Listener receives a copy of the session after every successful change.
type Listener func(models.Session)

type Manager struct {
	mu        sync.Mutex
	store     storage.Adapter
	validator *validator.Validator
	logger    logger.Logger
	opts      Options
	now       func() time.Time
	entropy   io.Reader

	current *models.Session

	changes events.Broadcaster[models.Session]

	sweeping atomic.Bool
	loopMu   sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewManager(store storage.Adapter, v *validator.Validator, log logger.Logger, opts Options) *Manager {
	return &Manager{
		store:     store,
		validator: v,
		logger:    logger.Component(log, "session"),
		opts:      opts.withDefaults(),
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Current returns a copy of the active session.
func (m *Manager) Current() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return models.Session{}, false
	}
	return cloneSession(m.current), true
}

// CreateSession starts a fresh empty session and persists it immediately.
func (m *Manager) CreateSession(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	s, err := m.createLocked(ctx, "new")
	m.mu.Unlock()
	if err != nil {
		return models.Session{}, err
	}
	m.notify(s)
	return s, nil
}

// Reset replaces the active session with an empty one and drops the old record.
func (m *Manager) Reset(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	var oldID string
	if m.current != nil {
		oldID = m.current.ID
	}
	s, err := m.createLocked(ctx, "reset")
	m.mu.Unlock()
	if err != nil {
		return models.Session{}, err
	}
	if oldID != "" {
		if err := m.store.Remove(ctx, Key(oldID)); err != nil {
			m.logger.Warn("failed to remove previous session", map[string]interface{}{
				"session_id": oldID,
				"error":      err.Error(),
			})
		}
	}
	m.notify(s)
	return s, nil
}

func (m *Manager) createLocked(ctx context.Context, reason string) (models.Session, error) {
	now := m.now().UTC()
	s := &models.Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.opts.Duration),
		Version:   models.SessionSchemaVersion,
		Context:   models.ApplicationContext{Metadata: models.ContextMetadata{Language: m.opts.Language}},
		Metadata: models.SessionMetadata{
			UserAgent: m.opts.UserAgent,
			Language:  m.opts.Language,
		},
	}
	if err := m.persist(ctx, s); err != nil {
		return models.Session{}, err
	}
	m.current = s
	metrics.SessionsCreated.WithLabelValues(reason).Inc()
	m.logger.Info("session created", map[string]interface{}{
		"session_id": s.ID,
		"reason":     reason,
		"expires_at": s.ExpiresAt,
	})
	return cloneSession(s), nil
}

func (m *Manager) persist(ctx context.Context, s *models.Session) error {
	if err := storage.SetJSON(ctx, m.store, Key(s.ID), s); err != nil {
		return apperrors.NewStorageFailureError("persist session", Key(s.ID), err)
	}
	return nil
}

// ensureLocked makes sure an unexpired session is active and reports whether
// a new one had to be created.
func (m *Manager) ensureLocked(ctx context.Context) (bool, error) {
	if m.current != nil && !m.current.IsExpired(m.now()) {
		return false, nil
	}
	reason := "new"
	if m.current != nil {
		reason = "expired"
	}
	if _, err := m.createLocked(ctx, reason); err != nil {
		return false, err
	}
	return true, nil
}

// Probe validates value without touching the session. Used to test whether a
// reply would be accepted before committing to it.
func (m *Manager) Probe(field models.FieldName, value interface{}) validator.Result {
	return m.validator.Validate(field, value)
}

// ValidateAndStore validates value and, when accepted, merges it into the
// active session. A rejection increments the invalid-attempt counter. Once the
// counter has reached the ceiling the next call starts over with a brand-new
// empty session, discarding previously accepted fields too.
func (m *Manager) ValidateAndStore(ctx context.Context, field models.FieldName, value interface{}) (validator.Result, error) {
	m.mu.Lock()
	res, snapshot, changed, err := m.validateAndStoreLocked(ctx, field, value, true)
	m.mu.Unlock()
	if changed {
		m.notify(snapshot)
	}
	return res, err
}

func (m *Manager) validateAndStoreLocked(ctx context.Context, field models.FieldName, value interface{}, countAttempts bool) (validator.Result, models.Session, bool, error) {
	recreated, err := m.ensureLocked(ctx)
	if err != nil {
		return validator.Result{}, models.Session{}, false, err
	}

	if countAttempts && m.current.Metadata.InvalidAttempts >= m.opts.MaxInvalidAttempts {
		previous := m.current.ID
		discarded := len(m.current.Context.PresentFields())
		if _, err := m.createLocked(ctx, "rotation"); err != nil {
			return validator.Result{}, models.Session{}, false, err
		}
		recreated = true
		m.logger.Warn("invalid attempt ceiling reached, session rotated", map[string]interface{}{
			"previous_session_id": previous,
			"session_id":          m.current.ID,
			"discarded_fields":    discarded,
		})
		if err := m.store.Remove(ctx, Key(previous)); err != nil {
			m.logger.Warn("failed to remove rotated session", map[string]interface{}{
				"session_id": previous,
				"error":      err.Error(),
			})
		}
	}

	// A replaced session is published even when the value itself is refused.
	published := func() (models.Session, bool) {
		if !recreated {
			return models.Session{}, false
		}
		return cloneSession(m.current), true
	}

	res := m.validator.Validate(field, value)
	now := m.now().UTC()
	next := cloneSession(m.current)

	if !res.IsValid {
		if countAttempts {
			next.Metadata.InvalidAttempts++
			next.UpdatedAt = now
			if err := m.persist(ctx, &next); err != nil {
				snapshot, changed := published()
				return res, snapshot, changed, err
			}
			m.current = &next
		}
		snapshot, changed := published()
		return res, snapshot, changed, nil
	}

	if err := next.Context.Set(field, res.SanitizedValue); err != nil {
		snapshot, changed := published()
		return validator.Result{}, snapshot, changed, fmt.Errorf("store %s: %w", field, err)
	}
	next.Context.Metadata.LastUpdated = &now
	next.Metadata.InvalidAttempts = 0
	next.UpdatedAt = now
	if err := m.persist(ctx, &next); err != nil {
		snapshot, changed := published()
		return res, snapshot, changed, err
	}
	m.current = &next
	return res, cloneSession(m.current), true, nil
}

// GetValidatedContext re-validates every stored field and returns only those
// that still pass. Nothing is written.
func (m *Manager) GetValidatedContext() models.ApplicationContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return models.ApplicationContext{}
	}
	clean, _ := m.revalidate(&m.current.Context)
	return clean
}

// ClearInvalidData runs the same re-validation as GetValidatedContext and
// persists the cleaned context. It returns the dropped fields; when nothing was
// dropped no write happens.
func (m *Manager) ClearInvalidData(ctx context.Context) ([]models.FieldName, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, nil
	}
	clean, dropped := m.revalidate(&m.current.Context)
	if len(dropped) == 0 {
		m.mu.Unlock()
		return nil, nil
	}

	updated := cloneSession(m.current)
	updated.Context = clean
	updated.UpdatedAt = m.now().UTC()
	if err := m.persist(ctx, &updated); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.current = &updated
	snapshot := cloneSession(m.current)
	m.mu.Unlock()

	m.logger.Info("invalid session data cleared", map[string]interface{}{
		"session_id": snapshot.ID,
		"dropped":    dropped,
	})
	m.notify(snapshot)
	return dropped, nil
}

// revalidate rebuilds a context from the fields of src that pass validation.
func (m *Manager) revalidate(src *models.ApplicationContext) (models.ApplicationContext, []models.FieldName) {
	copied := src.Clone()
	clean := models.ApplicationContext{Sections: copied.Sections, Metadata: copied.Metadata}
	var dropped []models.FieldName

	values := src.Values()
	fields := make([]models.FieldName, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		res := m.validator.Validate(f, values[f])
		if !res.IsValid {
			dropped = append(dropped, f)
			continue
		}
		if err := clean.Set(f, res.SanitizedValue); err != nil {
			dropped = append(dropped, f)
		}
	}
	return clean, dropped
}

// Load resumes the most recently updated unexpired session from storage.
func (m *Manager) Load(ctx context.Context) (models.Session, bool, error) {
	sessions, _, err := storage.GetAllJSON[models.Session](ctx, m.store, KeyPrefix)
	if err != nil {
		return models.Session{}, false, apperrors.NewStorageFailureError("load sessions", KeyPrefix, err)
	}

	m.mu.Lock()
	now := m.now()
	var latest *models.Session
	for _, s := range sessions {
		s := s
		if s.IsExpired(now) {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = &s
		}
	}
	if latest == nil {
		m.mu.Unlock()
		return models.Session{}, false, nil
	}
	m.current = latest
	snapshot := cloneSession(latest)
	m.mu.Unlock()

	m.logger.Info("session resumed", map[string]interface{}{
		"session_id": snapshot.ID,
		"fields":     len(snapshot.Context.PresentFields()),
	})
	m.notify(snapshot)
	return snapshot, true, nil
}

// Subscribe registers fn for change notifications and returns the function
// that removes it again.
func (m *Manager) Subscribe(fn Listener) func() {
	return m.changes.Subscribe(fn)
}

// notify runs outside the state lock so listeners may call back in.
func (m *Manager) notify(s models.Session) {
	m.changes.Publish(s)
}

func cloneSession(s *models.Session) models.Session {
	out := *s
	out.Context = *s.Context.Clone()
	return out
}
