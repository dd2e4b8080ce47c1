// Package appcontext is the UI-facing application context store. It is kept
// in step with the session by re-validating fields, never by sharing memory,
// and tracks per-section progress.
package appcontext

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/assistant/validator"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/events"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/models"
)

const StorageKey = "grant_app_context"

// OverallSections are the proposal parts averaged by GetOverallCompletion.
var OverallSections = []string{"summary", "excellence", "impact", "implementation", "budget"}

// UpdateResult lists what an update applied and what it refused.
type UpdateResult struct {
	Applied  []models.FieldName          `json:"applied,omitempty"`
	Cleared  []models.FieldName          `json:"cleared,omitempty"`
	Rejected map[models.FieldName]string `json:"rejected,omitempty"`
}

func (r UpdateResult) changed() bool {
	return len(r.Applied) > 0 || len(r.Cleared) > 0
}

// OverallCompletion summarises progress over OverallSections.
type OverallCompletion struct {
	Percentage        int `json:"percentage"`
	CompletedSections int `json:"completedSections"`
	TotalSections     int `json:"totalSections"`
}

type Manager struct {
	mu        sync.Mutex
	store     storage.Adapter
	validator *validator.Validator
	logger    logger.Logger
	now       func() time.Time

	current models.ApplicationContext
	changes events.Broadcaster[models.ApplicationContext]
}

func NewManager(store storage.Adapter, v *validator.Validator, log logger.Logger) *Manager {
	return &Manager{
		store:     store,
		validator: v,
		logger:    logger.Component(log, "appcontext"),
		now:       time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Load restores the persisted context. Fields that no longer validate are
// dropped so the in-memory context only ever holds valid values.
func (m *Manager) Load(ctx context.Context) error {
	stored, ok, err := storage.GetJSON[models.ApplicationContext](ctx, m.store, StorageKey)
	if err != nil {
		return apperrors.NewStorageFailureError("load app context", StorageKey, err)
	}
	if !ok {
		return nil
	}

	clean := models.ApplicationContext{Sections: stored.Sections, Metadata: stored.Metadata}
	var dropped []models.FieldName
	values := stored.Values()
	for _, f := range stored.PresentFields() {
		res := m.validator.Validate(f, values[f])
		if !res.IsValid || clean.Set(f, res.SanitizedValue) != nil {
			dropped = append(dropped, f)
		}
	}

	m.mu.Lock()
	m.current = clean
	m.mu.Unlock()

	if len(dropped) > 0 {
		m.logger.Warn("stored app context had invalid fields", map[string]interface{}{"dropped": dropped})
	}
	return nil
}

// Context returns a copy of the current context.
func (m *Manager) Context() models.ApplicationContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.current.Clone()
}

// UpdateContext shallow-merges partial into the context. Every value is
// validated first; a nil value clears the field. Rejected values are reported
// and left out, accepted ones are applied, stamped, persisted and published.
func (m *Manager) UpdateContext(ctx context.Context, partial map[models.FieldName]interface{}) (UpdateResult, error) {
	result := UpdateResult{Rejected: map[models.FieldName]string{}}

	fields := make([]models.FieldName, 0, len(partial))
	for f := range partial {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	m.mu.Lock()
	next := m.current.Clone()
	for _, f := range fields {
		v := partial[f]
		if v == nil {
			if next.Has(f) {
				next.Unset(f)
				result.Cleared = append(result.Cleared, f)
			}
			continue
		}
		res := m.validator.Validate(f, v)
		if !res.IsValid {
			result.Rejected[f] = res.Reason
			continue
		}
		if err := next.Set(f, res.SanitizedValue); err != nil {
			result.Rejected[f] = err.Error()
			continue
		}
		result.Applied = append(result.Applied, f)
	}

	if !result.changed() {
		m.mu.Unlock()
		return result, nil
	}

	now := m.now().UTC()
	next.Metadata.LastUpdated = &now
	if err := m.persist(ctx, next); err != nil {
		m.mu.Unlock()
		return result, err
	}
	m.current = *next
	snapshot := *next.Clone()
	m.mu.Unlock()

	m.logger.Debug("app context updated", map[string]interface{}{
		"applied": result.Applied,
		"cleared": result.Cleared,
	})
	m.changes.Publish(snapshot)
	return result, nil
}

// SyncFromSession makes the session's validated context the field set of
// this store. Fields the session no longer holds, or that fail re-validation,
// are cleared; section progress is kept.
func (m *Manager) SyncFromSession(ctx context.Context, validated models.ApplicationContext) (UpdateResult, error) {
	partial := make(map[models.FieldName]interface{})
	current := m.Context()
	currentValues := current.Values()
	incoming := validated.Values()

	for f, v := range incoming {
		if existing, ok := currentValues[f]; ok && reflect.DeepEqual(existing, v) {
			continue
		}
		if res := m.validator.Validate(f, v); !res.IsValid {
			partial[f] = nil
			continue
		}
		partial[f] = v
	}
	for f := range currentValues {
		if _, ok := incoming[f]; !ok {
			partial[f] = nil
		}
	}
	if len(partial) == 0 {
		return UpdateResult{}, nil
	}
	return m.UpdateContext(ctx, partial)
}

// Reset clears the context and its section progress.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	if err := m.store.Remove(ctx, StorageKey); err != nil {
		m.mu.Unlock()
		return apperrors.NewStorageFailureError("reset app context", StorageKey, err)
	}
	m.current = models.ApplicationContext{}
	m.mu.Unlock()

	m.changes.Publish(models.ApplicationContext{})
	return nil
}

func (m *Manager) persist(ctx context.Context, c *models.ApplicationContext) error {
	if err := storage.SetJSON(ctx, m.store, StorageKey, c); err != nil {
		return apperrors.NewStorageFailureError("persist app context", StorageKey, err)
	}
	return nil
}

// ValidateStepRequirements reports the missing fields of step and the share
// of its required fields that are present.
func (m *Manager) ValidateStepRequirements(step Step) (StepValidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return validateStep(&m.current, step)
}

// CanAdvanceToStep decides whether the workflow may move from one step to
// another. Moving forward requires every step in between to be complete and
// to satisfy its leave rule.
func (m *Manager) CanAdvanceToStep(from, to Step) AdvanceDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return canAdvance(&m.current, from, to)
}

// NextStep returns the first step that is not yet complete.
func (m *Manager) NextStep() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range Steps {
		v, _ := validateStep(&m.current, s)
		if !v.IsValid {
			return s
		}
		if rule, ok := leaveRules[s]; ok && rule(&m.current) != "" {
			return s
		}
	}
	return StepReview
}

// UpdateSectionProgress merges u into the section's record, creating it on
// first use.
func (m *Manager) UpdateSectionProgress(ctx context.Context, sectionID string, u models.SectionProgressUpdate) (models.SectionProgress, error) {
	if sectionID == "" {
		return models.SectionProgress{}, fmt.Errorf("section id is empty")
	}
	if u.Status != nil && !u.Status.IsValid() {
		return models.SectionProgress{}, fmt.Errorf("invalid section status %q", *u.Status)
	}

	m.mu.Lock()
	next := m.current.Clone()
	if next.Sections == nil {
		next.Sections = make(map[string]*models.SectionProgress)
	}
	p, ok := next.Sections[sectionID]
	if !ok {
		p = &models.SectionProgress{Status: models.StatusNotStarted}
		next.Sections[sectionID] = p
	}
	now := m.now().UTC()
	p.Apply(u, now)
	next.Metadata.LastUpdated = &now

	if err := m.persist(ctx, next); err != nil {
		m.mu.Unlock()
		return models.SectionProgress{}, err
	}
	m.current = *next
	out := *p.Clone()
	snapshot := *next.Clone()
	m.mu.Unlock()

	m.changes.Publish(snapshot)
	return out, nil
}

// GetSectionStatus returns the progress record of a section.
func (m *Manager) GetSectionStatus(sectionID string) (models.SectionProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.current.Sections[sectionID]
	if !ok {
		return models.SectionProgress{}, false
	}
	return *p.Clone(), true
}

// GetOverallCompletion averages completion over OverallSections; sections
// without a record count as zero.
func (m *Manager) GetOverallCompletion() OverallCompletion {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, done := 0, 0
	for _, id := range OverallSections {
		p, ok := m.current.Sections[id]
		if !ok {
			continue
		}
		total += p.CompletionPercent
		if p.Status.IsDone() {
			done++
		}
	}
	return OverallCompletion{
		Percentage:        int(math.Round(float64(total) / float64(len(OverallSections)))),
		CompletedSections: done,
		TotalSections:     len(OverallSections),
	}
}

// Subscribe registers fn for change notifications and returns the function
// that removes it again.
func (m *Manager) Subscribe(fn func(models.ApplicationContext)) func() {
	return m.changes.Subscribe(fn)
}
