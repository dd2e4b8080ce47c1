// Package drafts keeps a bounded, most-recent-first list of named snapshots
// of the working state.
package drafts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"grant-assistant/internal/assistant/storage"
	"grant-assistant/internal/common/config"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/logger"
	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/common/validation"
	"grant-assistant/internal/models"

	"github.com/google/uuid"
)

const (
	ListKey    = "grant_drafts"
	CurrentKey = "grant_drafts_current"

	TriggerManual = "manual"
	TriggerAuto   = "auto"
	TriggerImport = "import"
)

var ErrDraftNotFound = errors.New("draft not found")

type Options struct {
	MaxDrafts        int
	AutoSaveInterval time.Duration
}

func OptionsFromConfig(cfg config.DraftsConfig) Options {
	return Options{
		MaxDrafts:        cfg.MaxDrafts,
		AutoSaveInterval: config.GetDuration(cfg.AutoSaveInterval),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxDrafts <= 0 {
		o.MaxDrafts = 10
	}
	if o.AutoSaveInterval <= 0 {
		o.AutoSaveInterval = 30 * time.Second
	}
	return o
}

type Manager struct {
	mu      sync.Mutex
	store   storage.Adapter
	logger  logger.Logger
	opts    Options
	now     func() time.Time
	newID   func() string
	current string
}

func NewManager(store storage.Adapter, log logger.Logger, opts Options) *Manager {
	return &Manager{
		store:  store,
		logger: logger.Component(log, "drafts"),
		opts:   opts.withDefaults(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Restore reads the persisted current-draft pointer.
func (m *Manager) Restore(ctx context.Context) error {
	raw, ok, err := m.store.Get(ctx, CurrentKey)
	if err != nil {
		return apperrors.NewStorageFailureError("get", CurrentKey, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.current = string(raw)
	}
	return nil
}

// Current returns the id subsequent saves update, or "".
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent makes id the draft that subsequent saves update in place.
func (m *Manager) SetCurrent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, err := m.listLocked(ctx)
	if err != nil {
		return err
	}
	if indexOf(list, id) < 0 {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	m.setCurrentLocked(ctx, id)
	return nil
}

// NewDraft detaches from the current draft; the next save creates a new entry.
func (m *Manager) NewDraft(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCurrentLocked(ctx, "")
	return nil
}

// setCurrentLocked persists the pointer on a best-effort basis.
func (m *Manager) setCurrentLocked(ctx context.Context, id string) {
	m.current = id
	var err error
	if id == "" {
		err = m.store.Remove(ctx, CurrentKey)
	} else {
		err = m.store.Set(ctx, CurrentKey, []byte(id))
	}
	if err != nil {
		m.logger.Warn("failed to persist current draft", map[string]interface{}{"error": err.Error()})
	}
}

// List returns every draft, most recent first.
func (m *Manager) List(ctx context.Context) ([]models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(ctx)
}

// listLocked reads the stored list. An undecodable list is treated as empty.
func (m *Manager) listLocked(ctx context.Context) ([]models.Draft, error) {
	raw, ok, err := m.store.Get(ctx, ListKey)
	if err != nil {
		return nil, apperrors.NewStorageFailureError("get", ListKey, err)
	}
	if !ok {
		return []models.Draft{}, nil
	}
	var list []models.Draft
	if err := json.Unmarshal(raw, &list); err != nil {
		m.logger.Warn("stored draft list is corrupt, starting empty", map[string]interface{}{"error": err.Error()})
		return []models.Draft{}, nil
	}
	return list, nil
}

// Load returns one draft and makes it current.
func (m *Manager) Load(ctx context.Context, id string) (models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, err := m.listLocked(ctx)
	if err != nil {
		return models.Draft{}, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return models.Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	m.setCurrentLocked(ctx, id)
	return list[i], nil
}

// Delete removes a draft. Deleting the current draft detaches from it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, err := m.listLocked(ctx)
	if err != nil {
		return err
	}
	i := indexOf(list, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	list = append(list[:i], list[i+1:]...)
	if err := m.writeLocked(ctx, list); err != nil {
		return err
	}
	if m.current == id {
		m.setCurrentLocked(ctx, "")
	}
	m.logger.Info("draft deleted", map[string]interface{}{"draftId": id})
	return nil
}

// Save snapshots state. With a current draft the entry is updated in place
// and its version incremented; otherwise a new draft is inserted. Either way
// the saved draft moves to the head of the list and drafts beyond the cap
// are evicted oldest first.
func (m *Manager) Save(ctx context.Context, state models.DraftState) (models.Draft, error) {
	return m.save(ctx, state, TriggerManual)
}

func (m *Manager) save(ctx context.Context, state models.DraftState, trigger string) (models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.listLocked(ctx)
	if err != nil {
		metrics.DraftsSaved.WithLabelValues(trigger, "error").Inc()
		return models.Draft{}, err
	}

	now := m.now().UTC()
	var d models.Draft
	if i := indexOf(list, m.current); i >= 0 {
		d = list[i]
		list = append(list[:i], list[i+1:]...)
		d.Version++
	} else {
		d = models.Draft{ID: m.newID(), Version: 1, CreatedAt: now}
	}
	fill(&d, state, now)

	list = append([]models.Draft{d}, list...)
	if len(list) > m.opts.MaxDrafts {
		list = list[:m.opts.MaxDrafts]
	}

	if err := m.writeLocked(ctx, list); err != nil {
		metrics.DraftsSaved.WithLabelValues(trigger, "error").Inc()
		return models.Draft{}, err
	}
	if d.ID != m.current {
		m.setCurrentLocked(ctx, d.ID)
	}

	metrics.DraftsSaved.WithLabelValues(trigger, "ok").Inc()
	m.logger.Debug("draft saved", map[string]interface{}{
		"draftId": d.ID,
		"version": d.Version,
		"trigger": trigger,
		"drafts":  len(list),
	})
	return d, nil
}

func fill(d *models.Draft, state models.DraftState, now time.Time) {
	if state.Name != "" {
		d.Name = state.Name
	} else if d.Name == "" {
		d.Name = defaultName(state.Context, now)
	}
	if state.Context != nil {
		d.Context = *state.Context.Clone()
	} else {
		d.Context = models.ApplicationContext{}
	}
	d.ChatHistory = append([]models.ChatMessage{}, state.ChatHistory...)
	d.PopulatedSections = append([]models.TemplatePopulationResult(nil), state.PopulatedSections...)
	if state.Metadata != nil {
		d.Metadata = make(map[string]string, len(state.Metadata))
		for k, v := range state.Metadata {
			d.Metadata[k] = v
		}
	}
	d.UpdatedAt = now
}

func defaultName(c *models.ApplicationContext, now time.Time) string {
	if c != nil {
		if c.Acronym != nil {
			return *c.Acronym
		}
		if c.ProjectTitle != nil {
			return *c.ProjectTitle
		}
	}
	return "Draft " + now.Format("2006-01-02 15:04")
}

// writeLocked persists list. On a quota failure it retries once with the
// list shrunk to half the cap.
func (m *Manager) writeLocked(ctx context.Context, list []models.Draft) error {
	err := storage.SetJSON(ctx, m.store, ListKey, list)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrQuotaExceeded) {
		return apperrors.NewStorageFailureError("set", ListKey, err)
	}

	keep := m.opts.MaxDrafts / 2
	if keep < 1 {
		keep = 1
	}
	if len(list) > keep {
		list = list[:keep]
	}
	m.logger.Warn("draft storage quota exceeded, retrying with fewer drafts", map[string]interface{}{
		"keep": len(list),
	})
	if err := storage.SetJSON(ctx, m.store, ListKey, list); err != nil {
		return apperrors.NewStorageFailureError("set", ListKey, err)
	}
	return nil
}

// Export serializes one draft.
func (m *Manager) Export(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	list, err := m.listLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return json.MarshalIndent(list[i], "", "  ")
}

// Import adds an exported draft under a fresh id. A blob that fails the
// structure check changes nothing.
func (m *Manager) Import(ctx context.Context, blob []byte) (models.Draft, error) {
	if result := validation.DraftSchema.Validate(blob); !result.Valid {
		return models.Draft{}, apperrors.NewStructuralImportFailureError(result.Summary())
	}
	var d models.Draft
	dec := json.NewDecoder(bytes.NewReader(blob))
	if err := dec.Decode(&d); err != nil {
		return models.Draft{}, apperrors.NewStructuralImportFailureError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list, err := m.listLocked(ctx)
	if err != nil {
		return models.Draft{}, err
	}

	now := m.now().UTC()
	d.ID = m.newID()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	list = append([]models.Draft{d}, list...)
	if len(list) > m.opts.MaxDrafts {
		list = list[:m.opts.MaxDrafts]
	}
	if err := m.writeLocked(ctx, list); err != nil {
		metrics.DraftsSaved.WithLabelValues(TriggerImport, "error").Inc()
		return models.Draft{}, err
	}
	metrics.DraftsSaved.WithLabelValues(TriggerImport, "ok").Inc()
	m.logger.Info("draft imported", map[string]interface{}{"draftId": d.ID, "name": d.Name})
	return d, nil
}

func indexOf(list []models.Draft, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
