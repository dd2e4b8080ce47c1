package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/validation"
	"grant-assistant/internal/models"
)

// ErrNoSession is returned by operations that need an active session.
var ErrNoSession = errors.New("no active session")

// ImportResult describes an accepted import.
type ImportResult struct {
	Session models.Session
	// Dropped lists context fields that failed re-validation and were left out.
	Dropped []models.FieldName
}

// sessionEnvelope mirrors models.Session with a loosely typed context so each
// field can be re-validated on its own.
type sessionEnvelope struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	ExpiresAt time.Time              `json:"expiresAt"`
	Version   int                    `json:"version"`
	Context   map[string]interface{} `json:"context"`
	Metadata  models.SessionMetadata `json:"metadata"`
}

// ExportSession serializes the active session with its validated context.
func (m *Manager) ExportSession() ([]byte, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	snapshot := cloneSession(m.current)
	snapshot.Context, _ = m.revalidate(&m.current.Context)
	m.mu.Unlock()

	return json.MarshalIndent(snapshot, "", "  ")
}

// ImportSession replaces the active session with an exported one. The outer
// structure is checked first; a malformed blob changes nothing. Context fields
// are re-validated one by one and failures are dropped.
func (m *Manager) ImportSession(ctx context.Context, blob []byte) (ImportResult, error) {
	if result := validation.SessionSchema.Validate(blob); !result.Valid {
		return ImportResult{}, apperrors.NewStructuralImportFailureError(result.Summary())
	}

	var env sessionEnvelope
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return ImportResult{}, apperrors.NewStructuralImportFailureError(err.Error())
	}
	if env.Version > models.SessionSchemaVersion {
		return ImportResult{}, apperrors.NewStructuralImportFailureError(
			fmt.Sprintf("unsupported session version %d", env.Version))
	}

	imported, dropped := m.contextFromMap(env.Context)

	m.mu.Lock()
	now := m.now().UTC()
	s := &models.Session{
		ID:        env.ID,
		CreatedAt: env.CreatedAt,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.opts.Duration),
		Version:   models.SessionSchemaVersion,
		Context:   imported,
		Metadata: models.SessionMetadata{
			UserAgent: env.Metadata.UserAgent,
			Language:  env.Metadata.Language,
		},
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if err := m.persist(ctx, s); err != nil {
		m.mu.Unlock()
		return ImportResult{}, err
	}
	m.current = s
	snapshot := cloneSession(s)
	m.mu.Unlock()

	m.logger.Info("session imported", map[string]interface{}{
		"session_id": snapshot.ID,
		"fields":     len(snapshot.Context.PresentFields()),
		"dropped":    dropped,
	})
	m.notify(snapshot)
	return ImportResult{Session: snapshot, Dropped: dropped}, nil
}

// contextFromMap validates every known field of a decoded context. Unknown
// keys are ignored; sections and metadata are copied when they decode.
func (m *Manager) contextFromMap(raw map[string]interface{}) (models.ApplicationContext, []models.FieldName) {
	var out models.ApplicationContext
	var dropped []models.FieldName

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field := models.FieldName(k)
		if !field.IsKnown() || raw[k] == nil {
			continue
		}
		res := m.validator.Validate(field, raw[k])
		if !res.IsValid {
			dropped = append(dropped, field)
			continue
		}
		if err := out.Set(field, res.SanitizedValue); err != nil {
			dropped = append(dropped, field)
		}
	}

	if v, ok := raw["sections"]; ok {
		var sections map[string]*models.SectionProgress
		if remarshal(v, &sections) == nil {
			out.Sections = sections
		}
	}
	if v, ok := raw["metadata"]; ok {
		var meta models.ContextMetadata
		if remarshal(v, &meta) == nil {
			out.Metadata = meta
		}
	}
	return out, dropped
}

func remarshal(in interface{}, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
