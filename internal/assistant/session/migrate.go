package session

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"grant-assistant/internal/assistant/storage"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/models"
)

// MigrationReport summarises a legacy migration run.
type MigrationReport struct {
	Skipped  bool               `json:"skipped"`
	Keys     []string           `json:"keys,omitempty"`
	Accepted []models.FieldName `json:"accepted,omitempty"`
	Rejected []models.FieldName `json:"rejected,omitempty"`
}

type migrationMarker struct {
	MigratedAt string   `json:"migratedAt"`
	Keys       []string `json:"keys"`
}

// MigrateLegacy moves context blobs stored under the legacy flat keys into
// the active session, field by field through the validating write path.
// Legacy keys are removed only after every field went through, and a marker
// stops the migration from running again. Rejected legacy fields do not
// count towards the invalid-attempt ceiling.
func (m *Manager) MigrateLegacy(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	done, err := m.store.Exists(ctx, MigrationMarkerKey)
	if err != nil {
		return report, apperrors.NewStorageFailureError("check migration marker", MigrationMarkerKey, err)
	}
	if done {
		report.Skipped = true
		return report, nil
	}

	for _, key := range m.opts.LegacyKeys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		raw, ok, err := m.store.Get(ctx, key)
		if err != nil {
			return report, apperrors.NewStorageFailureError("read legacy context", key, err)
		}
		if !ok {
			continue
		}
		report.Keys = append(report.Keys, key)

		fields, err := decodeLegacy(raw)
		if err != nil {
			m.logger.Warn("legacy context unreadable, dropping it", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			continue
		}
		if err := m.migrateFields(ctx, fields, &report); err != nil {
			return report, err
		}
	}

	for _, key := range report.Keys {
		if err := m.store.Remove(ctx, key); err != nil {
			return report, apperrors.NewStorageFailureError("remove legacy context", key, err)
		}
	}
	marker := migrationMarker{MigratedAt: m.clock().UTC().Format(time.RFC3339), Keys: report.Keys}
	if err := storage.SetJSON(ctx, m.store, MigrationMarkerKey, marker); err != nil {
		return report, apperrors.NewStorageFailureError("write migration marker", MigrationMarkerKey, err)
	}

	if len(report.Keys) > 0 {
		m.logger.Info("legacy context migrated", map[string]interface{}{
			"keys":     report.Keys,
			"accepted": len(report.Accepted),
			"rejected": len(report.Rejected),
		})
	}
	return report, nil
}

func (m *Manager) migrateFields(ctx context.Context, fields map[string]interface{}, report *MigrationReport) error {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		field := models.FieldName(name)
		if !field.IsKnown() || fields[name] == nil {
			continue
		}

		m.mu.Lock()
		if m.current != nil && !m.current.IsExpired(m.now()) && m.current.Context.Has(field) {
			m.mu.Unlock()
			continue
		}
		res, snapshot, changed, err := m.validateAndStoreLocked(ctx, field, fields[name], false)
		m.mu.Unlock()
		if err != nil {
			return err
		}
		if changed {
			m.notify(snapshot)
		}
		if res.IsValid {
			report.Accepted = append(report.Accepted, field)
		} else {
			report.Rejected = append(report.Rejected, field)
		}
	}
	return nil
}

// decodeLegacy accepts either a flat field map or one nested under "context".
func decodeLegacy(raw []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if nested, ok := fields["context"].(map[string]interface{}); ok {
		return nested, nil
	}
	return fields, nil
}
