// Package templates selects grant templates for a context, fills their
// placeholders and scores how complete each subsection is.
package templates

import (
	"time"

	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/logger"
	"grant-assistant/pkg/registry"
)

type Manager struct {
	registry *registry.TemplateRegistry
	logger   logger.Logger
	now      func() time.Time
}

func NewManager(reg *registry.TemplateRegistry, log logger.Logger) *Manager {
	return &Manager{
		registry: reg,
		logger:   logger.Component(log, "templates"),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Templates returns the registered templates in registry order.
func (m *Manager) Templates() []registry.GrantTemplate {
	return append([]registry.GrantTemplate(nil), m.registry.Templates...)
}

// Template looks up a template by id.
func (m *Manager) Template(id string) (*registry.GrantTemplate, error) {
	t, ok := m.registry.Find(id)
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(id)
	}
	return t, nil
}

func (m *Manager) subsection(templateID, subsectionID string) (*registry.GrantTemplate, registry.Subsection, error) {
	t, err := m.Template(templateID)
	if err != nil {
		return nil, registry.Subsection{}, err
	}
	_, sub, ok := t.Subsection(subsectionID)
	if !ok {
		return nil, registry.Subsection{}, apperrors.NewSubsectionNotFoundError(templateID, subsectionID)
	}
	return t, sub, nil
}
