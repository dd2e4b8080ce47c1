package drafts

import (
	"context"
	"time"

	"grant-assistant/internal/models"
)

// Supplier returns the state to auto-save. Returning false skips the tick.
type Supplier func() (models.DraftState, bool)

// StartAutoSave saves the supplied state every AutoSaveInterval until the
// returned stop function is called or ctx is cancelled. Save errors are
// logged and never stop the loop. stop waits for the loop to exit.
func (m *Manager) StartAutoSave(ctx context.Context, supply Supplier) (stop func()) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opts.AutoSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.autoSave(loopCtx, supply)
			}
		}
	}()

	m.logger.Debug("auto-save started", map[string]interface{}{
		"interval": m.opts.AutoSaveInterval.String(),
	})
	return func() {
		cancel()
		<-done
	}
}

func (m *Manager) autoSave(ctx context.Context, supply Supplier) {
	state, ok := supply()
	if !ok {
		return
	}
	if _, err := m.save(ctx, state, TriggerAuto); err != nil && ctx.Err() == nil {
		m.logger.Error("auto-save failed", map[string]interface{}{"error": err.Error()})
	}
}
