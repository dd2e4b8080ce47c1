package session

import (
	"context"
	"time"

	"grant-assistant/internal/assistant/storage"
	apperrors "grant-assistant/internal/common/errors"
	"grant-assistant/internal/common/metrics"
	"grant-assistant/internal/models"
)

func (m *Manager) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

// SweepExpired removes expired and undecodable session records. A sweep that
// starts while another is running returns immediately.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	if !m.sweeping.CompareAndSwap(false, true) {
		m.logger.Debug("sweep already running, skipped", nil)
		return 0, nil
	}
	defer m.sweeping.Store(false)

	sessions, corrupt, err := storage.GetAllJSON[models.Session](ctx, m.store, KeyPrefix)
	if err != nil {
		return 0, apperrors.NewStorageFailureError("sweep sessions", KeyPrefix, err)
	}

	now := m.clock()
	stale := append([]string(nil), corrupt...)
	for key, s := range sessions {
		if s.IsExpired(now) {
			stale = append(stale, key)
		}
	}

	removed := 0
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := m.store.Remove(ctx, key); err != nil {
			m.logger.Warn("failed to remove expired session", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			continue
		}
		removed++
	}

	m.mu.Lock()
	if m.current != nil && m.current.IsExpired(now) {
		m.current = nil
	}
	m.mu.Unlock()

	if removed > 0 {
		metrics.SessionsSwept.Add(float64(removed))
		m.logger.Info("expired sessions swept", map[string]interface{}{
			"removed": removed,
			"corrupt": len(corrupt),
		})
	}
	return removed, nil
}

// Start runs a sweep immediately and then every SweepInterval until Stop or
// until ctx is cancelled. Calling Start twice has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.sweepLoop(loopCtx, m.done)

	m.logger.Info("session sweeper started", map[string]interface{}{
		"interval": m.opts.SweepInterval.String(),
	})
}

// Stop halts the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

func (m *Manager) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	m.runSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runSweep(ctx)
		}
	}
}

func (m *Manager) runSweep(ctx context.Context) {
	if _, err := m.SweepExpired(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("session sweep failed", map[string]interface{}{"error": err.Error()})
	}
}
