package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"modelscanner/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.handlers.Processor == nil {
		m.mu.Unlock()
		return errors.New("workflow processor not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, l := range m.lanes {
		l.logger = m.laneLogger(l)
	}
	m.wg.Add(len(m.lanes))
	m.mu.Unlock()

	for _, l := range m.lanes {
		go m.runLane(runCtx, l)
	}
	m.logger.Info("workflow started",
		logging.Int("lanes", len(m.lanes)),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// hand themselves back to the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) runLane(ctx context.Context, l *lane) {
	defer m.wg.Done()
	logger := l.logger

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if l.runReclaimer {
			if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale processing failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}

		job, err := m.store.ClaimNext(ctx, l.priorities...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, l, job); errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.waitOrShutdown(ctx, m.pollInterval)
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) laneLogger(l *lane) *slog.Logger {
	return logging.NewComponentLogger(m.base, "workflow-"+l.name+"-runner")
}
