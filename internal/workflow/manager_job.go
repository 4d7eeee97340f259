package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelscanner/internal/logging"
	"modelscanner/internal/preflight"
	"modelscanner/internal/queue"
	"modelscanner/internal/services"
)

func (m *Manager) processJob(ctx context.Context, l *lane, job *queue.Job) error {
	jobCtx := withJobContext(ctx, l, job, uuid.NewString())
	logger := logging.WithContext(jobCtx, l.logger)
	m.setLastJob(job)

	if job.Kind == queue.KindProcess && m.preflight != nil {
		if failed := preflight.Failed(m.preflight(jobCtx)); len(failed) > 0 {
			return m.deferForPreflight(jobCtx, job, failed)
		}
	}

	start := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("kind", string(job.Kind)),
		logging.String("target", job.Target()),
		logging.Int("attempt", job.Attempts),
	)

	err := m.executeWithHeartbeat(jobCtx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
			if relErr := m.store.Release(context.WithoutCancel(ctx), job.ID, queue.DaemonStopReason, 0); relErr != nil {
				logger.Error("failed to release interrupted job", logging.Error(relErr))
			}
			return err
		}
		m.handleJobFailure(jobCtx, job, err)
		return err
	}

	if err := m.store.Complete(context.WithoutCancel(jobCtx), job.ID); err != nil {
		wrapped := fmt.Errorf("persist job completion: %w", err)
		logger.Error("failed to persist job completion", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	err := m.dispatch(ctx, job)
	hbCancel()
	hbWG.Wait()
	return err
}

func (m *Manager) dispatch(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, m.logger)
	switch job.Kind {
	case queue.KindProcess:
		return m.handlers.Processor.ProcessFile(ctx, job.FileURL, job.CallbackURL, job.Tasks)
	case queue.KindDelete:
		if m.handlers.Storage == nil {
			return missingHandler(job.Kind)
		}
		return m.handlers.Storage.Delete(ctx, job.ObjectKey)
	case queue.KindPurgeTemp:
		if m.handlers.Storage == nil {
			return missingHandler(job.Kind)
		}
		removed, err := m.handlers.Storage.CleanupTempStorage(ctx)
		logger.Info("temp purge finished", logging.Int("removed", removed))
		return err
	case queue.KindCleanup:
		if m.handlers.Cleaner == nil {
			return missingHandler(job.Kind)
		}
		summary, err := m.handlers.Cleaner.Run(ctx)
		if err == nil {
			logger.Info("cleanup pass finished",
				logging.Int("deleted", summary.Deleted),
				logging.Int("examined", summary.Examined),
			)
		}
		return err
	}
	return services.Wrap(services.ErrValidation, "workflow", "dispatch", fmt.Sprintf("unknown job kind %q", job.Kind), nil)
}

func missingHandler(kind queue.Kind) error {
	return services.Wrap(services.ErrConfiguration, "workflow", "dispatch", fmt.Sprintf("no handler configured for %s jobs", kind), nil)
}

func (m *Manager) deferForPreflight(ctx context.Context, job *queue.Job, failed []preflight.Result) error {
	details := make([]string, 0, len(failed))
	for _, r := range failed {
		details = append(details, r.Name+": "+r.Detail)
	}
	reason := "preflight failed: " + strings.Join(details, "; ")
	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "preflight check failed, job deferred", "preflight_failed",
		logging.String("detail", reason),
		logging.String(logging.FieldErrorHint, "fix the reported issue; the job is retried automatically"),
	)
	err := errors.New(reason)
	m.setLastError(err)
	if relErr := m.store.Release(context.WithoutCancel(ctx), job.ID, reason, m.pollInterval); relErr != nil {
		return relErr
	}
	m.waitOrShutdown(ctx, m.pollInterval)
	return nil
}

func withJobContext(ctx context.Context, l *lane, job *queue.Job, requestID string) context.Context {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, string(job.Kind))
	if l != nil {
		ctx = services.WithLane(ctx, l.name)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
