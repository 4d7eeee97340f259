package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modelscanner/internal/config"
	"modelscanner/internal/logging"
	"modelscanner/internal/preflight"
	"modelscanner/internal/queue"
)

// Manager coordinates queue processing across priority lanes.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	base         *slog.Logger
	logger       *slog.Logger
	handlers     Handlers
	pollInterval time.Duration
	retryBackoff time.Duration
	maxAttempts  int
	preflight    func(context.Context) []preflight.Result

	heartbeat *HeartbeatMonitor
	lanes     []*lane

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPreflight runs checks before every process job. A failing check puts
// the job back without spending an attempt.
func WithPreflight(check func(context.Context) []preflight.Result) ManagerOption {
	return func(m *Manager) {
		m.preflight = check
	}
}

// WithPollInterval overrides the idle poll interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, handlers Handlers, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	managerLogger := logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		cfg:          cfg,
		store:        store,
		base:         logger,
		logger:       managerLogger,
		handlers:     handlers,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryBackoff: time.Duration(cfg.Workflow.RetryBackoff) * time.Second,
		maxAttempts:  cfg.Workflow.MaxAttempts,
		heartbeat: NewHeartbeatMonitor(
			store,
			logging.NewComponentLogger(logger, "workflow-heartbeat"),
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		lanes: buildLanes(cfg.Workflow.Workers),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 100 * time.Millisecond
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 1
	}
	return m
}

// LaneNames lists the lanes in start order.
func (m *Manager) LaneNames() []string {
	names := make([]string, 0, len(m.lanes))
	for _, l := range m.lanes {
		names = append(names, l.name)
	}
	return names
}
