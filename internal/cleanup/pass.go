package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Pass runs a cleanup with a database connection that lives only for the
// duration of the run.
type Pass struct {
	dsn    string
	store  Store
	cutoff time.Duration
	logger *slog.Logger
}

// NewPass prepares a cleanup against the database at dsn.
func NewPass(dsn string, store Store, cutoff time.Duration, logger *slog.Logger) *Pass {
	return &Pass{dsn: dsn, store: store, cutoff: cutoff, logger: logger}
}

// Run connects, runs one Job, and disconnects.
func (p *Pass) Run(ctx context.Context) (Summary, error) {
	db, err := Connect(ctx, p.dsn, p.logger)
	if err != nil {
		return Summary{}, err
	}
	defer db.Close()
	return NewJob(db, p.store, p.cutoff, p.logger).Run(ctx)
}
