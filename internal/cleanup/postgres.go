package cleanup

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"modelscanner/internal/logging"
	"modelscanner/internal/services"
)

const modelFileURLQuery = `SELECT "url" FROM "ModelFile"`

// Postgres reads file references from the site database.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a small pgx pool against dsn and verifies it answers.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	logger = logging.NewComponentLogger(logger, "cleanup-db")
	if dsn == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cleanup", "connect", "cleanup.database_url is not set", nil)
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cleanup", "connect", "parse database url", err)
	}
	pc.MaxConns = 2
	pc.MaxConnIdleTime = time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "modelscanner-cleanup"

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cleanup", "connect", "open database pool", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, services.Wrap(services.ErrTransient, "cleanup", "connect", "ping database", err)
	}
	logger.Debug("connected to site database")
	return &Postgres{pool: pool, logger: logger}, nil
}

// ModelFileURLs streams every stored model file URL.
func (p *Postgres) ModelFileURLs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rows, err := p.pool.Query(ctx, modelFileURLQuery)
		if err != nil {
			yield("", services.Wrap(services.ErrTransient, "cleanup", "index", "query model files", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				yield("", fmt.Errorf("scan model file url: %w", err))
				return
			}
			if !yield(raw, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", services.Wrap(services.ErrTransient, "cleanup", "index", "read model files", err))
		}
	}
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}
