package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"modelscanner/internal/cleanup"
	"modelscanner/internal/queue"
	"modelscanner/internal/stage"
)

// Processor runs the capability pipeline for one file.
type Processor interface {
	ProcessFile(ctx context.Context, fileURL, callbackURL string, requested stage.Kind) error
}

// Storage performs object store maintenance.
type Storage interface {
	Delete(ctx context.Context, key string) error
	CleanupTempStorage(ctx context.Context) (int, error)
}

// Cleaner runs one storage cleanup pass.
type Cleaner interface {
	Run(ctx context.Context) (cleanup.Summary, error)
}

// Handlers bundles the executors jobs are dispatched to. Jobs whose handler
// is nil fail without retry.
type Handlers struct {
	Processor Processor
	Storage   Storage
	Cleaner   Cleaner
}

const lowLaneName = "low"

type lane struct {
	name         string
	priorities   []queue.Priority
	logger       *slog.Logger
	runReclaimer bool
}

func buildLanes(workers int) []*lane {
	workers = max(workers, 1)
	lanes := make([]*lane, 0, workers+1)
	for i := range workers {
		lanes = append(lanes, &lane{
			name:       fmt.Sprintf("default-%d", i+1),
			priorities: []queue.Priority{queue.PriorityNormal},
		})
	}
	lanes = append(lanes, &lane{
		name:       lowLaneName,
		priorities: []queue.Priority{queue.PriorityLow},
	})
	lanes[0].runReclaimer = true
	return lanes
}
