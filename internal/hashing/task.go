package hashing

import (
	"context"

	"modelscanner/internal/result"
	"modelscanner/internal/stage"
)

// Task stores the engine's fingerprints on the result.
type Task struct {
	engine *Engine
}

func NewTask(engine *Engine) *Task {
	return &Task{engine: engine}
}

func (t *Task) Kind() stage.Kind { return stage.KindHash }

func (t *Task) Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error) {
	hashes, err := t.engine.ComputeHashes(ctx, filePath, res)
	if err != nil {
		return false, err
	}
	res.Hashes = hashes
	return true, nil
}
