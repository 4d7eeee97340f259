package stage

import (
	"context"

	"modelscanner/internal/result"
)

// Task is one capability unit of the pipeline. Process mutates res and may
// rewrite the file at filePath. Returning false stops the pipeline; that is
// reserved for a source that no longer exists. Soft failures are recorded on
// res and reported as (true, nil). A non-nil error aborts the job.
type Task interface {
	Kind() Kind
	Process(ctx context.Context, filePath string, res *result.ScanResult) (bool, error)
}

// Name returns the log and stage name for t.
func Name(t Task) string {
	return t.Kind().String()
}
