// Package preflight provides readiness checks for external services
// and filesystem paths the scanner depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll before a lane picks up a process job.
//     If any check fails, the job is put back and the lane waits instead of
//     burning attempts on a doomed run.
//   - The CLI "modelscanner deps" command prints every result.
package preflight
