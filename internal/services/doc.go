// Package services holds the error markers and context helpers shared by the
// pipeline tasks, the workflow lanes and the external integrations.
//
// Failures are tagged with one of the sentinel markers through Wrap so the
// workflow manager can decide whether a job is worth retrying.
package services
