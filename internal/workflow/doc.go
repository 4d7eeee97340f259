// Package workflow drains the job queue.
//
// The Manager runs one lane per configured worker for default priority jobs
// plus a single lane for low priority jobs. Each lane claims one job at a
// time, stamps heartbeats while it runs, and dispatches by job kind: process
// jobs go through the capability pipeline, cleanup/delete/purge_temp jobs go
// to the storage maintenance handlers. Failures are classified with
// queue.FailureStatus and either scheduled for another attempt after a
// backoff or marked failed.
//
// The first lane also reclaims processing jobs whose heartbeat went stale,
// which covers jobs left behind by a crashed daemon.
package workflow
