// Package queue persists scanner jobs in SQLite and drives their lifecycle.
//
// A job is a request to process one file, run the storage cleanup, delete an
// object, or purge the temp bucket. Workers claim pending jobs by priority
// then id, stamp heartbeats while they run, and either complete the job or
// hand it back for a delayed retry. Rows whose heartbeat goes stale are
// reclaimed to pending.
//
// The database is transient storage for in-flight work, not an archive.
// Schema changes bump schemaVersion in schema.go; operators clear the
// database to adopt a new schema.
package queue
