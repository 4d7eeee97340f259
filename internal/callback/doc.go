// Package callback delivers scan result snapshots to the caller-supplied
// callback URL.
//
// Delivery is best effort: every snapshot is POSTed once, failures are logged
// and returned, and callers decide whether to care.
package callback
