// Command modelscanner runs the model scanning daemon and the operator
// tooling around it.
//
// The serve subcommand starts the HTTP API and the job workers. Every other
// subcommand opens the queue database directly, so queue inspection and
// maintenance work whether or not the daemon is running. Commands that touch
// object storage or Postgres read the same configuration file as the daemon.
package main
