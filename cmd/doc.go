// Package cmd implements the command-line interface of mclock. It provides
// a hierarchical command structure with operations for running the lock
// server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the lock server
//   - lock: Client commands for lock operations (acquire, release, list, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See mclock -help for a list of all commands.
package cmd
