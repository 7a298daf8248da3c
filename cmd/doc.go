// Package cmd implements the command-line interface of dQRY. It provides a
// hierarchical command structure for running the server and for querying it
// as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the dQRY server
//   - query: Commands for running queries (exec, fetch, close, select, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set via environment variables with the prefix DQRY_
// (e.g. DQRY_TRANSPORT_ENDPOINTS) or in a .env / .env.local file.
//
// See dqry -help for a list of all commands.
package cmd
