// Package cmd implements the command-line interface for the pidb document
// store. It provides a hierarchical command structure for inspecting and
// mutating stores directly on their backing engine.
//
// The package is organized into several subpackages:
//
//   - store: Commands for store and schema operations (open, collections, indexes)
//   - doc: Commands for record operations (get, put, delete, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See pidb -help for a list of all commands.
package cmd
