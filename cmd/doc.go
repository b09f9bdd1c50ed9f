// Package cmd implements the command-line interface for chainkv. It
// provides a hierarchical command structure with operations for running a
// node and talking to one as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting a chainkv node
//   - client: Commands for talking to a running node's HTTP gateway
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See chainkv -help for a list of all commands.
package cmd
