// Package chain defines the data model and external-collaborator interfaces
// shared by the replication core: entity identifiers, keys/values/versions,
// the client-facing return codes, and the internal fault taxonomy.
//
// Everything in this package is pure data and interfaces - no I/O, no
// locking, no chain protocol logic. Those live in the sibling packages:
//
//   - chain/keyholder: per-key queues (deferred/blocked/committable)
//   - chain/striped: the striped lock and concurrent keyholder table
//   - chain/microop: the typed micro-operation and map engines
//   - chain/replication: the ReplicationManager (client + chain entry points)
//   - chain/datalayer, chain/messenger, chain/config: concrete
//     implementations of this package's external-collaborator interfaces
package chain
