// Package config is the concrete chain.Configuration: a static cluster
// topology oracle built once per process from a set of SpaceSpecs and
// swapped wholesale on Manager.Reconfigure (chain/replication/manager.go).
//
// Unlike dKV's rpc/common.ServerConfig, which only describes this node's
// own RAFT cluster membership, chain.Configuration must answer questions
// about every region in the cluster - chain adjacency, subspace head
// lookups, and instance placement - so Static indexes its SpaceSpecs into
// two lookup structures at construction time: an exact RegionId map for
// the common case (a region an entity already names) and a per-subspace
// sorted-by-prefix slice for HeadOfSubspace's sloppy coordinate lookup.
package config
