// Package datalayer is a sharded, in-process implementation of
// chain.DataLayer, grounded on the teacher's maple engine
// (lib/db/engines/maple): one xsync.MapOf per shard, keys routed to a
// shard by a seeded hash of the region+key bytes so unrelated regions
// don't contend on the same map.
//
// This is the "no durable log recovery" DataLayer named in SPEC_FULL.md's
// Non-goals carve-out - a real deployment would swap this for a package
// backed by an actual storage engine without the replication core
// noticing, since it only ever sees the chain.DataLayer interface.
package datalayer

import (
	"runtime"
	"sync"

	"github.com/chainkv/chainkv/chain"
	"github.com/puzpuzpuz/xsync/v3"
)

// entry is one region/key's on-disk record. deleted distinguishes
// chain.DiskNotFound (seen, currently deleted) from chain.DiskMissing
// (never seen) the way DataLayer.Del's doc comment requires: a deleted
// key still reports its delete version, not DiskMissing.
type entry struct {
	value   chain.Value
	version chain.Version
	deleted bool
}

// shard is one partition of the store, mirroring internal.Shard.
type shard struct {
	data *xsync.MapOf[string, entry]
}

func newShard() *shard {
	return &shard{data: xsync.NewMapOf[string, entry]()}
}

// Store is the concrete chain.DataLayer: numShards independent maps keyed
// by a region-qualified string, so Get/Put/Del for unrelated regions never
// contend on the same xsync.MapOf bucket.
type Store struct {
	shards []*shard
	seed   uint64
}

// Options configures a Store.
type Options struct {
	// NumShards is how many independent maps to spread keys across. 0
	// means runtime.NumCPU(), matching maple.DefaultOptions.
	NumShards int
	// Seed distributes region/key strings across shards. 0 means derive
	// a fixed, deterministic seed - unlike maple's random per-instance
	// seed, a DataLayer's shard assignment does not need to be
	// unpredictable, only stable for the process lifetime.
	Seed uint64
}

// DefaultOptions mirrors maple.DefaultOptions: one shard per CPU.
func DefaultOptions() Options {
	return Options{NumShards: runtime.NumCPU()}
}

// New creates a Store. A zero Options behaves like DefaultOptions.
func New(opts Options) *Store {
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
		if opts.NumShards < 1 {
			opts.NumShards = 1
		}
	}
	shards := make([]*shard, opts.NumShards)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Store{shards: shards, seed: opts.Seed}
}

// shardFor picks the shard for (region, key), composing a single string
// map key and hashing it with chain.Hash64 the same way chain.RegionSeed
// derives a per-region seed elsewhere in this module.
func (s *Store) shardFor(region chain.RegionId, key chain.Key) (*shard, string) {
	mapKey := region.String() + "\x00" + string(key)
	h := chain.Hash64([]byte(mapKey), s.seed)
	// Shift right to use the higher-quality bits for distribution, as
	// internal.GetShard does.
	idx := (h >> 7) % uint64(len(s.shards))
	return s.shards[idx], mapKey
}

// Get implements chain.DataLayer.
func (s *Store) Get(region chain.RegionId, key chain.Key) (value chain.Value, version chain.Version, status chain.DiskStatus) {
	sh, mapKey := s.shardFor(region, key)
	e, ok := sh.data.Load(mapKey)
	if !ok {
		return nil, 0, chain.DiskMissing
	}
	if e.deleted {
		return nil, e.version, chain.DiskNotFound
	}
	return e.value.Clone(), e.version, chain.DiskSuccess
}

// Put implements chain.DataLayer. A stale Put (version <= the version
// already on record) is ignored, matching maple.compute's
// "stale writes are ignored" rule - put_to_disk already guards against
// this with VersionOnDisk under the keyholder lock, but the store stays
// correct even if called out of order directly.
func (s *Store) Put(region chain.RegionId, key chain.Key, value chain.Value, version chain.Version) chain.DiskStatus {
	sh, mapKey := s.shardFor(region, key)
	valueCopy := value.Clone()
	sh.data.Compute(mapKey, func(old entry, loaded bool) (entry, bool) {
		if loaded && version <= old.version {
			return old, false
		}
		return entry{value: valueCopy, version: version, deleted: false}, false
	})
	return chain.DiskSuccess
}

// Del implements chain.DataLayer, recording version as a tombstone rather
// than removing the map entry, so a later Get still reports DiskNotFound
// with that version instead of DiskMissing.
func (s *Store) Del(region chain.RegionId, key chain.Key, version chain.Version) chain.DiskStatus {
	sh, mapKey := s.shardFor(region, key)
	sh.data.Compute(mapKey, func(old entry, loaded bool) (entry, bool) {
		if loaded && version <= old.version {
			return old, false
		}
		return entry{value: nil, version: version, deleted: true}, false
	})
	return chain.DiskSuccess
}

// Size returns the total number of records (live and tombstoned) across
// all shards, for chain/metrics to export.
func (s *Store) Size() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.data.Size()
	}
	return total
}

// Stats returns a per-shard record count, for diagnostics/metrics - the
// same shard-distribution signal maple.GetInfo samples for its
// DistributionStats field.
func (s *Store) Stats() []int {
	out := make([]int, len(s.shards))
	var wg sync.WaitGroup
	wg.Add(len(s.shards))
	for i, sh := range s.shards {
		go func(i int, sh *shard) {
			defer wg.Done()
			out[i] = sh.data.Size()
		}(i, sh)
	}
	wg.Wait()
	return out
}
