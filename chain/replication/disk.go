package replication

import (
	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
)

// putToDiskLocked implements put_to_disk (spec.md §4.8). It records
// version_on_disk under the lock immediately (regardless of whether the
// I/O below succeeds) and returns the actual disk call as a closure for
// the caller to run after releasing the lock.
func (m *Manager) putToDiskLocked(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder, version chain.Version) func() {
	pend, found := kh.GetByVersion(version)
	if !found || version <= kh.VersionOnDisk() {
		return nil
	}
	kh.SetVersionOnDisk(version)

	del := !pend.HasValue || (pend.SubspaceNext == region.Subspace.Index && region.Subspace.Index != 0)
	value := pend.Value

	return func() {
		var status chain.DiskStatus
		if del {
			status = m.data.Del(region, key, version)
		} else {
			status = m.data.Put(region, key, value, version)
		}
		if status == chain.DiskError {
			m.log.Errorf("put_to_disk failed region=%s key=%x version=%d", region, key, version)
		}
	}
}
