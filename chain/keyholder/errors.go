package keyholder

import "errors"

// ErrDuplicateVersion is returned by InsertDeferred when the version is
// already present in the deferred set (spec.md §4.1).
var ErrDuplicateVersion = errors.New("keyholder: duplicate version")

// ErrOutOfOrder is returned by AppendBlocked when version is not strictly
// greater than every version already present in blocked or committable.
var ErrOutOfOrder = errors.New("keyholder: version not greater than all queued versions")
