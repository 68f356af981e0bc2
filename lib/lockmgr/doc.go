// Package lockmgr implements the resource lock manager used to arbitrate
// configuration requests of concurrent management console (HMC) sessions.
//
// Locks are advisory read/write locks on opaque resources identified by a
// 64-bit resource id. A lock record describes the resource hierarchically
// through 2 to 6 segments. Each segment names how many bytes of the resource
// id it covers (1 to 4) and a flag:
//
//   - DontLock: the segment only selects the resource
//   - LockSame: lock all resources whose segment has the same length
//   - LockAll: lock everything below this level
//
// At most one segment of a record may carry LockSame or LockAll.
//
// Core Functionality:
//   - Acquire: validate a batch of records, reject batches that conflict with
//     themselves or with a granted transaction, grant the batch under a new
//     transaction id otherwise
//   - Release: free transactions by id after verifying the owner
//   - ReleaseBySession: free every transaction of a session (session teardown)
//   - List: list the transactions of a set of sessions
//
// Conflict Detection:
//
//	Two read records never conflict. For all other pairs the segments are
//	compared index by index (see Matcher.Conflicts). Different segment
//	lengths address different resources, equal lengths compare the first
//	Length bytes of both resource ids. The byte range always starts at byte
//	0, independent of the segment index.
//
// Transactions and Ownership:
//
//	A granted batch becomes a Transaction. The (hmcId, sessionId) pair of its
//	first record owns the whole transaction. Transaction ids are never reused
//	within a process: the counter starts at the highest persisted id and only
//	advances on a successful acquire.
//
// Thread Safety:
//
//	All operations are pushed onto a lock-free MPSC queue (see package mpsc)
//	and executed one after another by a single goroutine. Every acquire and
//	release therefore runs as a critical section, and List always observes a
//	fully applied table.
//
// Persistence:
//
//	After every mutation the complete table is handed to an IPersistence
//	implementation (see package persist) before the caller gets its answer.
//	A failed save is logged and counted but does not undo the mutation, the
//	caller cannot tell a persisted grant from an unpersisted one.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(lockmgr.Options{Store: persist.NewFileStore(path)})
//	defer locks.Close()
//
//	id, err := locks.Acquire([]lockmgr.LockRecord{{
//	    SessionID:  "xxxxx",
//	    HMCID:      "hmc-id",
//	    LockType:   lockmgr.LockTypeWrite,
//	    ResourceID: 234,
//	    Segments:   []lockmgr.Segment{{Flag: lockmgr.FlagLockAll, Length: 2}, {Flag: lockmgr.FlagDontLock, Length: 4}},
//	}})
//	if err != nil {
//	    // inspect lockmgr.CodeOf(err)
//	}
//
//	err = locks.Release([]uint32{id}, lockmgr.Owner{HMCID: "hmc-id", SessionID: "xxxxx"})
package lockmgr
