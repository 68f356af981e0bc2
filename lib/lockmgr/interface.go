package lockmgr

// ILockManager defines the interface for the management console lock manager.
type ILockManager interface {
	// Acquire grants all records of one request atomically under a new transaction id.
	// A refused request returns an *Error with code RetCInvalidRequest, RetCConflictWithinRequest
	// or RetCConflictWithTable (the latter carries the id and record of the conflicting lock).
	// A refused request never consumes a transaction id.
	Acquire(records []LockRecord) (txID uint32, err error)

	// Release removes the given transactions if all of them exist and are owned by owner.
	// Nothing is released if a single id is unknown (RetCUnknownTransaction)
	// or owned by someone else (RetCNotOwner).
	Release(txIDs []uint32, owner Owner) (err error)

	// ReleaseBySession removes every transaction of a session (session teardown).
	// Return the number of released transactions. The local implementation never fails.
	ReleaseBySession(sessionID string) (released int, err error)

	// List returns the transactions owned by any of the given sessions ordered by id.
	// An empty input or no match yields an empty list.
	List(sessionIDs []string) (transactions []Transaction, err error)

	// Close stops the lock manager. Further calls fail with ErrClosed.
	Close() (err error)
}

// IPersistence is the port used to save and restore the lock table.
// The table is passed as a map of transaction id to the records of the transaction.
type IPersistence interface {
	// Load returns the persisted table. An empty or missing table is not an error.
	Load() (table map[uint32][]LockRecord, err error)
	// Save replaces the persisted table with the given one.
	Save(table map[uint32][]LockRecord) (err error)
}
