package lockmgr

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/ValentinKolb/mclock/lib/mpsc"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lockmgr")

// Options configures a lock manager.
type Options struct {
	// CaseInsensitive accepts lock types and flags in any casing.
	CaseInsensitive bool
	// ByteOrder used to extract resource id bytes (nil = little-endian).
	ByteOrder binary.ByteOrder
	// Store persists the table after every mutation (nil = no persistence).
	Store IPersistence
}

// op is a unit of work executed by the manager goroutine.
type op struct {
	fn   func()
	done chan struct{}
}

type lockMgrImpl struct {
	validator Validator
	matcher   Matcher
	store     IPersistence

	// only touched by the manager goroutine
	table *lockTable
	ids   *txIDAllocator

	ops     *mpsc.Queue[op]
	stopped chan struct{}
}

// NewLockManager creates a lock manager and restores the table from
// opts.Store. A table that cannot be loaded is logged and replaced by an
// empty one. The transaction id counter starts at the highest loaded id.
//
// All operations of the returned manager are executed one after another by
// a single goroutine, which makes every acquire and release atomic with
// respect to all others.
func NewLockManager(opts Options) ILockManager {
	matcher := NewMatcher(opts.ByteOrder)
	m := &lockMgrImpl{
		validator: NewValidator(opts.CaseInsensitive),
		matcher:   matcher,
		store:     opts.Store,
		table:     newLockTable(matcher),
		ops:       mpsc.New[op](),
		stopped:   make(chan struct{}),
	}

	seed := m.restore()
	m.ids = newTxIDAllocator(seed)
	log.Infof("lock manager started with %d transactions (last transaction id %d)", m.table.len(), seed)

	go m.run()
	return m
}

// restore loads the persisted table and returns the highest id seen,
// including ids of transactions dropped as invalid.
func (m *lockMgrImpl) restore() uint32 {
	if m.store == nil {
		return 0
	}

	loaded, err := m.store.Load()
	if err != nil {
		log.Errorf("failed to load persisted locks, starting with an empty table: %v", err)
		return 0
	}

	ids := make([]uint32, 0, len(loaded))
	for id := range loaded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var seed uint32
	for _, id := range ids {
		if id > seed {
			seed = id
		}
		records, err := m.validator.ValidateBatch(loaded[id])
		if err != nil {
			log.Warningf("dropping persisted transaction %d: %v", id, err)
			continue
		}
		m.table.insert(Transaction{ID: id, Records: records})
	}
	return seed
}

// run executes queued operations until the queue is closed.
func (m *lockMgrImpl) run() {
	defer close(m.stopped)
	for o := range m.ops.Recv() {
		o.fn()
		close(o.done)
	}
}

// exec runs fn on the manager goroutine and waits for it to finish.
func (m *lockMgrImpl) exec(fn func()) error {
	o := &op{fn: fn, done: make(chan struct{})}
	if !m.ops.Push(o) {
		return ErrClosed
	}
	select {
	case <-o.done:
		return nil
	case <-m.stopped:
		// the push may have raced with Close
		select {
		case <-o.done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// persist saves the table. A failed save is logged and counted, the
// in-memory change stays in place.
func (m *lockMgrImpl) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.table.snapshot()); err != nil {
		persistFailures.Inc()
		log.Errorf("failed to persist lock table (in-memory state is kept): %v", err)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (m *lockMgrImpl) Acquire(records []LockRecord) (txID uint32, err error) {
	start := time.Now()
	defer func() {
		acquireDuration.UpdateDuration(start)
		countAcquire(err)
	}()

	// validation and the self check do not depend on the table
	validated, err := m.validator.ValidateBatch(records)
	if err != nil {
		log.Debugf("acquire: %v", err)
		return 0, err
	}
	if m.matcher.BatchConflicts(validated) {
		log.Debugf("acquire: request of session %s conflicts with itself", validated[0].SessionID)
		return 0, ErrConflictWithinRequest
	}

	execErr := m.exec(func() {
		if id, rec, found := m.table.conflict(validated); found {
			log.Debugf("acquire: %s conflicts with transaction %d", rec, id)
			rec = rec.clone()
			err = &Error{
				Code:          RetCConflictWithTable,
				Msg:           ErrConflictWithTable.Msg,
				TransactionID: id,
				Record:        &rec,
			}
			return
		}

		id, allocErr := m.ids.next()
		if allocErr != nil {
			err = allocErr
			return
		}
		m.table.insert(Transaction{ID: id, Records: validated})
		m.persist()
		txID = id
		log.Debugf("acquire: granted transaction %d to session %s", id, validated[0].SessionID)
	})
	if execErr != nil {
		return 0, execErr
	}
	return txID, err
}

func (m *lockMgrImpl) Release(txIDs []uint32, owner Owner) (err error) {
	defer func() { countRelease(err) }()

	execErr := m.exec(func() {
		var missing []uint32
		for _, id := range txIDs {
			if !m.table.has(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			err = &Error{
				Code:           RetCUnknownTransaction,
				Msg:            ErrUnknownTransaction.Msg,
				TransactionIDs: missing,
			}
			return
		}

		for _, id := range txIDs {
			tx, _ := m.table.get(id)
			if tx.Owner() != owner {
				rec := tx.Records[0].clone()
				err = &Error{
					Code:          RetCNotOwner,
					Msg:           ErrNotOwner.Msg,
					TransactionID: id,
					Record:        &rec,
				}
				return
			}
		}

		if len(txIDs) == 0 {
			return
		}
		for _, id := range txIDs {
			m.table.delete(id)
		}
		m.persist()
		log.Debugf("release: session %s released transactions %v", owner.SessionID, txIDs)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

func (m *lockMgrImpl) ReleaseBySession(sessionID string) (released int, err error) {
	err = m.exec(func() {
		ids := m.table.sessionTxIDs(sessionID)
		for _, id := range ids {
			m.table.delete(id)
		}
		released = len(ids)
		if released > 0 {
			m.persist()
			sessionReleased.Add(released)
			log.Infof("released %d transactions of session %s", released, sessionID)
		}
	})
	return released, err
}

func (m *lockMgrImpl) List(sessionIDs []string) (transactions []Transaction, err error) {
	err = m.exec(func() {
		transactions = m.table.bySession(sessionIDs)
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (m *lockMgrImpl) Close() error {
	if m.ops.Closed() {
		return nil
	}
	m.ops.Close()
	<-m.stopped
	return nil
}
