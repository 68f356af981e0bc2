package lockmgr

import (
	"github.com/google/btree"
)

const tableDegree = 16

// lockTable holds the granted transactions ordered by id. The order makes
// conflict scans and listings deterministic for a given table state.
//
// Thread-safety: not thread-safe, only used by the manager goroutine.
type lockTable struct {
	tree    *btree.BTreeG[Transaction]
	matcher Matcher
}

func newLockTable(matcher Matcher) *lockTable {
	return &lockTable{
		tree: btree.NewG[Transaction](tableDegree, func(a, b Transaction) bool {
			return a.ID < b.ID
		}),
		matcher: matcher,
	}
}

func (t *lockTable) insert(tx Transaction) {
	t.tree.ReplaceOrInsert(tx)
}

func (t *lockTable) get(id uint32) (Transaction, bool) {
	return t.tree.Get(Transaction{ID: id})
}

func (t *lockTable) has(id uint32) bool {
	return t.tree.Has(Transaction{ID: id})
}

func (t *lockTable) delete(id uint32) bool {
	_, ok := t.tree.Delete(Transaction{ID: id})
	return ok
}

func (t *lockTable) len() int {
	return t.tree.Len()
}

// maxID returns the highest transaction id in the table (0 if empty).
func (t *lockTable) maxID() uint32 {
	tx, ok := t.tree.Max()
	if !ok {
		return 0
	}
	return tx.ID
}

// conflict checks every incoming record against every granted record.
// Incoming records are the outer loop, the table is scanned in ascending
// transaction id order. The first conflict found is returned.
func (t *lockTable) conflict(records []LockRecord) (uint32, LockRecord, bool) {
	var (
		hitID     uint32
		hitRecord LockRecord
		found     bool
	)
	for _, incoming := range records {
		t.tree.Ascend(func(tx Transaction) bool {
			for _, granted := range tx.Records {
				if t.matcher.Conflicts(incoming, granted) {
					hitID, hitRecord, found = tx.ID, granted, true
					return false
				}
			}
			return true
		})
		if found {
			return hitID, hitRecord, true
		}
	}
	return 0, LockRecord{}, false
}

// bySession returns every transaction owned by one of the given sessions in
// ascending id order. Each transaction is returned at most once.
func (t *lockTable) bySession(sessionIDs []string) []Transaction {
	result := make([]Transaction, 0)
	if len(sessionIDs) == 0 {
		return result
	}
	wanted := make(map[string]struct{}, len(sessionIDs))
	for _, s := range sessionIDs {
		wanted[s] = struct{}{}
	}
	t.tree.Ascend(func(tx Transaction) bool {
		if _, ok := wanted[tx.Owner().SessionID]; ok {
			result = append(result, tx.clone())
		}
		return true
	})
	return result
}

// sessionTxIDs returns the ids of all transactions owned by a session.
func (t *lockTable) sessionTxIDs(sessionID string) []uint32 {
	var ids []uint32
	t.tree.Ascend(func(tx Transaction) bool {
		if tx.Owner().SessionID == sessionID {
			ids = append(ids, tx.ID)
		}
		return true
	})
	return ids
}

// snapshot copies the table into the form handed to the persistence layer.
func (t *lockTable) snapshot() map[uint32][]LockRecord {
	out := make(map[uint32][]LockRecord, t.tree.Len())
	t.tree.Ascend(func(tx Transaction) bool {
		out[tx.ID] = tx.clone().Records
		return true
	})
	return out
}
