package lockmgr

import (
	"math"
)

// txIDAllocator hands out transaction ids. It is seeded once with the
// highest id found in the persisted table and only moves forward when a
// transaction is actually inserted.
//
// Thread-safety: not thread-safe, only used by the manager goroutine.
type txIDAllocator struct {
	last uint32
}

func newTxIDAllocator(seed uint32) *txIDAllocator {
	return &txIDAllocator{last: seed}
}

// next returns the next id and advances the counter.
func (a *txIDAllocator) next() (uint32, error) {
	if a.last == math.MaxUint32 {
		return 0, NewError(RetCInternalError, "transaction id space exhausted")
	}
	a.last++
	return a.last, nil
}

// current returns the last id handed out (or the seed).
func (a *txIDAllocator) current() uint32 {
	return a.last
}
