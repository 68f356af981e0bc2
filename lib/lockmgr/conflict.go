package lockmgr

import (
	"encoding/binary"
)

// ResourceBytes returns the eight bytes of a resource id in the given byte
// order. With binary.LittleEndian byte 0 is the lowest-order byte of the id,
// with binary.BigEndian it is the highest-order byte. A nil order means
// little-endian.
func ResourceBytes(id uint64, order binary.ByteOrder) [8]byte {
	if order == nil {
		order = binary.LittleEndian
	}
	var b [8]byte
	order.PutUint64(b[:], id)
	return b
}

// Matcher decides whether two validated lock records conflict.
type Matcher struct {
	order binary.ByteOrder
}

// NewMatcher creates a Matcher that extracts resource id bytes in the given
// order (nil means little-endian).
func NewMatcher(order binary.ByteOrder) Matcher {
	if order == nil {
		order = binary.LittleEndian
	}
	return Matcher{order: order}
}

// Conflicts reports whether a and b cannot be held at the same time.
//
// Two readers never conflict. Otherwise the segments are walked pairwise:
// a LockAll on either side conflicts, a LockSame on either side conflicts
// if both segments have the same length, differing lengths address
// different resources. For equal lengths the first Length bytes of both
// resource ids are compared. Every segment compares bytes [0, Length), the
// byte range does not move with the segment index. Records with a different
// number of segments have different layouts and do not conflict unless a
// LockAll or LockSame decides earlier. If every segment matched, the records
// lock the same resource and conflict. The result does not depend on the
// order of a and b.
func (m Matcher) Conflicts(a, b LockRecord) bool {
	if a.LockType == LockTypeRead && b.LockType == LockTypeRead {
		return false
	}

	ra := ResourceBytes(a.ResourceID, m.order)
	rb := ResourceBytes(b.ResourceID, m.order)

	for i := 0; i < max(len(a.Segments), len(b.Segments)); i++ {
		if i >= len(a.Segments) || i >= len(b.Segments) {
			// no counterpart segment, different resource layout
			return false
		}
		sa, sb := a.Segments[i], b.Segments[i]

		if sa.Flag == FlagLockAll || sb.Flag == FlagLockAll {
			return true
		}
		if (sa.Flag == FlagLockSame || sb.Flag == FlagLockSame) && sa.Length == sb.Length {
			return true
		}
		if sa.Length != sb.Length {
			return false
		}
		for j := uint32(0); j < sa.Length && j < uint32(len(ra)); j++ {
			if ra[j] != rb[j] {
				return false
			}
		}
	}

	return true
}

// BatchConflicts reports whether any two records of one request conflict.
func (m Matcher) BatchConflicts(records []LockRecord) bool {
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if m.Conflicts(records[i], records[j]) {
				return true
			}
		}
	}
	return false
}
