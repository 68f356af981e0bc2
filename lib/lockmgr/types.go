package lockmgr

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Lock Type
// --------------------------------------------------------------------------

// LockType is the locking intent of a record. Only the canonical values
// LockTypeRead and LockTypeWrite are stored in the table, validation
// normalizes the spelling.
type LockType string

const (
	LockTypeRead  LockType = "Read"
	LockTypeWrite LockType = "Write"
)

// --------------------------------------------------------------------------
// Segment Flags
// --------------------------------------------------------------------------

// LockFlag describes how a segment of the resource id participates in the
// conflict check.
type LockFlag string

const (
	FlagLockSame LockFlag = "LockSame" // lock every resource of the same segment length
	FlagLockAll  LockFlag = "LockAll"  // lock every resource below this level
	FlagDontLock LockFlag = "DontLock" // segment only selects the resource
)

// Segment is a single (flag, length) pair of a lock record.
// Length is the number of resource id bytes compared, valid values are 1 to 4.
type Segment struct {
	Flag   LockFlag `json:"flag"`
	Length uint32   `json:"length"`
}

// --------------------------------------------------------------------------
// Lock Record
// --------------------------------------------------------------------------

// LockRecord is a single lock request of a management console session.
// A record is treated as immutable once it passed validation.
type LockRecord struct {
	SessionID  string    `json:"session_id"`
	HMCID      string    `json:"hmc_id"`
	LockType   LockType  `json:"lock_type"`
	ResourceID uint64    `json:"resource_id"`
	Segments   []Segment `json:"segments"`
}

// Owner returns the ownership key of the record.
func (r LockRecord) Owner() Owner {
	return Owner{HMCID: r.HMCID, SessionID: r.SessionID}
}

// String returns a compact representation used in log messages.
func (r LockRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("{session=%s hmc=%s type=%s resource=%d segments=[", r.SessionID, r.HMCID, r.LockType, r.ResourceID))
	for i, s := range r.Segments {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%s:%d", s.Flag, s.Length))
	}
	sb.WriteString("]}")
	return sb.String()
}

func (r LockRecord) clone() LockRecord {
	c := r
	c.Segments = append([]Segment(nil), r.Segments...)
	return c
}

// Owner identifies the management console session holding a transaction.
// The lock manager never checks the authenticity of an owner, it is only
// compared for equality.
type Owner struct {
	HMCID     string `json:"hmc_id"`
	SessionID string `json:"session_id"`
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction is a set of lock records granted together under one id.
// All records share the owner of Records[0].
type Transaction struct {
	ID      uint32       `json:"id"`
	Records []LockRecord `json:"records"`
}

// Owner returns the owner of the transaction (the owner of the first record).
func (t Transaction) Owner() Owner {
	if len(t.Records) == 0 {
		return Owner{}
	}
	return t.Records[0].Owner()
}

func (t Transaction) clone() Transaction {
	records := make([]LockRecord, len(t.Records))
	for i, r := range t.Records {
		records[i] = r.clone()
	}
	return Transaction{ID: t.ID, Records: records}
}
