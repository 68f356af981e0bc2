package lockmgr

import (
	"strings"
)

const (
	minSegments      = 2
	maxSegments      = 6
	minSegmentLength = 1
	maxSegmentLength = 4
)

// Validator checks single lock records for structural and semantic errors.
//
// Two historical clients disagree on the spelling of lock types and flags
// ("Read" vs "read"). By default the comparison is case-sensitive, with
// caseInsensitive set any casing is accepted. Either way the record returned
// by Validate carries the canonical spelling.
type Validator struct {
	caseInsensitive bool
}

// NewValidator creates a Validator.
func NewValidator(caseInsensitive bool) Validator {
	return Validator{caseInsensitive: caseInsensitive}
}

// Validate checks a record and returns its normalized copy. The first
// violation found is returned as a RetCInvalidRequest error.
func (v Validator) Validate(record LockRecord) (LockRecord, error) {
	lockType, ok := v.parseLockType(string(record.LockType))
	if !ok {
		return LockRecord{}, invalidf("invalid lock type %q", record.LockType)
	}

	if n := len(record.Segments); n < minSegments || n > maxSegments {
		return LockRecord{}, invalidf("invalid number of segments %d (allowed %d to %d)", n, minSegments, maxSegments)
	}

	normalized := record.clone()
	normalized.LockType = lockType

	lockingSegments := 0
	for i, s := range record.Segments {
		flag, ok := v.parseLockFlag(string(s.Flag))
		if !ok {
			return LockRecord{}, invalidf("invalid lock flag %q in segment %d", s.Flag, i)
		}
		if s.Length < minSegmentLength || s.Length > maxSegmentLength {
			return LockRecord{}, invalidf("invalid segment length %d in segment %d (allowed %d to %d)", s.Length, i, minSegmentLength, maxSegmentLength)
		}
		if flag == FlagLockSame || flag == FlagLockAll {
			lockingSegments++
			if lockingSegments > 1 {
				return LockRecord{}, invalidf("more than one LockSame or LockAll segment")
			}
		}
		normalized.Segments[i].Flag = flag
	}

	return normalized, nil
}

// ValidateBatch validates every record of a request and checks that all
// records share the owner of the first one. Validation stops at the first
// invalid record.
func (v Validator) ValidateBatch(records []LockRecord) ([]LockRecord, error) {
	if len(records) == 0 {
		return nil, invalidf("empty lock request")
	}
	owner := records[0].Owner()
	validated := make([]LockRecord, len(records))
	for i, r := range records {
		if r.Owner() != owner {
			return nil, invalidf("record %d is owned by %s/%s, expected %s/%s", i, r.HMCID, r.SessionID, owner.HMCID, owner.SessionID)
		}
		n, err := v.Validate(r)
		if err != nil {
			return nil, err
		}
		validated[i] = n
	}
	return validated, nil
}

func (v Validator) parseLockType(s string) (LockType, bool) {
	for _, t := range []LockType{LockTypeRead, LockTypeWrite} {
		if v.equal(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

func (v Validator) parseLockFlag(s string) (LockFlag, bool) {
	for _, f := range []LockFlag{FlagLockSame, FlagLockAll, FlagDontLock} {
		if v.equal(s, string(f)) {
			return f, true
		}
	}
	return "", false
}

func (v Validator) equal(a, b string) bool {
	if v.caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}
