package lockmgr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint8

const (
	RetCSuccess               RetCode = iota // 0: Operation succeeded.
	RetCInvalidRequest                       // 1: A lock record failed validation.
	RetCConflictWithinRequest                // 2: Two records of the same request conflict.
	RetCConflictWithTable                    // 3: A record conflicts with a granted transaction.
	RetCUnknownTransaction                   // 4: At least one transaction id does not exist.
	RetCNotOwner                             // 5: The caller does not own a transaction.
	RetCInternalError                        // 6: The lock manager could not process the request.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInvalidRequest:
		return "InvalidRequest"
	case RetCConflictWithinRequest:
		return "ConflictWithinRequest"
	case RetCConflictWithTable:
		return "ConflictWithTable"
	case RetCUnknownTransaction:
		return "UnknownTransaction"
	case RetCNotOwner:
		return "NotOwner"
	case RetCInternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by every ILockManager operation that is refused.
// Depending on the code, additional fields describe the refusal:
//
//   - RetCConflictWithTable: TransactionID and Record of the conflicting lock
//   - RetCNotOwner: TransactionID and first Record of the foreign transaction
//   - RetCUnknownTransaction: TransactionIDs that do not exist
type Error struct {
	Code           RetCode
	Msg            string
	TransactionID  uint32
	Record         *LockRecord
	TransactionIDs []uint32
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case RetCConflictWithTable, RetCNotOwner:
		return fmt.Sprintf("LockError (code %s): %s (transaction %d)", e.Code, e.Msg, e.TransactionID)
	case RetCUnknownTransaction:
		return fmt.Sprintf("LockError (code %s): %s %v", e.Code, e.Msg, e.TransactionIDs)
	default:
		return fmt.Sprintf("LockError (code %s): %s", e.Code, e.Msg)
	}
}

// Is matches any *Error carrying the same code, so the sentinels below can
// be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

var (
	ErrInvalidRequest        = NewError(RetCInvalidRequest, "invalid lock request")
	ErrConflictWithinRequest = NewError(RetCConflictWithinRequest, "lock request conflicts with itself")
	ErrConflictWithTable     = NewError(RetCConflictWithTable, "lock request conflicts with a granted lock")
	ErrUnknownTransaction    = NewError(RetCUnknownTransaction, "unknown transaction id")
	ErrNotOwner              = NewError(RetCNotOwner, "transaction is owned by another session")
	ErrClosed                = NewError(RetCInternalError, "lock manager is closed")
)

// CodeOf returns the RetCode carried by err, RetCSuccess for nil and
// RetCInternalError for errors not created by this package.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

func invalidf(format string, args ...interface{}) *Error {
	return NewError(RetCInvalidRequest, fmt.Sprintf(format, args...))
}
