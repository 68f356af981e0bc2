package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Records        []lockmgr.LockRecord `json:"records,omitempty"`         // Used for: Acquire
	TransactionIDs []uint32             `json:"transaction_ids,omitempty"` // Used for: Release (request), UnknownTransaction errors
	HMCID          string               `json:"hmc_id,omitempty"`          // Used for: Release
	SessionID      string               `json:"session_id,omitempty"`      // Used for: Release, ReleaseSession
	SessionIDs     []string             `json:"session_ids,omitempty"`     // Used for: List

	// Response only fields
	TransactionID uint32                `json:"transaction_id,omitempty"` // Used for: Acquire, ConflictWithTable and NotOwner errors
	Record        *lockmgr.LockRecord   `json:"record,omitempty"`         // Used for: ConflictWithTable and NotOwner errors
	Transactions  []lockmgr.Transaction `json:"transactions,omitempty"`   // Used for: List
	Released      uint32                `json:"released,omitempty"`       // Used for: ReleaseSession
	Code          lockmgr.RetCode       `json:"code,omitempty"`           // RetCSuccess if no error
	Err           string                `json:"err,omitempty"`            // Empty if no error, otherwise contains the error message
}

// LockError rebuilds the error carried by a response. It returns nil for
// successful responses.
func (m *Message) LockError() error {
	if m.Code == lockmgr.RetCSuccess && m.Err == "" {
		return nil
	}
	code := m.Code
	if code == lockmgr.RetCSuccess {
		code = lockmgr.RetCInternalError
	}
	return &lockmgr.Error{
		Code:           code,
		Msg:            m.Err,
		TransactionID:  m.TransactionID,
		Record:         m.Record,
		TransactionIDs: m.TransactionIDs,
	}
}

// setError copies err into the response fields of the message
func (m *Message) setError(err error) {
	if err == nil {
		return
	}
	var lockErr *lockmgr.Error
	if !errors.As(err, &lockErr) {
		m.Code = lockmgr.RetCInternalError
		m.Err = err.Error()
		return
	}
	m.Code = lockErr.Code
	m.Err = lockErr.Msg
	m.TransactionID = lockErr.TransactionID
	m.Record = lockErr.Record
	m.TransactionIDs = lockErr.TransactionIDs
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewAcquireRequest creates a new Acquire request
func NewAcquireRequest(records []lockmgr.LockRecord) *Message {
	return &Message{
		MsgType: MsgTLCKAcquire,
		Records: records,
	}
}

// NewAcquireResponse creates a new Acquire response
func NewAcquireResponse(txID uint32, err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKAcquire,
	}
	if err != nil {
		msg.setError(err)
		return msg
	}
	msg.TransactionID = txID
	return msg
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(txIDs []uint32, owner lockmgr.Owner) *Message {
	return &Message{
		MsgType:        MsgTLCKRelease,
		TransactionIDs: txIDs,
		HMCID:          owner.HMCID,
		SessionID:      owner.SessionID,
	}
}

// NewReleaseResponse creates a new Release response
func NewReleaseResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTLCKRelease,
	}
	msg.setError(err)
	return msg
}

// NewReleaseSessionRequest creates a new ReleaseSession request
func NewReleaseSessionRequest(sessionID string) *Message {
	return &Message{
		MsgType:   MsgTLCKReleaseSession,
		SessionID: sessionID,
	}
}

// NewReleaseSessionResponse creates a new ReleaseSession response
func NewReleaseSessionResponse(released int, err error) *Message {
	msg := &Message{
		MsgType:  MsgTLCKReleaseSession,
		Released: uint32(released),
	}
	msg.setError(err)
	return msg
}

// NewListRequest creates a new List request
func NewListRequest(sessionIDs []string) *Message {
	return &Message{
		MsgType:    MsgTLCKList,
		SessionIDs: sessionIDs,
	}
}

// NewListResponse creates a new List response
func NewListResponse(transactions []lockmgr.Transaction, err error) *Message {
	msg := &Message{
		MsgType:      MsgTLCKList,
		Transactions: transactions,
	}
	msg.setError(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    lockmgr.RetCInternalError,
		Err:     err,
	}
}

// Owner returns the owner sent with a Release request
func (m *Message) Owner() lockmgr.Owner {
	return lockmgr.Owner{HMCID: m.HMCID, SessionID: m.SessionID}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTLCKAcquire:
		return "acquire"
	case MsgTLCKRelease:
		return "release"
	case MsgTLCKReleaseSession:
		return "releaseSession"
	case MsgTLCKList:
		return "list"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "acquire":
		*t = MsgTLCKAcquire
	case "release":
		*t = MsgTLCKRelease
	case "releaseSession":
		*t = MsgTLCKReleaseSession
	case "list":
		*t = MsgTLCKList
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ILockManager operations

	MsgTLCKAcquire        // Acquire a set of locks
	MsgTLCKRelease        // Release transactions by id
	MsgTLCKReleaseSession // Release every transaction of a session
	MsgTLCKList           // List the transactions of sessions
)
