package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasRecords        uint16 = 1 << 0
	hasTransactionIDs uint16 = 1 << 1
	hasHMCID          uint16 = 1 << 2
	hasSessionID      uint16 = 1 << 3
	hasSessionIDs     uint16 = 1 << 4
	hasTransactionID  uint16 = 1 << 5
	hasRecord         uint16 = 1 << 6
	hasTransactions   uint16 = 1 << 7
	hasReleased       uint16 = 1 << 8
	hasCode           uint16 = 1 << 9
	hasErr            uint16 = 1 << 10
)

// headerSize is 1 byte MsgType + 2 bytes flags
const headerSize = 3

/*
	Layout:

	[0]     MsgType
	[1:3]   flags (uint16, big endian)
	[3:]    present fields in the order of the flags

	Strings and lists are prefixed with their length (uint32). A record is
	encoded as: sessionID, hmcID, lockType (strings), resourceID (uint64),
	segment count (uint8) followed by flag (string) and length (uint32) of
	every segment.
*/

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Name() string {
	return "binary"
}

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Validate what cannot be represented
	for _, r := range msg.Records {
		if len(r.Segments) > 255 {
			return nil, fmt.Errorf("record has too many segments (%d)", len(r.Segments))
		}
	}

	// Initialize flags
	var flags uint16

	result := make([]byte, headerSize, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	// Handle Records
	if len(msg.Records) > 0 {
		flags |= hasRecords
		result = appendRecords(result, msg.Records)
	}

	// Handle TransactionIDs
	if len(msg.TransactionIDs) > 0 {
		flags |= hasTransactionIDs
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.TransactionIDs)))
		for _, id := range msg.TransactionIDs {
			result = binary.BigEndian.AppendUint32(result, id)
		}
	}

	// Handle HMCID
	if msg.HMCID != "" {
		flags |= hasHMCID
		result = appendString(result, msg.HMCID)
	}

	// Handle SessionID
	if msg.SessionID != "" {
		flags |= hasSessionID
		result = appendString(result, msg.SessionID)
	}

	// Handle SessionIDs
	if len(msg.SessionIDs) > 0 {
		flags |= hasSessionIDs
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.SessionIDs)))
		for _, s := range msg.SessionIDs {
			result = appendString(result, s)
		}
	}

	// Handle TransactionID
	if msg.TransactionID != 0 {
		flags |= hasTransactionID
		result = binary.BigEndian.AppendUint32(result, msg.TransactionID)
	}

	// Handle Record
	if msg.Record != nil {
		if len(msg.Record.Segments) > 255 {
			return nil, fmt.Errorf("record has too many segments (%d)", len(msg.Record.Segments))
		}
		flags |= hasRecord
		result = appendRecord(result, *msg.Record)
	}

	// Handle Transactions
	if len(msg.Transactions) > 0 {
		flags |= hasTransactions
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Transactions)))
		for _, tx := range msg.Transactions {
			result = binary.BigEndian.AppendUint32(result, tx.ID)
			result = appendRecords(result, tx.Records)
		}
	}

	// Handle Released
	if msg.Released != 0 {
		flags |= hasReleased
		result = binary.BigEndian.AppendUint32(result, msg.Released)
	}

	// Handle Code
	if msg.Code != lockmgr.RetCSuccess {
		flags |= hasCode
		result = append(result, byte(msg.Code))
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Reset the message
	*msg = common.Message{}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := binary.BigEndian.Uint16(data[1:3])

	r := &reader{data: data, pos: headerSize}

	// Read Records if present
	if flags&hasRecords != 0 {
		msg.Records = r.records("records")
	}

	// Read TransactionIDs if present
	if flags&hasTransactionIDs != 0 {
		n := r.length("transaction ids", 4)
		if n > 0 {
			msg.TransactionIDs = make([]uint32, n)
			for i := range msg.TransactionIDs {
				msg.TransactionIDs[i] = r.readUint32("transaction id")
			}
		}
	}

	// Read HMCID if present
	if flags&hasHMCID != 0 {
		msg.HMCID = r.readString("hmc id")
	}

	// Read SessionID if present
	if flags&hasSessionID != 0 {
		msg.SessionID = r.readString("session id")
	}

	// Read SessionIDs if present
	if flags&hasSessionIDs != 0 {
		n := r.length("session ids", 4)
		if n > 0 {
			msg.SessionIDs = make([]string, n)
			for i := range msg.SessionIDs {
				msg.SessionIDs[i] = r.readString("session id")
			}
		}
	}

	// Read TransactionID if present
	if flags&hasTransactionID != 0 {
		msg.TransactionID = r.readUint32("transaction id")
	}

	// Read Record if present
	if flags&hasRecord != 0 {
		record := r.record()
		msg.Record = &record
	}

	// Read Transactions if present
	if flags&hasTransactions != 0 {
		n := r.length("transactions", 8)
		if n > 0 {
			msg.Transactions = make([]lockmgr.Transaction, n)
			for i := range msg.Transactions {
				msg.Transactions[i].ID = r.readUint32("transaction id")
				msg.Transactions[i].Records = r.records("transaction records")
			}
		}
	}

	// Read Released if present
	if flags&hasReleased != 0 {
		msg.Released = r.readUint32("released")
	}

	// Read Code if present
	if flags&hasCode != 0 {
		msg.Code = lockmgr.RetCode(r.readByte("code"))
	}

	// Read Err if present
	if flags&hasErr != 0 {
		msg.Err = r.readString("error")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if len(msg.Records) > 0 {
		size += recordsSize(msg.Records)
	}
	if len(msg.TransactionIDs) > 0 {
		size += 4 + 4*len(msg.TransactionIDs)
	}
	if msg.HMCID != "" {
		size += 4 + len(msg.HMCID)
	}
	if msg.SessionID != "" {
		size += 4 + len(msg.SessionID)
	}
	if len(msg.SessionIDs) > 0 {
		size += 4
		for _, s := range msg.SessionIDs {
			size += 4 + len(s)
		}
	}
	if msg.TransactionID != 0 {
		size += 4
	}
	if msg.Record != nil {
		size += recordSize(*msg.Record)
	}
	if len(msg.Transactions) > 0 {
		size += 4
		for _, tx := range msg.Transactions {
			size += 4 + recordsSize(tx.Records)
		}
	}
	if msg.Released != 0 {
		size += 4
	}
	if msg.Code != lockmgr.RetCSuccess {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

func recordSize(r lockmgr.LockRecord) int {
	size := 4 + len(r.SessionID) + 4 + len(r.HMCID) + 4 + len(r.LockType) + 8 + 1
	for _, s := range r.Segments {
		size += 4 + len(s.Flag) + 4
	}
	return size
}

func recordsSize(records []lockmgr.LockRecord) int {
	size := 4
	for _, r := range records {
		size += recordSize(r)
	}
	return size
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendRecord(buf []byte, r lockmgr.LockRecord) []byte {
	buf = appendString(buf, r.SessionID)
	buf = appendString(buf, r.HMCID)
	buf = appendString(buf, string(r.LockType))
	buf = binary.BigEndian.AppendUint64(buf, r.ResourceID)
	buf = append(buf, byte(len(r.Segments)))
	for _, s := range r.Segments {
		buf = appendString(buf, string(s.Flag))
		buf = binary.BigEndian.AppendUint32(buf, s.Length)
	}
	return buf
}

func appendRecords(buf []byte, records []lockmgr.LockRecord) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(records)))
	for _, r := range records {
		buf = appendRecord(buf, r)
	}
	return buf
}

// reader decodes the fields of a message. The first error stops all
// further reads, callers check err once at the end.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return false
	}
	return true
}

func (r *reader) readByte(field string) byte {
	if !r.need(1, field) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) readUint32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) readUint64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *reader) readString(field string) string {
	n := int(r.readUint32(field + " length"))
	if !r.need(n, field) {
		return ""
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}

// length reads a list length and checks it against the remaining data
// (every element needs at least minElemSize bytes)
func (r *reader) length(field string, minElemSize int) int {
	n := int(r.readUint32(field + " length"))
	if r.err != nil {
		return 0
	}
	if n*minElemSize > len(r.data)-r.pos {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	return n
}

func (r *reader) record() lockmgr.LockRecord {
	var rec lockmgr.LockRecord
	rec.SessionID = r.readString("record session id")
	rec.HMCID = r.readString("record hmc id")
	rec.LockType = lockmgr.LockType(r.readString("record lock type"))
	rec.ResourceID = r.readUint64("record resource id")
	n := int(r.readByte("record segment count"))
	if r.err != nil || n == 0 {
		return rec
	}
	rec.Segments = make([]lockmgr.Segment, n)
	for i := range rec.Segments {
		rec.Segments[i].Flag = lockmgr.LockFlag(r.readString("segment flag"))
		rec.Segments[i].Length = r.readUint32("segment length")
	}
	return rec
}

func (r *reader) records(field string) []lockmgr.LockRecord {
	n := r.length(field, 21)
	if n == 0 {
		return nil
	}
	records := make([]lockmgr.LockRecord, n)
	for i := range records {
		records[i] = r.record()
	}
	return records
}
