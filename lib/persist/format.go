package persist

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Blob format
// --------------------------------------------------------------------------

/*
	The persisted blob is a JSON object mapping the decimal transaction id to
	the records of the transaction. A record is a 5-tuple, a segment a 2-tuple:

	{
	  "1": [["xxxxx", "hmc-id", "Read", 234, [["DontLock", 2], ["DontLock", 4]]]]
	}
*/

// fileRecord is the tuple encoding of a lockmgr.LockRecord.
type fileRecord lockmgr.LockRecord

// fileSegment is the tuple encoding of a lockmgr.Segment.
type fileSegment lockmgr.Segment

func (s fileSegment) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{s.Flag, s.Length})
}

func (s *fileSegment) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("segment: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &s.Flag); err != nil {
		return fmt.Errorf("segment flag: %w", err)
	}
	if err := json.Unmarshal(raw[1], &s.Length); err != nil {
		return fmt.Errorf("segment length: %w", err)
	}
	return nil
}

func (r fileRecord) MarshalJSON() ([]byte, error) {
	segments := make([]fileSegment, len(r.Segments))
	for i, s := range r.Segments {
		segments[i] = fileSegment(s)
	}
	return json.Marshal([]interface{}{r.SessionID, r.HMCID, r.LockType, r.ResourceID, segments})
}

func (r *fileRecord) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 5 {
		return fmt.Errorf("record: expected 5 elements, got %d", len(raw))
	}

	var segments []fileSegment
	fields := []struct {
		name string
		dst  interface{}
	}{
		{"session id", &r.SessionID},
		{"hmc id", &r.HMCID},
		{"lock type", &r.LockType},
		{"resource id", &r.ResourceID},
		{"segments", &segments},
	}
	for i, f := range fields {
		if err := json.Unmarshal(raw[i], f.dst); err != nil {
			return fmt.Errorf("record %s: %w", f.name, err)
		}
	}

	r.Segments = make([]lockmgr.Segment, len(segments))
	for i, s := range segments {
		r.Segments[i] = lockmgr.Segment(s)
	}
	return nil
}

func encodeTable(table map[uint32][]lockmgr.LockRecord) ([]byte, error) {
	out := make(map[string][]fileRecord, len(table))
	for id, records := range table {
		encoded := make([]fileRecord, len(records))
		for i, r := range records {
			encoded[i] = fileRecord(r)
		}
		out[fmt.Sprintf("%d", id)] = encoded
	}
	return json.Marshal(out)
}
