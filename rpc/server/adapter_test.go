package server

import (
	"testing"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
)

func testRecord(session string, resource uint64) lockmgr.LockRecord {
	return lockmgr.LockRecord{
		SessionID:  session,
		HMCID:      "hmc-" + session,
		LockType:   lockmgr.LockTypeWrite,
		ResourceID: resource,
		Segments: []lockmgr.Segment{
			{Flag: lockmgr.FlagDontLock, Length: 2},
			{Flag: lockmgr.FlagDontLock, Length: 4},
		},
	}
}

func TestLockManagerAdapter(t *testing.T) {
	locks := lockmgr.NewLockManager(lockmgr.Options{})
	defer locks.Close()
	adapter := NewLockManagerServerAdapter()

	// Acquire
	resp := adapter.Handle(common.NewAcquireRequest([]lockmgr.LockRecord{testRecord("s1", 10)}), locks)
	if resp.MsgType != common.MsgTLCKAcquire || resp.Code != lockmgr.RetCSuccess || resp.TransactionID != 1 {
		t.Fatalf("unexpected acquire response: %+v", resp)
	}

	// Conflicting acquire carries the conflicting lock
	resp = adapter.Handle(common.NewAcquireRequest([]lockmgr.LockRecord{testRecord("s2", 10)}), locks)
	if resp.Code != lockmgr.RetCConflictWithTable || resp.TransactionID != 1 || resp.Record == nil || resp.Record.SessionID != "s1" {
		t.Fatalf("unexpected conflict response: %+v", resp)
	}

	// List
	resp = adapter.Handle(common.NewListRequest([]string{"s1"}), locks)
	if resp.MsgType != common.MsgTLCKList || len(resp.Transactions) != 1 || resp.Transactions[0].ID != 1 {
		t.Fatalf("unexpected list response: %+v", resp)
	}

	// Release by a foreign owner
	resp = adapter.Handle(common.NewReleaseRequest([]uint32{1}, lockmgr.Owner{HMCID: "hmc-s2", SessionID: "s2"}), locks)
	if resp.Code != lockmgr.RetCNotOwner || resp.TransactionID != 1 {
		t.Fatalf("unexpected not owner response: %+v", resp)
	}

	// Release of an unknown id
	resp = adapter.Handle(common.NewReleaseRequest([]uint32{1, 9}, lockmgr.Owner{HMCID: "hmc-s1", SessionID: "s1"}), locks)
	if resp.Code != lockmgr.RetCUnknownTransaction || len(resp.TransactionIDs) != 1 || resp.TransactionIDs[0] != 9 {
		t.Fatalf("unexpected unknown transaction response: %+v", resp)
	}

	// Release by session
	resp = adapter.Handle(common.NewReleaseSessionRequest("s1"), locks)
	if resp.MsgType != common.MsgTLCKReleaseSession || resp.Code != lockmgr.RetCSuccess || resp.Released != 1 {
		t.Fatalf("unexpected release session response: %+v", resp)
	}

	// Unsupported message type
	resp = adapter.Handle(&common.Message{MsgType: common.MsgTSuccess}, locks)
	if resp.MsgType != common.MsgTError {
		t.Fatalf("expected error response, got %+v", resp)
	}

	// Missing lock manager
	resp = adapter.Handle(common.NewListRequest(nil), nil)
	if resp.MsgType != common.MsgTError {
		t.Fatalf("expected error response, got %+v", resp)
	}
}
