package server

import (
	"fmt"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
)

func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{}
}

type lockMgrServerAdapter struct{}

func (adapter *lockMgrServerAdapter) Handle(req *common.Message, locks lockmgr.ILockManager) (resp *common.Message) {

	// Check for nil lock manager
	if locks == nil {
		return common.NewErrorResponse("handler: lock manager is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTLCKAcquire:
		txID, err := locks.Acquire(req.Records)
		return common.NewAcquireResponse(txID, err)
	case common.MsgTLCKRelease:
		err := locks.Release(req.TransactionIDs, req.Owner())
		return common.NewReleaseResponse(err)
	case common.MsgTLCKReleaseSession:
		released, err := locks.ReleaseBySession(req.SessionID)
		return common.NewReleaseSessionResponse(released, err)
	case common.MsgTLCKList:
		transactions, err := locks.List(req.SessionIDs)
		return common.NewListResponse(transactions, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
