package client

import (
	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/serializer"
	"github.com/ValentinKolb/mclock/rpc/transport"
)

// NewRPCLockMgr connects the transport and returns a lockmgr.ILockManager
// that forwards every call to a remote lock server. Refusals of the server
// are returned as *lockmgr.Error, so lockmgr.CodeOf and errors.Is work the
// same as with a local lock manager.
func NewRPCLockMgr(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcLockMgr{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
}

func (i *rpcLockMgr) Acquire(records []lockmgr.LockRecord) (uint32, error) {
	resp, err := i.call(common.NewAcquireRequest(records))
	if err != nil {
		return 0, err
	}
	return resp.TransactionID, nil
}

func (i *rpcLockMgr) Release(txIDs []uint32, owner lockmgr.Owner) error {
	_, err := i.call(common.NewReleaseRequest(txIDs, owner))
	return err
}

func (i *rpcLockMgr) ReleaseBySession(sessionID string) (int, error) {
	resp, err := i.call(common.NewReleaseSessionRequest(sessionID))
	if err != nil {
		return 0, err
	}
	return int(resp.Released), nil
}

func (i *rpcLockMgr) List(sessionIDs []string) ([]lockmgr.Transaction, error) {
	resp, err := i.call(common.NewListRequest(sessionIDs))
	if err != nil {
		return nil, err
	}
	if resp.Transactions == nil {
		return []lockmgr.Transaction{}, nil
	}
	return resp.Transactions, nil
}

func (i *rpcLockMgr) Close() error {
	return i.close()
}
