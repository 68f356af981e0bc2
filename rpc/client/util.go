package client

import (
	"sync/atomic"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/serializer"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter holds what every RPC client needs to reach the server
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	closed     atomic.Bool
}

// call sends req and decodes the answer. Transport and protocol failures
// are returned as plain errors. A request refused by the lock manager
// returns the response together with the *lockmgr.Error it carries.
func (a *rpcClientAdapter) call(req *common.Message) (*common.Message, error) {
	if a.closed.Load() {
		return nil, lockmgr.ErrClosed
	}

	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode request", req.MsgType)
	}

	respBytes, err := a.transport.Send(reqBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: send request", req.MsgType)
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, errors.Wrapf(err, "%s: decode response", req.MsgType)
	}

	switch resp.MsgType {
	case common.MsgTError:
		// the server could not process the request at all
		return nil, errors.Newf("%s: server error: %s", req.MsgType, resp.Err)
	case req.MsgType:
		return resp, resp.LockError()
	default:
		return nil, errors.Newf("%s: unexpected response type %s", req.MsgType, resp.MsgType)
	}
}

func (a *rpcClientAdapter) close() error {
	if a.closed.Swap(true) {
		return nil
	}
	Logger.Debugf("closing %s client transport", a.serializer.Name())
	return a.transport.Close()
}
