package unix

import (
	"net"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/ValentinKolb/mclock/rpc/transport/base"
)

// unixDialer dials lock servers over unix domain sockets. The endpoint is
// the socket path.
type unixDialer struct{}

func (unixDialer) GetName() string {
	return "unix"
}

func (unixDialer) Connect(socketPath string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, timeout)
}

func (unixDialer) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeUnixConn(conn, config.Transport.SocketConf)
}

// NewUnixClientTransport creates a client transport that multiplexes
// requests over one or more unix socket connections per socket path
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(unixDialer{})
}
