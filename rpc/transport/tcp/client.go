package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/ValentinKolb/mclock/rpc/transport"
	"github.com/ValentinKolb/mclock/rpc/transport/base"
)

// tcpDialer dials lock servers over TCP
type tcpDialer struct{}

func (tcpDialer) GetName() string {
	return "tcp"
}

func (tcpDialer) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (tcpDialer) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeTCPConn(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// NewTCPClientTransport creates a client transport that multiplexes
// requests over one or more TCP connections per endpoint
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(tcpDialer{})
}
