// Package tcp implements a TCP socket transport for the RPC system of the
// lock service. It provides concrete implementations of the base package's
// connector interfaces.
//
// Key Components:
//
//   - tcpDialer: TCP-specific implementation of base.IClientConnector (dials with a timeout)
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both connectors apply the SocketConf and TCPConf options (no delay,
// keep-alive, linger and buffer sizes) to every connection they open or accept.
package tcp
