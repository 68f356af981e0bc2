// Package unix implements a transport layer for the RPC system of the lock
// service using Unix domain sockets. It is the preferred transport when the
// management console front end runs on the same machine as the lock server.
//
// Key Components:
//
//   - unixDialer: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners and accepts connections.
//     A stale socket file left behind by a previous run is removed first.
package unix
