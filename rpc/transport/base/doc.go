// Package base provides the foundation for the stream based transports of
// the lock service (tcp, unix). It implements the framing, request
// correlation and connection handling independent of the specific network
// protocol, which is plugged in through a connector.
//
// Frame Format:
//
//	[8 bytes requestID][4 bytes payload length][payload]
//
// All integers are big endian. The server answers every request frame with a
// response frame carrying the same requestID, responses may arrive out of
// order.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific
//     operations (dial, listen, socket options).
//
//   - clientTransport: Multiplexes requests over one or more peers per
//     endpoint. Peers are picked round robin, failed attempts are retried with
//     exponential backoff and a broken peer is redialed once.
//
//   - serverTransport: Accepts connections and runs up to maxWorkersPerConn
//     requests of a connection concurrently. Read buffers are pooled.
//
// Thread Safety:
//
//	All public methods are thread-safe. Writes to a connection are serialized
//	with a mutex, pending requests are kept in a concurrent map.
//
// Metrics:
//
//	The server counts handled requests and connection errors per transport
//	(mclock_rpc_requests_total, mclock_rpc_connection_errors_total).
package base
