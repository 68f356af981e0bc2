// Package http implements an HTTP-based transport layer for the RPC
// communication of the lock service. It provides concrete implementations
// of the transport interfaces defined in the parent package.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are posted
//     to <endpoint>/rpc, endpoints are selected round-robin and a failed
//     request is retried against the next endpoint.
//
//   - httpServerTransport: Implements IHTTPServerTransport. The RPC endpoint
//     is served at POST /rpc, further handlers (REST lock service, metrics)
//     can be mounted on the same server with Handle.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
package http
