// Package transport defines the interfaces and abstractions for RPC communication
// of the lock service. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and passes them to the registered handler.
//
//   - IHTTPServerTransport: Server transports speaking http additionally accept
//     plain http handlers (REST lock service, metrics).
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the http, tcp and unix subpackages, tcp and unix
// share the framing and connection handling of the base package.
package transport
