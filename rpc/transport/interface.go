package transport

import (
	"net/http"

	"github.com/ValentinKolb/mclock/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the serialized request as parameter and returns the serialized response
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and listens for incoming requests
	// It blocks until Close is called (returning nil) or the listener fails
	Listen(config common.ServerConfig) error
	// Close stops listening and closes all open connections
	Close() error
}

// IHTTPServerTransport is implemented by server transports that speak http.
// Additional routes (e.g. the REST lock service or metrics) can be mounted
// next to the RPC endpoint.
type IHTTPServerTransport interface {
	IRPCServerTransport
	// Handle registers a handler for the given pattern (see http.ServeMux)
	// Must be called before Listen
	Handle(pattern string, handler http.Handler)
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
