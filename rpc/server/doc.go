// Package server implements the lock server of the management console lock
// service. A server owns exactly one lock manager and exposes it through an
// RPC transport and the REST LockService resource.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that runs a decoded request against a
//     lockmgr.ILockManager.
//
//   - NewLockManagerServerAdapter: Factory function creating the adapter that
//     translates RPC messages into lock manager calls.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
// REST LockService:
//
//	GET  /ibm/v1/HMC/LockService
//	POST /ibm/v1/HMC/LockService/Actions/LockService.AcquireLock
//	POST /ibm/v1/HMC/LockService/Actions/LockService.ReleaseLock
//	POST /ibm/v1/HMC/LockService/Actions/LockService.GetLockList
//	GET  /metrics
//	GET  /debug/persistence
//
//	The caller is identified by the X-Session-Id and X-HMC-Id headers, which
//	are expected to be set by the authenticating front end. Requests without
//	a session are rejected with 401. With the http transport the routes are
//	served next to the RPC endpoint, other transports need a separate REST
//	endpoint.
//
// Lifecycle:
//
//	Serve opens the lock file (taking an exclusive file lock, so a second
//	server on the same file fails to start), restores the lock table, starts
//	the session sweeper and blocks until SIGINT/SIGTERM or Close. On return
//	the lock manager is stopped and the file lock is released.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	    LockFile:             persist.DefaultPath,
//	    SessionTimeoutSecond: 3600,
//	    TimeoutSecond:        5,
//	    Transport:            common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	    LogLevel:             "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewJSONSerializer())
//	if err := s.Serve(); err != nil {
//	    log.Fatalf("Server error: %v", err)
//	}
package server
