// Package rpc provides the remote access layer of the lock service. It
// connects management console front ends (and the mclock CLI) with the single
// lock manager owned by the server process.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementing lockmgr.ILockManager, so a remote lock
//     manager can be used exactly like a local one.
//
//   - server: The lock server. It runs the lock manager, the session registry
//     and the REST lock service next to the RPC endpoint.
package rpc
