// Package client implements the RPC client of the lock service. It provides
// an implementation of the lockmgr.ILockManager interface that forwards every
// operation to a remote lock server, so callers cannot tell a remote lock
// manager from a local one.
//
// Key Components:
//
//   - NewRPCLockMgr: Factory function that connects the given transport and
//     returns a client implementing lockmgr.ILockManager.
//
// Error Handling:
//
//	A refusal of the remote lock manager is returned as *lockmgr.Error with
//	the same code and details as a local call, so lockmgr.CodeOf and
//	errors.Is with the lockmgr sentinels work unchanged. Transport and
//	protocol failures are returned as plain errors.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	    TimeoutSecond: 5,
//	    Transport: common.ClientTransportConfig{
//	        Endpoints:  []string{"/run/mclock.sock"},
//	        RetryCount: 3,
//	    },
//	}
//
//	locks, err := client.NewRPCLockMgr(config, unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	    // handle error
//	}
//	defer locks.Close()
//
//	id, err := locks.Acquire(records)
//
// Thread Safety:
//
//	The client is thread-safe and can be used concurrently from multiple
//	goroutines without additional synchronization.
package client
