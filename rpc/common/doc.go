// Package common provides the data structures shared by the RPC client and
// server of the lock service.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with the dragonboat logger
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Which fields are
//     used depends on the MessageType. Refused lock operations carry the
//     lockmgr.RetCode and details of the refusal, see Message.LockError.
//     Includes factory methods for creating request and response messages.
//
//   - MessageType: Enumeration of the supported operations (acquire, release,
//     releaseSession, list) plus the control messages.
//
//   - ServerConfig: Configuration of the lock server (lock file, conflict
//     options, session timeout, transport and logging).
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom log format installed as the dragonboat logger factory,
//     used by every package of the application.
package common
