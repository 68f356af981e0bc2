// Package serializer provides message serialization for the lock service RPC
// system. It defines a common interface and multiple implementations for
// serializing and deserializing messages between client and server components.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format. A 16 bit flag word marks the
//     fields that are present, only those are written. Lock records are
//     written as length prefixed strings plus the fixed size resource id and
//     segment lengths.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems (e.g. curl against the http transport).
//
// Performance Characteristics:
//
//	Binary produces the smallest payloads and is the fastest for the typical
//	acquire and release messages. GOB pays for sending its type information
//	with every message, which dominates for small lock requests.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(*common.NewListRequest([]string{"session"}))
//	// ... send data ...
//	var receivedMsg common.Message
//	err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
