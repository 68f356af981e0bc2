package serializer

import "github.com/ValentinKolb/mclock/rpc/common"

// IRPCSerializer converts Messages to and from their wire representation.
// Client and server must use the same implementation.
type IRPCSerializer interface {
	// Name returns the name used to select the serializer (json, gob, binary)
	Name() string
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Fields not present in b are zero after the call.
	Deserialize(b []byte, msg *common.Message) error
}
