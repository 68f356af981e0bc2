package serializer

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/cockroachdb/errors"
)

// NewGOBSerializer creates a serializer using Go's gob format. Every
// message is encoded as a self contained gob stream.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializerImpl{}
}

type gobSerializerImpl struct{}

var gobBuffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func (gobSerializerImpl) Name() string {
	return "gob"
}

func (gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := gobBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer gobBuffers.Put(buf)

	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return nil, errors.Wrap(err, "encode gob message")
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero values on the wire, stale fields must not survive
	*msg = common.Message{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(msg); err != nil {
		return errors.Wrap(err, "decode gob message")
	}
	return nil
}
