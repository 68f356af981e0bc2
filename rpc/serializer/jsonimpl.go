package serializer

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ValentinKolb/mclock/rpc/common"
	"github.com/cockroachdb/errors"
)

// NewJSONSerializer creates a serializer using json encoding. Decoding is
// strict: unknown fields and trailing data are rejected.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Name() string {
	return "json"
}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return errors.Wrap(err, "decode json message")
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("decode json message: trailing data")
	}
	return nil
}
