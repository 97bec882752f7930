package serializer

import (
	"encoding/json"
	"errors"
)

// ErrEmptyBody is returned when an empty body is deserialized
var ErrEmptyBody = errors.New("empty body")

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Name() string {
	return "json"
}

func (j jsonSerializerImpl) ContentType() string {
	return "application/json; charset=utf-8"
}

func (j jsonSerializerImpl) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonSerializerImpl) Deserialize(b []byte, v any) error {
	if len(b) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(b, v)
}
