package serializer

import (
	"fmt"
	"github.com/arangodb/go-velocypack"
)

// ContentTypeVPack is the HTTP content type of VelocyPack bodies
const ContentTypeVPack = "application/x-velocypack"

// NewVPackSerializer creates a new serializer using VelocyPack encoding.
// The returned serializer also implements common.BodyCodec.
func NewVPackSerializer() ISerializer {
	return &vpackSerializerImpl{}
}

// vpackSerializerImpl implements the ISerializer and common.BodyCodec interfaces using VelocyPack
type vpackSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (v vpackSerializerImpl) Name() string {
	return "vpack"
}

func (v vpackSerializerImpl) ContentType() string {
	return ContentTypeVPack
}

func (v vpackSerializerImpl) Serialize(value any) ([]byte, error) {
	slice, err := velocypack.Marshal(value)
	if err != nil {
		return nil, err
	}
	return slice, nil
}

func (v vpackSerializerImpl) Deserialize(b []byte, value any) error {
	if len(b) == 0 {
		return ErrEmptyBody
	}
	return velocypack.Unmarshal(velocypack.Slice(b), value)
}

// --------------------------------------------------------------------------
// Body codec (docu see common.BodyCodec)
// --------------------------------------------------------------------------

func (v vpackSerializerImpl) EncodeJSON(text string) ([]byte, error) {
	slice, err := velocypack.ParseJSONFromString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to convert json to vpack: %w", err)
	}
	return slice, nil
}

func (v vpackSerializerImpl) DecodeJSON(b []byte) (string, error) {
	text, err := velocypack.Slice(b).JSONString()
	if err != nil {
		return "", fmt.Errorf("failed to convert vpack to json: %w", err)
	}
	return text, nil
}
