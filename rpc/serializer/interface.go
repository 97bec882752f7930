package serializer

import "github.com/ValentinKolb/dbwire/rpc/common"

// ISerializer is the interface for all body serializers
type ISerializer interface {
	// Name returns a short name of the encoding (e.g. "json")
	Name() string
	// ContentType returns the HTTP content type of the encoding
	ContentType() string
	// Serialize encodes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize decodes a byte array into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v any) error
}

// --------------------------------------------------------------------------
// Protocol helpers
// --------------------------------------------------------------------------

var (
	jsonSerializer  = NewJSONSerializer()
	vpackSerializer = NewVPackSerializer()
)

// ForProtocol returns the serializer matching the body encoding of a protocol
func ForProtocol(protocol common.Protocol) ISerializer {
	if protocol.IsBinary() {
		return vpackSerializer
	}
	return jsonSerializer
}

// DefaultCodec returns the codec used to convert bodies between JSON text and VelocyPack
func DefaultCodec() common.BodyCodec {
	return vpackSerializer.(common.BodyCodec)
}

// EncodeBody serializes v into body, as text for JSON protocols and as binary otherwise
func EncodeBody(body *common.Body, protocol common.Protocol, v any) error {
	data, err := ForProtocol(protocol).Serialize(v)
	if err != nil {
		return err
	}
	if protocol.IsBinary() {
		body.SetBytes(data)
	} else {
		body.SetText(string(data))
	}
	return nil
}

// DecodeBody deserializes body into v using the encoding of protocol
func DecodeBody(body *common.Body, protocol common.Protocol, v any) error {
	data, err := body.Encoded(protocol, DefaultCodec())
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyBody
	}
	return ForProtocol(protocol).Deserialize(data, v)
}
