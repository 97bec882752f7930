// Package serializer provides the body encodings used by the connections. It defines a
// common interface for serializing values into request bodies and deserializing response
// bodies, with one implementation per wire encoding.
//
// Key Components:
//
//   - ISerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding used by the HTTP_JSON protocol.
//
//   - vpackSerializerImpl: VelocyPack encoding used by HTTP_VPACK and VST. It also
//     implements common.BodyCodec and converts bodies between JSON text and VelocyPack,
//     which is how a common.Body derives its missing representation.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	  s := serializer.ForProtocol(config.Protocol)
//	  err := serializer.EncodeBody(&req.Body, config.Protocol, document)
//	  // ... execute ...
//	  err = serializer.DecodeBody(&resp.Body, config.Protocol, &result)
package serializer
