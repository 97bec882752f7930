package common

import (
	"errors"
	"sync"
)

// BodyCodec converts between the textual (JSON) and the binary (VelocyPack)
// representation of a body
type BodyCodec interface {
	// EncodeJSON converts JSON text into the binary representation
	EncodeJSON(text string) ([]byte, error)
	// DecodeJSON converts the binary representation into JSON text
	DecodeJSON(b []byte) (string, error)
}

// ErrNoBodyCodec is returned when a body representation has to be derived but no codec is available
var ErrNoBodyCodec = errors.New("no body codec available to convert the body")

// Body is a message body that is either set as binary buffer or as text.
// The missing representation is derived on first access and cached until the
// body is replaced. A Body must not be copied after first use.
type Body struct {
	mu        sync.Mutex
	binary    []byte
	text      string
	hasBinary bool
	hasText   bool
}

// SetBytes replaces the body with a binary buffer
func (b *Body) SetBytes(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binary = data
	b.hasBinary = data != nil
	b.text = ""
	b.hasText = false
}

// SetText replaces the body with text. An empty string clears the body.
func (b *Body) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.hasText = text != ""
	b.binary = nil
	b.hasBinary = false
}

// IsEmpty reports whether neither representation is set
func (b *Body) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.hasBinary && !b.hasText
}

// HasBytes reports whether the binary representation is available without conversion
func (b *Body) HasBytes() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasBinary
}

// Bytes returns the binary representation, deriving it from the text if necessary
func (b *Body) Bytes(codec BodyCodec) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasBinary {
		return b.binary, nil
	}
	if !b.hasText {
		return nil, nil
	}
	if codec == nil {
		return nil, ErrNoBodyCodec
	}

	data, err := codec.EncodeJSON(b.text)
	if err != nil {
		return nil, err
	}
	b.binary = data
	b.hasBinary = true
	return data, nil
}

// Text returns the textual representation, deriving it from the binary buffer if necessary
func (b *Body) Text(codec BodyCodec) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasText {
		return b.text, nil
	}
	if !b.hasBinary {
		return "", nil
	}
	if codec == nil {
		return "", ErrNoBodyCodec
	}

	text, err := codec.DecodeJSON(b.binary)
	if err != nil {
		return "", err
	}
	b.text = text
	b.hasText = true
	return text, nil
}

// Encoded returns the body in the representation required by the protocol:
// UTF-8 JSON text for HTTP_JSON, the binary encoding for HTTP_VPACK and VST
func (b *Body) Encoded(protocol Protocol, codec BodyCodec) ([]byte, error) {
	if protocol.IsBinary() {
		return b.Bytes(codec)
	}
	text, err := b.Text(codec)
	if err != nil || text == "" {
		return nil, err
	}
	return []byte(text), nil
}
