package vst

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/arangodb/go-velocypack"
	"sort"
)

// Message types of the first header field after the version
const (
	MessageTypeRequest  = 1
	MessageTypeResponse = 2
	MessageTypeAuth     = 1000

	messageVersion = 1
)

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeRequest builds a request message: the header
// [version, type, database, requestType, path, {parameters}, {meta}] followed by the body
func EncodeRequest(req *common.Request, codec common.BodyCodec) ([]byte, error) {
	body, err := req.SerializeBody(common.ProtocolVST, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize body: %w", err)
	}

	var b velocypack.Builder
	err = errors.Join(
		b.OpenArray(),
		b.AddValue(velocypack.NewIntValue(messageVersion)),
		b.AddValue(velocypack.NewIntValue(MessageTypeRequest)),
		b.AddValue(velocypack.NewStringValue(req.Database)),
		b.AddValue(velocypack.NewIntValue(req.Method.VSTCode())),
		b.AddValue(velocypack.NewStringValue(req.Path)),
		addStringMap(&b, req.QueryParams),
		addStringMap(&b, req.HeaderParams),
		b.Close(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build request header: %w", err)
	}
	return appendBody(&b, body)
}

// EncodeResponse builds a response message: the header [version, type, status, {meta}] followed by the body
func EncodeResponse(resp *common.Response, codec common.BodyCodec) ([]byte, error) {
	body, err := resp.Body.Bytes(codec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize body: %w", err)
	}

	var b velocypack.Builder
	err = errors.Join(
		b.OpenArray(),
		b.AddValue(velocypack.NewIntValue(messageVersion)),
		b.AddValue(velocypack.NewIntValue(MessageTypeResponse)),
		b.AddValue(velocypack.NewIntValue(int64(resp.StatusCode))),
		addStringMap(&b, resp.Meta),
		b.Close(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build response header: %w", err)
	}
	return appendBody(&b, body)
}

// EncodeAuth builds an authentication message,
// [1, 1000, "plain", user, password] or [1, 1000, "jwt", token]
func EncodeAuth(auth common.Authentication) ([]byte, error) {
	var b velocypack.Builder
	errs := []error{
		b.OpenArray(),
		b.AddValue(velocypack.NewIntValue(messageVersion)),
		b.AddValue(velocypack.NewIntValue(MessageTypeAuth)),
	}

	switch auth.Scheme {
	case common.AuthSchemeBasic:
		errs = append(errs,
			b.AddValue(velocypack.NewStringValue(string(common.AuthSchemeBasic))),
			b.AddValue(velocypack.NewStringValue(auth.User)),
			b.AddValue(velocypack.NewStringValue(auth.Password)),
		)
	case common.AuthSchemeJWT:
		errs = append(errs,
			b.AddValue(velocypack.NewStringValue(string(common.AuthSchemeJWT))),
			b.AddValue(velocypack.NewStringValue(auth.Token)),
		)
	default:
		return nil, fmt.Errorf("unsupported authentication scheme %q", auth.Scheme)
	}

	errs = append(errs, b.Close())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to build auth message: %w", err)
	}
	return b.Bytes()
}

// addStringMap adds m as object with sorted keys
func addStringMap(b *velocypack.Builder, m map[string]string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := b.OpenObject(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.AddKeyValue(k, velocypack.NewStringValue(m[k])); err != nil {
			return err
		}
	}
	return b.Close()
}

// appendBody returns the header of b followed by body
func appendBody(b *velocypack.Builder, body []byte) ([]byte, error) {
	header, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(header)+len(body))
	msg = append(msg, header...)
	return append(msg, body...), nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// messageHeader is the decoded header array and the remaining body
type messageHeader struct {
	fields velocypack.Slice
	length int
	body   []byte
}

// splitMessage separates the header array from the body
func splitMessage(data []byte) (messageHeader, error) {
	if len(data) == 0 {
		return messageHeader{}, errors.New("empty message")
	}
	header := velocypack.Slice(data)
	if !header.IsArray() {
		return messageHeader{}, errors.New("message header is not an array")
	}
	size, err := header.ByteSize()
	if err != nil {
		return messageHeader{}, fmt.Errorf("invalid message header: %w", err)
	}
	if size > velocypack.ValueLength(len(data)) {
		return messageHeader{}, fmt.Errorf("message header of %d bytes exceeds message of %d bytes", size, len(data))
	}
	n, err := header.Length()
	if err != nil {
		return messageHeader{}, fmt.Errorf("invalid message header: %w", err)
	}

	h := messageHeader{fields: header[:size], length: int(n)}
	if rest := data[size:]; len(rest) > 0 {
		h.body = rest
	}
	return h, nil
}

func (h messageHeader) intAt(i int) (int64, error) {
	if i >= h.length {
		return 0, fmt.Errorf("message header has no field %d", i)
	}
	s, err := h.fields.At(velocypack.ValueLength(i))
	if err != nil {
		return 0, err
	}
	return s.GetInt()
}

func (h messageHeader) stringAt(i int) (string, error) {
	if i >= h.length {
		return "", fmt.Errorf("message header has no field %d", i)
	}
	s, err := h.fields.At(velocypack.ValueLength(i))
	if err != nil {
		return "", err
	}
	return s.GetString()
}

func (h messageHeader) stringMapAt(i int) (map[string]string, error) {
	result := make(map[string]string)
	if i >= h.length {
		return result, nil
	}
	s, err := h.fields.At(velocypack.ValueLength(i))
	if err != nil {
		return nil, err
	}
	if !s.IsObject() {
		return result, nil
	}

	it, err := velocypack.NewObjectIterator(s)
	if err != nil {
		return nil, err
	}
	for it.IsValid() {
		key, err := it.Key(true)
		if err != nil {
			return nil, err
		}
		k, err := key.GetString()
		if err != nil {
			return nil, err
		}
		value, err := it.Value()
		if err != nil {
			return nil, err
		}
		var v string
		if value.IsString() {
			v, err = value.GetString()
		} else {
			v, err = value.JSONString()
		}
		if err != nil {
			return nil, err
		}
		result[k] = v

		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// MessageType returns the type field of a message header
func MessageType(data []byte) (int64, error) {
	h, err := splitMessage(data)
	if err != nil {
		return 0, err
	}
	return h.intAt(1)
}

// DecodeResponse parses a response message
func DecodeResponse(data []byte) (*common.Response, error) {
	h, err := splitMessage(data)
	if err != nil {
		return nil, err
	}
	if t, err := h.intAt(1); err != nil || t != MessageTypeResponse {
		return nil, fmt.Errorf("unexpected message type %d (err: %v)", t, err)
	}
	status, err := h.intAt(2)
	if err != nil {
		return nil, fmt.Errorf("invalid response status: %w", err)
	}
	meta, err := h.stringMapAt(3)
	if err != nil {
		return nil, fmt.Errorf("invalid response meta: %w", err)
	}

	resp := &common.Response{StatusCode: int(status), Meta: meta}
	if h.body != nil {
		resp.Body.SetBytes(h.body)
	}
	return resp, nil
}

// DecodeRequest parses a request message
func DecodeRequest(data []byte) (*common.Request, error) {
	h, err := splitMessage(data)
	if err != nil {
		return nil, err
	}
	if t, err := h.intAt(1); err != nil || t != MessageTypeRequest {
		return nil, fmt.Errorf("unexpected message type %d (err: %v)", t, err)
	}

	database, err := h.stringAt(2)
	if err != nil {
		return nil, fmt.Errorf("invalid database: %w", err)
	}
	code, err := h.intAt(3)
	if err != nil {
		return nil, fmt.Errorf("invalid request type: %w", err)
	}
	method, err := common.RequestTypeFromVSTCode(code)
	if err != nil {
		return nil, err
	}
	path, err := h.stringAt(4)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	req := common.NewRequest(database, method, path)
	if req.QueryParams, err = h.stringMapAt(5); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if req.HeaderParams, err = h.stringMapAt(6); err != nil {
		return nil, fmt.Errorf("invalid meta: %w", err)
	}
	if h.body != nil {
		req.Body.SetBytes(h.body)
	}
	return req, nil
}

// DecodeAuth parses an authentication message
func DecodeAuth(data []byte) (common.Authentication, error) {
	h, err := splitMessage(data)
	if err != nil {
		return common.Authentication{}, err
	}
	if t, err := h.intAt(1); err != nil || t != MessageTypeAuth {
		return common.Authentication{}, fmt.Errorf("unexpected message type %d (err: %v)", t, err)
	}

	scheme, err := h.stringAt(2)
	if err != nil {
		return common.Authentication{}, fmt.Errorf("invalid auth scheme: %w", err)
	}
	switch common.AuthenticationScheme(scheme) {
	case common.AuthSchemeBasic:
		user, err := h.stringAt(3)
		if err != nil {
			return common.Authentication{}, err
		}
		password, err := h.stringAt(4)
		if err != nil {
			return common.Authentication{}, err
		}
		return common.BasicAuthentication(user, password), nil
	case common.AuthSchemeJWT:
		token, err := h.stringAt(3)
		if err != nil {
			return common.Authentication{}, err
		}
		return common.JWTAuthentication(token), nil
	default:
		return common.Authentication{}, fmt.Errorf("unsupported auth scheme %q", scheme)
	}
}
