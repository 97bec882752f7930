package vst

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// chunkHeaderSize is the size of a VST 1.1 chunk header:
	// - 4 bytes: chunk length incl. header (uint32, little endian)
	// - 4 bytes: chunkX (uint32, little endian)
	// - 8 bytes: messageID (uint64, little endian)
	// - 8 bytes: message length (uint64, little endian)
	chunkHeaderSize = 24

	// DefaultMaxMessageLength bounds the size of a reassembled message
	DefaultMaxMessageLength = 256 * 1024 * 1024
)

// ProtocolHeader is sent once by the client after the socket is established
var ProtocolHeader = []byte("VST/1.1\r\n\r\n")

// chunk is a single decoded chunk
type chunk struct {
	messageID     uint64
	messageLength uint64
	first         bool
	// numberOfChunks is only known for the first chunk
	numberOfChunks uint32
	index          uint32
	data           []byte
}

// chunkX encodes the chunk index and the number of chunks of a message
func chunkX(index, numberOfChunks int) uint32 {
	if index == 0 {
		return uint32(numberOfChunks)<<1 | 1
	}
	return uint32(index) << 1
}

// WriteMessage splits payload into chunks of at most chunkSize bytes (incl. header)
// and writes them with a single vectored write
func WriteMessage(w io.Writer, messageID uint64, payload []byte, chunkSize int) error {
	maxData := chunkSize - chunkHeaderSize
	if maxData <= 0 {
		return fmt.Errorf("chunk size %d too small, must be larger than %d", chunkSize, chunkHeaderSize)
	}

	numberOfChunks := (len(payload) + maxData - 1) / maxData
	if numberOfChunks == 0 {
		numberOfChunks = 1
	}

	b := make(net.Buffers, 0, 2*numberOfChunks)
	headers := make([]byte, chunkHeaderSize*numberOfChunks)
	for i := 0; i < numberOfChunks; i++ {
		start := i * maxData
		end := start + maxData
		if end > len(payload) {
			end = len(payload)
		}

		header := headers[i*chunkHeaderSize : (i+1)*chunkHeaderSize]
		binary.LittleEndian.PutUint32(header[0:4], uint32(chunkHeaderSize+end-start))
		binary.LittleEndian.PutUint32(header[4:8], chunkX(i, numberOfChunks))
		binary.LittleEndian.PutUint64(header[8:16], messageID)
		binary.LittleEndian.PutUint64(header[16:24], uint64(len(payload)))

		b = append(b, header, payload[start:end])
	}

	_, err := b.WriteTo(w)
	return err
}

// readChunk reads a single chunk using header as scratch buffer. The header is
// validated against maxLength before the payload buffer is allocated.
func readChunk(r io.Reader, header []byte, maxLength uint64) (chunk, error) {
	if _, err := io.ReadFull(r, header[:chunkHeaderSize]); err != nil {
		return chunk{}, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	x := binary.LittleEndian.Uint32(header[4:8])
	c := chunk{
		messageID:     binary.LittleEndian.Uint64(header[8:16]),
		messageLength: binary.LittleEndian.Uint64(header[16:24]),
		first:         x&1 == 1,
	}
	if c.first {
		c.numberOfChunks = x >> 1
	} else {
		c.index = x >> 1
	}

	if length < chunkHeaderSize {
		return chunk{}, fmt.Errorf("invalid chunk length %d", length)
	}
	if c.messageLength > maxLength {
		return chunk{}, fmt.Errorf("message %d of %d bytes exceeds the maximum of %d bytes", c.messageID, c.messageLength, maxLength)
	}
	if uint64(length-chunkHeaderSize) > c.messageLength {
		return chunk{}, fmt.Errorf("chunk of %d bytes exceeds message length %d", length-chunkHeaderSize, c.messageLength)
	}

	c.data = make([]byte, length-chunkHeaderSize)
	if _, err := io.ReadFull(r, c.data); err != nil {
		return chunk{}, err
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Message Reader
// --------------------------------------------------------------------------

// partialMessage collects the chunks of a message that is not complete yet
type partialMessage struct {
	length         uint64
	numberOfChunks uint32
	chunks         map[uint32][]byte
	received       uint64
}

// MessageReader reads chunks from a stream and reassembles them into messages.
// Chunks of different messages may be interleaved.
type MessageReader struct {
	r         *bufio.Reader
	header    []byte
	partial   map[uint64]*partialMessage
	maxLength uint64
	// pending is the announced length of all incomplete messages
	pending uint64
}

// NewMessageReader creates a reader, maxLength <= 0 selects DefaultMaxMessageLength
func NewMessageReader(r io.Reader, maxLength int) *MessageReader {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageReader{
		r:         bufio.NewReader(r),
		header:    make([]byte, chunkHeaderSize),
		partial:   make(map[uint64]*partialMessage),
		maxLength: uint64(maxLength),
	}
}

// ReadMessage blocks until the next message is complete and returns its id and payload
func (m *MessageReader) ReadMessage() (uint64, []byte, error) {
	for {
		c, err := readChunk(m.r, m.header, m.maxLength)
		if err != nil {
			return 0, nil, err
		}

		// fast path: single chunk message
		if c.first && c.numberOfChunks == 1 {
			if uint64(len(c.data)) != c.messageLength {
				return 0, nil, fmt.Errorf("message %d: expected %d bytes, got %d", c.messageID, c.messageLength, len(c.data))
			}
			return c.messageID, c.data, nil
		}

		p, ok := m.partial[c.messageID]
		if !ok {
			if m.pending+c.messageLength > m.maxLength {
				return 0, nil, fmt.Errorf("message %d: %d bytes of incomplete messages exceed the maximum of %d bytes", c.messageID, m.pending+c.messageLength, m.maxLength)
			}
			m.pending += c.messageLength
			p = &partialMessage{length: c.messageLength, chunks: make(map[uint32][]byte)}
			m.partial[c.messageID] = p
		}
		if c.first {
			p.numberOfChunks = c.numberOfChunks
		}
		if _, dup := p.chunks[c.index]; dup {
			return 0, nil, fmt.Errorf("message %d: duplicate chunk %d", c.messageID, c.index)
		}
		p.chunks[c.index] = c.data
		p.received += uint64(len(c.data))
		if p.received > p.length {
			return 0, nil, fmt.Errorf("message %d: received %d bytes, expected %d", c.messageID, p.received, p.length)
		}

		if p.numberOfChunks == 0 || uint32(len(p.chunks)) < p.numberOfChunks {
			continue
		}

		delete(m.partial, c.messageID)
		m.pending -= p.length
		if p.received != p.length {
			return 0, nil, fmt.Errorf("message %d: received %d bytes, expected %d", c.messageID, p.received, p.length)
		}
		data := make([]byte, 0, p.length)
		for i := uint32(0); i < p.numberOfChunks; i++ {
			part, ok := p.chunks[i]
			if !ok {
				return 0, nil, fmt.Errorf("message %d: missing chunk %d", c.messageID, i)
			}
			data = append(data, part...)
		}
		return c.messageID, data, nil
	}
}
