package wire

import (
	"encoding/binary"
	"io"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// maxFrameSize bounds a single payload so a misbehaving or malicious peer
// cannot force an unbounded allocation (spec.md §6 "Resource limits").
const maxFrameSize = 64 << 20

// Conn frames BEP messages over any byte stream (a *tls.Conn in
// production, an in-memory pipe in tests). Framing is
// u16 header_len | Header | u32 payload_len | Payload, per spec.md §7.
type Conn struct {
	rw   io.ReadWriter
	pref model.Compression
}

func NewConn(rw io.ReadWriter, pref model.Compression) *Conn {
	return &Conn{rw: rw, pref: pref}
}

// Send frames and writes msg, compressing the payload first if the
// device-level preference and payload size both call for it.
func (c *Conn) Send(msg Message) error {
	payload := msg.Marshal()
	compression, payload := maybeCompress(payload, compressionPrefOf(c.pref), msg.messageType())

	header := Header{Type: msg.messageType(), Compression: compression}
	headerBytes := header.encode()

	if err := binary.Write(c.rw, binary.BigEndian, uint16(len(headerBytes))); err != nil {
		return errs.New(errs.KindIOError, "conn.send header_len", err)
	}
	if _, err := c.rw.Write(headerBytes); err != nil {
		return errs.New(errs.KindIOError, "conn.send header", err)
	}
	if err := binary.Write(c.rw, binary.BigEndian, uint32(len(payload))); err != nil {
		return errs.New(errs.KindIOError, "conn.send payload_len", err)
	}
	if _, err := c.rw.Write(payload); err != nil {
		return errs.New(errs.KindIOError, "conn.send payload", err)
	}
	return nil
}

// Recv reads and decodes one frame, returning its Header and decompressed
// payload. Callers dispatch on Header.Type to pick the right Unmarshal*.
func (c *Conn) Recv() (Header, []byte, error) {
	var headerLen uint16
	if err := binary.Read(c.rw, binary.BigEndian, &headerLen); err != nil {
		return Header{}, nil, errs.New(errs.KindIOError, "conn.recv header_len", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(c.rw, headerBytes); err != nil {
		return Header{}, nil, errs.New(errs.KindIOError, "conn.recv header", err)
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return Header{}, nil, errs.New(errs.KindDecodeError, "conn.recv header decode", err)
	}

	var payloadLen uint32
	if err := binary.Read(c.rw, binary.BigEndian, &payloadLen); err != nil {
		return Header{}, nil, errs.New(errs.KindIOError, "conn.recv payload_len", err)
	}
	if payloadLen > maxFrameSize {
		return Header{}, nil, errs.New(errs.KindProtocolViolation, "conn.recv frame too large", nil)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return Header{}, nil, errs.New(errs.KindIOError, "conn.recv payload", err)
	}

	decoded, err := decompress(header.Compression, payload)
	if err != nil {
		return Header{}, nil, errs.New(errs.KindDecodeError, "conn.recv decompress", err)
	}
	return header, decoded, nil
}

func compressionPrefOf(c model.Compression) int {
	switch c {
	case model.CompressionAlways:
		return compressionAlways
	case model.CompressionNever:
		return compressionNever
	default:
		return compressionMetadata
	}
}
