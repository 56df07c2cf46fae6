package wire

// MessageType identifies the payload that follows a Header on the wire
// (spec.md §2 "BEP message types").
type MessageType int

const (
	MsgHello MessageType = iota
	MsgClusterConfig
	MsgIndex
	MsgIndexUpdate
	MsgRequest
	MsgResponse
	MsgDownloadProgress
	MsgPing
	MsgClose
)

// CompressionType mirrors model.Compression on the wire: whether the
// payload that follows this header is s2-compressed (SPEC_FULL.md §3
// substitutes klauspost/compress's s2 codec for BEP's original lz4, see
// compress.go).
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionS2
)

// Header precedes every message payload (spec.md §7 "Framing").
type Header struct {
	Type        MessageType
	Compression CompressionType
}

func (h Header) encode() []byte {
	w := NewWriter()
	w.Uvarint(uint64(h.Type))
	w.Uvarint(uint64(h.Compression))
	return w.Bytes()
}

func decodeHeader(b []byte) (Header, error) {
	r := NewReader(b)
	t, err := r.Uvarint()
	if err != nil {
		return Header{}, err
	}
	c, err := r.Uvarint()
	if err != nil {
		return Header{}, err
	}
	return Header{Type: MessageType(t), Compression: CompressionType(c)}, nil
}
