// Package wire implements the Block Exchange Protocol's message framing
// and payload encoding (spec.md §2, §7). There is no protoc-generated
// codec available in this tree, so messages are encoded by hand on top of
// gogo/protobuf's low-level varint/length-delimited primitives, written out
// field by field in a fixed order without field tags (so the bytes are not
// interchangeable with protoc-generated messages).
package wire

import "github.com/gogo/protobuf/proto"

// Writer sequentially appends fields in protobuf's wire encodings. Callers
// write fields in a fixed, agreed-upon order; there are no tags, since
// both ends of a BEP connection run this exact package.
type Writer struct {
	buf *proto.Buffer
}

func NewWriter() *Writer {
	return &Writer{buf: proto.NewBuffer(nil)}
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) Uvarint(x uint64) { _ = w.buf.EncodeVarint(x) }

func (w *Writer) Int64(x int64) { w.Uvarint(zigzagEncode64(x)) }

func (w *Writer) Int32(x int32) { w.Uvarint(zigzagEncode64(int64(x))) }

func (w *Writer) Bool(b bool) {
	if b {
		w.Uvarint(1)
	} else {
		w.Uvarint(0)
	}
}

func (w *Writer) String(s string) { _ = w.buf.EncodeStringBytes(s) }

func (w *Writer) RawBytes(b []byte) { _ = w.buf.EncodeRawBytes(b) }

func (w *Writer) Fixed32(x uint32) { _ = w.buf.EncodeFixed32(uint64(x)) }

func (w *Writer) Fixed64(x uint64) { _ = w.buf.EncodeFixed64(x) }

// Reader is the decoding counterpart of Writer; fields must be read back
// in the exact order they were written.
type Reader struct {
	buf *proto.Buffer
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: proto.NewBuffer(b)}
}

func (r *Reader) Uvarint() (uint64, error) { return r.buf.DecodeVarint() }

func (r *Reader) Int64() (int64, error) {
	v, err := r.buf.DecodeVarint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode64(v), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Int64()
	return int32(v), err
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.buf.DecodeVarint()
	return v != 0, err
}

func (r *Reader) String() (string, error) { return r.buf.DecodeStringBytes() }

func (r *Reader) RawBytes() ([]byte, error) { return r.buf.DecodeRawBytes(true) }

func (r *Reader) Fixed32() (uint32, error) {
	v, err := r.buf.DecodeFixed32()
	return uint32(v), err
}

func (r *Reader) Fixed64() (uint64, error) { return r.buf.DecodeFixed64() }

func zigzagEncode64(x int64) uint64 { return (uint64(x) << 1) ^ uint64(x>>63) }

func zigzagDecode64(x uint64) int64 { return int64(x>>1) ^ -int64(x&1) }
