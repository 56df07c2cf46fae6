package wire

import "github.com/klauspost/compress/s2"

// compressThreshold is the minimum encoded payload size before a message
// gets s2-compressed, mirroring BEP's "don't bother for tiny messages"
// rule (spec.md §7, Non-goals: no rolling-hash delta transfer, but plain
// stream compression is in scope as a device-level preference).
const compressThreshold = 128

func maybeCompress(payload []byte, pref int, t MessageType) (CompressionType, []byte) {
	if pref == compressionNever || len(payload) < compressThreshold {
		return CompressionNone, payload
	}
	if pref == compressionMetadata && !isMetadata(t) {
		return CompressionNone, payload
	}
	return CompressionS2, s2.Encode(nil, payload)
}

// isMetadata reports whether a message type counts as metadata for the
// Metadata compression preference: index and cluster traffic compresses
// well and is not latency-critical, block data is left alone.
func isMetadata(t MessageType) bool {
	switch t {
	case MsgIndex, MsgIndexUpdate, MsgClusterConfig:
		return true
	default:
		return false
	}
}

func decompress(c CompressionType, payload []byte) ([]byte, error) {
	if c == CompressionNone {
		return payload, nil
	}
	return s2.Decode(nil, payload)
}

// pref values, kept local to avoid an import of internal/model here (the
// wire package should stay free of cluster semantics); Conn.Send maps
// model.Compression into one of these before calling maybeCompress.
const (
	compressionMetadata = iota
	compressionNever
	compressionAlways
)
