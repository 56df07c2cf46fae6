package model

import "github.com/cespare/xxhash/v2"

// Compression is a device-level preference negotiated during ClusterConfig
// exchange (spec.md §4.4 "Compression").
type Compression int

const (
	CompressionMetadata Compression = iota
	CompressionNever
	CompressionAlways
)

// Device is a peer (or the local node itself), identified by the textual
// encoding of sha256(DER(its self-signed certificate)) (spec.md §3, §6).
type Device struct {
	ID          string
	Name        string
	CertName    string
	Compression Compression

	// Introducer devices have their ClusterConfig device lists trusted to
	// auto-create unknown devices sharing a mutual folder (SPEC_FULL.md §9).
	Introducer bool
	AutoAccept bool
	Paused     bool

	StaticAddrs   []string
	LastSeenAddrs []string
}

// ShortID returns the 64-bit value used to key this device's entries in a
// vector clock (spec.md GLOSSARY "Version"). BEP derives this from the raw
// certificate hash bytes; we derive it from the textual device id with
// xxhash, which is stable and collision-resistant enough for the small
// device counts a folder realistically shares with.
func (d *Device) ShortID() uint64 {
	return xxhash.Sum64String(d.ID)
}

// Clone returns a deep-enough copy for use as an immutable snapshot inside a
// diff; slices are copied so later in-place mutation of the original cannot
// leak into an already-applied diff.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.StaticAddrs = append([]string(nil), d.StaticAddrs...)
	cp.LastSeenAddrs = append([]string(nil), d.LastSeenAddrs...)
	return &cp
}
