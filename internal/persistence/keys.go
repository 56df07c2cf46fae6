// Package persistence is the badger-backed actor that durably stores the
// cluster model and replays it on startup (spec.md §4.1, §4.3). It
// consumes the diff stream like any other observer and, on request,
// produces the load-cluster diff that reconstructs a Cluster from what it
// has stored.
package persistence

import "encoding/binary"

// Entity-tag key prefixes. A single leading byte keeps prefix scans cheap
// and keeps every key family trivially distinguishable without a schema
// lookup.
const (
	prefixMisc          byte = 0
	prefixDevice        byte = 1
	prefixFolder        byte = 2
	prefixFolderInfo    byte = 3
	prefixFileInfo      byte = 4
	prefixBlockInfo     byte = 5
	prefixIgnoredDevice byte = 6
	prefixIgnoredFolder byte = 7
	prefixUnknownFolder byte = 8
)

// dbVersionKey holds the u32_be schema version migrations are keyed
// against (spec.md §6 "{misc, db_version}").
var dbVersionKey = append([]byte{prefixMisc}, "db_version"...)

// sequenceKey holds the monotone 64-bit counter NextSequence hands out;
// folder-info and file-info key bodies are allocated from it (spec.md
// §4.3 "a 64-bit key sequence allocated from the store's own sequence
// generator").
var sequenceKey = []byte{prefixMisc, 's'}

func deviceKey(id string) []byte {
	return append([]byte{prefixDevice}, id...)
}

func folderKey(id string) []byte {
	return append([]byte{prefixFolder}, id...)
}

// folderInfoKey and fileInfoKey bodies are opaque store-allocated
// sequences, not composites of the logical identity: the identity lives
// in the row value, and the Store keeps the identity→sequence mapping
// (see Store.folderInfoKeyFor / fileInfoKeyFor).
func folderInfoKey(seq uint64) []byte {
	return seqKey(prefixFolderInfo, seq)
}

func fileInfoKey(seq uint64) []byte {
	return seqKey(prefixFileInfo, seq)
}

func seqKey(prefix byte, seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

// keySeqOf recovers the allocated sequence from a folder-info or
// file-info key during the load scan.
func keySeqOf(k []byte) uint64 {
	if len(k) != 9 {
		return 0
	}
	return binary.BigEndian.Uint64(k[1:])
}

func blockInfoKey(h [32]byte) []byte {
	return append([]byte{prefixBlockInfo}, h[:]...)
}

func ignoredDeviceKey(id string) []byte {
	return append([]byte{prefixIgnoredDevice}, id...)
}

func ignoredFolderKey(id string) []byte {
	return append([]byte{prefixIgnoredFolder}, id...)
}

func unknownFolderKey(folderID, deviceID string) []byte {
	k := []byte{prefixUnknownFolder}
	k = appendLenPrefixed(k, folderID)
	k = appendLenPrefixed(k, deviceID)
	return k
}

// appendLenPrefixed appends a single-byte length followed by s, enough to
// keep the short fixed-charset ids of an unknown-folder key unambiguous
// inside a composite without a full varint codec.
func appendLenPrefixed(k []byte, s string) []byte {
	k = append(k, byte(len(s)))
	return append(k, s...)
}
