// Package deviceid encodes and validates device identities: a device id is
// the textual encoding of sha256(DER(certificate)) (spec.md §3, §6). The
// textual form is base32 (no padding) of the 32 hash bytes, one Luhn
// mod-32 check character appended per 13-character group, rendered as
// eight dash-separated groups of seven.
package deviceid

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"github.com/svmk2808/syncspirit/internal/errs"
)

const luhnAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// FromCert derives the device id from a certificate's raw DER bytes.
func FromCert(der []byte) string {
	return FromHash(sha256.Sum256(der))
}

// FromHash encodes an already-computed certificate hash.
func FromHash(h [32]byte) string {
	raw := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(h[:])
	var b strings.Builder
	for i := 0; i < len(raw); i += 13 {
		group := raw[i : i+13]
		b.WriteString(group)
		b.WriteByte(luhnChar(group))
	}
	checked := b.String()
	var out strings.Builder
	for i := 0; i < len(checked); i += 7 {
		if i > 0 {
			out.WriteByte('-')
		}
		out.WriteString(checked[i : i+7])
	}
	return out.String()
}

// Parse validates a textual device id and returns the certificate hash it
// encodes.
func Parse(id string) ([32]byte, error) {
	var h [32]byte
	clean := strings.ReplaceAll(strings.ToUpper(id), "-", "")
	if len(clean) != 56 {
		return h, errs.New(errs.KindAuthFailure, "device id: wrong length", nil)
	}
	var raw strings.Builder
	for i := 0; i < len(clean); i += 14 {
		group := clean[i : i+13]
		if clean[i+13] != luhnChar(group) {
			return h, errs.New(errs.KindAuthFailure, "device id: check character mismatch", nil)
		}
		raw.WriteString(group)
	}
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(raw.String())
	if err != nil || len(decoded) != 32 {
		return h, errs.New(errs.KindAuthFailure, "device id: not base32", err)
	}
	copy(h[:], decoded)
	return h, nil
}

// Short returns the first dash-group of a device id, the form log lines
// and actor names use.
func Short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// luhnChar computes the Luhn mod-N check character over the base32
// alphabet for one 13-character group.
func luhnChar(group string) byte {
	factor := 1
	sum := 0
	n := len(luhnAlphabet)
	for i := 0; i < len(group); i++ {
		code := strings.IndexByte(luhnAlphabet, group[i])
		if code < 0 {
			code = 0
		}
		addend := factor * code
		if factor == 2 {
			factor = 1
		} else {
			factor = 2
		}
		addend = addend/n + addend%n
		sum += addend
	}
	remainder := sum % n
	return luhnAlphabet[(n-remainder)%n]
}
