package peer

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/svmk2808/syncspirit/internal/deviceid"
	"github.com/svmk2808/syncspirit/internal/errs"
)

// Dial connects to addr, performs the TLS handshake with our self-signed
// certificate, and verifies that the peer's presented certificate hashes
// to expectedID (spec.md §4.4: "verifying that the peer's certificate
// hashes to the expected device-id. On mismatch → CLOSING with
// auth-failure").
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config, expectedID string) (*tls.Conn, error) {
	d := &net.Dialer{}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.New(errs.KindTransportUnavailable, "peer.Dial "+addr, err)
	}
	conn := tls.Client(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, errs.New(errs.KindAuthFailure, "peer.Dial tls handshake", err)
	}
	if err := verifyIdentity(conn, expectedID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Accept wraps an inbound TCP connection in TLS and returns the device id
// the peer's certificate encodes; the caller decides whether that device
// is known, ignored, or paused.
func Accept(ctx context.Context, raw net.Conn, tlsCfg *tls.Config) (*tls.Conn, string, error) {
	conn := tls.Server(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, "", errs.New(errs.KindAuthFailure, "peer.Accept tls handshake", err)
	}
	id, err := identityOf(conn)
	if err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	return conn, id, nil
}

func identityOf(conn *tls.Conn) (string, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", errs.New(errs.KindAuthFailure, "peer: no certificate presented", nil)
	}
	return deviceid.FromCert(state.PeerCertificates[0].Raw), nil
}

func verifyIdentity(conn *tls.Conn, expectedID string) error {
	id, err := identityOf(conn)
	if err != nil {
		return err
	}
	if id != expectedID {
		return errs.New(errs.KindAuthFailure, "peer: device id mismatch: "+deviceid.Short(id), nil)
	}
	return nil
}

// TLSConfig builds the both-sides config for BEP connections: mutual
// self-signed certificates, verification deferred to the device-id check
// above rather than any CA chain.
func TLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
	}
}
