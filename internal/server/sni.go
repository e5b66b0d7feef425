package server

import (
	"bytes"
	"crypto/tls"
	"errors"
	"net"

	"github.com/tcplb/tcplb/internal/domain"
)

// errSNICaptured deliberately aborts the handshake started by sniDstName
// once the ClientHello has been parsed -- this server never terminates TLS
// for SNI-routed destinations, it only routes by the advertised name and
// then streams the raw, still-encrypted bytes upstream.
var errSNICaptured = errors.New("server: sni captured")

// peekConn tees every byte Read from the wrapped connection into buf, so
// the bytes tls.Server consumes while parsing the ClientHello can be
// replayed to the real upstream handshake afterwards. Write is rejected:
// the probing handshake must never respond to the client.
type peekConn struct {
	net.Conn
	buf bytes.Buffer
}

func (p *peekConn) Read(b []byte) (int, error) {
	n, err := p.Conn.Read(b)
	if n > 0 {
		p.buf.Write(b[:n])
	}
	return n, err
}

func (p *peekConn) Write([]byte) (int, error) {
	return 0, errors.New("server: unexpected write during sni capture")
}

// prefixConn replays a buffered prefix before falling back to the
// underlying connection's own Read, so bytes consumed while probing the
// ClientHello are not lost to the real handshake that follows.
type prefixConn struct {
	net.Conn
	prefix *bytes.Reader
}

func (c *prefixConn) Read(b []byte) (int, error) {
	if c.prefix.Len() > 0 {
		return c.prefix.Read(b)
	}
	return c.Conn.Read(b)
}

// sniDstName extracts the TLS ClientHello's ServerName from client without
// terminating the handshake: tls.Server's GetConfigForClient callback fires
// after the ClientHello is parsed but before any response is sent, and
// returning an error there aborts cleanly. It returns a replacement
// net.Conn that replays the bytes consumed while probing, so the caller can
// keep using it as if no bytes had been read.
func sniDstName(client net.Conn) (net.Conn, domain.Path, bool) {
	pc := &peekConn{Conn: client}

	var sni string
	cfg := &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			sni = hello.ServerName
			return nil, errSNICaptured
		},
	}

	_ = tls.Server(pc, cfg).Handshake()

	replacement := &prefixConn{Conn: client, prefix: bytes.NewReader(pc.buf.Bytes())}
	if sni == "" {
		return replacement, "", false
	}
	return replacement, domain.Path(sni), true
}
