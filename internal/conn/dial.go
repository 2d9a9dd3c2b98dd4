package conn

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

// wrapTLS upgrades an already-dialed TCP connection to TLS using
// stdlib crypto/tls — Riak's binary-protocol port has no in-band STARTTLS
// negotiation, so this is a plain client-side handshake over the raw
// socket, configured the same way for a direct or a proxied dial.
func wrapTLS(nc net.Conn, cfg *TLSConfig) (net.Conn, error) {
	tc := tls.Client(nc, &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err := tc.Handshake(); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return tc, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

// proxyDialContext adapts proxy.Dialer (which has no context-aware
// Dial) to the ctx-cancellable interface the rest of this package
// uses; the forward *net.Dialer passed to proxy.FromURL already
// carries the connect timeout, so cancellation here only matters for
// callers that cancel ctx before the dial even starts.
func proxyDialContext(ctx context.Context, d proxy.Dialer, network, addr string) (net.Conn, error) {
	if ctxDialer, ok := d.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, network, addr)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return d.Dial(network, addr)
}
