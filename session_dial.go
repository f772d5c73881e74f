package main

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/btcsuite/go-socks/socks"
)

// dialFunc opens the raw transport. Tests swap in net.Pipe or a loopback
// listener.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func newDialFunc(cfg Config) dialFunc {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if cfg.ProxyAddr != "" {
		proxy := &socks.Proxy{
			Addr:         cfg.ProxyAddr,
			Username:     cfg.ProxyUser,
			Password:     cfg.ProxyPassword,
			TorIsolation: cfg.TorIsolation,
		}
		return func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := timeout
			if deadline, ok := ctx.Deadline(); ok {
				d = min(d, time.Until(deadline))
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return proxy.DialTimeout(network, addr, d)
		}
	}
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext
}

// dialEndpoint connects to ep, wrapping the connection in TLS when asked.
// Every failure comes back as a ConnectError.
func dialEndpoint(ctx context.Context, dial dialFunc, ep Endpoint, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, &ConnectError{Endpoint: ep.String(), Err: err}
	}
	disableTCPNagle(conn)
	if !ep.UseTLS {
		return conn, nil
	}
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         ep.Host,
		InsecureSkipVerify: ep.TLSInsecure,
		MinVersion:         tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Endpoint: ep.String(), Err: err}
	}
	return tlsConn, nil
}
