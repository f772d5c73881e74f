package main

import (
	"errors"
	"net"
)

func disableTCPNagle(conn net.Conn) {
	if tcp := findTCPConn(conn); tcp != nil {
		_ = tcp.SetNoDelay(true)
	}
}

// findTCPConn unwraps TLS and similar wrappers down to the TCP socket.
func findTCPConn(conn net.Conn) *net.TCPConn {
	type netConnGetter interface {
		NetConn() net.Conn
	}

	for i := 0; i < 4 && conn != nil; i++ {
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			return tcpConn
		}
		getter, ok := conn.(netConnGetter)
		if !ok {
			return nil
		}
		next := getter.NetConn()
		if next == nil || next == conn {
			return nil
		}
		conn = next
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
