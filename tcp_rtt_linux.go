//go:build linux

package main

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// kernelRTT reads the smoothed RTT the kernel keeps for a TCP connection.
// Zero means unknown, e.g. through a SOCKS proxy the value is the proxy hop.
func kernelRTT(conn net.Conn) time.Duration {
	tc := findTCPConn(conn)
	if tc == nil {
		return 0
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0
	}
	var rttMicros uint32
	ctlErr := raw.Control(func(fd uintptr) {
		info, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
		if err == nil {
			rttMicros = info.Rtt
		}
	})
	if ctlErr != nil {
		return 0
	}
	return time.Duration(rttMicros) * time.Microsecond
}
