//go:build linux
// +build linux

// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"net"

	socket "fivegate/socket"

	"golang.org/x/sys/unix"
)

/*
	The address the client actually dialed, straight from getsockname on
	the accepted socket. net.Conn caches its LocalAddr at accept time; on
	multi-homed hosts the kernel's answer is the one the client can
	reach, so prefer it and fall back to the cached value.
*/
func localClientAddr(s *socket.Socket) ([]byte, bool) {
	tcp, ok := s.Conn.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	raw, err := tcp.SyscallConn()
	if err == nil {
		var res []byte
		raw.Control(func(fd uintptr) {
			sa, err := unix.Getsockname(int(fd))
			if err != nil {
				return
			}
			if sa4, ok := sa.(*unix.SockaddrInet4); ok {
				res = append([]byte{}, sa4.Addr[:]...)
			}
		})
		if len(res) == 4 {
			return res, true
		}
	}
	return cachedLocalAddr(tcp)
}
