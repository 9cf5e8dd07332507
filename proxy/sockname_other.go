//go:build !linux
// +build !linux

// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"net"

	socket "fivegate/socket"
)

func localClientAddr(s *socket.Socket) ([]byte, bool) {
	tcp, ok := s.Conn.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	return cachedLocalAddr(tcp)
}
