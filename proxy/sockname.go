// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import "net"

func cachedLocalAddr(tcp *net.TCPConn) ([]byte, bool) {
	addr, ok := tcp.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, false
	}
	if v4 := addr.IP.To4(); v4 != nil {
		return v4, true
	}
	return nil, false
}
