// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package service

import (
	"log"
	"net"
	"time"
)

/*
	Cheap sanity pass over an upstream destination before the real dial.
	Resolution failures surface here in milliseconds instead of eating
	the whole dial timeout; actual reachability is still the dial's
	business, since a game server must only ever see one connect.
*/
func TcpProbe(addr string, expired time.Duration) bool {
	_, err := net.ResolveTCPAddr(`tcp`, addr)
	if err != nil {
		log.Println(`probe of`, addr, `failed:`, err)
		return false
	}
	return true
}

// dial with a bounded wait; the caller owns the returned conn.
func TcpDial(addr string, expired time.Duration) (net.Conn, error) {
	return net.DialTimeout(`tcp`, addr, expired)
}
