// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"fmt"
	"hash/crc32"
	"log"
	"net"

	protocol "fivegate/protocol"
	utils "fivegate/utils"
)

/*
	In-game reconnect from the server: a 4-byte address and a port. Some
	remote servers send fewer than 6 payload bytes on purpose, betting
	that a proxy will reject what the real client happily completes from
	its stale receive buffer; we complete it the same way from the saved
	tail of the previous server frame.
*/
func (ls *LinkedSession) completeReconnectPayload(p []byte) []byte {
	if len(p) >= 6 {
		return p
	}
	buf := make([]byte, 8)
	copy(buf, ls.prevServerTail[:])
	copy(buf, p)
	return buf
}

func (ls *LinkedSession) onReconnect(frame *protocol.Frame) {
	p := ls.completeReconnectPayload(frame.Payload)
	target := formatAddrPort(p[0:4], ls.readU16(p[4:6]))
	ls.NextDestination = target
	if ls.crcPatchWanted {
		ls.remoteIPCrc = crc32.ChecksumIEEE(p[0:4])
	}

	// the client must reconnect to us, never to the remote directly.
	if ls.client.IsRealSocket() {
		if addr, ok := localClientAddr(ls.client); ok {
			copy(p[0:4], addr)
		}
	}
	ls.putU16(p[4:6], ls.LocalPort)
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

/*
	Patcher reconnect: never shown to the client. The server leg re-keys
	from scratch against the new destination; the client keeps its
	existing session with us.
*/
func (ls *LinkedSession) onPatchReconnect(frame *protocol.Frame) {
	p := ls.completeReconnectPayload(frame.Payload)
	target := formatAddrPort(p[0:4], ls.readU16(p[4:6]))
	ls.NextDestination = target
	if ls.crcPatchWanted {
		ls.remoteIPCrc = crc32.ChecksumIEEE(p[0:4])
	}
	if ls.server.Alive() {
		ls.server.CloseAll()
	}
	ls.serverOut = nil
	if err := ls.connectUpstream(); err != nil {
		log.Println(`patch reconnect failed:`, err)
		ls.disconnect()
	}
}

// synthesized toward the client during a lobby divert.
func (ls *LinkedSession) sendSelfReconnect(port uint16) {
	p := make([]byte, 8)
	if ls.client.IsRealSocket() {
		if addr, ok := localClientAddr(ls.client); ok {
			copy(p[0:4], addr)
		}
	}
	ls.putU16(p[4:6], port)
	ls.WriteClient(protocol.CmdReconnect, 0, p)
}

func formatAddrPort(addr []byte, port uint16) string {
	return fmt.Sprintf(`%d.%d.%d.%d:%d`, addr[0], addr[1], addr[2], addr[3], port)
}

func splitDestination(dest string) ([]byte, error) {
	addr, _, _, err := utils.SplitAddrSlicePortUint16(dest)
	if err != nil {
		return make([]byte, 4), err
	}
	if v4 := net.IP(addr).To4(); v4 != nil {
		return v4, nil
	}
	return make([]byte, 4), nil
}

func portOf(dest string) uint16 {
	_, port, _, err := utils.SplitAddrSlicePortUint16(dest)
	if err != nil {
		return 0
	}
	return port
}
