// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"log"

	protocol "fivegate/protocol"
)

/*
	Outgoing guild-card search: the client searches for the serial it
	knows; the remote only understands its own assignment.
*/
func (ls *LinkedSession) onGuildCardSearch(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) >= 8 {
		ls.unmaskLocalID(p[0:4]) // searcher
		ls.unmaskLocalID(p[4:8]) // target
	}
	ls.WriteServer(frame.Opcode, frame.Flag, p)
}

func (ls *LinkedSession) onMailToServer(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) >= 8 {
		ls.unmaskLocalID(p[0:4])
		ls.unmaskLocalID(p[4:8])
	}
	ls.WriteServer(frame.Opcode, frame.Flag, p)
}

/*
	Chat toward the server. Text starting with `$` (or the color-escaped
	`\t<x>$` form) addresses the proxy's own command shell and must never
	reach the remote. The `&C<n>` shorthand expands to the client's real
	color escape on the way through; the two behaviors toggle separately.
*/
func (ls *LinkedSession) onChatToServer(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) > 8 {
		text := p[8:]
		if ls.Feature.SuppressCommands &&
			(text[0] == '$' || (text[0] == '\t' && len(text) > 2 && text[2] == '$')) {
			log.Println(`warning: chat message looks like a shell command; dropping`)
			return
		}
		if ls.Feature.ChatFilter {
			expandColorEscapes(text)
		}
	}
	ls.WriteServer(frame.Opcode, frame.Flag, p)
}

func expandColorEscapes(text []byte) {
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '&' && (text[i+1] == 'C' || text[i+1] == 'c') {
			text[i], text[i+1] = '\t', 'C'
		}
	}
}

// later-console full player data from the server.
func (ls *LinkedSession) onPlayerData(frame *protocol.Frame) {
	if ls.Feature.SaveFiles {
		ls.dumpBlob(`player`, `bin`, frame.Payload)
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

/*
	Save checkpoint from the server: always acknowledged with flag 1.
	A zero flag trips the client's cheat protection and wipes data, so
	the original value never passes through.
*/
func (ls *LinkedSession) onSaveCheckpoint(frame *protocol.Frame) {
	ls.WriteClient(protocol.CmdSaveCheckpoint, 1, nil)
}

/*
	Lobby or block change from a licensed client is never forwarded:
	the remote would move the session away from under us. Instead the
	client is walked home: every foreign roster entry leaves, the proxy's
	own config breadcrumb is restored, a branded bubble explains what
	happened, and a reconnect points back at our login port for this
	dialect.
*/
func (ls *LinkedSession) onLobbyDivert(frame *protocol.Frame) {
	if ls.License == nil {
		ls.WriteServer(frame.Opcode, frame.Flag, frame.Payload)
		return
	}
	for slot := 0; slot < rosterLobbySlots; slot++ {
		if slot == int(ls.SelfSlot) || ls.Roster[slot].ID == 0 {
			continue
		}
		ls.WriteClient(protocol.CmdLobbyLeave, uint32(slot), []byte{byte(slot), 0, 0, 0})
	}

	destAddr, _ := splitDestination(ls.NextDestination)
	cfgPayload := make([]byte, 4+cfgBlobLen)
	ls.putU32(cfgPayload[0:4], ls.License.SerialNumber)
	copy(cfgPayload[4:], buildCfgBlob(destAddr, portOf(ls.NextDestination), ls.RemoteGuildCard))
	ls.WriteClient(protocol.CmdClientConfig, 0, cfgPayload)

	ls.sendTextBubble(`FiveGate proxy: routing you home.`)

	port, ok := ls.reg.PortDir[ls.Dialect.LoginPortName()]
	if !ok {
		log.Println(`warning: no directory entry for`, ls.Dialect.LoginPortName())
		return
	}
	ls.sendSelfReconnect(port)
}

func (ls *LinkedSession) sendTextBubble(text string) {
	payload := make([]byte, 8+len(text)+1)
	if ls.License != nil {
		ls.putU32(payload[0:4], ls.License.SerialNumber)
	}
	copy(payload[8:], text)
	ls.WriteClient(protocol.CmdChat, 0, payload)
}
