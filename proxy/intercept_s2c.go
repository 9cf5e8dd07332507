// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	protocol "fivegate/protocol"
	utils "fivegate/utils"
)

const (
	rosterHeadLen  = 8
	rosterEntryLen = 20 // u32 identity + 16 byte display name
)

/*
	Client-config update from the server. The guild card the remote
	assigned is captured here and never shown to a licensed client; the
	config bytes are snapshotted for the next impersonated login. Some
	servers send fewer bytes than the record; the real client copies a
	fixed 0x20 regardless, reading stale buffer bytes, so a short record
	is padded under the previous server frame's saved tail bytes; any
	bytes beyond that tail stay zero.
*/
func (ls *LinkedSession) onClientConfigUpdate(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) < 4+cfgBlobLen {
		ext := make([]byte, 4+cfgBlobLen)
		copy(ext, ls.prevServerTail[:])
		copy(ext, p)
		p = ext
	}
	first := ls.RemoteGuildCard == 0
	ls.RemoteGuildCard = ls.readU32(p[0:4])
	ls.ClientConfig = append([]byte{}, p[4:4+cfgBlobLen]...)
	if ls.License != nil {
		ls.putU32(p[0:4], ls.License.SerialNumber)
	}
	if first {
		// mimic the one-time checksum answer of the real client so the
		// remote's session state stays plausible.
		sum := make([]byte, 6)
		utils.SetRandByte(&sum)
		ls.WriteServer(protocol.CmdChecksum, 0, append(sum, 0, 0))
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

func (ls *LinkedSession) onChatToClient(frame *protocol.Frame) {
	if len(frame.Payload) >= 4 {
		ls.maskRemoteID(frame.Payload[0:4])
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

func (ls *LinkedSession) onGuildCardResult(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) >= 8 {
		ls.maskRemoteID(p[0:4]) // searcher
		ls.maskRemoteID(p[4:8]) // result
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

func (ls *LinkedSession) onMailToClient(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) >= 8 {
		ls.maskRemoteID(p[0:4]) // from
		ls.maskRemoteID(p[4:8]) // to
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

// count-flag array: flag-many entries of {identity u32, flags u32}.
func (ls *LinkedSession) onCountFlags(frame *protocol.Frame) {
	p := frame.Payload
	for i := uint32(0); i < frame.Flag && int(i+1)*8 <= len(p); i++ {
		ls.maskRemoteID(p[i*8 : i*8+4])
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

// choice search result; some servers append trailing garbage, which is
// forwarded untouched rather than rejected.
func (ls *LinkedSession) onChoiceResult(frame *protocol.Frame) {
	p := frame.Payload
	for i := uint32(0); i < frame.Flag && int(i+1)*rosterEntryLen <= len(p); i++ {
		ls.maskRemoteID(p[i*rosterEntryLen : i*rosterEntryLen+4])
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

// the console lobby-game list always carries four entries.
func (ls *LinkedSession) onLobbyGameList(frame *protocol.Frame) {
	p := frame.Payload
	for i := 0; i < 4 && (i+1)*0x10 <= len(p); i++ {
		ls.maskRemoteID(p[i*0x10 : i*0x10+4])
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

/*
	Roster-bearing joins. The full array (12 slots in lobbies, 4 in
	games) replaces the session roster wholesale; the client-facing copy
	is masked afterwards, and the lobby cosmetics honor any overrides the
	operator pinned.
*/
func (ls *LinkedSession) onLobbyJoin(frame *protocol.Frame) {
	ls.rosterReplace(frame, rosterLobbySlots, false)
}

func (ls *LinkedSession) onGameJoin(frame *protocol.Frame) {
	ls.rosterReplace(frame, rosterGameSlots, true)
}

func (ls *LinkedSession) rosterReplace(frame *protocol.Frame, slots int, game bool) {
	p := frame.Payload
	if len(p) < rosterHeadLen {
		ls.WriteClient(frame.Opcode, frame.Flag, p)
		return
	}
	ls.SelfSlot = p[0]
	ls.InGame = game
	ls.Loading = game
	if ls.Over.LobbyNumber >= 0 {
		p[2] = byte(ls.Over.LobbyNumber)
	}
	if ls.Over.LobbyEvent >= 0 {
		p[3] = byte(ls.Over.LobbyEvent)
	}
	if ls.Over.SectionID >= 0 {
		p[4] = byte(ls.Over.SectionID)
	}
	for slot := 0; slot < slots; slot++ {
		off := rosterHeadLen + slot*rosterEntryLen
		if off+rosterEntryLen > len(p) {
			break
		}
		ls.Roster[slot] = rosterEntry{
			ID:   ls.readU32(p[off : off+4]),
			Name: trimCStr(p[off+4 : off+rosterEntryLen]),
		}
		ls.maskRemoteID(p[off : off+4])
	}
	for slot := slots; slot < rosterLobbySlots; slot++ {
		ls.Roster[slot] = rosterEntry{}
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

func (ls *LinkedSession) onLobbyAdd(frame *protocol.Frame) {
	ls.rosterAdd(frame)
}

func (ls *LinkedSession) onGameAdd(frame *protocol.Frame) {
	ls.rosterAdd(frame)
}

func (ls *LinkedSession) rosterAdd(frame *protocol.Frame) {
	p := frame.Payload
	if len(p) >= 4+rosterEntryLen {
		slot := int(p[0])
		if slot < rosterLobbySlots {
			ls.Roster[slot] = rosterEntry{
				ID:   ls.readU32(p[4:8]),
				Name: trimCStr(p[8 : 4+rosterEntryLen]),
			}
		}
		ls.maskRemoteID(p[4:8])
	}
	ls.WriteClient(frame.Opcode, frame.Flag, p)
}

func (ls *LinkedSession) onRosterLeave(frame *protocol.Frame) {
	slot := int(frame.Flag)
	if len(frame.Payload) > 0 {
		slot = int(frame.Payload[0])
	}
	if slot >= 0 && slot < rosterLobbySlots {
		ls.Roster[slot] = rosterEntry{}
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

func (ls *LinkedSession) onReLoginPrompt(frame *protocol.Frame) {
	if ls.License != nil {
		ls.sendConsoleLogin()
		return
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}
