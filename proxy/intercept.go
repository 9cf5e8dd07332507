// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	protocol "fivegate/protocol"
)

/*
	Two interception tables per dialect, one per direction, indexed by
	opcode. A nil entry forwards unchanged; a named handler may mutate in
	place, drop, forward modified, or synthesize frames toward either
	endpoint. Handlers run with ls.mu held and never yield; whatever they
	enqueue lands on the wire before the pump touches the next frame.
*/

type handlerFn func(ls *LinkedSession, frame *protocol.Frame)

type interceptTable [256]handlerFn

var (
	s2cTables [5]*interceptTable
	c2sTables [5]*interceptTable
)

func init() {
	for _, d := range []protocol.Dialect{
		protocol.DialectDC, protocol.DialectPC, protocol.DialectPatch,
		protocol.DialectGC, protocol.DialectBB,
	} {
		s2cTables[d] = buildS2CTable(d)
		c2sTables[d] = buildC2STable(d)
	}
}

func buildS2CTable(d protocol.Dialect) *interceptTable {
	t := &interceptTable{}
	if d == protocol.DialectPatch {
		// the patcher speaks a tiny catalog; only its reconnect and file
		// push commands matter.
		t[protocol.CmdPatchReconnect] = (*LinkedSession).onPatchReconnect
		t[protocol.CmdFileChunk] = (*LinkedSession).onFileChunk
		return t
	}
	t[protocol.CmdClientConfig] = (*LinkedSession).onClientConfigUpdate
	t[protocol.CmdChat] = (*LinkedSession).onChatToClient
	t[protocol.CmdSaveCheckpoint] = (*LinkedSession).onSaveCheckpoint
	t[protocol.CmdGuildCardResult] = (*LinkedSession).onGuildCardResult
	t[protocol.CmdMail] = (*LinkedSession).onMailToClient
	t[protocol.CmdCountFlags] = (*LinkedSession).onCountFlags
	t[protocol.CmdChoiceResult] = (*LinkedSession).onChoiceResult
	t[protocol.CmdGameJoin] = (*LinkedSession).onGameJoin
	t[protocol.CmdGameAdd] = (*LinkedSession).onGameAdd
	t[protocol.CmdGameLeave] = (*LinkedSession).onRosterLeave
	t[protocol.CmdLobbyJoin] = (*LinkedSession).onLobbyJoin
	t[protocol.CmdLobbyAdd] = (*LinkedSession).onLobbyAdd
	t[protocol.CmdLobbyLeave] = (*LinkedSession).onRosterLeave
	t[protocol.CmdReconnect] = (*LinkedSession).onReconnect
	t[protocol.CmdFileOpen] = (*LinkedSession).onFileOpen
	t[protocol.CmdDLFileOpen] = (*LinkedSession).onFileOpen
	t[protocol.CmdFileChunk] = (*LinkedSession).onFileChunk
	t[protocol.CmdDLFileChunk] = (*LinkedSession).onFileChunk
	t[protocol.CmdCardUpdate] = (*LinkedSession).onCardUpdate
	for _, op := range []uint16{
		protocol.CmdGame, protocol.CmdGamePrivate, protocol.CmdGameWide,
		protocol.CmdGameWidePrivate, protocol.CmdGameEp3, protocol.CmdGameEp3Private,
	} {
		t[op] = (*LinkedSession).onSubcommandToClient
	}
	if d == protocol.DialectGC {
		t[protocol.CmdLobbyGameList] = (*LinkedSession).onLobbyGameList
		t[protocol.CmdExecCode] = (*LinkedSession).onExecCode
		t[protocol.CmdReLoginPrompt] = (*LinkedSession).onReLoginPrompt
	}
	if d == protocol.DialectBB {
		t[protocol.CmdPlayerDataBB] = (*LinkedSession).onPlayerData
	}
	return t
}

func buildC2STable(d protocol.Dialect) *interceptTable {
	t := &interceptTable{}
	if d == protocol.DialectPatch {
		return t
	}
	t[protocol.CmdChat] = (*LinkedSession).onChatToServer
	t[protocol.CmdGuildCardSearch] = (*LinkedSession).onGuildCardSearch
	t[protocol.CmdMail] = (*LinkedSession).onMailToServer
	t[protocol.CmdLobbyChange] = (*LinkedSession).onLobbyDivert
	t[protocol.CmdBlockChange] = (*LinkedSession).onLobbyDivert
	for _, op := range []uint16{
		protocol.CmdGame, protocol.CmdGamePrivate, protocol.CmdGameWide,
		protocol.CmdGameWidePrivate, protocol.CmdGameEp3, protocol.CmdGameEp3Private,
	} {
		t[op] = (*LinkedSession).onSubcommandToServer
	}
	return t
}

// caller holds ls.mu.
func (ls *LinkedSession) dispatchS2C(frame *protocol.Frame) {
	if frame.Opcode <= 0xFF {
		if h := s2cTables[ls.Dialect][frame.Opcode]; h != nil {
			h(ls, frame)
			return
		}
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

// caller holds ls.mu.
func (ls *LinkedSession) dispatchC2S(frame *protocol.Frame) {
	if frame.Opcode <= 0xFF {
		if h := c2sTables[ls.Dialect][frame.Opcode]; h != nil {
			h(ls, frame)
			return
		}
	}
	ls.WriteServer(frame.Opcode, frame.Flag, frame.Payload)
}

/*
	Identity rewrite helper. The client must only ever see its own serial
	where the remote session id would leak; symmetric translation happens
	on the way out.
*/
func (ls *LinkedSession) maskRemoteID(b []byte) {
	if ls.License == nil || len(b) < 4 {
		return
	}
	if ls.readU32(b) == ls.RemoteGuildCard {
		ls.putU32(b, ls.License.SerialNumber)
	}
}

func (ls *LinkedSession) unmaskLocalID(b []byte) {
	if ls.License == nil || len(b) < 4 {
		return
	}
	if ls.readU32(b) == ls.License.SerialNumber {
		ls.putU32(b, ls.RemoteGuildCard)
	}
}
