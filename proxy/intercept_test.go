// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"bytes"
	"testing"

	auth "fivegate/auth"
	protocol "fivegate/protocol"
	utils "fivegate/utils"
)

const (
	testSerial   = uint32(0x12345678)
	testRemoteGC = uint32(7777777)
)

func licensedGC(reg *Registry) (*LinkedSession, *testEnds) {
	lic := &auth.License{SerialNumber: testSerial, AccessKey: `key123`}
	return newTestSession(protocol.DialectGC, lic, reg)
}

/*
	Desktop/console passthrough with a license: the client only ever sees
	its own serial, the server only ever its own assignment.
*/
func TestIdentityMaskingOnConfigUpdate(t *testing.T) {
	ls, ends := licensedGC(nil)
	payload := make([]byte, 4+cfgBlobLen)
	ls.putU32(payload[0:4], testRemoteGC)
	payload[4] = 0x77 // config byte to snapshot

	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdClientConfig, Payload: payload})

	if ls.RemoteGuildCard != testRemoteGC {
		t.Error(`remote assignment was not captured`)
	}
	if ls.ClientConfig[0] != 0x77 {
		t.Error(`config snapshot missing`)
	}
	toClient, err := framesOf(ls.Dialect, ends.client.drain())
	if err != nil || len(toClient) != 1 {
		t.Fatal(`expected exactly one client frame`, err)
	}
	if ls.readU32(toClient[0].Payload[0:4]) != testSerial {
		t.Error(`client saw the remote assignment instead of its serial`)
	}
	// the first config update also answers the server's checksum probe.
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 || toServer[0].Opcode != protocol.CmdChecksum {
		t.Fatal(`first config update must synthesize one checksum frame`)
	}

	// a second update must not re-answer.
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdClientConfig, Payload: payload})
	toServer, _ = framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 0 {
		t.Error(`checksum answered more than once`)
	}
}

func TestGuildCardSearchTranslatesBack(t *testing.T) {
	ls, ends := licensedGC(nil)
	ls.RemoteGuildCard = testRemoteGC

	payload := make([]byte, 8)
	ls.putU32(payload[0:4], testSerial) // searcher: the identity the client knows
	ls.putU32(payload[4:8], testSerial)
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGuildCardSearch, Payload: payload})

	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 {
		t.Fatal(`search was not forwarded`)
	}
	if ls.readU32(toServer[0].Payload[0:4]) != testRemoteGC || ls.readU32(toServer[0].Payload[4:8]) != testRemoteGC {
		t.Error(`server must see its own assignment, not the serial`)
	}
}

func TestSearchResultMasksBothFields(t *testing.T) {
	ls, ends := licensedGC(nil)
	ls.RemoteGuildCard = testRemoteGC
	payload := make([]byte, 16)
	ls.putU32(payload[0:4], testRemoteGC)
	ls.putU32(payload[4:8], testRemoteGC)
	copy(payload[8:], `rest`)
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdGuildCardResult, Payload: payload})
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	p := toClient[0].Payload
	if ls.readU32(p[0:4]) != testSerial || ls.readU32(p[4:8]) != testSerial {
		t.Error(`searcher and result fields must both carry the serial`)
	}
	if !bytes.Equal(p[8:12], []byte(`rest`)) {
		t.Error(`bytes beyond the identity fields must be untouched`)
	}
}

func rosterJoinPayload(ls *LinkedSession, slots int, selfSlot byte, ids []uint32) []byte {
	p := make([]byte, rosterHeadLen+slots*rosterEntryLen)
	p[0] = selfSlot
	for i, id := range ids {
		off := rosterHeadLen + i*rosterEntryLen
		ls.putU32(p[off:off+4], id)
		copy(p[off+4:], `player`)
	}
	return p
}

// a join then a leave of the same slot restores that slot and only it.
func TestRosterJoinLeaveIdempotence(t *testing.T) {
	ls, ends := licensedGC(nil)
	ids := []uint32{101, 102, 103}
	ls.dispatchS2C(&protocol.Frame{
		Opcode:  protocol.CmdLobbyJoin,
		Flag:    3,
		Payload: rosterJoinPayload(ls, rosterLobbySlots, 0, ids),
	})
	if ls.Roster[1].ID != 102 || ls.Roster[2].ID != 103 {
		t.Fatal(`roster did not absorb the join`)
	}
	ends.client.drain()

	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdLobbyLeave, Flag: 1, Payload: []byte{1, 0, 0, 0}})
	if ls.Roster[1].ID != 0 {
		t.Error(`departing slot not cleared`)
	}
	if ls.Roster[0].ID != 101 || ls.Roster[2].ID != 103 {
		t.Error(`leave touched unrelated slots`)
	}
	for slot := 3; slot < rosterLobbySlots; slot++ {
		if ls.Roster[slot].ID != 0 {
			t.Error(`unused slot`, slot, `gained an identity`)
		}
	}
}

func TestLobbyJoinOverrides(t *testing.T) {
	ls, ends := licensedGC(nil)
	ls.Over.LobbyEvent, ls.Over.LobbyNumber, ls.Over.SectionID = 9, 7, 3
	ls.dispatchS2C(&protocol.Frame{
		Opcode:  protocol.CmdLobbyJoin,
		Flag:    1,
		Payload: rosterJoinPayload(ls, rosterLobbySlots, 0, []uint32{101}),
	})
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	p := toClient[0].Payload
	if p[2] != 7 || p[3] != 9 || p[4] != 3 {
		t.Error(`overrides not applied to the join header:`, p[:5])
	}
}

/*
	Under-sized reconnect completion: the missing bytes come from the
	same offsets of the previous server frame's tail.
*/
func TestUndersizedReconnectCompletion(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.prevServerTail = [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11}

	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdReconnect, Payload: []byte{0x22, 0x33, 0x44}})

	if ls.NextDestination != `34.51.68.221:61183` { // 22 33 44 DD : EEFF
		t.Error(`completed destination wrong:`, ls.NextDestination)
	}
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	p := toClient[0].Payload
	if !bytes.Equal(p[0:4], []byte{0x22, 0x33, 0x44, 0xDD}) {
		t.Error(`address field wrong:`, p[0:4])
	}
	// virtual connection: only the port is rewritten, onto our listener.
	if ls.readU16(p[4:6]) != ls.LocalPort {
		t.Error(`port must point back at the proxy`)
	}
}

func TestReconnectStoresCrcWhenPatched(t *testing.T) {
	ls, _ := newTestSession(protocol.DialectBB, nil, nil)
	ls.crcPatchWanted = true
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdReconnect, Payload: []byte{10, 0, 0, 1, 0x88, 0x13, 0, 0}})
	if ls.remoteIPCrc == 0 {
		t.Error(`address crc not latched for the resume patch`)
	}
}

/*
	Pinned function-call return value: the code blob never reaches the
	client and the server hears the pinned answer with a zero checksum.
*/
func TestExecCodeBlocked(t *testing.T) {
	ls, ends := licensedGC(nil)
	ls.Over.FnCallReturn = int64(testSerial)

	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdExecCode, Payload: make([]byte, 0x40)})

	if len(ends.client.drain()) != 0 {
		t.Error(`code blob leaked to the client`)
	}
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 || toServer[0].Opcode != protocol.CmdExecCodeResult {
		t.Fatal(`expected exactly one synthesized result`)
	}
	p := toServer[0].Payload
	if ls.readU32(p[0:4]) != testSerial {
		t.Error(`wrong pinned return value`)
	}
	if ls.readU32(p[4:8]) != 0 {
		t.Error(`checksum must be zero`)
	}
}

func TestExecCodeForwardedWhenUnpinned(t *testing.T) {
	ls, ends := licensedGC(nil)
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdExecCode, Payload: make([]byte, 0x40)})
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	if len(toClient) != 1 || toClient[0].Opcode != protocol.CmdExecCode {
		t.Error(`unpinned code must pass through`)
	}
}

/*
	Lobby divert: the client walks home through a leave per foreign
	slot, a config breadcrumb, a bubble and a reconnect at our own login
	port; the server hears nothing.
*/
func TestLobbyDivert(t *testing.T) {
	reg := NewRegistry()
	reg.PortDir[`gc-us3`] = 9100
	ls, ends := licensedGC(reg)
	ls.RemoteGuildCard = testRemoteGC
	ls.NextDestination = `10.0.0.1:5278`
	ls.SelfSlot = 0
	ls.Roster[0] = rosterEntry{ID: testRemoteGC}
	ls.Roster[2] = rosterEntry{ID: 102}
	ls.Roster[5] = rosterEntry{ID: 105}

	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdLobbyChange, Payload: []byte{0, 0, 0, 0}})

	if len(ends.server.drain()) != 0 {
		t.Error(`lobby change leaked to the server`)
	}
	toClient, err := framesOf(ls.Dialect, ends.client.drain())
	if err != nil {
		t.Fatal(err)
	}
	var leaves, cfgs, chats, reconnects int
	for _, frame := range toClient {
		switch frame.Opcode {
		case protocol.CmdLobbyLeave:
			leaves++
			if frame.Payload[0] != 2 && frame.Payload[0] != 5 {
				t.Error(`leave for the wrong slot`, frame.Payload[0])
			}
		case protocol.CmdClientConfig:
			cfgs++
			if !bytes.Equal(frame.Payload[4:4+len(cfgMagic)], cfgMagic) {
				t.Error(`config breadcrumb lacks the magic`)
			}
		case protocol.CmdChat:
			chats++
		case protocol.CmdReconnect:
			reconnects++
			if ls.readU16(frame.Payload[4:6]) != 9100 {
				t.Error(`reconnect must target the directory port`)
			}
		}
	}
	if leaves != 2 || cfgs != 1 || chats != 1 || reconnects != 1 {
		t.Error(`divert sequence wrong:`, leaves, cfgs, chats, reconnects)
	}
}

func TestChatFilterDropsShellCommands(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.Feature.SuppressCommands = true
	ls.Feature.ChatFilter = true

	say := func(text string) {
		payload := append(make([]byte, 8), []byte(text)...)
		ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdChat, Payload: payload})
	}
	say(`$infhp on`)
	say("\tE$switchassist")
	if len(ends.server.drain()) != 0 {
		t.Fatal(`shell command leaked to the server`)
	}
	say(`hello &C6world`)
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 {
		t.Fatal(`plain chat must pass`)
	}
	if !bytes.Contains(toServer[0].Payload, []byte("\tC6world")) {
		t.Error(`color shorthand not expanded`)
	}
}

/*
	Saved-login patch on resume: bytes [0x94..0x98) of the replayed frame
	are the address crc xored with the fixed fingerprint constant.
*/
func TestResumeReplayPatchesSavedLogin(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectBB, nil, nil)
	ls.crcPatchWanted = true
	ls.remoteIPCrc = 0xDEADBEEF
	ls.serverOut = &nullCipher{}
	saved := make([]byte, 0x98)
	for i := range saved {
		saved[i] = byte(i)
	}
	ls.SavedLoginFrame = saved

	ls.replaySavedLogin()

	out := ends.server.drain()
	if len(out) != 0x98 {
		t.Fatal(`replay length wrong`, len(out))
	}
	want := utils.Uint32ToLittleEndianBytes(0xDEADBEEF ^ remoteIPPatchXor)
	if !bytes.Equal(out[0x94:0x98], want) {
		t.Error(`fingerprint patch wrong:`, out[0x94:0x98])
	}
	if out[0x93] != 0x93 {
		t.Error(`bytes outside the patch window must stay verbatim`)
	}
}

func TestSavedLoginTooShortIsNotPatched(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectBB, nil, nil)
	ls.crcPatchWanted = true
	ls.remoteIPCrc = 0xDEADBEEF
	ls.serverOut = &nullCipher{}
	saved := make([]byte, 0x90)
	ls.SavedLoginFrame = saved
	ls.replaySavedLogin()
	out := ends.server.drain()
	if len(out) != 0x90 || !bytes.Equal(out, saved) {
		t.Error(`short records must replay untouched`)
	}
}
