// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"testing"
	"time"

	protocol "fivegate/protocol"
)

func switchFrame(ls *LinkedSession, swID uint16, enabled bool) *protocol.Frame {
	p := []byte{protocol.SubSwitchFlip, 2, ls.SelfSlot, 0, 0, 0, 0, 0}
	ls.putU16(p[4:6], swID)
	if enabled {
		p[7] = 1
	}
	return &protocol.Frame{Opcode: protocol.CmdGame, Payload: p}
}

/*
	Two consecutive switch flips with assist on: the first one is seen
	again on both endpoints before the second is forwarded.
*/
func TestSwitchAssistReplay(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.Feature.SwitchAssist = true
	ls.InGame = true

	ls.dispatchC2S(switchFrame(ls, 0x0001, true))
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 {
		t.Fatal(`first flip must forward once`)
	}
	if len(ends.client.drain()) != 0 {
		t.Fatal(`nothing to replay yet`)
	}

	ls.dispatchC2S(switchFrame(ls, 0x0002, true))
	toServer, _ = framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 2 {
		t.Fatal(`expected replay plus forward toward the server, got`, len(toServer))
	}
	if ls.readU16(toServer[0].Payload[4:6]) != 0x0001 || ls.readU16(toServer[1].Payload[4:6]) != 0x0002 {
		t.Error(`replay must precede the new flip`)
	}
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	if len(toClient) != 1 || ls.readU16(toClient[0].Payload[4:6]) != 0x0001 {
		t.Error(`replay must also reach the client`)
	}
}

func TestSwitchAssistIgnoresSentinelID(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.Feature.SwitchAssist = true
	ls.InGame = true
	ls.dispatchC2S(switchFrame(ls, switchIDNone, true))
	ls.dispatchC2S(switchFrame(ls, 0x0002, true))
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 2 {
		t.Error(`the sentinel id must never be cached or replayed`)
	}
}

func TestInfiniteHPSynthesis(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.Feature.InfiniteHP = true
	ls.InGame = true
	ls.SelfSlot = 2

	p := []byte{protocol.SubTakeDamage, 2, 2, 0, 0, 0, 0, 0}
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: p})

	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	if len(toClient) != 4 {
		t.Fatal(`1020 hp in chunks of 255 needs 4 frames, got`, len(toClient))
	}
	var total int
	for _, frame := range toClient {
		sub := frame.Payload
		if sub[0] != protocol.SubStatChange || sub[2] != 2 || sub[6] != statAddHP {
			t.Error(`wrong stat-change synthesis:`, sub)
		}
		total += int(sub[7])
	}
	if total != hpRefill {
		t.Error(`restored`, total, `hp, wanted`, hpRefill)
	}
	// the damage itself still reaches the server.
	toServer, _ := framesOf(ls.Dialect, ends.server.drain())
	if len(toServer) != 1 {
		t.Error(`damage subcommand must still forward`)
	}
}

func TestInfiniteTPSynthesis(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.Feature.InfiniteTP = true
	ls.InGame = true
	p := []byte{protocol.SubCastTechnique, 2, 0, 0, 0, 0, 0, 0}
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: p})
	toClient, _ := framesOf(ls.Dialect, ends.client.drain())
	if len(toClient) != 1 || toClient[0].Payload[6] != statAddTP || toClient[0].Payload[7] != statChunks {
		t.Error(`tp refill must be one 255-point chunk`)
	}
}

func TestSubcommandSizeMismatchDropped(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	// declares 3 units but carries 8 bytes.
	p := []byte{protocol.SubStatChange, 3, 0, 0, 0, 0, 0, 0}
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: p})
	if len(ends.server.drain()) != 0 {
		t.Error(`mismatched declaration must drop the frame`)
	}
}

func TestSpoofedSenderSlotDropped(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.InGame = true
	ls.SelfSlot = 1
	frame := switchFrame(ls, 5, true)
	frame.Payload[2] = 3 // not our slot
	ls.dispatchC2S(frame)
	if len(ends.server.drain()) != 0 {
		t.Error(`spoofed sender slot must not forward`)
	}
}

func TestEp3CarrierGated(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	p := []byte{0xAB, 1, 0, 0}
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGameEp3, Payload: p})
	if len(ends.server.drain()) != 0 {
		t.Fatal(`episode-3 carrier must drop for a non-episode-3 session`)
	}
	ls.Ep3 = true
	ls.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGameEp3, Payload: p})
	if len(ends.server.drain()) == 0 {
		t.Error(`episode-3 session must forward its carrier`)
	}
}

func TestPrivateSubcommandForWrongSlotDropped(t *testing.T) {
	ls, ends := newTestSession(protocol.DialectGC, nil, nil)
	ls.SelfSlot = 1
	p := []byte{0x10, 1, 0, 0}
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdGamePrivate, Flag: 3, Payload: p})
	if len(ends.client.drain()) != 0 {
		t.Fatal(`private subcommand addressed elsewhere must drop`)
	}
	ls.dispatchS2C(&protocol.Frame{Opcode: protocol.CmdGamePrivate, Flag: 1, Payload: p})
	if len(ends.client.drain()) == 0 {
		t.Error(`private subcommand for our slot must pass`)
	}
}

/* --------------------------- authoritative lobby -------------------------- */

func drainEventually(t *testing.T, end *bufConn, d protocol.Dialect) []*protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		raw := end.drain()
		if len(raw) != 0 {
			frames, err := framesOf(d, raw)
			if err != nil {
				t.Fatal(err)
			}
			return frames
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil
}

func subBlock(ls *LinkedSession, op byte, units byte, words ...uint32) []byte {
	p := make([]byte, int(units)*4)
	p[0], p[1], p[2] = op, units, ls.SelfSlot
	for i, w := range words {
		ls.putU32(p[4+i*4:8+i*4], w)
	}
	return p
}

// the split-stack block: area and coordinates first, then id and amount.
func dropStackBlock(ls *LinkedSession, itemID, amount uint32) []byte {
	p := make([]byte, 24)
	p[0], p[1], p[2] = protocol.SubDropStack, 6, ls.SelfSlot
	ls.putU32(p[16:20], itemID)
	ls.putU32(p[20:24], amount)
	return p
}

/*
	Drop five off a stack of ten, then a second client picks the floor
	item up: the stack splits, the floor id is freshly minted, ownership
	transfers, and every lobby peer hears the pickup.
*/
func TestLobbyDropAndPickup(t *testing.T) {
	reg := NewRegistry()
	a, endsA := newTestSession(protocol.DialectBB, nil, reg)
	b, endsB := newTestSession(protocol.DialectBB, nil, reg)
	b.ID = 0xFF000002
	reg.attachLobby(a)
	reg.attachLobby(b)
	a.InGame, b.InGame = true, true
	lobby := a.lobby

	lobby.GiveItem(a, Item{ID: 0x1000, Kind: 3, Amount: 10})

	a.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: dropStackBlock(a, 0x1000, 5)})

	if got := lobby.Inventory(a)[0x1000].Amount; got != 5 {
		t.Error(`stack should hold 5 after the split, holds`, got)
	}
	floor := lobby.FloorItems()
	if len(floor) != 1 {
		t.Fatal(`exactly one floor item expected`)
	}
	var floorID uint32
	for id, item := range floor {
		floorID = id
		if item.Amount != 5 || item.Kind != 3 {
			t.Error(`floor item mangled:`, item)
		}
	}
	if floorID == 0x1000 {
		t.Error(`floor id must be freshly minted`)
	}
	if toServer, _ := framesOf(a.Dialect, endsA.server.drain()); len(toServer) != 1 {
		t.Error(`the remote must still hear the original drop`)
	}
	if frames := drainEventually(t, endsB.client, b.Dialect); len(frames) != 1 {
		t.Error(`peer client must hear the drop broadcast`)
	}

	b.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: subBlock(b, protocol.SubPickUpReq, 3, floorID)})

	if len(lobby.FloorItems()) != 0 {
		t.Error(`floor item not removed by pickup`)
	}
	if got := lobby.Inventory(b)[floorID].Amount; got != 5 {
		t.Error(`pickup did not transfer the item`)
	}
	frames := drainEventually(t, endsA.client, a.Dialect)
	found := false
	for _, frame := range frames {
		if len(frame.Payload) > 0 && frame.Payload[0] == protocol.SubPickUp {
			found = true
		}
	}
	if !found {
		t.Error(`pickup broadcast must reach every peer`)
	}
}

func TestDropOfUnheldItemIgnored(t *testing.T) {
	reg := NewRegistry()
	a, ends := newTestSession(protocol.DialectBB, nil, reg)
	reg.attachLobby(a)
	a.InGame = true
	a.dispatchC2S(&protocol.Frame{Opcode: protocol.CmdGame, Payload: dropStackBlock(a, 0x9999, 1)})
	if len(ends.server.drain()) != 0 {
		t.Error(`an impossible drop must not reach the remote`)
	}
	if len(a.lobby.FloorItems()) != 0 {
		t.Error(`an impossible drop must not mint a floor item`)
	}
}
