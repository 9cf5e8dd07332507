// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"errors"
	"log"
	"sync"

	protocol "fivegate/protocol"
)

/*
Lobby state for the later-console dialect.

	Here the proxy is the authority on items: stacks split, floor items
	mint fresh ids, pickups transfer ownership, and every session in the
	lobby hears about it. Other dialects leave all of this to the remote
	and only ever forward.
*/
type Lobby struct {
	mu          sync.Mutex
	members     [rosterLobbySlots]*LinkedSession
	floor       map[uint32]Item
	inventories map[*LinkedSession]map[uint32]Item
	equipped    map[*LinkedSession]map[uint32]bool
	nextItemID  uint32
}

func newLobby() *Lobby {
	return &Lobby{
		floor:       make(map[uint32]Item),
		inventories: make(map[*LinkedSession]map[uint32]Item),
		equipped:    make(map[*LinkedSession]map[uint32]bool),
		nextItemID:  0x00010000,
	}
}

func (r *Registry) attachLobby(ls *LinkedSession) {
	r.mu.Lock()
	if r.bbLobby == nil {
		r.bbLobby = newLobby()
	}
	lobby := r.bbLobby
	r.mu.Unlock()
	lobby.Attach(ls)
	ls.lobby = lobby
}

func (lb *Lobby) Attach(ls *LinkedSession) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	for slot := range lb.members {
		if lb.members[slot] == nil {
			lb.members[slot] = ls
			ls.SelfSlot = byte(slot)
			break
		}
	}
	lb.inventories[ls] = make(map[uint32]Item)
	lb.equipped[ls] = make(map[uint32]bool)
}

func (lb *Lobby) Detach(ls *LinkedSession) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	for slot := range lb.members {
		if lb.members[slot] == ls {
			lb.members[slot] = nil
		}
	}
	delete(lb.inventories, ls)
	delete(lb.equipped, ls)
}

// seed a member's inventory; the character loader calls this, tests too.
func (lb *Lobby) GiveItem(ls *LinkedSession, item Item) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if inv := lb.inventories[ls]; inv != nil {
		inv[item.ID] = item
	}
}

func (lb *Lobby) Inventory(ls *LinkedSession) map[uint32]Item {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	res := make(map[uint32]Item)
	for id, item := range lb.inventories[ls] {
		res[id] = item
	}
	return res
}

func (lb *Lobby) FloorItems() map[uint32]Item {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	res := make(map[uint32]Item)
	for id, item := range lb.floor {
		res[id] = item
	}
	return res
}

func (lb *Lobby) mintID() uint32 {
	id := lb.nextItemID
	lb.nextItemID++
	return id
}

// split `amount` off a held stack onto the floor under a fresh id.
func (lb *Lobby) DropStack(ls *LinkedSession, itemID, amount uint32) (uint32, bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	inv := lb.inventories[ls]
	held, ok := inv[itemID]
	if !ok || held.Amount < amount {
		return 0, false
	}
	held.Amount -= amount
	if held.Amount == 0 {
		delete(inv, itemID)
	} else {
		inv[itemID] = held
	}
	floorID := lb.mintID()
	lb.floor[floorID] = Item{ID: floorID, Kind: held.Kind, Amount: amount}
	return floorID, true
}

func (lb *Lobby) SpawnFloorItem(item Item) uint32 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	floorID := lb.mintID()
	item.ID = floorID
	lb.floor[floorID] = item
	return floorID
}

func (lb *Lobby) PickUp(ls *LinkedSession, floorID uint32) (Item, bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	item, ok := lb.floor[floorID]
	if !ok {
		return Item{}, false
	}
	delete(lb.floor, floorID)
	if inv := lb.inventories[ls]; inv != nil {
		inv[item.ID] = item
	}
	return item, true
}

/*
	Fan one synthesized subcommand out to every member's client. Each
	target is written under its own session lock on its own goroutine;
	cross-session ordering is not promised, per-session ordering is.
*/
func (lb *Lobby) broadcast(except *LinkedSession, opcode uint16, flag uint32, payload []byte) {
	lb.mu.Lock()
	targets := make([]*LinkedSession, 0, rosterLobbySlots)
	for _, member := range lb.members {
		if member != nil && member != except {
			targets = append(targets, member)
		}
	}
	lb.mu.Unlock()
	for _, target := range targets {
		go func(t *LinkedSession) {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.WriteClient(opcode, flag, payload)
		}(target)
	}
}

/* ----------------------- authoritative subcommands ----------------------- */

// whole-item drop: the item keeps its id on the floor.
func (ls *LinkedSession) subDropItem(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[8:12])
	lb := ls.lobby
	lb.mu.Lock()
	if held, ok := lb.inventories[ls][itemID]; ok {
		delete(lb.inventories[ls], itemID)
		lb.floor[itemID] = held
	}
	lb.mu.Unlock()
	return false
}

func (ls *LinkedSession) subDropStack(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	p := frame.Payload
	itemID := ls.readU32(p[16:20])
	amount := ls.readU32(p[20:24])
	floorID, ok := ls.lobby.DropStack(ls, itemID, amount)
	if !ok {
		log.Println(`warning: drop of unheld item`, itemID, `ignored`)
		return true
	}
	drop := make([]byte, 12)
	drop[0], drop[1], drop[2] = protocol.SubDropStack, 3, ls.SelfSlot
	ls.putU32(drop[4:8], floorID)
	ls.putU32(drop[8:12], amount)
	ls.lobby.broadcast(ls, protocol.CmdGame, 0, drop)
	return false // remote still hears the original
}

func (ls *LinkedSession) subPickUpReq(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	floorID := ls.readU32(frame.Payload[4:8])
	if _, ok := ls.lobby.PickUp(ls, floorID); !ok {
		log.Println(`warning: pickup of unknown floor item`, floorID, `ignored`)
		return true
	}
	taken := make([]byte, 12)
	taken[0], taken[1], taken[2] = protocol.SubPickUp, 3, ls.SelfSlot
	ls.putU32(taken[4:8], floorID)
	ls.lobby.broadcast(nil, protocol.CmdGame, 0, taken)
	return false
}

func (ls *LinkedSession) subEquip(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[4:8])
	ls.lobby.mu.Lock()
	if _, held := ls.lobby.inventories[ls][itemID]; held {
		ls.lobby.equipped[ls][itemID] = true
	}
	ls.lobby.mu.Unlock()
	return false
}

func (ls *LinkedSession) subUnequip(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[4:8])
	ls.lobby.mu.Lock()
	delete(ls.lobby.equipped[ls], itemID)
	ls.lobby.mu.Unlock()
	return false
}

func (ls *LinkedSession) subUseItem(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[4:8])
	ls.lobby.mu.Lock()
	if held, ok := ls.lobby.inventories[ls][itemID]; ok {
		held.Amount--
		if held.Amount == 0 {
			delete(ls.lobby.inventories[ls], itemID)
		} else {
			ls.lobby.inventories[ls][itemID] = held
		}
	}
	ls.lobby.mu.Unlock()
	return false
}

// the bank listing itself; local state only, the remote never hears it.
func (ls *LinkedSession) subBankOpen(frame *protocol.Frame) bool {
	return ls.lobby != nil
}

func (ls *LinkedSession) subBankAction(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[4:8])
	amount := uint32(frame.Payload[13])
	ls.lobby.mu.Lock()
	if held, ok := ls.lobby.inventories[ls][itemID]; ok && held.Amount >= amount {
		held.Amount -= amount
		if held.Amount == 0 {
			delete(ls.lobby.inventories[ls], itemID)
		} else {
			ls.lobby.inventories[ls][itemID] = held
		}
	}
	ls.lobby.mu.Unlock()
	return false
}

const statAddExp byte = 0x02

/*
	Enemy killed: award experience through the level table and roll the
	rare set first, the common creator second. A not-wanted signal from
	either simply means no drop.
*/
func (ls *LinkedSession) subEnemyKill(frame *protocol.Frame) bool {
	if ls.lobby == nil {
		return false
	}
	enemyKind := ls.readU16(frame.Payload[4:6])
	if ls.reg.Levels != nil {
		exp := ls.reg.Levels.ExpForKill(0, 0, enemyKind)
		for exp > 0 {
			chunk := exp
			if chunk > statChunks {
				chunk = statChunks
			}
			ls.synthStatChange(statAddExp, byte(chunk))
			exp -= chunk
		}
	}
	item, err := ls.rollKillDrop(enemyKind)
	if err == nil {
		floorID := ls.lobby.SpawnFloorItem(item)
		drop := make([]byte, 12)
		drop[0], drop[1], drop[2] = protocol.SubDropStack, 3, ls.SelfSlot
		ls.putU32(drop[4:8], floorID)
		ls.putU32(drop[8:12], item.Amount)
		ls.WriteClient(protocol.CmdGame, 0, drop)
		ls.lobby.broadcast(ls, protocol.CmdGame, 0, drop)
	}
	return false
}

func (ls *LinkedSession) rollKillDrop(enemyKind uint16) (Item, error) {
	if ls.reg.Rares != nil {
		item, err := ls.reg.Rares.RollRare(0, 0, 0, 0, enemyKind)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotWanted) {
			return Item{}, err
		}
	}
	if ls.reg.Items != nil {
		return ls.reg.Items.CreateDrop(0, 0, 0, 0)
	}
	return Item{}, ErrNotWanted
}

// shop contents come from the common item creator; the remote never
// hears the request.
func (ls *LinkedSession) subShopOpen(frame *protocol.Frame) bool {
	if ls.lobby == nil || ls.reg.Items == nil {
		return false
	}
	shopKind := frame.Payload[4]
	stock, err := ls.reg.Items.ShopStock(shopKind, 0)
	if err != nil && !errors.Is(err, ErrNotWanted) {
		log.Println(`warning: shop fill failed:`, err)
		return true
	}
	block := make([]byte, 8+len(stock)*8)
	block[0] = protocol.SubShopOpen
	block[1] = byte(len(block) / 4)
	block[2] = ls.SelfSlot
	block[4] = byte(len(stock))
	for i, item := range stock {
		ls.putU32(block[8+i*8:12+i*8], item.ID)
		ls.putU32(block[12+i*8:16+i*8], item.Kind)
	}
	ls.WriteClient(protocol.CmdGame, 0, block)
	return true
}

func (ls *LinkedSession) subSortInventory(frame *protocol.Frame) bool {
	return false // order is client cosmetics; nothing to track
}

/*
	Tekk request: re-roll the item's kind through the rare set and show
	the would-be result to the requesting client. The acceptance step is
	a separate subcommand whose opcode has not been observed yet, so the
	held item only changes when that arrives.
*/
func (ls *LinkedSession) subIdentify(frame *protocol.Frame) bool {
	if ls.lobby == nil || ls.reg.Rares == nil {
		return false
	}
	itemID := ls.readU32(frame.Payload[4:8])
	ls.lobby.mu.Lock()
	held, ok := ls.lobby.inventories[ls][itemID]
	ls.lobby.mu.Unlock()
	if !ok {
		return false
	}
	revealed, err := ls.reg.Rares.RollRare(0, 0, 0, 0, uint16(held.Kind))
	if err != nil {
		return false // not-wanted: stays as it was
	}
	result := make([]byte, 16)
	result[0], result[1], result[2] = protocol.SubIdentifyResult, 4, ls.SelfSlot
	ls.putU32(result[4:8], itemID)
	ls.putU32(result[8:12], revealed.Kind)
	ls.WriteClient(protocol.CmdGame, 0, result)
	return false
}
