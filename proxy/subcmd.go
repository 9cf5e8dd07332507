// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"log"

	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
)

/*
	Nested game commands. The first payload byte is the subcommand
	opcode, the second its size in 4-byte units, the third the sender's
	slot. A fixed 256-entry table decides each one's fate; entries with
	no policy set accept any size and are forwarded as they are.
*/

type subHandler func(ls *LinkedSession, carrier *protocol.Frame) bool // true: fully handled

type subPolicy struct {
	units        int8 // exact expected size in units, -1 for any
	inGameOnly   bool
	loadingOnly  bool
	selfSlotOnly bool
	named        subHandler
}

var gameSubTable [256]subPolicy

func init() {
	for i := range gameSubTable {
		gameSubTable[i].units = -1
	}
	set := func(op byte, pol subPolicy) { gameSubTable[op] = pol }

	set(protocol.SubSwitchFlip, subPolicy{units: 2, inGameOnly: true, selfSlotOnly: true, named: (*LinkedSession).subSwitchFlip})
	set(protocol.SubTakeDamage, subPolicy{units: 2, inGameOnly: true, named: (*LinkedSession).subTakeDamage})
	set(protocol.SubTakeDamageAlt, subPolicy{units: 2, inGameOnly: true, named: (*LinkedSession).subTakeDamage})
	set(protocol.SubCastTechnique, subPolicy{units: 2, inGameOnly: true, named: (*LinkedSession).subCastTechnique})
	set(protocol.SubStatChange, subPolicy{units: 2})

	// later-console authoritative actions; elsewhere these fall back to
	// plain forwarding.
	set(protocol.SubDropItem, subPolicy{units: 6, inGameOnly: true, selfSlotOnly: true, named: (*LinkedSession).subDropItem})
	set(protocol.SubDropStack, subPolicy{units: 6, inGameOnly: true, selfSlotOnly: true, named: (*LinkedSession).subDropStack})
	set(protocol.SubPickUpReq, subPolicy{units: 3, inGameOnly: true, selfSlotOnly: true, named: (*LinkedSession).subPickUpReq})
	set(protocol.SubPickUp, subPolicy{units: 3, inGameOnly: true})
	set(protocol.SubEquip, subPolicy{units: 2, selfSlotOnly: true, named: (*LinkedSession).subEquip})
	set(protocol.SubUnequip, subPolicy{units: 2, selfSlotOnly: true, named: (*LinkedSession).subUnequip})
	set(protocol.SubUseItem, subPolicy{units: 2, selfSlotOnly: true, named: (*LinkedSession).subUseItem})
	set(protocol.SubBankOpen, subPolicy{units: -1, inGameOnly: true, named: (*LinkedSession).subBankOpen})
	set(protocol.SubBankAction, subPolicy{units: 4, inGameOnly: true, named: (*LinkedSession).subBankAction})
	set(protocol.SubEnemyKill, subPolicy{units: 3, inGameOnly: true, named: (*LinkedSession).subEnemyKill})
	set(protocol.SubShopOpen, subPolicy{units: 2, inGameOnly: true, named: (*LinkedSession).subShopOpen})
	set(protocol.SubSortInventory, subPolicy{units: -1, selfSlotOnly: true, named: (*LinkedSession).subSortInventory})
	set(protocol.SubIdentify, subPolicy{units: 3, inGameOnly: true, selfSlotOnly: true, named: (*LinkedSession).subIdentify})
}

// validation shared by both directions; nil means drop. The wide
// carriers declare a 32-bit size in the second word instead of the
// units byte, which tops out at 0x3FC bytes.
func (ls *LinkedSession) vetSubcommand(frame *protocol.Frame) *subPolicy {
	p := frame.Payload
	if len(p) < 4 {
		log.Println(`warning: subcommand too small, dropping`)
		return nil
	}
	wide := frame.Opcode == protocol.CmdGameWide || frame.Opcode == protocol.CmdGameWidePrivate
	if wide {
		if len(p) < 8 || ls.readU32(p[4:8]) != uint32(len(p)) {
			log.Println(`warning: wide subcommand size mismatch, dropping`)
			return nil
		}
	} else if int(p[1])*4 != len(p) {
		log.Println(`warning: subcommand size mismatch, dropping`)
		return nil
	}
	pol := &gameSubTable[p[0]]
	if !wide && pol.units >= 0 && p[1] != byte(pol.units) {
		log.Println(`warning: subcommand`, p[0], `declared`, p[1], `units, wanted`, pol.units)
		return nil
	}
	if pol.inGameOnly && !ls.InGame {
		return nil
	}
	if pol.loadingOnly && !ls.Loading {
		return nil
	}
	if protocol.IsEp3Carrier(frame.Opcode) && !ls.Ep3 {
		return nil
	}
	return pol
}

func (ls *LinkedSession) onSubcommandToServer(frame *protocol.Frame) {
	pol := ls.vetSubcommand(frame)
	if pol == nil {
		return
	}
	if pol.selfSlotOnly && frame.Payload[2] != ls.SelfSlot {
		log.Println(`warning: subcommand spoofed sender slot, dropping`)
		return
	}
	if pol.named != nil {
		if pol.named(ls, frame) {
			return
		}
	} else if pol.units < 0 {
		log.Println(defErr.ErrUnimplemented, `subcommand`, frame.Payload[0], `forwarded as-is`)
	}
	ls.WriteServer(frame.Opcode, frame.Flag, frame.Payload)
}

func (ls *LinkedSession) onSubcommandToClient(frame *protocol.Frame) {
	pol := ls.vetSubcommand(frame)
	if pol == nil {
		return
	}
	// private variants address exactly one slot; anything not for our
	// client has no business on this leg.
	if protocol.IsPrivateCarrier(frame.Opcode) && byte(frame.Flag) != ls.SelfSlot {
		log.Println(`warning:`, `private subcommand for slot`, frame.Flag, `we hold`, ls.SelfSlot)
		return
	}
	ls.maybeDumpMapData(frame.Payload)
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

/*
	Console map payloads travel inside the subcommand stream as a 0xB6
	block wrapping a 0x41 chunk; the map id sits in the fourth word.
*/
func (ls *LinkedSession) maybeDumpMapData(p []byte) {
	if !ls.Feature.SaveFiles || ls.Dialect != protocol.DialectGC || len(p) < 0x14 {
		return
	}
	if p[0] != 0xB6 || p[8] != 0x41 {
		return
	}
	ls.dumpBlob(mapDumpName(ls.readU32(p[12:16])), `mnmd`, p[0x14:])
}

/* ------------------------------ switch assist ------------------------------ */

const switchIDNone = 0xFFFF

/*
	A flipped floor switch. The last activation is remembered; with
	assist on, the next flip first replays the remembered one toward both
	endpoints, so a single physical flip satisfies paired-switch rooms.
*/
func (ls *LinkedSession) subSwitchFlip(frame *protocol.Frame) bool {
	p := frame.Payload
	if len(p) < 8 {
		return false
	}
	swID := ls.readU16(p[4:6])
	enabled := p[7] != 0
	if !enabled || swID == switchIDNone {
		return false
	}
	if ls.Feature.SwitchAssist && ls.lastSwitch != nil {
		prev := ls.lastSwitch
		ls.WriteClient(prev.Opcode, prev.Flag, prev.Payload)
		ls.WriteServer(prev.Opcode, prev.Flag, prev.Payload)
	}
	ls.lastSwitch = &protocol.Frame{
		Opcode:  frame.Opcode,
		Flag:    frame.Flag,
		Payload: append([]byte{}, frame.Payload...),
	}
	return false // still forwarded normally
}

/* --------------------------- infinite HP / TP ---------------------------- */

const (
	statAddHP  byte = 0x00
	statAddTP  byte = 0x01
	hpRefill        = 1020
	statChunks      = 255
)

func (ls *LinkedSession) synthStatChange(kind, amount byte) {
	block := []byte{protocol.SubStatChange, 2, ls.SelfSlot, 0, 0, 0, kind, amount}
	ls.WriteClient(protocol.CmdGame, 0, block)
}

func (ls *LinkedSession) subTakeDamage(frame *protocol.Frame) bool {
	if ls.Feature.InfiniteHP {
		remain := hpRefill
		for remain > 0 {
			chunk := remain
			if chunk > statChunks {
				chunk = statChunks
			}
			ls.synthStatChange(statAddHP, byte(chunk))
			remain -= chunk
		}
	}
	return false
}

func (ls *LinkedSession) subCastTechnique(frame *protocol.Frame) bool {
	if ls.Feature.InfiniteTP {
		ls.synthStatChange(statAddTP, statChunks)
	}
	return false
}
