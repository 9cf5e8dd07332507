// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"log"
	"strconv"

	protocol "fivegate/protocol"
)

const execFooterLen = 16

/*
	Code-execution command from the server. The blob is dumped for the
	operator, optionally with a labeled listing, and when a function-call
	return value is pinned the code never reaches the client: we answer
	the server ourselves and swallow the command.
*/
func (ls *LinkedSession) onExecCode(frame *protocol.Frame) {
	code := frame.Payload
	if ls.Feature.SaveFiles {
		ls.dumpBlob(`code`, `bin`, code)
		if ls.reg.Disasm != nil && len(code) >= execFooterLen {
			listing, err := ls.reg.Disasm.Disassemble(code, execLabels(ls, code))
			if err == nil {
				ls.dumpBlob(`code`, `txt`, []byte(listing))
			} else {
				log.Println(`warning: disassembly failed:`, err)
			}
		}
	}
	if ls.Over.FnCallReturn >= 0 {
		answer := make([]byte, 8)
		ls.putU32(answer[0:4], uint32(ls.Over.FnCallReturn))
		// checksum zero: the client never ran the code.
		ls.WriteServer(protocol.CmdExecCodeResult, 0, answer)
		return
	}
	ls.WriteClient(frame.Opcode, frame.Flag, code)
}

/*
	The blob ends in a footer: relocation table offset, relocation count,
	entry pointer, footer size. Labels keep the listing readable.
*/
func execLabels(ls *LinkedSession, code []byte) map[uint32]string {
	labels := map[uint32]string{0: `start`}
	footerOff := uint32(len(code) - execFooterLen)
	relocOff := ls.readU32(code[footerOff : footerOff+4])
	relocCnt := ls.readU32(code[footerOff+4 : footerOff+8])
	entryPtr := ls.readU32(code[footerOff+8 : footerOff+12])
	labels[footerOff] = `footer`
	if entryPtr < uint32(len(code)) {
		labels[entryPtr] = `entry_ptr`
	}
	for i := uint32(0); i < relocCnt; i++ {
		off := relocOff + i*4
		if off+4 > footerOff {
			break
		}
		target := ls.readU32(code[off : off+4])
		if target < uint32(len(code)) {
			labels[target] = `reloc` + strconv.Itoa(int(i))
		}
	}
	return labels
}
