// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package protocol

import (
	defErr "fivegate/defErr"
	utils "fivegate/utils"
)

// a frame may never declare more than this, whatever the dialect says.
const maxFrameLen = 1 << 20

/*
One length-prefixed command message.

	Flag is a u8 on the narrow-opcode dialects and a u32 on the desktop
	one; we carry the widest form. Payload excludes header, gap and the
	alignment padding.
*/
type Frame struct {
	Opcode  uint16
	Flag    uint32
	Payload []byte
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) / align * align
}

// PaddedLen reports the on-the-wire length of a frame whose header
// declares `size` bytes.
func PaddedLen(d Dialect, size uint32) uint32 {
	return alignUp(size, wireSpecs[d].align)
}

/*
	Assemble header+payload and zero-pad to the dialect alignment.
	Padding is attached before encryption; the receiver decrypts the
	padded length and truncates by the declared size.
*/
func BuildFrame(d Dialect, opcode uint16, flag uint32, payload []byte) ([]byte, error) {
	ws := wireSpecs[d]
	size := ws.headLen + ws.gapLen + uint32(len(payload))
	// every dialect but the later console declares size in a u16.
	if size > maxFrameLen || (d != DialectBB && size > 0xFFFF) {
		return nil, defErr.Concat(defErr.ErrFraming, `oversized frame`)
	}
	var head []byte
	switch d {
	case DialectDC, DialectGC:
		head = append(head, byte(opcode), byte(flag))
		head = append(head, utils.Uint16ToBigEndianBytes(uint16(size))...)
	case DialectPatch:
		head = append(head, byte(opcode), byte(flag))
		head = append(head, utils.Uint16ToLittleEndianBytes(uint16(size))...)
	case DialectPC:
		head = append(head, utils.Uint16ToLittleEndianBytes(opcode)...)
		head = append(head, utils.Uint16ToLittleEndianBytes(uint16(size))...)
		head = append(head, utils.Uint32ToLittleEndianBytes(flag)...)
	case DialectBB:
		head = append(head, utils.Uint16ToLittleEndianBytes(opcode)...)
		head = append(head, utils.Uint16ToLittleEndianBytes(uint16(flag))...)
		head = append(head, utils.Uint32ToLittleEndianBytes(size)...)
		head = append(head, 0, 0, 0, 0)
	}
	res := append(head, payload...)
	for uint32(len(res)) < alignUp(size, ws.align) {
		res = append(res, 0)
	}
	return res, nil
}

func parseHead(d Dialect, head []byte) (opcode uint16, flag uint32, size uint32, err error) {
	ws := wireSpecs[d]
	switch d {
	case DialectDC, DialectGC:
		opcode, flag = uint16(head[0]), uint32(head[1])
		size = uint32(utils.BigEndianBytesToUint16([2]byte(head[2:4])))
	case DialectPatch:
		opcode, flag = uint16(head[0]), uint32(head[1])
		size = uint32(utils.LittleEndianBytesToUint16([2]byte(head[2:4])))
	case DialectPC:
		opcode = utils.LittleEndianBytesToUint16([2]byte(head[0:2]))
		size = uint32(utils.LittleEndianBytesToUint16([2]byte(head[2:4])))
		flag = utils.LittleEndianBytesToUint32([4]byte(head[4:8]))
	case DialectBB:
		opcode = utils.LittleEndianBytesToUint16([2]byte(head[0:2]))
		flag = uint32(utils.LittleEndianBytesToUint16([2]byte(head[2:4])))
		size = utils.LittleEndianBytesToUint32([4]byte(head[4:8]))
	}
	if size < ws.headLen+ws.gapLen || size > maxFrameLen {
		err = defErr.Concat(defErr.ErrFraming, `header declares impossible size`)
	}
	return
}
