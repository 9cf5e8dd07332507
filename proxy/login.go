// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"bytes"
	"errors"
	"log"

	auth "fivegate/auth"
	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	utils "fivegate/utils"
)

// magic sentinel at the head of a client-config blob this proxy minted.
var cfgMagic = []byte{'F', 'G', 'a', 't', 'e', 'C', 'f', 'g'}

const cfgBlobLen = 0x20

func trimCStr(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	return string(b)
}

/*
	Read until exactly one login frame of the expected opcode arrives.
	Anything else terminates the unlinked session.
*/
func (us *UnlinkedSession) readLoop() {
	defer us.reg.dropUnlinked(us)
	for {
		raw, _, err := us.client.Read()
		if err != nil {
			us.client.CloseAll()
			return
		}
		if err = us.reader.Feed(raw); err != nil {
			log.Println(`unlinked session dead:`, err)
			us.client.CloseAll()
			return
		}
		frame, err := us.reader.ReadOne()
		if errors.Is(err, defErr.ErrShortRead) {
			continue
		}
		if err != nil {
			log.Println(`unlinked session dead:`, err)
			us.client.CloseAll()
			return
		}
		us.promote(frame)
		return
	}
}

func (us *UnlinkedSession) promote(frame *protocol.Frame) {
	if frame.Opcode != us.Dialect.LoginOpcode() {
		log.Println(`unlinked session dead:`, defErr.ErrHandshakeUnexpected, `opcode`, frame.Opcode)
		us.client.CloseAll()
		return
	}
	lic, cfg := us.parseLogin(frame)

	// a matching license may own a disconnected session waiting for us.
	if lic != nil {
		if existing := us.reg.LinkedByID(lic.SerialNumber); existing != nil {
			existing.resume(us)
			return
		}
	}

	dest := us.NextDestination
	if len(cfg) >= cfgBlobLen && bytes.Equal(cfg[:len(cfgMagic)], cfgMagic) {
		dest = cfgDestination(cfg)
	}
	if len(dest) == 0 {
		log.Println(`nowhere to link the client, dropping`)
		us.client.CloseAll()
		return
	}
	ls, err := us.reg.linkSession(us, lic, dest)
	if err != nil {
		log.Println(`link failed:`, err)
		us.client.CloseAll()
		return
	}
	go ls.pumpClient()
}

// extract credentials; resolve them against the license authority.
func (us *UnlinkedSession) parseLogin(frame *protocol.Frame) (*auth.License, []byte) {
	p := frame.Payload
	authy := us.reg.Licenses
	var (
		lic *auth.License
		err error
		cfg []byte
	)
	switch us.Dialect {
	case protocol.DialectPC:
		if len(p) < 17 || authy == nil {
			break
		}
		serial := utils.LittleEndianBytesToUint32([4]byte(p[0:4]))
		lic, err = authy.VerifyDesktop(serial, trimCStr(p[4:16]))
	case protocol.DialectDC:
		if len(p) < 16 || authy == nil {
			break
		}
		serial := utils.BigEndianBytesToUint32([4]byte(p[0:4]))
		lic, err = authy.VerifyConsole(serial, trimCStr(p[4:16]))
	case protocol.DialectGC:
		if len(p) < 36 || authy == nil {
			break
		}
		serial := utils.BigEndianBytesToUint32([4]byte(p[0:4]))
		lic, err = authy.VerifyConsole(serial, trimCStr(p[4:16]))
		if len(p) > 40 {
			cfg = append([]byte{}, p[40:]...)
		}
	case protocol.DialectBB:
		if len(p) < 32 || authy == nil {
			break
		}
		lic, err = authy.VerifyOnline(trimCStr(p[0:16]), trimCStr(p[16:32]))
		// kept verbatim for replay on resume.
		whole, berr := protocol.BuildFrame(us.Dialect, frame.Opcode, frame.Flag, frame.Payload)
		if berr == nil {
			us.savedLogin = whole
		}
	}
	if err != nil && !errors.Is(err, auth.ErrLicenseNotFound) {
		log.Println(`license authority trouble:`, err)
	}
	return lic, cfg
}

func cfgDestination(cfg []byte) string {
	addr := cfg[8:12]
	port := utils.LittleEndianBytesToUint16([2]byte(cfg[12:14]))
	return formatAddrPort(addr, port)
}

// mint one of our own config blobs pointing home to `dest`.
func buildCfgBlob(destAddr []byte, destPort uint16, remoteGuildCard uint32) []byte {
	cfg := make([]byte, cfgBlobLen)
	copy(cfg, cfgMagic)
	copy(cfg[8:12], destAddr)
	copy(cfg[12:14], utils.Uint16ToLittleEndianBytes(destPort))
	copy(cfg[16:20], utils.Uint32ToLittleEndianBytes(remoteGuildCard))
	return cfg
}
