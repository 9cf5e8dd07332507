// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"hash/fnv"
	"log"

	cryptoprotect "fivegate/cryptoProtect"
	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	utils "fivegate/utils"
)

/*
	The remote-ip patch fingerprint. The xor constant is kept as one
	opaque literal; some remote servers check the patched field as an
	anti-proxy sanity test.
*/
const (
	remoteIPPatchXor     uint32 = 0x4DC8BED2
	preInitProbeLen             = 0x2C
	preInitProbeFnv      uint64 = 0x8AF8314316A27994
	savedLoginPatchFloor        = 0x98
)

/*
	Server-side handshake hijack. After dialing the upstream the proxy
	stays silent and reacts to the server's own cipher-setup frame, so it
	can impersonate the client from the first byte. Caller holds ls.mu.
*/
func (ls *LinkedSession) handleServerHandshake(frame *protocol.Frame) {
	switch ls.Dialect {
	case protocol.DialectBB:
		ls.handshakeOnline(frame)
	default:
		ls.handshakeLegacy(frame)
	}
}

func (ls *LinkedSession) handshakeLegacy(frame *protocol.Frame) {
	switch frame.Opcode {
	case protocol.CmdServerInit, protocol.CmdServerInitAlt:
		if len(frame.Payload) < 8 {
			log.Println(`handshake trouble:`, defErr.ErrFraming)
			return
		}
		serverSeed := ls.readU32(frame.Payload[0:4])
		clientSeed := ls.readU32(frame.Payload[4:8])

		if ls.License == nil {
			// pure passthrough: the client re-keys off the real seeds,
			// and so do we, on both legs.
			ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
			ls.clientOut = ls.newWireCipher(serverSeed)
			ls.clientReader.ArmCipher(ls.newWireCipher(clientSeed))
		}
		ls.serverOut = ls.newWireCipher(clientSeed)
		ls.serverReader.ArmCipher(ls.newWireCipher(serverSeed))
		if ls.License != nil {
			// never reveal the init to the client; log in on its behalf.
			ls.impersonateLogin(frame.Opcode)
		}
		ls.handshakeDone = true
		ls.flushPending()

	case protocol.CmdReLoginPrompt:
		if ls.Dialect == protocol.DialectGC && ls.License != nil {
			ls.sendConsoleLogin()
			return
		}
		ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)

	default:
		log.Println(`handshake trouble:`, defErr.ErrHandshakeUnexpected, `opcode`, frame.Opcode)
		ls.teardownBoth()
	}
}

func (ls *LinkedSession) handshakeOnline(frame *protocol.Frame) {
	switch frame.Opcode {
	case protocol.CmdPreInitProbe:
		if uint32(len(frame.Payload)) == preInitProbeLen {
			hasher := fnv.New64a()
			hasher.Write(frame.Payload)
			if hasher.Sum64() == preInitProbeFnv {
				log.Println(`enabling remote ip crc patch`)
				ls.crcPatchWanted = true
			}
		}
		ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)

	case protocol.CmdServerInitOnline:
		if len(frame.Payload) < cryptoprotect.OnlineSeedLen*2 {
			log.Println(`handshake trouble:`, defErr.ErrFraming)
			return
		}
		serverSeed := append([]byte{}, frame.Payload[:cryptoprotect.OnlineSeedLen]...)
		clientSeed := append([]byte{}, frame.Payload[cryptoprotect.OnlineSeedLen:cryptoprotect.OnlineSeedLen*2]...)

		if ls.resuming {
			// the client leg is already ciphered from its own accept;
			// only the server-facing imitators are installed, then the
			// saved login replays on the client's behalf.
			ls.serverOut = cryptoprotect.NewImitator(ls.det, clientSeed)
			ls.serverReader.ArmCipher(cryptoprotect.NewImitator(ls.det, serverSeed))
			ls.replaySavedLogin()
			ls.resuming = false
		} else {
			// fresh link: hand the real seeds to the client and rebuild
			// the whole four-cipher group around a new detector.
			ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
			var palette [][]byte
			if ls.reg.Palette != nil {
				palette = ls.reg.Palette.CandidateKeys()
			}
			ls.det = cryptoprotect.NewDetector(palette, onlineLoginSentinel, clientSeed)
			ls.clientReader.ArmCipher(ls.det)
			ls.clientOut = cryptoprotect.NewImitator(ls.det, serverSeed)
			ls.serverOut = cryptoprotect.NewImitator(ls.det, clientSeed)
			ls.serverReader.ArmCipher(cryptoprotect.NewImitator(ls.det, serverSeed))
		}
		ls.handshakeDone = true
		ls.flushPending()

	default:
		log.Println(`handshake trouble:`, defErr.ErrHandshakeUnexpected, `opcode`, frame.Opcode)
		ls.teardownBoth()
	}
}

func (ls *LinkedSession) newWireCipher(seed uint32) cryptoprotect.StreamCipher {
	if ls.Dialect == protocol.DialectGC {
		return cryptoprotect.NewBlockMixer(seed)
	}
	return cryptoprotect.NewLegacyStream(seed)
}

/*
	Synthesize the login the real client would have sent. Which shape
	depends on the dialect and on which init opcode the server used.
*/
func (ls *LinkedSession) impersonateLogin(initOpcode uint16) {
	lic := ls.License
	switch ls.Dialect {
	case protocol.DialectPatch:
		ls.WriteServer(protocol.CmdServerInit, 0, nil)
	case protocol.DialectPC:
		payload := make([]byte, 36)
		ls.putU32(payload[0:4], lic.SerialNumber)
		copy(payload[4:16], lic.AccessKey)
		copy(payload[20:36], `fivegate`)
		ls.WriteServer(protocol.CmdLoginPC, 0, payload)
	case protocol.DialectDC:
		payload := make([]byte, 32)
		ls.putU32(payload[0:4], lic.SerialNumber)
		copy(payload[4:16], lic.AccessKey)
		copy(payload[16:32], `fivegate`)
		ls.WriteServer(protocol.CmdLoginDC, 0, payload)
	case protocol.DialectGC:
		if initOpcode == protocol.CmdServerInitAlt {
			payload := make([]byte, 16)
			ls.putU32(payload[0:4], lic.SerialNumber)
			copy(payload[4:16], lic.AccessKey)
			ls.WriteServer(protocol.CmdVerifyLicense, 0, payload)
		} else {
			ls.sendConsoleLogin()
		}
	}
}

/*
	The console login record: identity, the remembered remote guild card
	and the config snapshot. A session that never saw the remote assign a
	guild card sends the full record; afterwards the truncated variant
	omits the trailing unused region.
*/
func (ls *LinkedSession) sendConsoleLogin() {
	lic := ls.License
	full := ls.RemoteGuildCard == 0
	payload := make([]byte, 36+cfgBlobLen+8)
	ls.putU32(payload[0:4], lic.SerialNumber)
	copy(payload[4:16], lic.AccessKey)
	copy(payload[20:36], `fivegate`)
	ls.putU32(payload[36:40], ls.RemoteGuildCard)
	cfg := ls.ClientConfig
	if len(cfg) == 0 {
		cfg = make([]byte, cfgBlobLen)
	}
	copy(payload[40:40+cfgBlobLen], cfg)
	if !full {
		payload = payload[:40+cfgBlobLen]
	}
	ls.WriteServer(protocol.CmdLoginGC, 0, payload)
}

/*
	Replay the saved later-console login. When the remote-ip patch flag
	is latched and the record is long enough, the fingerprint field is
	overwritten with the reconnect target's address crc xored with the
	fixed magic.
*/
func (ls *LinkedSession) replaySavedLogin() {
	if len(ls.SavedLoginFrame) == 0 {
		log.Println(`warning: resume without a saved login frame`)
		return
	}
	whole := append([]byte{}, ls.SavedLoginFrame...)
	if ls.crcPatchWanted && len(whole) >= savedLoginPatchFloor {
		patched := ls.remoteIPCrc ^ remoteIPPatchXor
		copy(whole[0x94:0x98], utils.Uint32ToLittleEndianBytes(patched))
	}
	enc, err := ls.serverOut.EncryptFlow(whole)
	if err != nil {
		log.Println(`replay failed:`, err)
		return
	}
	ls.server.Write(enc)
}

// drop everything right now; the idle window still applies.
func (ls *LinkedSession) teardownBoth() {
	if ls.client.Alive() {
		ls.client.CloseAll()
	}
	if ls.server.Alive() {
		ls.server.CloseAll()
	}
}
