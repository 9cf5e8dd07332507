// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"fmt"
	"log"
	"net"

	cryptoprotect "fivegate/cryptoProtect"
	protocol "fivegate/protocol"
	socket "fivegate/socket"
	utils "fivegate/utils"
)

// first decrypted bytes of a later-console client flow; the detector
// locks onto whichever palette key reproduces this.
var onlineLoginSentinel = []byte{0xB4, 0x00, 0x93, 0x00, 0x00, 0x00, 0x00, 0x00}

type Listener struct {
	reg      *Registry
	Dialect  protocol.Dialect
	PortName string
	Port     uint16
	// patch-dialect ports may skip the unlinked phase entirely.
	PresetDestination string

	ln net.Listener
}

func NewListener(reg *Registry, dialect protocol.Dialect, portName string, port uint16, preset string) *Listener {
	return &Listener{reg: reg, Dialect: dialect, PortName: portName, Port: port, PresetDestination: preset}
}

func (l *Listener) Serve() error {
	ln, err := net.Listen(`tcp`, fmt.Sprintf(`:%d`, l.Port))
	if err != nil {
		return err
	}
	l.ln = ln
	log.Println(l.PortName, `listening on`, l.Port)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.Admit(&socket.Socket{Conn: conn})
	}
}

func (l *Listener) Close() {
	if l.ln != nil {
		l.ln.Close()
	}
}

/*
	Greet one accepted client: synthesize the server-init frame carrying
	fresh seeds, arm both client-side ciphers, then either park the
	session as unlinked until its login frame or, on a preset patch port,
	link it right away.
*/
func (l *Listener) Admit(client *socket.Socket) {
	us, err := l.reg.openUnlinked(l.Dialect, l.Port, client)
	if err != nil {
		log.Println(`failed to greet accepted client:`, err)
		client.CloseAll()
		return
	}
	// a preset destination is where this port's clients belong; on the
	// patch dialect it even skips the login wait.
	us.NextDestination = l.PresetDestination
	if l.Dialect == protocol.DialectPatch && len(l.PresetDestination) != 0 {
		l.reg.dropUnlinked(us)
		ls, err := l.reg.linkSession(us, nil, l.PresetDestination)
		if err != nil {
			log.Println(`direct-link bootstrap failed:`, err)
			client.CloseAll()
			return
		}
		go ls.pumpClient()
		return
	}
	go us.readLoop()
}

func (r *Registry) openUnlinked(d protocol.Dialect, port uint16, client *socket.Socket) (*UnlinkedSession, error) {
	us := &UnlinkedSession{
		reg:       r,
		Dialect:   d,
		LocalPort: port,
		client:    client,
		reader:    protocol.NewFrameReader(d),
	}
	var payload []byte
	if d == protocol.DialectBB {
		ss, cs, err := cryptoprotect.GenerateOnlineSeedPair()
		if err != nil {
			return nil, err
		}
		us.onlineServerSeed, us.onlineClientSeed = ss, cs
		payload = append(append([]byte{}, ss...), cs...)
	} else {
		ss, cs, err := cryptoprotect.GenerateSeedPair()
		if err != nil {
			return nil, err
		}
		us.serverSeed, us.clientSeed = ss, cs
		if wireBigEndian(d) {
			payload = append(utils.Uint32ToBigEndianBytes(ss), utils.Uint32ToBigEndianBytes(cs)...)
		} else {
			payload = append(utils.Uint32ToLittleEndianBytes(ss), utils.Uint32ToLittleEndianBytes(cs)...)
		}
	}

	// the greeting itself goes out before any cipher exists.
	raw, err := protocol.EncodeFrame(d, nil, d.ServerInitOpcode(), 0, payload)
	if err != nil {
		return nil, err
	}
	if _, err = client.Write(raw); err != nil {
		return nil, err
	}

	switch d {
	case protocol.DialectBB:
		var palette [][]byte
		if r.Palette != nil {
			palette = r.Palette.CandidateKeys()
		}
		us.det = cryptoprotect.NewDetector(palette, onlineLoginSentinel, us.onlineClientSeed)
		us.out = cryptoprotect.NewImitator(us.det, us.onlineServerSeed)
		us.reader.ArmCipher(us.det)
	case protocol.DialectGC:
		us.out = cryptoprotect.NewBlockMixer(us.serverSeed)
		us.reader.ArmCipher(cryptoprotect.NewBlockMixer(us.clientSeed))
	default:
		us.out = cryptoprotect.NewLegacyStream(us.serverSeed)
		us.reader.ArmCipher(cryptoprotect.NewLegacyStream(us.clientSeed))
	}
	r.trackUnlinked(us)
	return us, nil
}
