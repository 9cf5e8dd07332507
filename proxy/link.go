// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"log"
	"net"
	"time"

	auth "fivegate/auth"
	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	service "fivegate/service"
	timer "fivegate/service/timer"
	socket "fivegate/socket"
)

const upstreamDialTimeout = 5 * time.Second

/*
	Promote an unlinked session (or bootstrap a direct-linked one): the
	client transport and both client-side ciphers move over as-is, then a
	server leg is dialed. The server's own init frame drives the
	handshake hijack once the pump starts.
*/
func (r *Registry) linkSession(us *UnlinkedSession, lic *auth.License, dest string) (*LinkedSession, error) {
	id := uint32(0)
	if lic != nil {
		id = lic.SerialNumber
	} else {
		id = r.MintUnlicensedID()
	}
	ls := &LinkedSession{
		reg:             r,
		ID:              id,
		Dialect:         us.Dialect,
		LocalPort:       us.LocalPort,
		client:          us.client,
		clientReader:    us.reader,
		clientOut:       us.out,
		det:             us.det,
		License:         lic,
		SavedLoginFrame: us.savedLogin,
		NextDestination: dest,
		Feature:         defaultFeature(),
		Over:            defaultOverrides(),
		saving:          make(map[string]*SavingFile),
	}
	if ls.Dialect == protocol.DialectBB {
		r.attachLobby(ls)
	}
	if err := ls.connectUpstream(); err != nil {
		return nil, err
	}
	r.trackLinked(ls)
	return ls, nil
}

func (ls *LinkedSession) connectUpstream() error {
	dest := ls.NextDestination
	if ok := service.TcpProbe(dest, upstreamDialTimeout); !ok {
		return defErr.Concat(defErr.ErrUpstreamUnavailable, dest)
	}
	conn, err := net.DialTimeout(`tcp`, dest, upstreamDialTimeout)
	if err != nil {
		return defErr.PushErrorToErrChain(defErr.ErrUpstreamUnavailable, err)
	}
	ls.server = &socket.Socket{Conn: conn}
	ls.serverReader = protocol.NewFrameReader(ls.Dialect)
	ls.serverOut = nil // armed by the handshake hijack
	ls.handshakeDone = false
	go ls.pumpServer()
	return nil
}

/*
	Resume: a fresh unlinked session authenticated with the license of a
	disconnected linked one. Its transport and ciphers replace whatever
	this session had, the idle timer dies, and a new server leg is dialed.
*/
func (ls *LinkedSession) resume(us *UnlinkedSession) {
	ls.mu.Lock()
	ls.cancelIdleTimerLocked()
	ls.client = us.client
	ls.clientReader = us.reader
	ls.clientOut = us.out
	ls.det = us.det
	ls.resuming = true
	if len(us.savedLogin) != 0 {
		ls.SavedLoginFrame = us.savedLogin
	}
	ls.mu.Unlock()

	if err := ls.connectUpstream(); err != nil {
		log.Println(`resume failed:`, err)
		ls.disconnect()
		return
	}
	go ls.pumpClient()
}

/* ----------------------------- idle lifecycle ----------------------------- */

func (ls *LinkedSession) idleWindow() time.Duration {
	if ls.License != nil {
		return ls.reg.LicensedTimeout
	}
	return ls.reg.UnlicensedTimeout
}

// caller holds ls.mu.
func (ls *LinkedSession) armIdleTimerLocked() {
	ls.idleGen++
	gen := ls.idleGen
	ok_ch := make(chan bool, 1)
	ls.idleCancel = ok_ch
	window := ls.idleWindow()
	go func() {
		if !timer.TimeoutStruct(window, ok_ch) {
			return // resumed in time
		}
		ls.mu.Lock()
		stale := gen != ls.idleGen || ls.destroyed
		ls.mu.Unlock()
		if !stale {
			ls.destroy()
		}
	}()
}

// caller holds ls.mu.
func (ls *LinkedSession) cancelIdleTimerLocked() {
	if ls.idleCancel != nil {
		select {
		case ls.idleCancel <- true:
		default:
		}
		ls.idleCancel = nil
	}
	ls.idleGen++
}

/*
	Either transport failing tears both transports and all four ciphers
	down at once; the session itself stays behind its idle window so the
	client can come back.
*/
func (ls *LinkedSession) disconnect() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.destroyed {
		return
	}
	if ls.client.Alive() {
		ls.client.CloseAll()
	}
	if ls.server.Alive() {
		ls.server.CloseAll()
	}
	ls.clientReader, ls.serverReader = nil, nil
	ls.clientOut, ls.serverOut, ls.det = nil, nil, nil
	ls.handshakeDone = false
	ls.armIdleTimerLocked()
}

func (ls *LinkedSession) destroy() {
	ls.mu.Lock()
	if ls.destroyed {
		ls.mu.Unlock()
		return
	}
	ls.destroyed = true
	ls.cancelIdleTimerLocked()
	for name, sf := range ls.saving {
		sf.Close()
		delete(ls.saving, name)
	}
	if ls.client.Alive() {
		ls.client.CloseAll()
	}
	if ls.server.Alive() {
		ls.server.CloseAll()
	}
	ls.mu.Unlock()
	if ls.lobby != nil {
		ls.lobby.Detach(ls)
	}
	ls.reg.removeLinked(ls)
}
