// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"errors"
	"log"

	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	socket "fivegate/socket"
)

/*
	One pump per direction per linked session. The pump owns nothing: it
	reads raw bytes off its transport, feeds the frame reader, and runs
	every complete frame through the interception table while holding the
	session lock, so all handler effects for one frame land before the
	next frame of either direction is looked at.
*/

func (ls *LinkedSession) snapshotClient() (*socket.Socket, *protocol.FrameReader) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.client, ls.clientReader
}

func (ls *LinkedSession) snapshotServer() (*socket.Socket, *protocol.FrameReader) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.server, ls.serverReader
}

func (ls *LinkedSession) pumpClient() {
	client, reader := ls.snapshotClient()
	if client == nil || reader == nil {
		return
	}
	// frames that arrived while this session was still unlinked may be
	// sitting in the reader already.
	ls.mu.Lock()
	if !ls.drainFrames(reader, ls.handleClientFrame) {
		ls.mu.Unlock()
		ls.disconnect()
		return
	}
	ls.mu.Unlock()
	for {
		if !client.Alive() {
			return
		}
		raw, _, err := client.Read()
		if err != nil {
			ls.mu.Lock()
			stale := ls.client != client
			ls.mu.Unlock()
			if !stale {
				ls.disconnect()
			}
			return
		}
		ls.mu.Lock()
		if ls.client != client { // replaced by a resume while we slept
			ls.mu.Unlock()
			return
		}
		if err = reader.Feed(raw); err != nil {
			ls.mu.Unlock()
			log.Println(`client flow dead:`, err)
			ls.disconnect()
			return
		}
		if !ls.drainFrames(reader, ls.handleClientFrame) {
			ls.mu.Unlock()
			ls.disconnect()
			return
		}
		ls.mu.Unlock()
	}
}

func (ls *LinkedSession) pumpServer() {
	server, reader := ls.snapshotServer()
	if server == nil || reader == nil {
		return
	}
	for {
		if !server.Alive() {
			return
		}
		raw, _, err := server.Read()
		if err != nil {
			ls.mu.Lock()
			stale := ls.server != server
			ls.mu.Unlock()
			if !stale {
				ls.disconnect()
			}
			return
		}
		ls.mu.Lock()
		if ls.server != server {
			ls.mu.Unlock()
			return
		}
		if err = reader.Feed(raw); err != nil {
			ls.mu.Unlock()
			log.Println(`server flow dead:`, err)
			ls.disconnect()
			return
		}
		if !ls.drainFrames(reader, ls.handleServerFrame) {
			ls.mu.Unlock()
			ls.disconnect()
			return
		}
		ls.mu.Unlock()
	}
}

// caller holds ls.mu. false means the stream is unrecoverable.
func (ls *LinkedSession) drainFrames(reader *protocol.FrameReader, handle func(*protocol.Frame)) bool {
	for {
		frame, err := reader.ReadOne()
		if errors.Is(err, defErr.ErrShortRead) {
			return true
		}
		if err != nil {
			log.Println(`framing trouble:`, err)
			return false
		}
		handle(frame)
	}
}

// caller holds ls.mu.
func (ls *LinkedSession) handleClientFrame(frame *protocol.Frame) {
	if !ls.handshakeDone {
		// the server leg cannot carry anything yet; park the frame.
		if len(ls.pendingC2S) < 64 {
			ls.pendingC2S = append(ls.pendingC2S, frame)
		}
		return
	}
	ls.dispatchC2S(frame)
}

// caller holds ls.mu.
func (ls *LinkedSession) handleServerFrame(frame *protocol.Frame) {
	if !ls.handshakeDone {
		ls.handleServerHandshake(frame)
	} else {
		ls.dispatchS2C(frame)
	}
	ls.rememberServerTail(frame)
}

/*
	Keep the last 8 wire bytes of every server frame around: some remote
	servers send a deliberately truncated reconnect command and rely on
	the stale receive buffer of the real client to complete it.
*/
func (ls *LinkedSession) rememberServerTail(frame *protocol.Frame) {
	whole, err := protocol.BuildFrame(ls.Dialect, frame.Opcode, frame.Flag, frame.Payload)
	if err != nil {
		return
	}
	var tail [8]byte
	if len(whole) >= 8 {
		copy(tail[:], whole[len(whole)-8:])
	} else {
		copy(tail[:], whole)
	}
	ls.prevServerTail = tail
}

// caller holds ls.mu. run the frames parked while the server leg armed.
func (ls *LinkedSession) flushPending() {
	queued := ls.pendingC2S
	ls.pendingC2S = nil
	for _, frame := range queued {
		ls.dispatchC2S(frame)
	}
}
