// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	auth "fivegate/auth"
	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	socket "fivegate/socket"
)

/*
	In-memory transport for handler tests: writes land in a buffer the
	test drains afterwards. Reads report empty instead of blocking, which
	is all a pumpless test needs.
*/
type bufConn struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *bufConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Read(p)
}

func (c *bufConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *bufConn) drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := append([]byte{}, c.buf.Bytes()...)
	c.buf.Reset()
	return res
}

func (c *bufConn) Close() error                       { return nil }
func (c *bufConn) LocalAddr() net.Addr                { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *bufConn) RemoteAddr() net.Addr               { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *bufConn) SetDeadline(t time.Time) error      { return nil }
func (c *bufConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *bufConn) SetWriteDeadline(t time.Time) error { return nil }

// identity cipher: lets a test inspect "encrypted" output as-is.
type nullCipher struct{}

func (nc *nullCipher) SetKey(key []byte)                    {}
func (nc *nullCipher) SetIv(iv []byte)                      {}
func (nc *nullCipher) GetKey() []byte                       { return nil }
func (nc *nullCipher) GetKeyLen() uint64                    { return 0 }
func (nc *nullCipher) GetIvLen() uint64                     { return 0 }
func (nc *nullCipher) EncryptFlow(msg []byte) ([]byte, error) { return msg, nil }
func (nc *nullCipher) DecryptFlow(msg []byte) ([]byte, error) { return msg, nil }

type testEnds struct {
	client *bufConn
	server *bufConn
}

func newTestSession(d protocol.Dialect, lic *auth.License, reg *Registry) (*LinkedSession, *testEnds) {
	if reg == nil {
		reg = NewRegistry()
	}
	ends := &testEnds{client: &bufConn{}, server: &bufConn{}}
	ls := &LinkedSession{
		reg:           reg,
		ID:            0xFF000001,
		Dialect:       d,
		LocalPort:     9100,
		client:        &socket.Socket{Conn: ends.client},
		server:        &socket.Socket{Conn: ends.server},
		clientReader:  protocol.NewFrameReader(d),
		serverReader:  protocol.NewFrameReader(d),
		License:       lic,
		Over:          defaultOverrides(),
		saving:        make(map[string]*SavingFile),
		handshakeDone: true,
	}
	if lic != nil {
		ls.ID = lic.SerialNumber
	}
	reg.trackLinked(ls)
	return ls, ends
}

func framesOf(d protocol.Dialect, raw []byte) ([]*protocol.Frame, error) {
	reader := protocol.NewFrameReader(d)
	if err := reader.Feed(raw); err != nil {
		return nil, err
	}
	var res []*protocol.Frame
	for {
		frame, err := reader.ReadOne()
		if errors.Is(err, defErr.ErrShortRead) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res = append(res, frame)
	}
}
