// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"errors"
	"log"
	"sync"
	"time"

	auth "fivegate/auth"
	cryptoprotect "fivegate/cryptoProtect"
	defErr "fivegate/defErr"
	protocol "fivegate/protocol"
	socket "fivegate/socket"
	utils "fivegate/utils"
)

const (
	// unlicensed session ids live in a reserved high range.
	unlicensedIDBase = uint32(0xFF000000)

	LicensedIdleTimeout   = 5 * time.Minute
	UnlicensedIdleTimeout = 10 * time.Second

	rosterLobbySlots = 12
	rosterGameSlots  = 4
)

type rosterEntry struct {
	ID   uint32
	Name string
}

// feature toggles, read by handlers on every frame.
type Feature struct {
	SuppressCommands bool
	ChatFilter       bool
	SwitchAssist     bool
	InfiniteHP       bool
	InfiniteTP       bool
	SaveFiles        bool
	// InterceptCalls is stored and settable from the control socket, but
	// no handler reads it; 0xB2 answering depends on Overrides.FnCallReturn
	// alone.
	InterceptCalls   bool
}

func defaultFeature() Feature {
	return Feature{SuppressCommands: true, ChatFilter: true}
}

// field overrides applied to lobby- and game-join frames, plus the value
// returned for intercepted 0xB2 calls; negative means off.
type Overrides struct {
	LobbyEvent   int16
	LobbyNumber  int16
	SectionID    int16
	FnCallReturn int64
}

func defaultOverrides() Overrides {
	return Overrides{LobbyEvent: -1, LobbyNumber: -1, SectionID: -1, FnCallReturn: -1}
}

/*
UnlinkedSession: accepted but not yet identified.

	Owns the client transport and its cipher pair; terminates on the first
	frame that either promotes it (login) or fails validation.
*/
type UnlinkedSession struct {
	reg       *Registry
	Dialect   protocol.Dialect
	LocalPort uint16

	client *socket.Socket
	reader *protocol.FrameReader
	out    cryptoprotect.StreamCipher
	det    *cryptoprotect.Detector

	serverSeed, clientSeed             uint32
	onlineServerSeed, onlineClientSeed []byte
	savedLogin                         []byte

	NextDestination string
}

/*
LinkedSession: the durable unit joining one client to one upstream.

	Survives client disconnects inside the idle window; all four ciphers,
	the detector included, are torn down as one group.
*/
type LinkedSession struct {
	mu  sync.Mutex
	reg *Registry

	ID        uint32
	Dialect   protocol.Dialect
	LocalPort uint16

	client, server             *socket.Socket
	clientReader, serverReader *protocol.FrameReader
	clientOut, serverOut       cryptoprotect.StreamCipher
	det                        *cryptoprotect.Detector

	License         *auth.License
	RemoteGuildCard uint32
	SavedLoginFrame []byte // later-console only, replayed on resume
	ClientConfig    []byte

	Roster   [rosterLobbySlots]rosterEntry
	SelfSlot byte
	InGame   bool
	Loading  bool
	Ep3      bool

	Feature Feature
	Over    Overrides

	lastSwitch     *protocol.Frame
	prevServerTail [8]byte

	NextDestination string
	remoteIPCrc     uint32
	crcPatchWanted  bool

	saving map[string]*SavingFile
	lobby  *Lobby

	handshakeDone bool
	resuming      bool
	pendingC2S    []*protocol.Frame // queued until the server leg is armed

	idleGen    int // invalidates a pending idle timer on resume
	idleCancel chan bool
	destroyed  bool
}

/*
Registry of every session this proxy owns.

	Two maps: client transport to unlinked, session id to linked. A linked
	session with a license is indexed by the license serial; at most one
	live session per serial.
*/
type Registry struct {
	mu             sync.RWMutex
	unlinked       map[*socket.Socket]*UnlinkedSession
	linked         map[uint32]*LinkedSession
	nextUnlicensed uint32
	bbLobby        *Lobby

	Licenses auth.LicenseAuthority
	Palette  KeyPaletteProvider
	PortDir  map[string]uint16
	Items    CommonItemCreator
	Levels   LevelTable
	Rares    RareItemSet
	Disasm   Disassembler

	SaveFileDir   string
	CompressDumps bool

	// overridable in tests; production values above.
	LicensedTimeout   time.Duration
	UnlicensedTimeout time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		unlinked:          make(map[*socket.Socket]*UnlinkedSession),
		linked:            make(map[uint32]*LinkedSession),
		nextUnlicensed:    unlicensedIDBase,
		PortDir:           make(map[string]uint16),
		LicensedTimeout:   LicensedIdleTimeout,
		UnlicensedTimeout: UnlicensedIdleTimeout,
	}
}

// mint an id in the reserved range. The counter wraps back to the first
// reserved value; zero is never produced.
func (r *Registry) MintUnlicensedID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.nextUnlicensed
	if res < unlicensedIDBase {
		res = unlicensedIDBase
	}
	r.nextUnlicensed = res + 1
	if r.nextUnlicensed < unlicensedIDBase { // wrapped past 0xFFFFFFFF
		r.nextUnlicensed = unlicensedIDBase
	}
	return res
}

func (r *Registry) trackUnlinked(us *UnlinkedSession) {
	r.mu.Lock()
	r.unlinked[us.client] = us
	r.mu.Unlock()
}

func (r *Registry) dropUnlinked(us *UnlinkedSession) {
	r.mu.Lock()
	delete(r.unlinked, us.client)
	r.mu.Unlock()
}

func (r *Registry) trackLinked(ls *LinkedSession) {
	r.mu.Lock()
	r.linked[ls.ID] = ls
	r.mu.Unlock()
}

func (r *Registry) LinkedByID(id uint32) *LinkedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linked[id]
}

func (r *Registry) removeLinked(ls *LinkedSession) {
	r.mu.Lock()
	delete(r.linked, ls.ID)
	r.mu.Unlock()
}

// convenience for the surrounding command shell, never for the pumps.
func (r *Registry) CurrentSession() (*LinkedSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.linked) != 1 {
		return nil, errors.New(`not exactly one linked session`)
	}
	for _, ls := range r.linked {
		return ls, nil
	}
	return nil, errors.New(`unreachable`)
}

func (r *Registry) LinkedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.linked)
}

/* --------------------------- operator controls --------------------------- */

// the shell mutates toggles through here; handlers read them on every
// frame, so the effect is immediate.
func (ls *LinkedSession) SetFeature(mutate func(*Feature)) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	mutate(&ls.Feature)
}

func (ls *LinkedSession) SetOverrides(mutate func(*Overrides)) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	mutate(&ls.Over)
}

func (ls *LinkedSession) RosterSnapshot() [rosterLobbySlots]rosterEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.Roster
}

/* ------------------------- per-dialect field order ------------------------- */

func (ls *LinkedSession) readU32(b []byte) uint32 {
	if wireBigEndian(ls.Dialect) {
		return utils.BigEndianBytesToUint32([4]byte(b[:4]))
	}
	return utils.LittleEndianBytesToUint32([4]byte(b[:4]))
}

func (ls *LinkedSession) putU32(b []byte, v uint32) {
	if wireBigEndian(ls.Dialect) {
		copy(b, utils.Uint32ToBigEndianBytes(v))
	} else {
		copy(b, utils.Uint32ToLittleEndianBytes(v))
	}
}

func (ls *LinkedSession) readU16(b []byte) uint16 {
	if wireBigEndian(ls.Dialect) {
		return utils.BigEndianBytesToUint16([2]byte(b[:2]))
	}
	return utils.LittleEndianBytesToUint16([2]byte(b[:2]))
}

func (ls *LinkedSession) putU16(b []byte, v uint16) {
	if wireBigEndian(ls.Dialect) {
		copy(b, utils.Uint16ToBigEndianBytes(v))
	} else {
		copy(b, utils.Uint16ToLittleEndianBytes(v))
	}
}

func wireBigEndian(d protocol.Dialect) bool {
	return d == protocol.DialectDC || d == protocol.DialectGC
}

/* ------------------------------ frame output ------------------------------ */

func (ls *LinkedSession) WriteClient(opcode uint16, flag uint32, payload []byte) error {
	if !ls.client.Alive() {
		log.Println(`warning:`, defErr.ErrPeerAbsent, `dropping`, opcode, `toward client`)
		return defErr.ErrPeerAbsent
	}
	raw, err := protocol.EncodeFrame(ls.Dialect, ls.clientOut, opcode, flag, payload)
	if err != nil {
		return err
	}
	_, err = ls.client.Write(raw)
	return err
}

func (ls *LinkedSession) WriteServer(opcode uint16, flag uint32, payload []byte) error {
	if !ls.server.Alive() {
		log.Println(`warning:`, defErr.ErrPeerAbsent, `dropping`, opcode, `toward server`)
		return defErr.ErrPeerAbsent
	}
	raw, err := protocol.EncodeFrame(ls.Dialect, ls.serverOut, opcode, flag, payload)
	if err != nil {
		return err
	}
	_, err = ls.server.Write(raw)
	return err
}
