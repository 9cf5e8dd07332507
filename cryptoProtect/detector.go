// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package cryptoprotect

import (
	"bytes"

	defErr "fivegate/defErr"
)

/*
Detector cipher for the later-console family.

	The client's inbound cipher is seeded with a palette of candidate keys
	rather than one key. On the first frame the detector decrypts the
	leading bytes with every candidate and locks onto the one that yields
	the expected sentinel; subsequent reads run on the locked key only.
	The three sibling ciphers of the session are imitators that defer to
	this decision.
*/
type Detector struct {
	candidates [][]byte
	sentinel   []byte
	peerSeed   []byte
	lockedIdx  int
	inner      StreamCipher
}

func NewDetector(candidates [][]byte, sentinel, peerSeed []byte) *Detector {
	return &Detector{
		candidates: candidates,
		sentinel:   sentinel,
		peerSeed:   peerSeed,
		lockedIdx:  -1,
	}
}

func (d *Detector) Locked() bool      { return d.lockedIdx >= 0 }
func (d *Detector) LockedIdx() int    { return d.lockedIdx }
func (d *Detector) SentinelLen() int  { return len(d.sentinel) }
func (d *Detector) LockedKey() []byte { return d.candidates[d.lockedIdx] }

/*
	Try every candidate against the first ciphertext bytes. The trial
	cipher is thrown away on a match so the locked stream starts over at
	position zero for the real decryption.
*/
func (d *Detector) TryLock(cipherPrefix []byte) error {
	if d.Locked() {
		return nil
	}
	if len(cipherPrefix) < len(d.sentinel) {
		return defErr.ErrShortRead
	}
	for idx, cand := range d.candidates {
		trial := NewOnlineMixer(cand, d.peerSeed)
		plain, err := trial.DecryptFlow(cipherPrefix[:len(d.sentinel)])
		if err != nil {
			return err
		}
		if bytes.Equal(plain, d.sentinel) {
			d.lockedIdx = idx
			d.inner = NewOnlineMixer(cand, d.peerSeed)
			return nil
		}
	}
	return defErr.ErrCipherMismatch
}

func (d *Detector) EncryptFlow(msg []byte) ([]byte, error) {
	if !d.Locked() {
		return nil, defErr.ErrCipherMismatch
	}
	return d.inner.EncryptFlow(msg)
}

func (d *Detector) DecryptFlow(msg []byte) ([]byte, error) {
	if !d.Locked() {
		return nil, defErr.ErrCipherMismatch
	}
	return d.inner.DecryptFlow(msg)
}

// the palette, not the caller, owns key material.
func (d *Detector) SetKey(key []byte) {}
func (d *Detector) SetIv(iv []byte)   {}

func (d *Detector) GetKey() []byte {
	if !d.Locked() {
		return nil
	}
	return d.LockedKey()
}

func (d *Detector) GetKeyLen() uint64 { return OnlineKeyLen }
func (d *Detector) GetIvLen() uint64  { return 0 }

/*
Imitator cipher bound to a detector.

	Holds a shared handle to the detector and performs its own keyed
	expansion from the locked palette key plus its own direction seed.
	Usable only after the detector locks; the session tears all four
	down as one group, so the handle always outlives the imitator.
*/
type Imitator struct {
	det   *Detector
	seed  []byte
	inner StreamCipher
}

func NewImitator(det *Detector, seed []byte) *Imitator {
	return &Imitator{det: det, seed: seed}
}

func (im *Imitator) ready() error {
	if im.inner != nil {
		return nil
	}
	if !im.det.Locked() {
		return defErr.ErrCipherMismatch
	}
	im.inner = NewOnlineMixer(im.det.LockedKey(), im.seed)
	return nil
}

func (im *Imitator) EncryptFlow(msg []byte) ([]byte, error) {
	if err := im.ready(); err != nil {
		return nil, err
	}
	return im.inner.EncryptFlow(msg)
}

func (im *Imitator) DecryptFlow(msg []byte) ([]byte, error) {
	if err := im.ready(); err != nil {
		return nil, err
	}
	return im.inner.DecryptFlow(msg)
}

func (im *Imitator) SetKey(key []byte) {}
func (im *Imitator) SetIv(iv []byte)   {}

func (im *Imitator) GetKey() []byte {
	if err := im.ready(); err != nil {
		return nil
	}
	return im.inner.GetKey()
}

func (im *Imitator) GetKeyLen() uint64 { return OnlineKeyLen }
func (im *Imitator) GetIvLen() uint64  { return 0 }
