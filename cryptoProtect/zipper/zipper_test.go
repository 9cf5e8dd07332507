// SPDX-LICENSE-IDENTIFIER: GPL-2.0-ONLY
// (C) 2024 Author: <kisfg@hotmail.com>
package zipper

import (
	"bytes"
	"testing"

	cryptoprotect "fivegate/cryptoProtect"
)

func TestZlibRoundTrip(t *testing.T) {
	helo := `my name is john. I am now majoring at GolangPrograming and distributed systems.` +
		`For some reasons, I encountered an intricacy which drove me mad so I come here to ask you for help.`
	bhelo := []byte(helo)
	var zz cryptoprotect.CompOption = &Zlib{}
	zz.InitCompresser()
	man, err := zz.CompressMsg(bhelo)
	if err != nil {
		t.Fatal(err)
	}
	zz.InitDecompresser()
	back, err := zz.DecompressMsg(man)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, bhelo) {
		t.Error(`zlib roundtrip lost bytes`)
	}
}

func TestIdCompresserIsIdentity(t *testing.T) {
	var id cryptoprotect.CompOption = &IdCompresser{}
	msg := []byte{0x00, 0x13, 0x44, 0xA7}
	man, _ := id.CompressMsg(msg)
	if !bytes.Equal(man, msg) {
		t.Error(`identity compresser altered the payload`)
	}
}
