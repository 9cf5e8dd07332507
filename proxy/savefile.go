// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package proxy

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	zipper "fivegate/cryptoProtect/zipper"
	protocol "fivegate/protocol"
)

const (
	fileNameFieldLen = 32
	fileChunkMax     = 0x400
)

/*
SavingFile: one server-declared file stream being mirrored to disk.

	Keyed by the declared name; lives from the open command to the last
	chunk or the end of the session, whichever comes first.
*/
type SavingFile struct {
	DeclaredName string
	OutputName   string
	Remaining    uint32
	fh           *os.File
}

func (sf *SavingFile) Close() {
	if sf.fh != nil {
		sf.fh.Close()
		sf.fh = nil
	}
}

// control characters, path separators and a leading dot all flatten to
// underscore; the server picks this name, not anyone we trust.
func sanitizeFileName(name string) string {
	res := []byte(name)
	for i, ch := range res {
		if ch < 0x20 || ch == '/' || ch == '\\' || ch == ':' {
			res[i] = '_'
		}
	}
	if len(res) > 0 && res[0] == '.' {
		res[0] = '_'
	}
	return string(res)
}

func (ls *LinkedSession) onFileOpen(frame *protocol.Frame) {
	if ls.Feature.SaveFiles && len(frame.Payload) >= fileNameFieldLen+4 {
		declared := trimCStr(frame.Payload[:fileNameFieldLen])
		total := ls.readU32(frame.Payload[fileNameFieldLen : fileNameFieldLen+4])
		kind := `online`
		if frame.Opcode == protocol.CmdDLFileOpen {
			kind = `download`
		}
		ls.openSavingFile(declared, kind, total)
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

func (ls *LinkedSession) openSavingFile(declared, kind string, total uint32) {
	outName := fmt.Sprintf(`%s.%s.%d`, sanitizeFileName(declared), kind, time.Now().UnixNano())
	path := filepath.Join(ls.reg.SaveFileDir, outName)
	fh, err := os.Create(path)
	if err != nil {
		log.Println(`warning: cannot open dump file:`, err)
		return
	}
	if old, dup := ls.saving[declared]; dup {
		old.Close()
	}
	ls.saving[declared] = &SavingFile{
		DeclaredName: declared,
		OutputName:   outName,
		Remaining:    total,
		fh:           fh,
	}
	log.Println(`saving`, declared, `as`, outName, `(`, total, `bytes )`)
}

func (ls *LinkedSession) onFileChunk(frame *protocol.Frame) {
	if len(frame.Payload) > fileNameFieldLen {
		declared := trimCStr(frame.Payload[:fileNameFieldLen])
		if sf, ok := ls.saving[declared]; ok {
			data := frame.Payload[fileNameFieldLen:]
			if len(data) > fileChunkMax {
				log.Println(`warning: oversized chunk for`, declared, `truncating`)
				data = data[:fileChunkMax]
			}
			if uint32(len(data)) > sf.Remaining {
				data = data[:sf.Remaining]
			}
			if sf.fh != nil {
				sf.fh.Write(data)
			}
			sf.Remaining -= uint32(len(data))
			if sf.Remaining == 0 {
				sf.Close()
				delete(ls.saving, declared)
			}
		}
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

// card update: the leading 4 bytes declare the useful length.
func (ls *LinkedSession) onCardUpdate(frame *protocol.Frame) {
	if ls.Feature.SaveFiles && len(frame.Payload) >= 4 {
		declared := ls.readU32(frame.Payload[0:4])
		data := frame.Payload[4:]
		if uint32(len(data)) > declared {
			data = data[:declared]
		}
		ls.dumpBlob(`cardupdate`, `mnr`, data)
	}
	ls.WriteClient(frame.Opcode, frame.Flag, frame.Payload)
}

func mapDumpName(id uint32) string {
	return fmt.Sprintf(`map%08X`, id)
}

// one-shot dump with the shared naming convention; optionally
// zlib-packed when the operator asked for compact dumps.
func (ls *LinkedSession) dumpBlob(prefix, ext string, data []byte) string {
	name := fmt.Sprintf(`%s.%d.%s`, prefix, time.Now().UnixNano(), ext)
	if ls.reg.CompressDumps {
		zz := &zipper.Zlib{}
		packed, err := zz.CompressMsg(data)
		if err == nil {
			data, name = packed, name+`.zz`
		}
	}
	path := filepath.Join(ls.reg.SaveFileDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Println(`warning: dump failed:`, err)
		return ``
	}
	return name
}
