// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	auth "fivegate/auth"
	proxy "fivegate/proxy"
)

/*
	The operator shell. One line of access token buys a session of
	feature toggles against the single linked session; flags take effect
	on the very next frame, the handlers re-read them every time.
*/
func serveControl(reg *proxy.Registry, port uint16) {
	ln, err := net.Listen(`tcp`, fmt.Sprintf(`127.0.0.1:%d`, port))
	if err != nil {
		log.Fatal(err)
	}
	log.Println(`control shell on`, ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go controlSession(reg, conn)
	}
}

func controlSession(reg *proxy.Registry, conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	ok, why := auth.AuthValidation([]byte(strings.TrimSpace(sc.Text())))
	if !ok {
		fmt.Fprintln(conn, `denied:`, why)
		return
	}
	fmt.Fprintln(conn, `ok`)
	for sc.Scan() {
		reply := runCommand(reg, strings.Fields(sc.Text()))
		fmt.Fprintln(conn, reply)
	}
}

func runCommand(reg *proxy.Registry, words []string) string {
	if len(words) == 0 {
		return ``
	}
	ls, err := reg.CurrentSession()
	if err != nil {
		return `error: ` + err.Error()
	}
	if words[0] != `roster` && len(words) < 2 {
		return `error: missing argument`
	}
	onoff := func(w string) bool { return w == `on` || w == `1` || w == `true` }
	num := func(w string) int64 {
		v, err := strconv.ParseInt(w, 0, 64)
		if err != nil {
			return -1
		}
		return v
	}
	switch words[0] {
	case `suppress`:
		ls.SetFeature(func(f *proxy.Feature) { f.SuppressCommands = onoff(words[1]) })
	case `chatfilter`:
		ls.SetFeature(func(f *proxy.Feature) { f.ChatFilter = onoff(words[1]) })
	case `switchassist`:
		ls.SetFeature(func(f *proxy.Feature) { f.SwitchAssist = onoff(words[1]) })
	case `infhp`:
		ls.SetFeature(func(f *proxy.Feature) { f.InfiniteHP = onoff(words[1]) })
	case `inftp`:
		ls.SetFeature(func(f *proxy.Feature) { f.InfiniteTP = onoff(words[1]) })
	case `savefiles`:
		ls.SetFeature(func(f *proxy.Feature) { f.SaveFiles = onoff(words[1]) })
	case `intercept`:
		ls.SetFeature(func(f *proxy.Feature) { f.InterceptCalls = onoff(words[1]) })
	case `lobbyevent`:
		ls.SetOverrides(func(o *proxy.Overrides) { o.LobbyEvent = int16(num(words[1])) })
	case `lobbynum`:
		ls.SetOverrides(func(o *proxy.Overrides) { o.LobbyNumber = int16(num(words[1])) })
	case `sectionid`:
		ls.SetOverrides(func(o *proxy.Overrides) { o.SectionID = int16(num(words[1])) })
	case `fnret`:
		ls.SetOverrides(func(o *proxy.Overrides) { o.FnCallReturn = num(words[1]) })
	case `roster`:
		var sb strings.Builder
		for slot, entry := range ls.RosterSnapshot() {
			if entry.ID == 0 {
				continue
			}
			fmt.Fprintf(&sb, "%02d %08X %s\n", slot, entry.ID, entry.Name)
		}
		return sb.String()
	default:
		return `error: unknown command ` + words[0]
	}
	return `ok`
}
