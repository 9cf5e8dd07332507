// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package main

import (
	"flag"
	"log"
	"os"

	auth "fivegate/auth"
	config "fivegate/config"
	protocol "fivegate/protocol"
	proxy "fivegate/proxy"
)

func main() {
	cfgPath := flag.String(`config`, `./proxy.yaml`, `path to the proxy yaml`)
	flag.Parse()

	cfg := config.ParseProxyYAML(*cfgPath)
	if cfg == nil {
		log.Fatal(`cannot start without a readable configuration`)
	}
	config.GlobalProxyConfiguration = cfg
	auth.CreateAccessToken()

	reg := proxy.NewRegistry()
	reg.PortDir = cfg.PortDirectory()
	reg.SaveFileDir = cfg.Local.SaveFileDir
	reg.CompressDumps = cfg.Local.CompressDumps
	if err := os.MkdirAll(cfg.Local.SaveFileDir, 0o755); err != nil {
		log.Fatal(err)
	}

	if authy, err := auth.LoadLicenseFile(cfg.Local.PathToLicenses); err == nil {
		reg.Licenses = authy
	} else {
		log.Println(`running without licenses (passthrough only):`, err)
	}
	if keys := config.ParsePaletteYAML(cfg.Local.PathToKeyPalette); keys != nil {
		reg.Palette = &proxy.StaticKeyPalette{Keys: keys}
	} else {
		log.Println(`running without a key palette; later-console clients cannot link`)
	}

	for _, lcfg := range cfg.Local.Listeners {
		dialect, ok := protocol.DialectFromName(lcfg.Dialect)
		if !ok {
			log.Fatal(`unknown dialect in config: `, lcfg.Dialect)
		}
		l := proxy.NewListener(reg, dialect, lcfg.PortName, lcfg.Port, lcfg.PresetDestination)
		go func() {
			if err := l.Serve(); err != nil {
				log.Println(l.PortName, `listener stopped:`, err)
			}
		}()
	}

	serveControl(reg, cfg.Local.ControlPort)
}
