package config

import (
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type (
	ListenerConfig struct {
		PortName string `yaml:"PortName"`
		Dialect  string `yaml:"Dialect"`
		Port     uint16 `yaml:"Port"`
		// Patch-dialect ports may carry a preset upstream so a session can be
		// linked without waiting for a login frame.
		PresetDestination string `yaml:"PresetDestination,omitempty"`
	}
	ProxyConfig struct {
		PathToAccessToken string           `yaml:"PathToAccessToken"`
		PathToLicenses    string           `yaml:"PathToLicenses"`
		PathToKeyPalette  string           `yaml:"PathToKeyPalette"`
		SaveFileDir       string           `yaml:"SaveFileDir"`
		CompressDumps     bool             `yaml:"CompressDumps"`
		ControlPort       uint16           `yaml:"ControlPort"`
		Listeners         []ListenerConfig `yaml:"Listeners"`
	}
	ProxyCommunicationConfig struct {
		Local ProxyConfig `yaml:"ProxyConfig"`
	}
)

var (
	safe_read_proxy          sync.RWMutex
	GlobalProxyConfiguration *ProxyCommunicationConfig
)

func ParseProxyYAML(path string) *ProxyCommunicationConfig {
	safe_read_proxy.RLock()
	cfg_data, err := os.ReadFile(path)
	safe_read_proxy.RUnlock()
	if err != nil {
		log.Println(err.Error())
		return nil
	}
	var res ProxyCommunicationConfig
	err = yaml.Unmarshal(cfg_data, &res)
	if err != nil {
		log.Println(err.Error())
		return nil
	}
	return &res
}

// PortDirectory maps the configured port names to their listening ports.
// The lobby-divert reconnect synthesis consults this to point a client back
// at our own login port for its dialect.
func (p *ProxyCommunicationConfig) PortDirectory() map[string]uint16 {
	res := make(map[string]uint16)
	for _, l := range p.Local.Listeners {
		res[l.PortName] = l.Port
	}
	return res
}
