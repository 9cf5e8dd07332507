package config

import (
	"encoding/hex"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type paletteFile struct {
	CandidateKeys []string `yaml:"CandidateKeys"`
}

// ParsePaletteYAML reads the hex-encoded candidate key list for the
// later-console detector cipher.
func ParsePaletteYAML(path string) [][]byte {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Println(err.Error())
		return nil
	}
	var parsed paletteFile
	if err = yaml.Unmarshal(raw, &parsed); err != nil {
		log.Println(err.Error())
		return nil
	}
	var res [][]byte
	for _, enc := range parsed.CandidateKeys {
		key, err := hex.DecodeString(enc)
		if err != nil {
			log.Println(`skipping malformed candidate key:`, err.Error())
			continue
		}
		res = append(res, key)
	}
	return res
}
