// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package auth

import (
	"errors"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

/*
A License is the durable identity of one paying player.

	SerialNumber doubles as the session id of the holder's linked session,
	so at most one live session exists per license.
*/
type License struct {
	SerialNumber uint32 `yaml:"SerialNumber"`
	AccessKey    string `yaml:"AccessKey"`
	Username     string `yaml:"Username"`
	Password     string `yaml:"Password"`
}

var ErrLicenseNotFound = errors.New(`no matching license`)

// LicenseAuthority resolves client credentials to a license record.
// The desktop and console families identify by serial/access-key, the
// later-console family by username/password.
type LicenseAuthority interface {
	VerifyDesktop(serial uint32, accessKey string) (*License, error)
	VerifyConsole(serial uint32, accessKey string) (*License, error)
	VerifyOnline(username, password string) (*License, error)
}

type FileLicenseAuthority struct {
	mu       sync.RWMutex
	licenses []License
}

func LoadLicenseFile(path string) (*FileLicenseAuthority, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Licenses []License `yaml:"Licenses"`
	}
	if err = yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	log.Println(len(parsed.Licenses), `licenses loaded from`, path)
	return &FileLicenseAuthority{licenses: parsed.Licenses}, nil
}

func (fa *FileLicenseAuthority) VerifyDesktop(serial uint32, accessKey string) (*License, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()
	for i := range fa.licenses {
		l := &fa.licenses[i]
		if l.SerialNumber == serial && l.AccessKey == accessKey {
			res := *l
			return &res, nil
		}
	}
	return nil, ErrLicenseNotFound
}

// console family shares the serial/access-key check with the desktop one.
func (fa *FileLicenseAuthority) VerifyConsole(serial uint32, accessKey string) (*License, error) {
	return fa.VerifyDesktop(serial, accessKey)
}

func (fa *FileLicenseAuthority) VerifyOnline(username, password string) (*License, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()
	for i := range fa.licenses {
		l := &fa.licenses[i]
		if l.Username == username && l.Password == password {
			res := *l
			return &res, nil
		}
	}
	return nil, ErrLicenseNotFound
}
