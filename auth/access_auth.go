// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package auth

import (
	"errors"
	"log"
	"os"
	"sync"

	config "fivegate/config"
	utils "fivegate/utils"
)

const (
	TokenLen     = 16
	ExpiringTime = 3 // TODO: flush access token after expiration.
)

var authMu sync.RWMutex

func tokenPath() (string, error) {
	if config.GlobalProxyConfiguration == nil {
		return ``, errors.New(`proxy configuration has not been loaded yet`)
	}
	return config.GlobalProxyConfiguration.Local.PathToAccessToken, nil
}

// validate whether a provided string is equal to access token.
func AuthValidation(remote_token []byte) (bool, string) {
	buf, err := ReadAccessToken()
	if err != nil {
		return false, "Failed to read from the ack file due to" + err.Error()
	}
	if len(buf) == 0 {
		return false, "Failed to authenticate due to empty token."
	}
	flag, reason := utils.CmpByte2Slices(buf, remote_token)
	return flag, reason
}

// testify whether access token is generated to the file.
func IsAcessTokenExisited() bool {
	path, err := tokenPath()
	if err != nil {
		return false
	}
	_, err = os.Lstat(path)
	return !os.IsNotExist(err)
}

// create access token and store in a file. if failed, panic.
func CreateAccessToken() {
	if IsAcessTokenExisited() {
		return
	}
	path, err := tokenPath()
	if err != nil {
		panic(err)
	}
	buf := utils.GenerateEnterableRandomString(TokenLen)
	err = os.WriteFile(path, []byte(buf), 0o644)
	if err != nil {
		panic(err)
	}
	log.Println(`accessToken is "` + buf + `"`)
}

// read the access token from file. if failed, return an empty slice and error.
func ReadAccessToken() ([]byte, error) {
	path, err := tokenPath()
	if err != nil {
		return []byte{}, err
	}
	authMu.RLock()
	res, err := os.ReadFile(path)
	authMu.RUnlock()
	if err != nil {
		return []byte{}, err
	}
	return res, nil
}

// if failed, panic.
func RemoveAccessFile() {
	path, err := tokenPath()
	if err != nil {
		return
	}
	authMu.Lock()
	err = os.Remove(path)
	authMu.Unlock()
	if err != nil {
		panic(err)
	}
	log.Println(`Access token has been removed.`)
}

// if failed to change, panic.
func ChangeToken() string {
	if !IsAcessTokenExisited() {
		return ``
	}
	path, _ := tokenPath()
	res := utils.GenerateEnterableRandomString(TokenLen)
	authMu.Lock()
	err := os.WriteFile(path, []byte(res), 0o644)
	authMu.Unlock()
	if err != nil {
		panic(err)
	}
	return res
}

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)
}
