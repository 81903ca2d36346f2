// Copyright 2015 The kadcore Authors
// This file is part of the kadcore library.
//
// The kadcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The kadcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the kadcore library. If not, see <http://www.gnu.org/licenses/>.

package logger

import (
	"math/rand"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
)

// Identity describes the running process for the purpose of tagging
// structured mlog lines, directly grounded on
// common/version.go:ClientSessionIdentityT.
type Identity struct {
	Version   string
	Hostname  string
	Username  string
	MachineID string
	Goos      string
	Goarch    string
	Goversion string
	Pid       int
	SessionID string
	StartTime time.Time
}

// SessionIdentity is the process-wide identity stamped onto every mlog line.
var SessionIdentity = newIdentity()

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randSessionID(n int) string {
	rng := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rng.Intn(len(letterBytes))]
	}
	return string(b)
}

func newIdentity() *Identity {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	username := "unknown"
	if cur, err := user.Current(); err == nil {
		username = strings.Replace(cur.Username, `\`, "_", -1)
	}

	mid := hostname + "." + username
	if raw, err := machineid.ID(); err == nil {
		if protected, err := machineid.ProtectedID(raw); err == nil {
			mid = protected
		}
	}
	if len(mid) > 8 {
		mid = mid[:8]
	}

	return &Identity{
		Version:   "dev",
		Hostname:  hostname,
		Username:  username,
		MachineID: mid,
		Goos:      runtime.GOOS,
		Goarch:    runtime.GOARCH,
		Goversion: runtime.Version(),
		Pid:       os.Getpid(),
		SessionID: randSessionID(4),
		StartTime: time.Now(),
	}
}
