// Copyright 2017 The kadcore Authors
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

// This file is home to the structured event ("mlog") facility, a direct
// port of the shape used by p2p/mlog.go and p2p/discover/mlog.go: each
// package declares its available mlog lines as MLogT package vars and
// emits them with SetDetailValues at call sites.

package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// MLogDetailT names one field of a structured log line: which component
// owns it, its key, and its declared value type (documentation only).
type MLogDetailT struct {
	Owner string
	Key   string
	Value string
}

// MLogT describes one structured log line shape: a Receiver performing a
// Verb on a Subject, carrying a fixed set of MLogDetailT fields.
type MLogT struct {
	Description string
	Receiver    string
	Verb        string
	Subject     string
	Details     []MLogDetailT

	mu     sync.Mutex
	values []interface{}
}

// SetDetailValues binds values to this line's declared Details, in order,
// and returns the line for the caller to pass to Logger.Infoln; it emits
// nothing itself.
func (m *MLogT) SetDetailValues(values ...interface{}) *MLogT {
	m.mu.Lock()
	m.values = values
	m.mu.Unlock()
	return m
}

func (m *MLogT) format(identity *Identity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s SESSION=%s HOST=%s MACHINE=%s %s.%s.%s",
		time.Now().Format(time.RFC3339Nano), identity.SessionID, identity.Hostname,
		identity.MachineID, m.Receiver, m.Verb, m.Subject)
	for i, d := range m.Details {
		var v interface{}
		if i < len(m.values) {
			v = m.values[i]
		}
		fmt.Fprintf(&b, " %s.%s=%v", d.Owner, d.Key, v)
	}
	return b.String()
}

// Logger is a component-scoped emitter of MLogT lines, mirroring
// p2p/discover/mlog.go's package-level `mlog *logger.Logger`.
type Logger struct {
	component string
	mu        sync.Mutex
	out       *os.File
}

// MLogRegisterAvailable documents which MLogT lines a component emits;
// kept for parity with the teacher's registration call, it has no
// runtime effect beyond returning the component name.
func MLogRegisterAvailable(component string, lines []*MLogT) string {
	return component
}

// NewLogger creates a component-scoped structured logger writing to
// stderr, matching logger.NewLogger(component) in the teacher.
func NewLogger(component string) *Logger {
	return &Logger{component: component, out: os.Stderr}
}

// Infoln emits a single structured MLogT line.
func (l *Logger) Infoln(line *MLogT) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[mlog:%s] %s\n", l.component, line.format(SessionIdentity))
}
