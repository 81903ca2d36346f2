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

// Package logger provides the engine's ambient logging: a small leveled
// logger (trimmed down from the teacher's logger/glog machinery, colored
// with fatih/color rather than hand-rolled ANSI escapes) and a structured
// "mlog" event facility mirroring p2p/mlog.go and p2p/discover/mlog.go.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is a log severity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgBlue),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelCrit:  color.New(color.FgMagenta, color.Bold),
}

// Std is the process-wide leveled logger, writing to stderr at LevelInfo
// by default. Components should prefer a component-scoped Logger from
// NewLogger for structured (mlog) output, and use Std only for plain
// free-text operational messages (bind retries, NAT mapping failures,
// storage backend errors).
var Std = &StdLogger{out: os.Stderr, level: LevelInfo}

// StdLogger is a minimal leveled logger writing colorized lines.
type StdLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// SetOutput redirects where log lines are written.
func (l *StdLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetLevel sets the minimum severity that will be emitted.
func (l *StdLogger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

func (l *StdLogger) logf(lvl Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl < l.level {
		return
	}
	prefix := levelColor[lvl].Sprintf("[%-5s]", lvl)
	fmt.Fprintf(l.out, "%s %s %s\n", time.Now().Format(time.RFC3339), prefix, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }
func (l *StdLogger) Infof(format string, args ...interface{})  { l.logf(LevelInfo, format, args...) }
func (l *StdLogger) Warnf(format string, args ...interface{})  { l.logf(LevelWarn, format, args...) }
func (l *StdLogger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }
func (l *StdLogger) Critf(format string, args ...interface{})  { l.logf(LevelCrit, format, args...) }
