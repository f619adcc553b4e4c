// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logger implements a leveled logger with named facilities, each
// with its own debug switch.
//
// Debugging can be enabled at startup by listing facility names (or "all")
// in the SSDPTRACE environment variable.
package logger

import (
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	numLevels
)

var levelNames = [numLevels]string{"DEBUG", "INFO", "WARNING"}

func (l LogLevel) String() string {
	if l < 0 || l >= numLevels {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

const (
	DefaultFlags = log.Ltime | log.Ldate
	DebugFlags   = DefaultFlags | log.Lmicroseconds | log.Lshortfile
)

const TraceEnv = "SSDPTRACE"

// A MessageHandler receives every message at or above the level it was
// registered for, without the line prefix.
type MessageHandler func(level LogLevel, msg string)

type Logger interface {
	Debugln(vals ...interface{})
	Debugf(format string, vals ...interface{})
	Infoln(vals ...interface{})
	Infof(format string, vals ...interface{})
	Warnln(vals ...interface{})
	Warnf(format string, vals ...interface{})
	ShouldDebug(facility string) bool
	SetDebug(facility string, enabled bool)
	Facilities() map[string]string
	FacilityDebugging() []string
	NewFacility(facility, description string) Logger
	AddHandler(level LogLevel, h MessageHandler)
	SetFlags(flag int)
}

// DefaultLogger writes to standard output, or nowhere when LOGGER_DISCARD
// is set.
var DefaultLogger = New()

func New() Logger {
	if os.Getenv("LOGGER_DISCARD") != "" {
		return newLogger(io.Discard)
	}
	return newLogger(controlStripper{os.Stdout})
}

type logger struct {
	mut        sync.Mutex
	out        *log.Logger
	handlers   [numLevels][]MessageHandler
	facilities map[string]string // name => description
	debug      map[string]bool
	traceAll   bool
	traced     map[string]bool
}

func newLogger(w io.Writer) *logger {
	l := &logger{
		out:        log.New(w, "", DefaultFlags),
		facilities: make(map[string]string),
		debug:      make(map[string]bool),
		traced:     make(map[string]bool),
	}
	for _, name := range strings.FieldsFunc(os.Getenv(TraceEnv), isTraceSeparator) {
		if name == "all" {
			l.traceAll = true
		}
		l.traced[name] = true
	}
	return l
}

func isTraceSeparator(r rune) bool {
	return r == ',' || r == ';' || r == ' '
}

func (l *logger) AddHandler(level LogLevel, h MessageHandler) {
	l.mut.Lock()
	l.handlers[level] = append(l.handlers[level], h)
	l.mut.Unlock()
}

func (l *logger) SetFlags(flag int) {
	l.out.SetFlags(flag)
}

func (l *logger) emit(level LogLevel, prefix, msg string) {
	msg = strings.TrimRight(msg, "\n")
	l.mut.Lock()
	defer l.mut.Unlock()
	// Three frames up: emit, the level method, the caller.
	_ = l.out.Output(3, level.String()+": "+prefix+msg)
	for hl := LevelDebug; hl <= level; hl++ {
		for _, h := range l.handlers[hl] {
			h(level, strings.TrimSpace(msg))
		}
	}
}

func (l *logger) Debugln(vals ...interface{}) { l.emit(LevelDebug, "", fmt.Sprintln(vals...)) }
func (l *logger) Debugf(format string, vals ...interface{}) {
	l.emit(LevelDebug, "", fmt.Sprintf(format, vals...))
}
func (l *logger) Infoln(vals ...interface{}) { l.emit(LevelInfo, "", fmt.Sprintln(vals...)) }
func (l *logger) Infof(format string, vals ...interface{}) {
	l.emit(LevelInfo, "", fmt.Sprintf(format, vals...))
}
func (l *logger) Warnln(vals ...interface{}) { l.emit(LevelWarn, "", fmt.Sprintln(vals...)) }
func (l *logger) Warnf(format string, vals ...interface{}) {
	l.emit(LevelWarn, "", fmt.Sprintf(format, vals...))
}

func (l *logger) ShouldDebug(facility string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.debug[facility]
}

// SetDebug switches debugging for a facility. Debug output carries
// microsecond timestamps and call sites while any facility is debugging.
func (l *logger) SetDebug(facility string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	if enabled {
		l.debug[facility] = true
	} else {
		delete(l.debug, facility)
	}
	if len(l.debug) > 0 {
		l.out.SetFlags(DebugFlags)
	} else {
		l.out.SetFlags(DefaultFlags)
	}
}

// FacilityDebugging returns the sorted names of facilities with debugging
// enabled.
func (l *logger) FacilityDebugging() []string {
	l.mut.Lock()
	enabled := make([]string, 0, len(l.debug))
	for facility := range l.debug {
		enabled = append(enabled, facility)
	}
	l.mut.Unlock()
	slices.Sort(enabled)
	return enabled
}

// Facilities returns the registered facilities and their descriptions.
func (l *logger) Facilities() map[string]string {
	l.mut.Lock()
	defer l.mut.Unlock()
	return maps.Clone(l.facilities)
}

func (l *logger) NewFacility(facility, description string) Logger {
	l.mut.Lock()
	l.facilities[facility] = description
	traced := l.traceAll || l.traced[facility]
	l.mut.Unlock()
	if traced {
		l.SetDebug(facility, true)
	}
	return &facilityLogger{logger: l, facility: facility}
}

// facilityLogger prefixes debug lines with the facility name and drops
// them unless the facility is debugging.
type facilityLogger struct {
	*logger
	facility string
}

func (f *facilityLogger) Debugln(vals ...interface{}) {
	if f.ShouldDebug(f.facility) {
		f.emit(LevelDebug, f.facility+": ", fmt.Sprintln(vals...))
	}
}

func (f *facilityLogger) Debugf(format string, vals ...interface{}) {
	if f.ShouldDebug(f.facility) {
		f.emit(LevelDebug, f.facility+": ", fmt.Sprintf(format, vals...))
	}
}

// controlStripper replaces control characters other than line breaks with
// spaces. Header values we log come straight off the network.
type controlStripper struct {
	io.Writer
}

func (s controlStripper) Write(data []byte) (int, error) {
	for i, b := range data {
		if b < 32 && b != '\n' && b != '\r' {
			data[i] = ' '
		}
	}
	return s.Writer.Write(data)
}
