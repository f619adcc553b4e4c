// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements the configuration surface of the SSDP engine
// and reading it from YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	// DefaultTTL is the outbound multicast TTL used when none is set.
	DefaultTTL = 4
	// DefaultMX is the maximum response wait advertised in searches.
	DefaultMX = 3
	// DefaultMaxAgeS is the announced resource lifetime in seconds.
	DefaultMaxAgeS = 1800
	// DefaultMessageDelayMs is the minimum spacing between group sends.
	DefaultMessageDelayMs = 20

	// Searches are never sent from the SSDP port itself.
	ssdpPort = 1900
)

var (
	ErrInvalidPort     = errors.New("search port out of range or the SSDP port")
	ErrInvalidTTL      = errors.New("ttl out of range")
	ErrInvalidMX       = errors.New("mx must be at least one second")
	ErrInvalidMaxAge   = errors.New("max age must be at least one second")
	ErrInvalidDelay    = errors.New("message delay must not be negative")
	ErrInvalidResource = errors.New("resource needs a target, a usn and at least one location")
	ErrInvalidHeader   = errors.New("extra header needs a name without whitespace")
)

type Configuration struct {
	// Interface is a network interface name or IPv4 address. Empty means
	// autodetect.
	Interface string `json:"interface"`
	// SearchPort is the source port for searches, zero for a random one.
	SearchPort int `json:"searchPort" default:"0"`
	// TTL is the multicast TTL, zero for DefaultTTL.
	TTL          int                  `json:"ttl" default:"4"`
	ServerID     string               `json:"serverID"`
	UserAgent    string               `json:"userAgent"`
	ExtraHeaders []Header             `json:"extraHeaders"`
	Browser      BrowserConfiguration `json:"browser"`
	Group        GroupConfiguration   `json:"group"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type BrowserConfiguration struct {
	Target string `json:"target" default:"ssdp:all"`
	MX     int    `json:"mx" default:"3"`
}

type GroupConfiguration struct {
	MaxAgeS        int                     `json:"maxAgeS" default:"1800"`
	MessageDelayMs int                     `json:"messageDelayMs" default:"20"`
	Resources      []ResourceConfiguration `json:"resources"`
}

type ResourceConfiguration struct {
	Target    string   `json:"target"`
	USN       string   `json:"usn"`
	Locations []string `json:"locations"`
}

// New returns a configuration with every default applied.
func New() Configuration {
	var cfg Configuration
	SetDefaults(&cfg)
	return cfg
}

// Load reads a YAML (or JSON, which is a subset) configuration file. Fields
// missing from the file keep their defaults.
func Load(path string) (Configuration, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	return Parse(bs)
}

// Parse decodes a configuration document on top of the defaults and
// validates the result.
func Parse(bs []byte) (Configuration, error) {
	cfg := New()
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.prepare()
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	l.Debugf("loaded configuration: %+v", cfg)
	return cfg, nil
}

func (cfg *Configuration) prepare() {
	cfg.Interface = strings.TrimSpace(cfg.Interface)
	cfg.Browser.Target = strings.TrimSpace(cfg.Browser.Target)
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	for i := range cfg.Group.Resources {
		r := &cfg.Group.Resources[i]
		r.Target = strings.TrimSpace(r.Target)
		r.USN = strings.TrimSpace(r.USN)
	}
}

// Validate returns the first problem found in the configuration.
func (cfg Configuration) Validate() error {
	if cfg.SearchPort < 0 || cfg.SearchPort > 65535 || cfg.SearchPort == ssdpPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.SearchPort)
	}
	if cfg.TTL < 0 || cfg.TTL > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidTTL, cfg.TTL)
	}
	for _, h := range cfg.ExtraHeaders {
		if h.Name == "" || strings.ContainsAny(h.Name, " \t\r\n:") || strings.ContainsAny(h.Value, "\r\n") {
			return fmt.Errorf("%w: %q", ErrInvalidHeader, h.Name)
		}
	}
	if cfg.Browser.MX < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMX, cfg.Browser.MX)
	}
	if cfg.Group.MaxAgeS < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxAge, cfg.Group.MaxAgeS)
	}
	if cfg.Group.MessageDelayMs < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDelay, cfg.Group.MessageDelayMs)
	}
	for i, r := range cfg.Group.Resources {
		if r.Target == "" || r.USN == "" || len(r.Locations) == 0 {
			return fmt.Errorf("resource %d: %w", i, ErrInvalidResource)
		}
		for _, loc := range r.Locations {
			if strings.TrimSpace(loc) == "" {
				return fmt.Errorf("resource %d: %w", i, ErrInvalidResource)
			}
		}
	}
	return nil
}

func (c GroupConfiguration) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeS) * time.Second
}

func (c GroupConfiguration) MessageDelay() time.Duration {
	return time.Duration(c.MessageDelayMs) * time.Millisecond
}
