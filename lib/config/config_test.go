// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
)

func TestDefaultValues(t *testing.T) {
	expected := Configuration{
		TTL: DefaultTTL,
		Browser: BrowserConfiguration{
			Target: "ssdp:all",
			MX:     DefaultMX,
		},
		Group: GroupConfiguration{
			MaxAgeS:        DefaultMaxAgeS,
			MessageDelayMs: DefaultMessageDelayMs,
		},
	}

	cfg := New()
	if diff, equal := messagediff.PrettyDiff(expected, cfg); !equal {
		t.Errorf("Default config differs. Diff:\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Error("defaults should validate:", err)
	}
	if cfg.Group.MessageDelay() != 20*time.Millisecond {
		t.Error("unexpected message delay", cfg.Group.MessageDelay())
	}
	if cfg.Group.MaxAge() != 30*time.Minute {
		t.Error("unexpected max age", cfg.Group.MaxAge())
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("testdata/announce.yaml")
	if err != nil {
		t.Fatal(err)
	}

	expected := Configuration{
		Interface:  "eth0",
		SearchPort: 51900,
		TTL:        DefaultTTL,
		ServerID:   "Linux/6.1 UPnP/1.0 ssdpdisco/1.0",
		ExtraHeaders: []Header{
			{Name: "X-Friendly", Value: "kitchen"},
			{Name: "X-Friendly", Value: "speaker"},
		},
		Browser: BrowserConfiguration{
			Target: "urn:schemas-upnp-org:device:MediaRenderer:1",
			MX:     DefaultMX,
		},
		Group: GroupConfiguration{
			MaxAgeS:        120,
			MessageDelayMs: DefaultMessageDelayMs,
			Resources: []ResourceConfiguration{{
				Target: "urn:schemas-upnp-org:device:MediaRenderer:2",
				USN:    "uuid:0d1f-4c2b::urn:schemas-upnp-org:device:MediaRenderer:2",
				Locations: []string{
					"http://192.0.2.10:8080/desc.xml",
					"http://[2001:db8::10]:8080/desc.xml",
				},
			}},
		},
	}

	if diff, equal := messagediff.PrettyDiff(expected, cfg); !equal {
		t.Errorf("Loaded config differs. Diff:\n%s", diff)
	}
}

func TestLoadRejectsResourceWithoutLocation(t *testing.T) {
	_, err := Load("testdata/badresource.yaml")
	if !errors.Is(err, ErrInvalidResource) {
		t.Fatalf("expected ErrInvalidResource, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Configuration)
		err    error
	}{
		{"negative port", func(c *Configuration) { c.SearchPort = -1 }, ErrInvalidPort},
		{"port too high", func(c *Configuration) { c.SearchPort = 70000 }, ErrInvalidPort},
		{"ssdp port", func(c *Configuration) { c.SearchPort = 1900 }, ErrInvalidPort},
		{"ttl too high", func(c *Configuration) { c.TTL = 256 }, ErrInvalidTTL},
		{"zero mx", func(c *Configuration) { c.Browser.MX = 0 }, ErrInvalidMX},
		{"zero max age", func(c *Configuration) { c.Group.MaxAgeS = 0 }, ErrInvalidMaxAge},
		{"negative delay", func(c *Configuration) { c.Group.MessageDelayMs = -5 }, ErrInvalidDelay},
		{"header with colon", func(c *Configuration) {
			c.ExtraHeaders = []Header{{Name: "X:Y", Value: "z"}}
		}, ErrInvalidHeader},
		{"header value with newline", func(c *Configuration) {
			c.ExtraHeaders = []Header{{Name: "X-Y", Value: "a\r\nb"}}
		}, ErrInvalidHeader},
		{"blank location", func(c *Configuration) {
			c.Group.Resources = []ResourceConfiguration{{Target: "a", USN: "b", Locations: []string{" "}}}
		}, ErrInvalidResource},
		{"zero delay is fine", func(c *Configuration) { c.Group.MessageDelayMs = 0 }, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.err == nil {
				if err != nil {
					t.Fatal("unexpected error:", err)
				}
				return
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

type Defaulter struct {
	Value string
}

func (d *Defaulter) ParseDefault(v string) error {
	*d = Defaulter{Value: v}
	return nil
}

func TestSetDefaults(t *testing.T) {
	x := &struct {
		A string    `default:"string"`
		B int       `default:"2"`
		D bool      `default:"true"`
		E Defaulter `default:"defaulter"`
		F struct {
			G int `default:"7"`
		}
		unexported int
	}{}

	SetDefaults(x)

	if x.A != "string" {
		t.Error("string failed")
	} else if x.B != 2 {
		t.Error("int failed")
	} else if !x.D {
		t.Errorf("bool failed")
	} else if x.E.Value != "defaulter" {
		t.Errorf("defaulter failed")
	} else if x.F.G != 7 {
		t.Errorf("nested struct failed")
	} else if x.unexported != 0 {
		t.Errorf("unexported field touched")
	}
}
