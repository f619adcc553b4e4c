// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil holds helpers for running the engine's parts under a
// suture supervisor.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GNOME/gssdp-sub000/lib/logger"

	"github.com/thejerf/suture/v4"
)

// ServiceTimeout bounds how long the supervisor waits for a service to
// return after its context is cancelled.
const ServiceTimeout = 10 * time.Second

// NoRestartErr marks err as permanent, so that the supervisor removes the
// service instead of restarting it. A nil err yields suture.ErrDoNotRestart.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return permanentError{err}
}

type permanentError struct {
	error
}

func (e permanentError) Unwrap() error {
	return e.error
}

func (e permanentError) Is(target error) bool {
	return target == suture.ErrDoNotRestart
}

type ServiceWithError interface {
	suture.Service
	fmt.Stringer
	Error() error
}

// AsService adapts fn to a suture.Service that remembers the error of its
// last run. A context cancellation is not recorded as an error.
func AsService(fn func(ctx context.Context) error, name string) ServiceWithError {
	return &funcService{name: name, fn: fn}
}

type funcService struct {
	name string
	fn   func(ctx context.Context) error

	mut sync.Mutex
	err error
}

func (s *funcService) Serve(ctx context.Context) error {
	s.setError(nil)
	err := s.fn(ctx)
	if !errors.Is(err, context.Canceled) {
		s.setError(err)
	}
	return err
}

func (s *funcService) setError(err error) {
	s.mut.Lock()
	s.err = err
	s.mut.Unlock()
}

func (s *funcService) Error() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.err
}

func (s *funcService) String() string {
	return s.name
}

// SpecWithDebugLogger returns the supervisor spec used throughout, with
// supervisor events logged at debug level.
func SpecWithDebugLogger(l logger.Logger) suture.Spec {
	return suture.Spec{
		EventHook:         func(e suture.Event) { l.Debugln(e) },
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}
