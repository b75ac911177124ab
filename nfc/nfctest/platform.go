// Package nfctest provides a scriptable nfc.Platform for tests.
package nfctest

import (
	"context"
	"errors"
	"sync"

	"github.com/ellemouton/lnurlw/nfc"
)

// Platform is a fake host whose permission state and taps are driven by the
// test.
type Platform struct {
	Unsupported bool

	// NoPermissions makes Permissions return nil.
	NoPermissions bool

	// QueryErr is returned by the permission query.
	QueryErr error

	// ScanErr is returned by Scan.
	ScanErr error

	mu        sync.Mutex
	state     nfc.PermissionState
	listeners map[int]func(nfc.PermissionState)
	nextID    int
	scans     int
	onReading func(nfc.Message)
	onError   func(error)
	scanCtx   context.Context
}

func New(state nfc.PermissionState) *Platform {
	return &Platform{state: state}
}

func (p *Platform) Supported() bool {
	return !p.Unsupported
}

func (p *Platform) Permissions() nfc.Permissions {
	if p.NoPermissions {
		return nil
	}

	return permissions{p}
}

func (p *Platform) Scanner() nfc.Scanner {
	return scanner{p}
}

// SetPermission changes the permission out of band and notifies listeners.
func (p *Platform) SetPermission(state nfc.PermissionState) {
	p.mu.Lock()
	p.state = state
	listeners := make([]func(nfc.PermissionState), 0, len(p.listeners))
	for i := 0; i < p.nextID; i++ {
		if l, ok := p.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// Scans returns how many scan sessions were started.
func (p *Platform) Scans() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.scans
}

// Tap delivers msg to the active scan session. It returns false if no
// session is active.
func (p *Platform) Tap(msg nfc.Message) bool {
	p.mu.Lock()
	onReading, ctx := p.onReading, p.scanCtx
	p.mu.Unlock()

	if onReading == nil || ctx.Err() != nil {
		return false
	}

	onReading(msg)
	return true
}

// TapText delivers a single utf-8 text record.
func (p *Platform) TapText(text string) bool {
	return p.Tap(nfc.Message{Records: []nfc.Record{{Data: []byte(text)}}})
}

// FailRead delivers a read error to the active scan session.
func (p *Platform) FailRead(err error) bool {
	p.mu.Lock()
	onError, ctx := p.onError, p.scanCtx
	p.mu.Unlock()

	if onError == nil || ctx.Err() != nil {
		return false
	}

	onError(err)
	return true
}

type permissions struct {
	p *Platform
}

func (ps permissions) Query(_ context.Context, name string) (nfc.PermissionStatus,
	error) {

	if ps.p.QueryErr != nil {
		return nil, ps.p.QueryErr
	}
	if name != nfc.PermissionName {
		return nil, errors.New("unknown permission " + name)
	}

	return status{ps.p}, nil
}

type status struct {
	p *Platform
}

func (s status) State() nfc.PermissionState {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	return s.p.state
}

func (s status) Listen(handler func(nfc.PermissionState)) func() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	if s.p.listeners == nil {
		s.p.listeners = make(map[int]func(nfc.PermissionState))
	}
	id := s.p.nextID
	s.p.nextID++
	s.p.listeners[id] = handler

	return func() {
		s.p.mu.Lock()
		defer s.p.mu.Unlock()

		delete(s.p.listeners, id)
	}
}

type scanner struct {
	p *Platform
}

func (s scanner) Scan(ctx context.Context, onReading func(nfc.Message),
	onReadingError func(error)) error {

	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	if s.p.ScanErr != nil {
		return s.p.ScanErr
	}
	if s.p.onReading != nil && s.p.scanCtx.Err() == nil {
		return errors.New("scan already in progress")
	}

	s.p.scans++
	s.p.onReading = onReading
	s.p.onError = onReadingError
	s.p.scanCtx = ctx

	return nil
}
