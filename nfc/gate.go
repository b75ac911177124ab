package nfc

import (
	"context"
	"sync"

	"github.com/ellemouton/lnurlw/logger"
)

// Gate tracks the NFC permission for the lifetime of a screen.
type Gate struct {
	platform Platform
	changes  *Feed[PermissionState]

	mu       sync.Mutex
	state    PermissionState
	unlisten func()
}

func NewGate(p Platform, d *Dispatcher) *Gate {
	return &Gate{
		platform: p,
		changes:  NewFeed[PermissionState](d),
	}
}

// CheckCapability reports whether the platform can scan at all.
func (g *Gate) CheckCapability() bool {
	return g.platform != nil && g.platform.Supported()
}

// Query asks the platform for the current permission state and keeps
// following it. A platform without a permission query is treated as denied, a
// failing query leaves the state unknown.
func (g *Gate) Query(ctx context.Context) PermissionState {
	var perms Permissions
	if g.platform != nil {
		perms = g.platform.Permissions()
	}
	if perms == nil {
		logger.Logger.Error().Msg("Permissions API not supported")
		g.set(PermissionDenied)
		return PermissionDenied
	}

	status, err := perms.Query(ctx, PermissionName)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Error querying NFC permission")
		return g.State()
	}

	logger.Logger.Debug().
		Str("state", status.State().String()).
		Msg("NFC permission queried")

	unlisten := status.Listen(g.set)

	g.mu.Lock()
	if g.unlisten != nil {
		g.unlisten()
	}
	g.unlisten = unlisten
	g.mu.Unlock()

	state := status.State()
	g.set(state)

	return state
}

func (g *Gate) set(state PermissionState) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	g.changes.Publish(state)
}

func (g *Gate) State() PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// OnChange registers handler for every state reported by the platform.
func (g *Gate) OnChange(handler func(PermissionState)) (cancel func()) {
	return g.changes.Subscribe(handler)
}

// Close stops following the platform permission.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unlisten != nil {
		g.unlisten()
		g.unlisten = nil
	}
}
