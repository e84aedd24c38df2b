// Package guard decides which screen a user may be on.
//
// Evaluate is the rule itself and has no side effects. Guard wires the rule to
// the live session state and a Navigator, re-evaluating whenever either side
// changes.
package guard

import (
	"log/slog"
	"sync"

	"github.com/sakif/field-survey/internal/session"
)

// Location names a screen.
type Location string

const (
	Login  Location = "login"
	Forms  Location = "forms"
	Create Location = "create"
	Detail Location = "detail"

	// Default is where a signed-in user lands.
	Default = Forms
)

// Action is what the rule asks the navigation layer to do.
type Action int

const (
	// Wait means the session has not been restored yet; render nothing.
	Wait Action = iota
	Stay
	Redirect
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Stay:
		return "stay"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Decision struct {
	Action Action
	Target Location // set only for Redirect
}

// Evaluate applies the auth rule to one (state, location) pair.
func Evaluate(state session.State, at Location) Decision {
	if !state.Initialized {
		return Decision{Action: Wait}
	}
	signedIn := state.Session != nil
	switch {
	case !signedIn && at != Login:
		return Decision{Action: Redirect, Target: Login}
	case signedIn && at == Login:
		return Decision{Action: Redirect, Target: Default}
	}
	return Decision{Action: Stay}
}

// Navigator is the screen stack.
type Navigator interface {
	Location() Location
	Navigate(to Location)
}

// StateSource is satisfied by *session.Manager.
type StateSource interface {
	State() session.State
	Subscribe(fn func(session.State)) func()
}

// Guard re-evaluates the rule on every session change and on every
// Check call, and issues at most one redirect per target until the navigator
// reports it has arrived.
type Guard struct {
	source StateSource
	nav    Navigator
	logger *slog.Logger

	mu      sync.Mutex
	pending Location
	unsub   func()
}

func New(source StateSource, nav Navigator, logger *slog.Logger) *Guard {
	return &Guard{source: source, nav: nav, logger: logger}
}

// Start subscribes to session changes and evaluates once immediately.
// It returns a func that stops the subscription.
func (g *Guard) Start() func() {
	unsub := g.source.Subscribe(func(s session.State) { g.apply(s) })
	g.mu.Lock()
	g.unsub = unsub
	g.mu.Unlock()

	g.Check()
	return g.Stop
}

// Stop ends the session subscription.
func (g *Guard) Stop() {
	g.mu.Lock()
	unsub := g.unsub
	g.unsub = nil
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Check evaluates the current state. Call it after the location changed.
func (g *Guard) Check() Decision {
	return g.apply(g.source.State())
}

// Allowed reports whether the current location may render right now.
func (g *Guard) Allowed() bool {
	return g.Check().Action == Stay
}

func (g *Guard) apply(state session.State) Decision {
	at := g.nav.Location()
	d := Evaluate(state, at)

	g.mu.Lock()
	if d.Action != Redirect {
		g.pending = ""
		g.mu.Unlock()
		return d
	}
	if at == d.Target || g.pending == d.Target {
		g.mu.Unlock()
		return d
	}
	g.pending = d.Target
	g.mu.Unlock()

	g.logger.Debug("redirecting",
		slog.String("from", string(at)),
		slog.String("to", string(d.Target)),
	)
	g.nav.Navigate(d.Target)
	return d
}
