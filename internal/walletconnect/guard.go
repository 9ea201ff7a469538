package walletconnect

import "go.uber.org/atomic"

type PairingState int32

const (
	PairingIdle PairingState = iota
	PairingHandling
)

func (s PairingState) String() string {
	if s == PairingHandling {
		return "handling"
	}
	return "idle"
}

// PairingGuard admits one pairing attempt at a time. The zero value is idle.
type PairingGuard struct {
	handling atomic.Bool
}

// TryEnter moves idle to handling, false when an attempt is already running.
func (g *PairingGuard) TryEnter() bool {
	return g.handling.CAS(false, true)
}

// Leave returns to idle unconditionally.
func (g *PairingGuard) Leave() {
	g.handling.Store(false)
}

func (g *PairingGuard) State() PairingState {
	if g.handling.Load() {
		return PairingHandling
	}
	return PairingIdle
}

// Do runs fn while holding the guard. entered is false, and fn not called, when the guard was busy. Leave runs
// on every exit path including a panic in fn.
func (g *PairingGuard) Do(fn func() error) (entered bool, err error) {
	if !g.TryEnter() {
		return false, nil
	}
	defer g.Leave()
	return true, fn()
}
