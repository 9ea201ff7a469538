package walletconnect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"moff.io/moff-wallet/pkg/errors"
)

func TestPairingGuard(t *testing.T) {
	var g PairingGuard
	assert.Equal(t, PairingIdle, g.State())
	assert.True(t, g.TryEnter())
	assert.Equal(t, PairingHandling, g.State())
	assert.False(t, g.TryEnter())
	g.Leave()
	assert.Equal(t, PairingIdle, g.State())
	assert.True(t, g.TryEnter())
}

func TestPairingGuardDo(t *testing.T) {
	var g PairingGuard
	entered, err := g.Do(func() error {
		assert.Equal(t, PairingHandling, g.State())
		nested, _ := g.Do(func() error { return nil })
		assert.False(t, nested)
		return errors.New("boom")
	})
	assert.True(t, entered)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, PairingIdle, g.State())
}

func TestPairingGuardDoLeavesOnPanic(t *testing.T) {
	var g PairingGuard
	assert.Panics(t, func() {
		_, _ = g.Do(func() error { panic("boom") })
	})
	assert.Equal(t, PairingIdle, g.State())
}

func TestPairingGuardSingleEntrant(t *testing.T) {
	var (
		g       PairingGuard
		wg      sync.WaitGroup
		mu      sync.Mutex
		entered int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryEnter() {
				mu.Lock()
				entered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, entered)
}
