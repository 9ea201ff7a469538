package concurrent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add()
			defer l.Done()
			n := running.Inc()
			for {
				p := peak.Load()
				if n <= p || peak.CAS(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Dec()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLimiterAddContext(t *testing.T) {
	l := NewLimiter(1)
	l.Add()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.AddContext(ctx), context.DeadlineExceeded)
	l.Done()
	assert.NoError(t, l.AddContext(context.Background()))
}
