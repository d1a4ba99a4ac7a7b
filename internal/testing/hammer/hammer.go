// Package hammer runs a test body on many goroutines released at the same time, to
// surface data races on state shared by translation sessions.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer runs a test body concurrently.
//
//	hammer.New(t, 8, 100).Run(func(p, n int) {
//		// One translation session; p is the goroutine, n the iteration.
//	})
//	if t.Failed() {
//		return
//	}
type Hammer interface {
	// Run invokes body N times on each of P goroutines. The goroutines start together
	// once all of them are running. A panic in body fails the test.
	Run(body func(p, n int))
}

// New returns a Hammer running P goroutines of N iterations. P and N are divided by 4
// in short mode.
func New(t *testing.T, P, N int) Hammer {
	if testing.Short() {
		P, N = max1(P/4), max1(N/4)
	}
	return &hammer{t: t, p: P, n: N}
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

type hammer struct {
	t    *testing.T
	p, n int
}

// Run implements Hammer.Run
func (h *hammer) Run(body func(p, n int)) {
	// Fewer cores than goroutines so that they have to switch.
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(max1(h.p / 2)))

	var running, done sync.WaitGroup
	start := make(chan struct{})
	running.Add(h.p)
	done.Add(h.p)
	for p := 0; p < h.p; p++ {
		p := p
		go func() {
			defer done.Done()
			defer func() {
				if r := recover(); r != nil {
					h.t.Errorf("goroutine %d: %v", p, r)
				}
			}()
			running.Done()
			<-start
			for n := 0; n < h.n; n++ {
				body(p, n)
			}
		}()
	}
	running.Wait()
	close(start)
	done.Wait()
}
