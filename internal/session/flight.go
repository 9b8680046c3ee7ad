package session

import (
	"errors"
	"sync"

	"github.com/rryowa/sessiongate/internal/models"
)

var errFlightPanicked = errors.New("in-flight operation panicked")

type flightResult struct {
	session *models.Session
	err     error
}

type flightCall struct {
	done    chan struct{}
	waiters int
	result  flightResult
}

// flightGroup is the registry of in-flight operations, keyed by operation kind.
// At most one call per key runs at a time; callers arriving while it runs
// attach to its handle and receive the same result.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

// do runs fn under key, or waits for the call already registered under key.
// joined is true when the caller attached to an existing call.
func (g *flightGroup) do(key string, fn func() flightResult) (result flightResult, joined bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*flightCall)
	}
	if c, ok := g.calls[key]; ok {
		c.waiters++
		g.mu.Unlock()
		<-c.done
		return c.result, true
	}
	c := &flightCall{done: make(chan struct{}), waiters: 1}
	g.calls[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)
	return c.result, false
}

// run releases the key on every exit path, including a panic in fn,
// which is re-raised after waiters have been released with an error.
func (g *flightGroup) run(key string, c *flightCall, fn func() flightResult) {
	normalReturn := false
	defer func() {
		if !normalReturn {
			c.result = flightResult{err: errFlightPanicked}
		}
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		close(c.done)
	}()

	c.result = fn()
	normalReturn = true
}

func (g *flightGroup) inFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

func (g *flightGroup) waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}
