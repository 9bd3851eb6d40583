package memguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSample(total, available uint64) func() (uint64, uint64, error) {
	return func() (uint64, uint64, error) { return total, available, nil }
}

func TestPollFiresFatalBelowThreshold(t *testing.T) {
	var mu sync.Mutex
	var called bool
	var msg string

	g := New(func(m string, kv ...any) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		msg = m
	}, WithThreshold(0.1))
	g.sample = fakeSample(1000, 50) // 5% available, below 10% threshold

	fired := g.poll()

	require.True(t, fired)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, called)
	assert.Contains(t, msg, "below threshold")
}

func TestPollDoesNotFireAboveThreshold(t *testing.T) {
	g := New(func(string, ...any) { t.Fatal("onFatal must not be called") }, WithThreshold(0.02))
	g.sample = fakeSample(1000, 500) // 50% available

	fired := g.poll()

	assert.False(t, fired)
}

func TestPollToleratesSampleError(t *testing.T) {
	g := New(func(string, ...any) { t.Fatal("onFatal must not be called") })
	g.sample = func() (uint64, uint64, error) { return 0, 0, assertErr }

	fired := g.poll()

	assert.False(t, fired)
}

var assertErr = assertError("sample failed")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestRunStopsOnContextCancel(t *testing.T) {
	g := New(func(string, ...any) { t.Fatal("onFatal must not be called") }, WithInterval(time.Millisecond))
	g.sample = fakeSample(1000, 500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRunFiresFatalAndReturns(t *testing.T) {
	var mu sync.Mutex
	var called bool

	g := New(func(string, ...any) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	}, WithInterval(time.Millisecond), WithThreshold(0.1))
	g.sample = fakeSample(1000, 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after fatal threshold crossed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, called)
}
