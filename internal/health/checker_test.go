package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func newFakePinger(err error) *fakePinger {
	return &fakePinger{err: err}
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestCheckerHealthySynchronousProbe(t *testing.T) {
	pinger := newFakePinger(nil)
	checker := New(pinger, Config{}, nil)

	require.True(t, checker.Healthy(context.Background()))

	pinger.setErr(errors.New("down"))
	require.False(t, checker.Healthy(context.Background()))
}

func TestCheckerStartInvokesOnHealthy(t *testing.T) {
	pinger := newFakePinger(nil)
	called := make(chan struct{}, 1)
	checker := New(pinger, Config{Interval: 5 * time.Millisecond, Timeout: time.Second}, func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	checker.Start()
	defer checker.Stop()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("onHealthy was never invoked")
	}
}

func TestCheckerStartWithZeroIntervalDoesNotPoll(t *testing.T) {
	pinger := newFakePinger(nil)
	called := make(chan struct{}, 1)
	checker := New(pinger, Config{}, func() {
		called <- struct{}{}
	})

	checker.Start()
	defer checker.Stop()

	select {
	case <-called:
		t.Fatal("onHealthy should not fire with a zero interval")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCheckerStopIsIdempotent(t *testing.T) {
	checker := New(newFakePinger(nil), Config{Interval: time.Millisecond}, nil)
	checker.Start()
	checker.Stop()
	require.NotPanics(t, checker.Stop)
}
