package alert

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePlayer struct {
	failStart bool
	starts    atomic.Int32
	stops     atomic.Int32
}

func (p *fakePlayer) Start() error {
	if p.failStart {
		return errors.New("no audio device")
	}
	p.starts.Add(1)
	return nil
}

func (p *fakePlayer) Stop() { p.stops.Add(1) }

func TestSirenPrefersPlayer(t *testing.T) {
	player := &fakePlayer{}
	fallback := &fakePlayer{}
	s := NewSiren(player, fallback, time.Minute)

	s.Start()
	s.Stop()

	if got := player.starts.Load(); got != 1 {
		t.Fatalf("player starts = %d, want 1", got)
	}
	if got := fallback.starts.Load(); got != 0 {
		t.Fatalf("fallback started despite a working player")
	}
	if got := player.stops.Load(); got != 1 {
		t.Fatalf("player stops = %d, want 1", got)
	}
}

func TestSirenFallsBackWhenPlayerFails(t *testing.T) {
	player := &fakePlayer{failStart: true}
	fallback := &fakePlayer{}
	s := NewSiren(player, fallback, time.Minute)

	s.Start()
	s.Stop()

	if got := fallback.starts.Load(); got != 1 {
		t.Fatalf("fallback starts = %d, want 1", got)
	}
	if got := fallback.stops.Load(); got != 1 {
		t.Fatalf("fallback stops = %d, want 1", got)
	}
}

func TestSirenStartIdempotentWhileRunning(t *testing.T) {
	player := &fakePlayer{}
	s := NewSiren(player, nil, time.Minute)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	if got := player.starts.Load(); got != 1 {
		t.Fatalf("player starts = %d, want 1", got)
	}
	if got := player.stops.Load(); got != 1 {
		t.Fatalf("player stops = %d, want 1", got)
	}
}

func TestSirenStopsAtCeiling(t *testing.T) {
	player := &fakePlayer{}
	s := NewSiren(player, nil, 20*time.Millisecond)

	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for player.stops.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("siren still running past its ceiling")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
