package alert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/carewatch/streaming-console/internal/logger"
	"github.com/carewatch/streaming-console/internal/sched"
)

// Player produces the looping audible cue while an alert is showing.
type Player interface {
	Start() error
	Stop()
}

// Siren runs the audio side effect of a raised alert: the configured player
// when it can start, otherwise a timer-driven fallback pulse. Either path is
// force-stopped at the ceiling even if the operator never acknowledges.
type Siren struct {
	mu       sync.Mutex
	player   Player
	fallback Player
	active   Player
	running  bool
	ceiling  time.Duration
	timer    *time.Timer
}

// NewSiren builds a siren from a preferred player and a fallback.
// Either may be nil.
func NewSiren(player, fallback Player, ceiling time.Duration) *Siren {
	return &Siren{
		player:   player,
		fallback: fallback,
		ceiling:  ceiling,
	}
}

// Start begins the cue. Idempotent while running.
func (s *Siren) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.active = nil
	if s.player != nil {
		if err := s.player.Start(); err == nil {
			s.active = s.player
		} else {
			logger.Warn("Siren", "player failed to start, using fallback: %v", err)
		}
	}
	if s.active == nil && s.fallback != nil {
		if err := s.fallback.Start(); err == nil {
			s.active = s.fallback
		}
	}

	s.timer = time.AfterFunc(s.ceiling, s.Stop)
}

// Stop halts whichever player is active. Idempotent.
func (s *Siren) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.active != nil {
		s.active.Stop()
		s.active = nil
	}
}

// ExecPlayer loops an external audio command (paplay/aplay style) until
// stopped, restarting the process each time it exits.
type ExecPlayer struct {
	argv []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	stop chan struct{}
}

// NewExecPlayer parses a player command line. An empty command yields a
// player whose Start always fails, which routes the siren to its fallback.
func NewExecPlayer(command string) *ExecPlayer {
	return &ExecPlayer{argv: strings.Fields(command)}
}

func (p *ExecPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.argv) == 0 {
		return errors.New("alert: no player command configured")
	}
	if p.stop != nil {
		return nil
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}

	p.cmd = cmd
	p.stop = make(chan struct{})
	go p.loop(p.stop)
	return nil
}

func (p *ExecPlayer) loop(stop chan struct{}) {
	for {
		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()
		if cmd == nil {
			return
		}
		_ = cmd.Wait()

		select {
		case <-stop:
			return
		default:
		}

		next := exec.Command(p.argv[0], p.argv[1:]...)
		if err := next.Start(); err != nil {
			logger.Debug("Siren", "player restart failed: %v", err)
			return
		}
		p.mu.Lock()
		p.cmd = next
		p.mu.Unlock()
	}
}

func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}

// BellPlayer is the autoplay-blocked analog: a repeated terminal bell on an
// interval, for hosts with no audio player available.
type BellPlayer struct {
	Out      io.Writer
	Interval time.Duration

	mu   sync.Mutex
	loop *sched.Loop
}

func (b *BellPlayer) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loop != nil {
		return nil
	}
	out := b.Out
	if out == nil {
		out = os.Stderr
	}
	interval := b.Interval
	if interval <= 0 {
		interval = time.Second
	}
	b.loop = sched.Start(interval, func(time.Time) {
		fmt.Fprint(out, "\a")
	})
	return nil
}

func (b *BellPlayer) Stop() {
	b.mu.Lock()
	loop := b.loop
	b.loop = nil
	b.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}
