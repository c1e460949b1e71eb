package idgen

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Identifier layout.
const (
	SequenceBits = 10
	MachineBits  = 8

	// MaxSequence is the largest sequence value issued within one tick.
	MaxSequence = (1 << SequenceBits) - 1
	// MaxMachine is the largest machine discriminator.
	MaxMachine = (1 << MachineBits) - 1

	machineShift = SequenceBits
	tickShift    = SequenceBits + MachineBits

	// TickDuration is the resolution of the time component.
	TickDuration = 10 * time.Millisecond
)

// DefaultEpoch is the zero point of the tick counter.
var DefaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock supplies wall-clock time to a Generator.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// Generator issues identifiers. The zero value is not usable; call New.
type Generator struct {
	mu       sync.Mutex
	lastTick int64
	lastSeq  int64
	behind   bool

	clock   Clock
	epoch   time.Time
	machine uint8
	fixed   bool
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(g *Generator) {
		g.clock = c
	}
}

// WithMachineID fixes the machine discriminator instead of resolving it
// from the host's network identity.
func WithMachineID(id uint8) Option {
	return func(g *Generator) {
		g.machine = id
		g.fixed = true
	}
}

// WithEpoch moves the zero point of the tick counter.
func WithEpoch(epoch time.Time) Option {
	return func(g *Generator) {
		g.epoch = epoch
	}
}

// WithLogger sets the logger used to report clock regressions.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New creates a Generator.
//
// Unless WithMachineID is given, the machine discriminator is resolved from
// the host. A failure to resolve it returns an error wrapping ErrMachineID;
// callers should treat that as fatal, since cross-host uniqueness depends
// on it.
func New(opts ...Option) (*Generator, error) {
	g := &Generator{
		lastTick: -1,
		clock:    SystemClock{},
		epoch:    DefaultEpoch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if !g.fixed {
		id, err := ResolveMachineID()
		if err != nil {
			return nil, err
		}
		g.machine = id
	}

	if now := g.clock.Now(); now.Before(g.epoch) {
		return nil, fmt.Errorf("idgen: clock %s is before epoch %s", now.Format(time.RFC3339), g.epoch.Format(time.RFC3339))
	}

	return g, nil
}

// MachineID returns the machine discriminator embedded in every identifier.
func (g *Generator) MachineID() uint8 {
	return g.machine
}

// Epoch returns the zero point of the tick counter.
func (g *Generator) Epoch() time.Time {
	return g.epoch
}

// Next returns a new identifier, stalling through tick exhaustion.
func (g *Generator) Next() int64 {
	stalled := false
	for {
		if id := g.TryNext(); id != 0 {
			return id
		}
		if !stalled {
			stalled = true
			stallsTotal.Inc()
		}
		runtime.Gosched()
	}
}

// TryNext makes one attempt to issue an identifier. It returns 0 when the
// current tick's sequence is exhausted; callers must retry.
func (g *Generator) TryNext() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	tick := g.tickAt(g.clock.Now())
	if tick < g.lastTick {
		if !g.behind {
			g.behind = true
			clockRegressionsTotal.Inc()
			g.logger.Warn("clock moved backwards, pinning id ticks",
				"tick", tick, "last_tick", g.lastTick, "machine", g.machine)
		}
		tick = g.lastTick
	} else if tick > g.lastTick {
		g.behind = false
	}

	var seq int64
	if tick == g.lastTick {
		seq = g.lastSeq + 1
		if seq > MaxSequence {
			return 0
		}
	}

	g.lastTick = tick
	g.lastSeq = seq
	generatedTotal.Inc()

	return compose(tick, g.machine, seq)
}

func (g *Generator) tickAt(t time.Time) int64 {
	return int64(t.Sub(g.epoch) / TickDuration)
}

func compose(tick int64, machine uint8, seq int64) int64 {
	return tick<<tickShift | int64(machine)<<machineShift | seq
}

// Parts are the fields packed into an identifier.
type Parts struct {
	Tick     int64
	Machine  uint8
	Sequence int64
}

// Decompose splits an identifier into its fields.
func Decompose(id int64) Parts {
	return Parts{
		Tick:     id >> tickShift,
		Machine:  uint8((id >> machineShift) & MaxMachine),
		Sequence: id & MaxSequence,
	}
}

// Time returns the start of the tick relative to epoch.
func (p Parts) Time(epoch time.Time) time.Time {
	return epoch.Add(time.Duration(p.Tick) * TickDuration)
}

// Compose packs the fields back into an identifier.
func (p Parts) Compose() int64 {
	return compose(p.Tick, p.Machine, p.Sequence)
}
