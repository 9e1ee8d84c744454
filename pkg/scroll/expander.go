// Package scroll expands a dynamically loaded results page until it stops growing.
//
// Each round sends a burst of expand signals, lets the page settle after each
// one, and compares the content height before and after the burst. A run of
// NoGrowthThreshold rounds without growth means the page has converged.
package scroll

import (
	"context"
	"fmt"
	"time"

	"imgharvest/pkg/config"
	"imgharvest/pkg/logger"
)

// Surface is a rendered page that can be grown by expand signals.
// Only one caller may drive a Surface at a time.
type Surface interface {
	Open(ctx context.Context, url string) error
	ContentHeight(ctx context.Context) (int, error)
	SendExpandSignal(ctx context.Context) error
	Content(ctx context.Context) (string, error)
	Release() error
}

// Phase is the expander's state machine position
type Phase int

const (
	PhaseExpanding Phase = iota
	PhaseConverged
	// PhaseCapped means a round or time cap stopped expansion before convergence
	PhaseCapped
)

func (p Phase) String() string {
	switch p {
	case PhaseExpanding:
		return "expanding"
	case PhaseConverged:
		return "converged"
	case PhaseCapped:
		return "capped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further rounds will run
func (p Phase) Terminal() bool {
	return p == PhaseConverged || p == PhaseCapped
}

// State is the per-expansion bookkeeping. It is never shared between pages.
type State struct {
	LastHeight     int
	NoGrowthRounds int
	Rounds         int
	Phase          Phase
}

// Observe records the height measured after a burst and advances the phase
func (s *State) Observe(height, threshold int) {
	s.Rounds++
	if height == s.LastHeight {
		s.NoGrowthRounds++
		if s.NoGrowthRounds >= threshold {
			s.Phase = PhaseConverged
		}
		return
	}
	s.LastHeight = height
	s.NoGrowthRounds = 0
}

// Config controls burst size, pacing and caps. Zero caps mean unlimited.
type Config struct {
	StepsPerRound     int
	SettleDelay       time.Duration
	NoGrowthThreshold int
	MaxRounds         int
	MaxDuration       time.Duration
}

// ConfigFrom converts the scroll section of the application config
func ConfigFrom(c config.ScrollConfig) Config {
	return Config{
		StepsPerRound:     c.StepsPerRound,
		SettleDelay:       c.SettleDelay,
		NoGrowthThreshold: c.NoGrowthThreshold,
		MaxRounds:         c.MaxRounds,
		MaxDuration:       c.MaxDuration,
	}
}

func (c Config) withDefaults() Config {
	if c.StepsPerRound <= 0 {
		c.StepsPerRound = 50
	}
	if c.NoGrowthThreshold <= 0 {
		c.NoGrowthThreshold = 2
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Sleeper pauses between expand signals
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper waits for d or until ctx is done
func ContextSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result describes how an expansion ended
type Result struct {
	Phase       Phase
	Rounds      int
	Steps       int
	FinalHeight int
	Duration    time.Duration
}

// Expander drives a Surface to convergence
type Expander struct {
	surface Surface
	cfg     Config
	sleep   Sleeper
	now     func() time.Time
	log     logger.Logger
}

// Option customises an Expander
type Option func(*Expander)

// WithSleeper replaces the settle wait, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(e *Expander) { e.sleep = s }
}

// WithClock replaces the time source used for the duration cap
func WithClock(now func() time.Time) Option {
	return func(e *Expander) { e.now = now }
}

// NewExpander creates an Expander for surface
func NewExpander(surface Surface, cfg Config, log logger.Logger, opts ...Option) *Expander {
	if log == nil {
		log = logger.NewNopLogger()
	}
	e := &Expander{
		surface: surface,
		cfg:     cfg.withDefaults(),
		sleep:   ContextSleeper,
		now:     time.Now,
		log:     log.WithField("component", "scroll"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand runs rounds until the page converges, a cap is hit, or the surface fails.
// On failure the result reflects the state reached so far and the page keeps
// whatever content it had loaded.
func (e *Expander) Expand(ctx context.Context) (Result, error) {
	start := e.now()
	var res Result

	height, err := e.surface.ContentHeight(ctx)
	if err != nil {
		return e.finish(res, start, PhaseExpanding), fmt.Errorf("failed to read initial height: %w", err)
	}
	st := State{LastHeight: height, Phase: PhaseExpanding}
	res.FinalHeight = height

	for !st.Phase.Terminal() {
		if e.capped(st, start) {
			st.Phase = PhaseCapped
			break
		}

		for i := 0; i < e.cfg.StepsPerRound; i++ {
			if err := e.surface.SendExpandSignal(ctx); err != nil {
				res.Rounds = st.Rounds
				return e.finish(res, start, st.Phase), fmt.Errorf("expand signal failed in round %d: %w", st.Rounds+1, err)
			}
			res.Steps++
			if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
				res.Rounds = st.Rounds
				return e.finish(res, start, st.Phase), err
			}
		}

		height, err := e.surface.ContentHeight(ctx)
		if err != nil {
			res.Rounds = st.Rounds
			return e.finish(res, start, st.Phase), fmt.Errorf("failed to read height after round %d: %w", st.Rounds+1, err)
		}

		st.Observe(height, e.cfg.NoGrowthThreshold)
		res.FinalHeight = height
		logger.LogScrollRound(e.log, st.Rounds, height, st.NoGrowthRounds)
	}

	res.Rounds = st.Rounds
	res = e.finish(res, start, st.Phase)
	e.log.InfoWithFields("Expansion finished", map[string]interface{}{
		"phase":    res.Phase.String(),
		"rounds":   res.Rounds,
		"steps":    res.Steps,
		"height":   res.FinalHeight,
		"duration": res.Duration,
	})
	return res, nil
}

func (e *Expander) capped(st State, start time.Time) bool {
	if e.cfg.MaxRounds > 0 && st.Rounds >= e.cfg.MaxRounds {
		return true
	}
	if e.cfg.MaxDuration > 0 && e.now().Sub(start) >= e.cfg.MaxDuration {
		return true
	}
	return false
}

func (e *Expander) finish(res Result, start time.Time, phase Phase) Result {
	res.Phase = phase
	res.Duration = e.now().Sub(start)
	return res
}
