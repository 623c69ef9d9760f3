// Package check implements the tiered probability check used to resolve
// risky actions.
//
// A check compares uniform draws against a target probability. In
// single-draw mode the result is Success or Failure (optionally Neutral
// inside a band around the target). In double-draw mode the first draw
// against a reduced target can produce a CriticalSuccess, the second a
// MinorSuccess, and failures are split into MinorFailure and
// CriticalFailure by how far the draws missed. A final chance can upgrade
// any failure to MinorSuccess.
package check

import "time"

// Tier is the outcome of a check.
type Tier int

const (
	CriticalFailure Tier = -3
	Failure         Tier = -2
	MinorFailure    Tier = -1
	Neutral         Tier = 0
	MinorSuccess    Tier = 1
	Success         Tier = 2
	CriticalSuccess Tier = 3
)

func (t Tier) String() string {
	switch t {
	case CriticalFailure:
		return "critical failure"
	case Failure:
		return "failure"
	case MinorFailure:
		return "minor failure"
	case Neutral:
		return "neutral"
	case MinorSuccess:
		return "minor success"
	case Success:
		return "success"
	case CriticalSuccess:
		return "critical success"
	default:
		return "unknown"
	}
}

// IsSuccess reports whether the tier counts as a success.
func (t Tier) IsSuccess() bool {
	return t > Neutral
}

// IsFailure reports whether the tier counts as a failure.
func (t Tier) IsFailure() bool {
	return t < Neutral
}

// Stage identifies which draw of a check produced a value.
type Stage int

const (
	StageSingle Stage = iota
	StageFirst
	StageSecond
	StageFinalGate
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageSingle:
		return "check"
	case StageFirst:
		return "first check"
	case StageSecond:
		return "second check"
	case StageFinalGate:
		return "final chance gate"
	case StageFinal:
		return "final chance"
	default:
		return "unknown"
	}
}

// Draw records a single random draw and the target it was compared with.
type Draw struct {
	Stage    Stage
	Value    float64
	Target   float64
	Duration time.Duration
}

// Hit reports whether the draw landed under its target.
func (d Draw) Hit() bool {
	return d.Value < d.Target
}

// Result is the outcome of a check together with every draw made.
type Result struct {
	Tier  Tier
	Draws []Draw
}

// Observer is notified of every draw. Observers must not influence the
// outcome; they exist for animation and logging.
type Observer func(Draw)

// Checker runs probability checks against a random source.
type Checker struct {
	src      Source
	observer Observer
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithObserver installs a draw observer.
func WithObserver(o Observer) CheckerOption {
	return func(c *Checker) {
		c.observer = o
	}
}

// New returns a Checker drawing from src. A nil src uses a freshly seeded
// source.
func New(src Source, opts ...CheckerOption) *Checker {
	if src == nil {
		src = NewSource(NewSeed())
	}
	c := &Checker{src: src}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetObserver replaces the draw observer. A nil observer disables
// notifications.
func (c *Checker) SetObserver(o Observer) {
	c.observer = o
}

// Check runs a probability check against target. Targets outside [0,1] are
// accepted and simply bias the draws.
func (c *Checker) Check(target float64, opts ...Option) Result {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var r Result
	if o.DoubleCheck {
		r = c.double(target, o)
	} else {
		r = c.single(target, o)
	}

	if !o.FinalChance || !r.Tier.IsFailure() {
		return r
	}

	gate := c.draw(&r, StageFinalGate, o.FinalChanceProb, 0)
	if !gate.Hit() {
		return r
	}
	final := c.draw(&r, StageFinal, o.FinalChanceTarget, o.FinalDuration)
	if final.Hit() {
		r.Tier = MinorSuccess
	}
	return r
}

func (c *Checker) single(target float64, o Options) Result {
	var r Result
	d := c.draw(&r, StageSingle, target, o.FirstDuration)
	switch {
	case d.Hit():
		r.Tier = Success
	case o.NormalBand && abs(d.Value-target) < o.NormalBandWidth:
		r.Tier = Neutral
	default:
		r.Tier = Failure
	}
	return r
}

func (c *Checker) double(target float64, o Options) Result {
	var r Result

	firstTarget := target * o.FirstFactor
	secondTarget := target * o.SecondFactor
	if o.BaseFirstSuccess {
		firstTarget = max(firstTarget, minTarget)
		secondTarget = max(secondTarget, minTarget)
	}

	first := c.draw(&r, StageFirst, firstTarget, o.FirstDuration)
	if first.Hit() {
		r.Tier = CriticalSuccess
		return r
	}

	second := c.draw(&r, StageSecond, secondTarget, o.SecondDuration)
	switch {
	case second.Hit():
		r.Tier = MinorSuccess
	case o.NormalBand && abs(first.Value-target) < o.NormalBandWidth:
		r.Tier = Neutral
	case min(first.Value, second.Value) < target+o.BigFailureAddon:
		r.Tier = MinorFailure
	default:
		r.Tier = CriticalFailure
	}
	return r
}

func (c *Checker) draw(r *Result, stage Stage, target float64, d time.Duration) Draw {
	dr := Draw{
		Stage:    stage,
		Value:    c.src.Float64(),
		Target:   target,
		Duration: d,
	}
	r.Draws = append(r.Draws, dr)
	if c.observer != nil {
		c.observer(dr)
	}
	return dr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
