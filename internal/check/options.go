package check

import "time"

// minTarget is the floor applied to double-check targets when
// BaseFirstSuccess is set.
const minTarget = 0.01

// Options tunes a single Check call. Use DefaultOptions and the With
// functions rather than building it by hand.
type Options struct {
	NormalBand      bool
	NormalBandWidth float64

	DoubleCheck      bool
	FirstFactor      float64
	SecondFactor     float64
	BaseFirstSuccess bool
	BigFailureAddon  float64

	FinalChance       bool
	FinalChanceProb   float64
	FinalChanceTarget float64

	FirstDuration  time.Duration
	SecondDuration time.Duration
	FinalDuration  time.Duration
}

// DefaultOptions returns the defaults: single draw, no neutral band, no
// final chance.
func DefaultOptions() Options {
	return Options{
		NormalBandWidth:   0.1,
		FirstFactor:       0.65,
		SecondFactor:      1.00,
		BaseFirstSuccess:  true,
		BigFailureAddon:   0.20,
		FinalChanceProb:   0.05,
		FinalChanceTarget: 0.05,
		FirstDuration:     2 * time.Second,
		SecondDuration:    2 * time.Second,
		FinalDuration:     2 * time.Second,
	}
}

// Option modifies Options.
type Option func(*Options)

// WithNormalBand classifies misses within width of the target as Neutral.
func WithNormalBand(width float64) Option {
	return func(o *Options) {
		o.NormalBand = true
		o.NormalBandWidth = width
	}
}

// WithDoubleCheck switches to the two-draw algorithm.
func WithDoubleCheck() Option {
	return func(o *Options) {
		o.DoubleCheck = true
	}
}

// WithFactors sets the multipliers applied to the target for the first and
// second draw of a double check.
func WithFactors(first, second float64) Option {
	return func(o *Options) {
		o.FirstFactor = first
		o.SecondFactor = second
	}
}

// WithBaseFirstSuccess toggles the 1% floor on double-check targets.
func WithBaseFirstSuccess(enabled bool) Option {
	return func(o *Options) {
		o.BaseFirstSuccess = enabled
	}
}

// WithBigFailureAddon sets how far above the target both draws must land
// for a critical failure.
func WithBigFailureAddon(addon float64) Option {
	return func(o *Options) {
		o.BigFailureAddon = addon
	}
}

// WithFinalChance enables the final chance: with probability prob a failed
// check gets one more draw against target.
func WithFinalChance(prob, target float64) Option {
	return func(o *Options) {
		o.FinalChance = true
		o.FinalChanceProb = prob
		o.FinalChanceTarget = target
	}
}

// WithDurations sets the animation hints passed to the observer.
func WithDurations(first, second, final time.Duration) Option {
	return func(o *Options) {
		o.FirstDuration = max(first, 100*time.Millisecond)
		o.SecondDuration = max(second, 100*time.Millisecond)
		o.FinalDuration = max(final, 100*time.Millisecond)
	}
}
