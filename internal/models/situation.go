package models

import (
	"fmt"
	"math"
)

// Default situation bounds.
const (
	SituationMin = -10
	SituationMax = 10
)

type situationBand struct {
	lo, hi int // [lo, hi)
	label  string
}

var situationBands = []situationBand{
	{math.MinInt, -10, "the situation is extremely unfavorable"},
	{-10, -7, "the situation is very unfavorable"},
	{-7, -4, "the situation is clearly unfavorable"},
	{-4, -1, "the situation is slightly unfavorable"},
	{-1, 1, "the situation is even"},
	{1, 4, "the situation is slightly favorable"},
	{4, 7, "the situation is clearly favorable"},
	{7, 10, "the situation is very favorable"},
	{10, math.MaxInt, "the situation is extremely favorable"},
}

// Situation is the narrative momentum for or against the player.
type Situation struct {
	Value int `yaml:"value"`
	Min   int `yaml:"min"`
	Max   int `yaml:"max"`
}

// NewSituation returns an even situation clamped to [lo, hi].
func NewSituation(lo, hi int) *Situation {
	if lo > hi {
		lo, hi = hi, lo
	}
	return &Situation{Min: lo, Max: hi}
}

// Get returns the current value.
func (s *Situation) Get() int {
	return s.Value
}

// Adjust adds delta and clamps the result.
func (s *Situation) Adjust(delta int) {
	s.Value += delta
	s.clamp()
}

// Describe clamps the value and returns its label.
func (s *Situation) Describe() string {
	s.clamp()
	for _, b := range situationBands {
		if s.Value >= b.lo && s.Value < b.hi {
			return b.label
		}
	}
	return situationBands[len(situationBands)-1].label
}

// DescribeWithValue is Describe prefixed with the numeric value.
func (s *Situation) DescribeWithValue() string {
	label := s.Describe()
	return fmt.Sprintf("Situation value %d (%s)", s.Value, label)
}

func (s *Situation) clamp() {
	if s.Min == 0 && s.Max == 0 {
		s.Min, s.Max = SituationMin, SituationMax
	}
	s.Value = min(max(s.Value, s.Min), s.Max)
}
