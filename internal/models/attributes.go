package models

import (
	"fmt"
	"strconv"
	"strings"
)

// The six canonical attribute keys.
const (
	Strength     = "STR"
	Dexterity    = "DEX"
	Intelligence = "INT"
	Wisdom       = "WIS"
	Charisma     = "CHA"
	Luck         = "LUK"
)

// AttributeKeys lists the canonical keys in display order.
var AttributeKeys = []string{Strength, Dexterity, Intelligence, Wisdom, Charisma, Luck}

// AttributeNames maps each key to a human readable name.
var AttributeNames = map[string]string{
	Strength:     "Strength",
	Dexterity:    "Dexterity",
	Intelligence: "Intelligence",
	Wisdom:       "Wisdom",
	Charisma:     "Charisma",
	Luck:         "Luck",
}

// DefaultAttributeValue is the starting value of every attribute.
const DefaultAttributeValue = 20.0

// Attributes holds the player's stats. The key set is fixed at
// construction; values are unbounded.
type Attributes struct {
	values map[string]float64
}

// NewAttributes returns attributes with every canonical key set to base.
func NewAttributes(base float64) *Attributes {
	a := &Attributes{values: make(map[string]float64, len(AttributeKeys))}
	for _, k := range AttributeKeys {
		a.values[k] = base
	}
	return a
}

// Has reports whether key is a known attribute.
func (a *Attributes) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Get returns the value of key, or 0 for unknown keys.
func (a *Attributes) Get(key string) float64 {
	return a.values[key]
}

// Set updates key. Unknown keys are ignored.
func (a *Attributes) Set(key string, value float64) {
	if _, ok := a.values[key]; ok {
		a.values[key] = value
	}
}

// Keys returns the canonical keys in display order.
func (a *Attributes) Keys() []string {
	return append([]string(nil), AttributeKeys...)
}

// Render returns the attributes formatted for a prompt.
func (a *Attributes) Render() string {
	var b strings.Builder
	b.WriteString("Player attributes:\n")
	for _, k := range AttributeKeys {
		fmt.Fprintf(&b, "%s %s: %s\n", AttributeNames[k], k, formatValue(a.values[k]))
	}
	return b.String()
}

// Snapshot returns a copy of the values.
func (a *Attributes) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Restore copies known keys from values. Keys missing from values keep
// their current value, unknown keys are dropped.
func (a *Attributes) Restore(values map[string]float64) {
	for k, v := range values {
		a.Set(k, v)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
