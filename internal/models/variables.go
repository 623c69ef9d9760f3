package models

import (
	"fmt"
	"strings"
)

// Variables is the narrator's free-form fact table, such as an NPC's
// affinity score. Keys keep their first insertion order.
type Variables struct {
	keys   []string
	values map[string]any
}

// Var is a single variable, used for ordered serialization.
type Var struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Set creates or overwrites name.
func (v *Variables) Set(name string, value any) {
	if v.values == nil {
		v.values = make(map[string]any)
	}
	if _, ok := v.values[name]; !ok {
		v.keys = append(v.keys, name)
	}
	v.values[name] = value
}

// Get returns the value of name.
func (v *Variables) Get(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Delete removes name and reports whether it existed.
func (v *Variables) Delete(name string) bool {
	if _, ok := v.values[name]; !ok {
		return false
	}
	delete(v.values, name)
	for i, k := range v.keys {
		if k == name {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of variables.
func (v *Variables) Len() int {
	return len(v.keys)
}

// List returns the variables in order.
func (v *Variables) List() []Var {
	out := make([]Var, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Var{Name: k, Value: v.values[k]})
	}
	return out
}

// Render formats the table for a prompt.
func (v *Variables) Render() string {
	if len(v.keys) == 0 {
		return "There are no game variables."
	}
	var b strings.Builder
	b.WriteString("Game variables (name: value):\n")
	for _, k := range v.keys {
		fmt.Fprintf(&b, "%s: %v\n", k, v.values[k])
	}
	return b.String()
}

func (v *Variables) load(vars []Var) {
	v.keys = nil
	v.values = nil
	for _, it := range vars {
		v.Set(it.Name, it.Value)
	}
}
