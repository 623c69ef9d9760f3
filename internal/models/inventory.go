package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActiveLimit is how many of the most recent items take part in the story.
const ActiveLimit = 50

// ErrItemNotFound is returned when an item is missing from the list an
// operation reads from.
var ErrItemNotFound = errors.New("item not found")

// ErrItemExists is returned when an item would land in a list that already
// holds its name.
var ErrItemExists = errors.New("item already exists")

// Item is a named item and its description.
type Item struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ItemList is an insertion-ordered set of items keyed by name. The zero
// value is an empty list.
type ItemList struct {
	names []string
	descs map[string]string
}

// Len returns the number of items.
func (l *ItemList) Len() int {
	return len(l.names)
}

// Has reports whether name is present.
func (l *ItemList) Has(name string) bool {
	_, ok := l.descs[name]
	return ok
}

// Get returns the description of name.
func (l *ItemList) Get(name string) (string, bool) {
	d, ok := l.descs[name]
	return d, ok
}

// Add appends name unless it is already present. It reports whether the
// item was added.
func (l *ItemList) Add(name, desc string) bool {
	if l.Has(name) {
		return false
	}
	l.put(name, desc)
	return true
}

// Remove deletes name and reports whether it was present.
func (l *ItemList) Remove(name string) bool {
	if !l.Has(name) {
		return false
	}
	delete(l.descs, name)
	for i, n := range l.names {
		if n == name {
			l.names = append(l.names[:i], l.names[i+1:]...)
			break
		}
	}
	return true
}

// Items returns a copy of the items in insertion order.
func (l *ItemList) Items() []Item {
	out := make([]Item, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, Item{Name: n, Description: l.descs[n]})
	}
	return out
}

// Names returns the item names in insertion order.
func (l *ItemList) Names() []string {
	return append([]string(nil), l.names...)
}

// Clear removes every item.
func (l *ItemList) Clear() {
	l.names = nil
	l.descs = nil
}

// Lookup maps a reference to an item name. A reference is either a name
// or a 1-based position in the list.
func (l *ItemList) Lookup(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if l.Has(ref) {
		return ref, true
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 1 && i <= len(l.names) {
		return l.names[i-1], true
	}
	return "", false
}

// put sets name, keeping its position if it already exists.
func (l *ItemList) put(name, desc string) {
	if l.descs == nil {
		l.descs = make(map[string]string)
	}
	if _, ok := l.descs[name]; !ok {
		l.names = append(l.names, name)
	}
	l.descs[name] = desc
}

func (l *ItemList) load(items []Item) {
	l.Clear()
	for _, it := range items {
		l.put(it.Name, it.Description)
	}
}

// Inventory holds the items the player carries and the repository of
// items set aside. The two lists never share a name.
type Inventory struct {
	Items      ItemList
	Repository ItemList
}

// Add adds an item to the carried list unless it is already carried or
// stored in the repository.
func (inv *Inventory) Add(name, desc string) bool {
	if inv.Repository.Has(name) {
		return false
	}
	return inv.Items.Add(name, desc)
}

// Remove deletes a carried item and reports whether it was present.
func (inv *Inventory) Remove(name string) bool {
	return inv.Items.Remove(name)
}

// Has reports whether the player carries name.
func (inv *Inventory) Has(name string) bool {
	return inv.Items.Has(name)
}

// MoveToRepository moves a carried item into the repository.
func (inv *Inventory) MoveToRepository(name string) error {
	return move(&inv.Items, &inv.Repository, name)
}

// MoveFromRepository moves a stored item back to the carried list.
func (inv *Inventory) MoveFromRepository(name string) error {
	return move(&inv.Repository, &inv.Items, name)
}

// MoveAllToRepository stores every carried item and returns the names left
// behind because the repository already holds them.
func (inv *Inventory) MoveAllToRepository() []string {
	return moveAll(&inv.Items, &inv.Repository)
}

// MoveAllFromRepository takes every stored item back and returns the names
// left behind because they are already carried.
func (inv *Inventory) MoveAllFromRepository() []string {
	return moveAll(&inv.Repository, &inv.Items)
}

// Rename renames a carried item, moving it to the end of the list.
func (inv *Inventory) Rename(name, newName string) error {
	desc, ok := inv.Items.Get(name)
	if !ok {
		return fmt.Errorf("rename %q: %w", name, ErrItemNotFound)
	}
	if newName != name && (inv.Items.Has(newName) || inv.Repository.Has(newName)) {
		return fmt.Errorf("rename %q to %q: %w", name, newName, ErrItemExists)
	}
	inv.Items.Remove(name)
	inv.Items.put(newName, desc)
	return nil
}

// Redescribe replaces the description of a carried item.
func (inv *Inventory) Redescribe(name, desc string) error {
	if !inv.Items.Has(name) {
		return fmt.Errorf("redescribe %q: %w", name, ErrItemNotFound)
	}
	inv.Items.put(name, desc)
	return nil
}

// RepairMalformedEntries rewrites carried items whose name still holds a
// "name: description" pair. See RepairItemEntry. It returns how many
// entries changed and the names of repaired entries that were folded into
// an item already carried or stored. A folded entry only lends its
// description to a carried item that has none.
func (inv *Inventory) RepairMalformedEntries() (changed int, merged []string) {
	var fixed ItemList
	for _, it := range inv.Items.Items() {
		name, desc := RepairItemEntry(it.Name, it.Description)
		if name == it.Name && desc == it.Description {
			fixed.Add(name, desc)
			continue
		}
		changed++
		switch {
		case inv.Repository.Has(name):
			merged = append(merged, name)
		case fixed.Has(name):
			if old, _ := fixed.Get(name); old == NoDescription {
				fixed.put(name, desc)
			}
			merged = append(merged, name)
		default:
			fixed.Add(name, desc)
		}
	}
	if changed > 0 {
		inv.Items = fixed
	}
	return changed, merged
}

// RenderForPrompt renders carried items for a prompt. The maxRecent most
// recent items are listed with descriptions; older active items are listed
// by name only.
func (inv *Inventory) RenderForPrompt(maxRecent int) string {
	items := inv.Items.Items()
	if len(items) == 0 {
		return "The player carries no items."
	}
	if maxRecent <= 0 {
		maxRecent = len(items)
	}

	var b strings.Builder
	b.WriteString("Items carried (names include all punctuation):\n")
	split := max(len(items)-maxRecent, 0)
	for _, it := range items[split:] {
		fmt.Fprintf(&b, "%s (%s)\n", it.Name, it.Description)
	}
	if split == 0 {
		return b.String()
	}

	older := items[max(split-(ActiveLimit-maxRecent), 0):split]
	names := make([]string, 0, len(older))
	for _, it := range older {
		names = append(names, it.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "Also carried: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

func move(from, to *ItemList, name string) error {
	desc, ok := from.Get(name)
	if !ok {
		return fmt.Errorf("move %q: %w", name, ErrItemNotFound)
	}
	if to.Has(name) {
		return fmt.Errorf("move %q: %w", name, ErrItemExists)
	}
	from.Remove(name)
	to.put(name, desc)
	return nil
}

func moveAll(from, to *ItemList) []string {
	var kept []string
	for _, it := range from.Items() {
		if to.Has(it.Name) {
			kept = append(kept, it.Name)
			continue
		}
		from.Remove(it.Name)
		to.put(it.Name, it.Description)
	}
	return kept
}
