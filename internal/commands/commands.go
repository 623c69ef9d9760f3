// Package commands turns the narrator's state directives into typed
// commands and applies them to a game state.
package commands

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tatianab/dicetale/internal/models"
	"github.com/tidwall/gjson"
)

// Command kinds as they appear in model output.
const (
	KindAddItem         = "add_item"
	KindRemoveItem      = "remove_item"
	KindChangeAttr      = "change_attr"
	KindChangeSituation = "change_situation"
	KindSetVar          = "set_var"
	KindDelVar          = "del_var"
	KindGameOver        = "gameover"
)

// Older prompt revisions used longer names for two kinds.
var kindAliases = map[string]string{
	"change_attribute":       KindChangeAttr,
	"change_situation_value": KindChangeSituation,
	"game_over":              KindGameOver,
}

// Command is one parsed directive. The concrete types below are the only
// implementations.
type Command interface {
	Kind() string
}

// AddItem gives the player an item.
type AddItem struct {
	Name string
	Desc string
}

// RemoveItem takes an item away.
type RemoveItem struct {
	Name string
}

// ChangeAttr adds Delta to an attribute.
type ChangeAttr struct {
	Key   string
	Delta float64
	Desc  string
}

// ChangeSituation shifts the situation value.
type ChangeSituation struct {
	Delta int
}

// SetVar creates or overwrites variables, in order.
type SetVar struct {
	Entries []models.Var
}

// DelVar deletes a variable.
type DelVar struct {
	Name string
}

// GameOver ends the game in failure.
type GameOver struct{}

// Malformed is an entry that could not be understood. It is skipped when
// applied.
type Malformed struct {
	RawKind string
	Raw     string
	Reason  string
}

func (AddItem) Kind() string         { return KindAddItem }
func (RemoveItem) Kind() string      { return KindRemoveItem }
func (ChangeAttr) Kind() string      { return KindChangeAttr }
func (ChangeSituation) Kind() string { return KindChangeSituation }
func (SetVar) Kind() string          { return KindSetVar }
func (DelVar) Kind() string          { return KindDelVar }
func (GameOver) Kind() string        { return KindGameOver }
func (Malformed) Kind() string       { return "malformed" }

var signedInt = regexp.MustCompile(`^[+-]?\d+$`)

// Parse converts the "commands" value of a response into commands. Every
// shape check happens here; entries that fail become Malformed so the
// batch keeps its positions.
func Parse(raw gjson.Result) []Command {
	if !raw.Exists() || raw.Type == gjson.Null {
		return nil
	}
	if raw.IsObject() {
		return []Command{parseOne(raw)}
	}
	if !raw.IsArray() {
		return []Command{Malformed{Raw: raw.Raw, Reason: "commands is not a list"}}
	}

	var cmds []Command
	raw.ForEach(func(_, el gjson.Result) bool {
		cmds = append(cmds, parseOne(el))
		return true
	})
	return cmds
}

func parseOne(el gjson.Result) Command {
	if !el.IsObject() {
		return Malformed{Raw: el.Raw, Reason: "not an object"}
	}

	tag := el.Get("command")
	if !tag.Exists() {
		tag = el.Get("kind")
	}
	kind := strings.TrimSpace(tag.String())
	if alias, ok := kindAliases[kind]; ok {
		kind = alias
	}
	value := el.Get("value")
	bad := func(reason string) Command {
		return Malformed{RawKind: kind, Raw: el.Raw, Reason: reason}
	}

	switch kind {
	case KindAddItem:
		name, desc, ok := firstEntry(value)
		if !ok || name == "" {
			return bad("value is not a {name: description} object")
		}
		return AddItem{Name: name, Desc: desc.String()}

	case KindRemoveItem:
		name := scalarString(value)
		if name == "" {
			return bad("missing item name")
		}
		return RemoveItem{Name: name}

	case KindChangeAttr:
		if !value.IsObject() || countEntries(value) != 1 {
			return bad("value is not a single {attr: delta} object")
		}
		key, d, _ := firstEntry(value)
		delta, ok := number(d)
		if !ok {
			return bad("delta is not a number")
		}
		return ChangeAttr{Key: key, Delta: delta, Desc: el.Get("desc").String()}

	case KindChangeSituation:
		delta, ok := integer(value)
		if !ok {
			return bad("value is not an integer")
		}
		return ChangeSituation{Delta: delta}

	case KindSetVar:
		if !value.IsObject() {
			return bad("value is not an object")
		}
		var entries []models.Var
		value.ForEach(func(k, v gjson.Result) bool {
			entries = append(entries, models.Var{Name: k.String(), Value: v.Value()})
			return true
		})
		return SetVar{Entries: entries}

	case KindDelVar:
		name := scalarString(value)
		if name == "" {
			return bad("missing variable name")
		}
		return DelVar{Name: name}

	case KindGameOver:
		return GameOver{}

	case "":
		return bad("missing command tag")
	default:
		return bad("unknown command")
	}
}

func firstEntry(obj gjson.Result) (string, gjson.Result, bool) {
	if !obj.IsObject() {
		return "", gjson.Result{}, false
	}
	var (
		key   string
		value gjson.Result
		found bool
	)
	obj.ForEach(func(k, v gjson.Result) bool {
		key, value, found = k.String(), v, true
		return false
	})
	return key, value, found
}

func countEntries(obj gjson.Result) int {
	n := 0
	obj.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}

func scalarString(v gjson.Result) string {
	switch v.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(v.String())
	}
	return ""
}

func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

// integer accepts integral JSON numbers and signed digit strings like "-2".
func integer(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num != math.Trunc(v.Num) {
			return 0, false
		}
		return int(v.Num), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if !signedInt.MatchString(s) {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	return 0, false
}
