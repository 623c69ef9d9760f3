package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tatianab/dicetale/internal/models"
)

type inputKind int

const (
	inputEmpty inputKind = iota
	inputOption
	inputCustom
	inputThink
	inputItems
	inputSave
	inputLoad
	inputCompact
	inputStats
	inputExport
	inputRestart
	inputQuit
	inputHelp
	inputNoOptions
	inputSkipAction
	inputSetVar
	inputDelVar
	inputSummary
	inputUnknown
)

// input is one parsed line typed while choosing.
type input struct {
	kind     inputKind
	optionID int
	arg      string
}

var slashCommands = map[string]inputKind{
	"/think":   inputThink,
	"/items":   inputItems,
	"/save":    inputSave,
	"/load":    inputLoad,
	"/compact": inputCompact,
	"/stats":   inputStats,
	"/export":  inputExport,
	"/restart": inputRestart,
	"/quit":    inputQuit,
	"/help":    inputHelp,

	"/csmode":     inputNoOptions,
	"/skipaction": inputSkipAction,
	"/setvar":     inputSetVar,
	"/delvar":     inputDelVar,
	"/summary":    inputSummary,
}

func parseInput(line string) input {
	line = strings.TrimSpace(line)
	if line == "" {
		return input{kind: inputEmpty}
	}
	if strings.HasPrefix(line, "/") {
		name, arg, _ := strings.Cut(line, " ")
		kind, ok := slashCommands[strings.ToLower(name)]
		if !ok {
			return input{kind: inputUnknown, arg: name}
		}
		return input{kind: kind, arg: strings.TrimSpace(arg)}
	}
	if id, err := strconv.Atoi(line); err == nil {
		return input{kind: inputOption, optionID: id}
	}
	return input{kind: inputCustom, arg: line}
}

const helpText = `Type an option number, or describe your own action.
/think <question>  think it over (limited charges)
/items             open the item manager
/save [name]       save the game
/load              load the latest autosave
/compact           compact the story summaries now
/stats             token usage
/export            export the story as a PDF
/summary           list the story summaries
/setvar <name> <value>, /delvar <name>
/csmode            toggle no-options mode
/skipaction        toggle skipping action classification
/restart, /quit`

// varValue types a value typed after /setvar the way set_var values
// arrive from the model: numbers and booleans stay typed.
func varValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return strings.Trim(raw, `"'`)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func renderSummaries(s []string) string {
	if len(s) == 0 {
		return "No summaries yet."
	}
	var b strings.Builder
	for i, line := range s {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, line)
	}
	return b.String()
}

const itemHelpText = `Item manager:
remove <items>          throw items away
put <items>             put items in the repository
get <items>             take items from the repository
putall, getall          move everything
add <name>: <desc>      add an item
rename <item> <name>    rename an item
redesc <item> <desc>    change a description
use <item> <action> [@ <target>]
exit
Items are names or list numbers, several separated by commas.`

// itemCommand is one line typed in the item manager.
type itemCommand struct {
	verb   string
	refs   []string
	ref    string
	text   string
	target string
}

var errItemUsage = errors.New("unrecognized item command, type help")

func parseItemCommand(line string) (itemCommand, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	rest = strings.TrimSpace(rest)

	c := itemCommand{verb: verb}
	switch verb {
	case "exit", "putall", "getall", "help":
		return c, nil
	case "remove", "put", "get":
		c.refs = splitRefs(rest)
		if len(c.refs) == 0 {
			return c, fmt.Errorf("%s needs at least one item", verb)
		}
	case "add":
		name, desc, _ := strings.Cut(rest, ":")
		c.ref, c.text = strings.TrimSpace(name), strings.TrimSpace(desc)
		if c.ref == "" {
			return c, errors.New("add needs a name")
		}
	case "rename", "redesc":
		ref, text, _ := strings.Cut(rest, " ")
		c.ref, c.text = ref, strings.TrimSpace(text)
		if c.ref == "" || c.text == "" {
			return c, fmt.Errorf("usage: %s <item> <text>", verb)
		}
	case "use":
		ref, action, _ := strings.Cut(rest, " ")
		action, target, _ := strings.Cut(action, "@")
		c.ref, c.text, c.target = ref, strings.TrimSpace(action), strings.TrimSpace(target)
		if c.ref == "" || c.text == "" {
			return c, errors.New("usage: use <item> <action> [@ <target>]")
		}
	default:
		return c, errItemUsage
	}
	return c, nil
}

// splitRefs splits a list of item references. Commas separate names that
// contain spaces; a plain list of numbers may use spaces.
func splitRefs(s string) []string {
	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.Fields(s)
		for _, f := range parts {
			if _, err := strconv.Atoi(f); err != nil {
				parts = []string{s}
				break
			}
		}
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyItemCommand runs every item command except use and returns a
// message for the player. References are resolved before anything moves
// so that list numbers stay stable.
func applyItemCommand(inv *models.Inventory, c itemCommand) (string, error) {
	switch c.verb {
	case "remove", "put":
		names, err := resolve(&inv.Items, c.refs)
		if err != nil {
			return "", err
		}
		for _, n := range names {
			if c.verb == "remove" {
				inv.Remove(n)
			} else if err := inv.MoveToRepository(n); err != nil {
				return "", err
			}
		}
		if c.verb == "remove" {
			return "Removed " + strings.Join(names, ", "), nil
		}
		return "Stored " + strings.Join(names, ", "), nil

	case "get":
		names, err := resolve(&inv.Repository, c.refs)
		if err != nil {
			return "", err
		}
		for _, n := range names {
			if err := inv.MoveFromRepository(n); err != nil {
				return "", err
			}
		}
		return "Took " + strings.Join(names, ", "), nil

	case "putall":
		if kept := inv.MoveAllToRepository(); len(kept) > 0 {
			return "Stored everything except " + strings.Join(kept, ", ") + " (already stored)", nil
		}
		return "Stored everything", nil
	case "getall":
		if kept := inv.MoveAllFromRepository(); len(kept) > 0 {
			return "Took everything except " + strings.Join(kept, ", ") + " (already carried)", nil
		}
		return "Took everything", nil

	case "add":
		if inv.Repository.Has(c.ref) {
			return "", fmt.Errorf("%s is already stored", c.ref)
		}
		if !inv.Add(c.ref, c.text) {
			return "", fmt.Errorf("%s is already carried", c.ref)
		}
		return "Added " + c.ref, nil

	case "rename", "redesc":
		name, ok := inv.Items.Lookup(c.ref)
		if !ok {
			return "", fmt.Errorf("%q: %w", c.ref, models.ErrItemNotFound)
		}
		if c.verb == "rename" {
			if err := inv.Rename(name, c.text); err != nil {
				return "", err
			}
			return fmt.Sprintf("Renamed %s to %s", name, c.text), nil
		}
		if err := inv.Redescribe(name, c.text); err != nil {
			return "", err
		}
		return "Updated " + name, nil
	}
	return "", errItemUsage
}

func resolve(l *models.ItemList, refs []string) ([]string, error) {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		n, ok := l.Lookup(r)
		if !ok {
			return nil, fmt.Errorf("%q: %w", r, models.ErrItemNotFound)
		}
		names = append(names, n)
	}
	return names, nil
}

// useAction is the custom action sent after an item use is accepted.
func useAction(item string, c itemCommand) string {
	s := fmt.Sprintf("Use %s: %s", item, c.text)
	if c.target != "" {
		s += " (target: " + c.target + ")"
	}
	return s
}
