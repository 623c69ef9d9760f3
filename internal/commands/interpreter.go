package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/tatianab/dicetale/internal/models"
)

// Notices is a queue of player-facing messages. The engine pushes, the
// presentation layer drains.
type Notices struct {
	mu    sync.Mutex
	items []models.Notice
}

// Push queues a notice.
func (n *Notices) Push(text string, sev models.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, models.Notice{Text: text, Severity: sev})
}

// Drain returns and clears the queued notices.
func (n *Notices) Drain() []models.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}

// Pending returns a copy of the queued notices without clearing them.
func (n *Notices) Pending() []models.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notice(nil), n.items...)
}

// Restore replaces the queue.
func (n *Notices) Restore(items []models.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append([]models.Notice(nil), items...)
}

// Report summarizes one Apply call.
type Report struct {
	Applied  int
	Skipped  int
	GameOver bool
}

// Interpreter applies commands to a game state.
type Interpreter struct {
	PlayerName string
	Notices    *Notices
	Logger     *slog.Logger
}

// NewInterpreter returns an interpreter that names the player in notices.
func NewInterpreter(playerName string) *Interpreter {
	return &Interpreter{
		PlayerName: playerName,
		Notices:    &Notices{},
		Logger:     slog.Default(),
	}
}

// Apply runs cmds against state in order. It is not transactional: a
// skipped command does not undo earlier ones. A GameOver marks the state
// failed and stops the batch.
func (in *Interpreter) Apply(state *models.GameState, cmds []Command) Report {
	var rep Report
	for i, cmd := range cmds {
		if in.apply(state, cmd) {
			rep.Applied++
		} else {
			rep.Skipped++
		}
		if _, ok := cmd.(GameOver); ok {
			rep.GameOver = true
			if rest := len(cmds) - i - 1; rest > 0 {
				in.Logger.Info("game over, dropping remaining commands", "dropped", rest)
			}
			break
		}
	}
	return rep
}

func (in *Interpreter) apply(state *models.GameState, cmd Command) bool {
	log := in.Logger
	switch c := cmd.(type) {
	case AddItem:
		if _, merged := state.Inventory.RepairMalformedEntries(); len(merged) > 0 {
			log.Warn("merged repaired items into existing entries", "items", merged)
		}
		if state.Inventory.Repository.Has(c.Name) {
			log.Info("item already stored", "item", c.Name)
			return false
		}
		if !state.Inventory.Add(c.Name, c.Desc) {
			log.Info("item already carried", "item", c.Name)
			return false
		}
		in.Notices.Push(fmt.Sprintf("You gained %s", c.Name), models.SeverityPositive)
		log.Info("added item", "item", c.Name, "desc", c.Desc)

	case RemoveItem:
		if !state.Inventory.Remove(c.Name) {
			log.Warn("remove_item: item not carried", "item", c.Name)
			return false
		}
		in.Notices.Push(fmt.Sprintf("You lost %s", c.Name), models.SeverityNegative)
		log.Info("removed item", "item", c.Name)

	case ChangeAttr:
		if !state.Attributes.Has(c.Key) {
			log.Warn("change_attr: unknown attribute", "attr", c.Key)
			return false
		}
		total := state.Attributes.Get(c.Key) + c.Delta
		state.Attributes.Set(c.Key, total)
		in.Notices.Push(in.attrMessage(c, total), severityOf(c.Delta))
		log.Info("changed attribute", "attr", c.Key, "delta", c.Delta, "desc", c.Desc)

	case ChangeSituation:
		state.Situation.Adjust(c.Delta)
		log.Info("changed situation", "delta", c.Delta, "value", state.Situation.Get())

	case SetVar:
		for _, e := range c.Entries {
			state.Variables.Set(e.Name, e.Value)
		}
		log.Info("set variables", "count", len(c.Entries))

	case DelVar:
		if !state.Variables.Delete(c.Name) {
			log.Warn("del_var: no such variable", "var", c.Name)
			return false
		}
		log.Info("deleted variable", "var", c.Name)

	case GameOver:
		state.Status = models.StatusFailure
		in.Notices.Push("Game over", models.SeverityNegative)
		log.Info("game over")

	case Malformed:
		log.Warn("skipping malformed command", "kind", c.RawKind, "reason", c.Reason, "raw", c.Raw)
		return false

	default:
		log.Warn("skipping unsupported command", "kind", cmd.Kind())
		return false
	}
	return true
}

func (in *Interpreter) attrMessage(c ChangeAttr, total float64) string {
	who := in.PlayerName
	if who == "" {
		who = "Your"
	} else {
		who += "'s"
	}
	because := ""
	if c.Desc != "" {
		because = " (" + c.Desc + ")"
	}
	delta := strconv.FormatFloat(c.Delta, 'f', -1, 64)
	if c.Delta > 0 {
		delta = "+" + delta
	}
	return fmt.Sprintf("%s %s changed by %s%s, now %s", who, c.Key, delta, because,
		strconv.FormatFloat(total, 'f', -1, 64))
}

func severityOf(delta float64) models.Severity {
	switch {
	case delta > 0:
		return models.SeverityPositive
	case delta < 0:
		return models.SeverityNegative
	}
	return models.SeverityNeutral
}

// RemoveItems removes every named item. Absent names are logged and
// skipped.
func (in *Interpreter) RemoveItems(state *models.GameState, names []string) Report {
	cmds := make([]Command, 0, len(names))
	for _, n := range names {
		cmds = append(cmds, RemoveItem{Name: n})
	}
	return in.Apply(state, cmds)
}

// DeleteVars deletes every named variable. Absent names are logged and
// skipped.
func (in *Interpreter) DeleteVars(state *models.GameState, names []string) Report {
	cmds := make([]Command, 0, len(names))
	for _, n := range names {
		cmds = append(cmds, DelVar{Name: n})
	}
	return in.Apply(state, cmds)
}
