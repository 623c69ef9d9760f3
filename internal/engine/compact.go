package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// CompactionDue reports whether the summaries should be compacted before
// the next turn.
func (e *Engine) CompactionDue() bool {
	return len(e.History.Summaries) > e.settings.Game.CompactionThreshold && e.cooldown < 1
}

// Compact folds old summaries into one and drops the items and variables
// the model no longer needs. If every summary but the latest is already
// long, the oldest batch is diluted into a single summary. Otherwise the
// short summaries are compressed into one that goes at the end.
func (e *Engine) Compact(ctx context.Context) error {
	g := e.settings.Game
	all := e.History.Summaries
	if len(all) == 0 {
		return nil
	}
	short := func(s string) bool {
		return s != "" && utf8.RuneCountInString(s) < g.CompressedLength
	}

	dilute := !slices.ContainsFunc(all[:len(all)-1], short)
	batchSize := g.DilutionBatch
	if batchSize <= 0 {
		batchSize = 10
	}
	batchSize = min(batchSize, len(all))

	var (
		batch     []string
		maxTokens int
	)
	if dilute {
		batch = all[:batchSize]
		maxTokens = dilutionMaxTokens
	} else {
		batch = slices.DeleteFunc(slices.Clone(all), func(s string) bool { return !short(s) })
		maxTokens = compressionMaxTokens
	}

	data := e.promptData()
	data.History = joinNonEmpty(batch)
	prompt, err := renderPrompt(promptSummary, data)
	if err != nil {
		return fmt.Errorf("render summary prompt: %w", err)
	}

	var c compaction
	err = e.chargeLastTurn(func() error {
		return e.generate(ctx, "compact", prompt, maxTokens, func(raw string) error {
			var perr error
			c, perr = parseCompaction(raw)
			return perr
		})
	})
	if err != nil {
		return err
	}

	if dilute {
		e.History.Summaries = append([]string{c.Summary}, all[batchSize:]...)
	} else {
		kept := slices.DeleteFunc(slices.Clone(all), func(s string) bool {
			return strings.TrimSpace(s) == "" || short(s)
		})
		e.History.Summaries = append(kept, c.Summary)
	}
	e.Interp.RemoveItems(e.State, c.UselessItems)
	e.Interp.DeleteVars(e.State, c.UselessVars)
	e.cooldown = g.CompactionCooldown

	e.log.Info("compacted summaries", "dilute", dilute, "before", len(all), "after", len(e.History.Summaries),
		"items_removed", len(c.UselessItems), "vars_removed", len(c.UselessVars))
	return nil
}

// chargeLastTurn runs fn and adds the tokens it spends to the cost of the
// latest turn.
func (e *Engine) chargeLastTurn(fn func() error) error {
	saved := e.turnTokens
	e.turnTokens = 0
	err := fn()
	if n := len(e.History.TokenCosts); n > 0 {
		e.History.TokenCosts[n-1] += e.turnTokens
	}
	e.turnTokens = saved
	return err
}
