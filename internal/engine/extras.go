package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tatianab/dicetale/internal/check"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

// ErrNoThinkCharges is returned by Think once the charges are spent.
var ErrNoThinkCharges = errors.New("no think charges left")

// ThinkTarget is the success probability of thinking for an INT value.
func ThinkTarget(intelligence float64) float64 {
	return 0.2 + 0.6873*math.Atan(0.02345*intelligence)
}

// Think spends a charge to let the player reflect on question. The
// quality of the answer depends on an INT check, and the answer is added
// to the current description.
func (e *Engine) Think(ctx context.Context, question string) (string, check.Result, error) {
	if !e.Started() {
		return "", check.Result{}, ErrNotStarted
	}
	if e.thinkRemaining <= 0 {
		return "", check.Result{}, ErrNoThinkCharges
	}

	r := e.checker.Check(ThinkTarget(e.State.Attributes.Get(models.Intelligence)), check.WithDoubleCheck())
	q := question + " (" + TierLabel(r.Tier) + ")"

	data := e.promptData()
	data.History = e.storySoFar()
	data.Choice = q
	prompt, err := renderPrompt(promptThink, data)
	if err != nil {
		return "", r, fmt.Errorf("render think prompt: %w", err)
	}

	var answer string
	err = e.chargeLastTurn(func() error {
		return e.generate(ctx, "think", prompt, e.settings.AI.MaxTokens, func(raw string) error {
			answer = strings.TrimSpace(raw)
			return nil
		})
	})
	if err != nil {
		return "", r, err
	}

	e.thinkRemaining--
	e.Description += "\n[Thinking: " + q + "] " + answer
	e.History.Descriptions[len(e.History.Descriptions)-1] = e.Description
	e.log.Info("thought", "question", question, "tier", r.Tier, "remaining", e.thinkRemaining)
	return answer, r, nil
}

// ValidateItemUse asks the model whether using a carried item for action
// makes sense in the current scene. item is a name or a 1-based position.
// An empty answer counts as valid and an unreadable one as invalid.
func (e *Engine) ValidateItemUse(ctx context.Context, item, action, target string) (bool, error) {
	name, ok := e.State.Inventory.Items.Lookup(item)
	if !ok {
		return false, fmt.Errorf("%q: %w", item, models.ErrItemNotFound)
	}
	desc, _ := e.State.Inventory.Items.Get(name)

	data := e.promptData()
	data.Item = name
	data.ItemDescription = desc
	data.Choice = action
	data.Target = target
	prompt, err := renderPrompt(promptUseItem, data)
	if err != nil {
		return false, fmt.Errorf("render use item prompt: %w", err)
	}

	var text string
	err = e.chargeLastTurn(func() error {
		var cerr error
		text, cerr = e.call(ctx, "use_item", prompt, e.settings.AI.MaxTokens)
		return cerr
	})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		e.log.Warn("empty item use verdict, allowing", "item", name)
		return true, nil
	case err != nil:
		return false, err
	}

	valid, err := parseValidity(text)
	if err != nil {
		e.log.Warn("unreadable item use verdict, refusing", "item", name, "err", err)
		return false, nil
	}
	e.log.Info("item use checked", "item", name, "action", action, "valid", valid)
	return valid, nil
}
