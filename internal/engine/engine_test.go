package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/tatianab/dicetale/internal/check"
	"github.com/tatianab/dicetale/internal/config"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

// fakeGen replays canned responses in order.
type fakeGen struct {
	replies []string
	errs    map[int]error
	reqs    []llm.Request
}

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if err := f.errs[i]; err != nil {
		return llm.Response{}, err
	}
	if i >= len(f.replies) {
		return llm.Response{}, fmt.Errorf("fake: no reply for call %d", i)
	}
	return llm.Response{
		Text:  f.replies[i],
		Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeGen) lastPrompt() string {
	return f.reqs[len(f.reqs)-1].Prompt
}

// seqSource returns vals in a loop.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

type fakeRecorder struct {
	exchanges []string
	turns     []string
}

func (r *fakeRecorder) RecordExchange(_ context.Context, _, kind, _, _ string, _ int) error {
	r.exchanges = append(r.exchanges, kind)
	return nil
}

func (r *fakeRecorder) RecordTurn(_ context.Context, _ string, turn int, choice, _ string) error {
	r.turns = append(r.turns, fmt.Sprintf("%d:%s", turn, choice))
	return nil
}

const openingReply = `{
	"description": "You wake in a cold hall.",
	"summary": "Ash woke in a hall.",
	"options": [
		{"id": 1, "text": "Open the door", "type": "normal", "next_preview": "The door creaks"},
		{"id": 2, "text": "Lift the gate", "type": "must", "main_factor": "STR", "difficulty": 15},
		{"id": 3, "text": "Pick the lock", "type": "check", "main_factor": "DEX", "difficulty": 20, "base_probability": 0.5}
	],
	"commands": [{"command": "add_item", "value": {"Torch": "A burning torch"}}]
}`

func turnReply(desc string) string {
	return fmt.Sprintf(`{"description": %q, "summary": %q, "options": [{"id": 1, "text": "Go on"}]}`, desc, "s: "+desc)
}

func newTestEngine(t *testing.T, gen *fakeGen, vals ...float64) *Engine {
	t.Helper()
	if len(vals) == 0 {
		vals = []float64{0.5}
	}
	e, err := New(Options{
		Generator:  gen,
		Checker:    check.New(&seqSource{vals: vals}),
		Settings:   config.DefaultSettings(),
		Retry:      RetryPolicy{MaxAttempts: 3},
		Logger:     slog.New(slog.DiscardHandler),
		PlayerName: "Ash",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func startedEngine(t *testing.T, gen *fakeGen, vals ...float64) *Engine {
	t.Helper()
	gen.replies = append([]string{openingReply}, gen.replies...)
	e := newTestEngine(t, gen, vals...)
	if _, err := e.Start(context.Background(), "a cold hall"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e
}

func TestStart(t *testing.T) {
	gen := &fakeGen{}
	rec := &fakeRecorder{}
	gen.replies = []string{openingReply}
	e := newTestEngine(t, gen)
	e.recorder = rec

	res, err := e.Start(context.Background(), "a cold hall")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Report.Applied != 1 || !e.State.Inventory.Has("Torch") {
		t.Errorf("opening commands not applied: %+v", res.Report)
	}
	if e.Description != "You wake in a cold hall." || len(e.Options) != 3 {
		t.Errorf("description %q, %d options", e.Description, len(e.Options))
	}
	if !strings.Contains(gen.lastPrompt(), "a cold hall") || !strings.Contains(gen.lastPrompt(), "Ash") {
		t.Errorf("initial prompt lacks the opening or the player name")
	}
	h := e.History
	if len(h.Descriptions) != 1 || len(h.Summaries) != 1 || len(h.TokenCosts) != 1 || len(h.Choices) != 0 {
		t.Errorf("history = %+v", h)
	}
	if h.TokenCosts[0] != 15 || e.Tokens.Total != 15 {
		t.Errorf("token cost = %d, total = %d, want 15", h.TokenCosts[0], e.Tokens.Total)
	}
	if len(rec.exchanges) != 1 || len(rec.turns) != 1 {
		t.Errorf("recorder saw %v and %v", rec.exchanges, rec.turns)
	}
}

func TestResolveNormalOption(t *testing.T) {
	gen := &fakeGen{replies: []string{turnReply("The door opens.")}}
	e := startedEngine(t, gen)

	res, err := e.Resolve(context.Background(), Decision{OptionID: 1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Blocked || res.Check != nil {
		t.Errorf("res = %+v", res)
	}
	if res.Choice != "[Open the door]" {
		t.Errorf("choice = %q", res.Choice)
	}
	p := gen.lastPrompt()
	if !strings.Contains(p, "[Open the door]") || !strings.Contains(p, "The door creaks") {
		t.Errorf("continuation prompt lacks the choice or its preview:\n%s", p)
	}
	if strings.Contains(p, "Ash woke in a hall.") {
		t.Errorf("continuation prompt contains the latest summary")
	}
	if e.Description != "The door opens." || e.Turns() != 1 || e.CompactionCooldown() != -1 {
		t.Errorf("description %q, turns %d, cooldown %d", e.Description, e.Turns(), e.CompactionCooldown())
	}
	if got := e.History.Choices; len(got) != 1 || got[0] != "[Open the door]" {
		t.Errorf("choices = %v", got)
	}
}

func TestMustGateBlocksWithoutModelCall(t *testing.T) {
	gen := &fakeGen{}
	e := startedEngine(t, gen)
	e.State.Attributes.Set(models.Strength, 10)
	calls := len(gen.reqs)
	before := e.Snapshot()

	res, err := e.Resolve(context.Background(), Decision{OptionID: 2})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Blocked || res.Requirement == "" {
		t.Errorf("res = %+v, want blocked", res)
	}
	if len(gen.reqs) != calls {
		t.Errorf("model called %d times for a blocked option", len(gen.reqs)-calls)
	}
	after := e.Snapshot()
	if len(after.History.Choices) != len(before.History.Choices) || after.Description != before.Description || e.Turns() != 0 {
		t.Errorf("state changed on a blocked option")
	}
}

func TestMustGatePasses(t *testing.T) {
	gen := &fakeGen{replies: []string{turnReply("The gate rises.")}}
	e := startedEngine(t, gen)

	res, err := e.Resolve(context.Background(), Decision{OptionID: 2})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Blocked || res.Choice != "[Lift the gate]" {
		t.Errorf("res = %+v", res)
	}
}

func TestResolveCheckOption(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		want check.Tier
	}{
		{"first draw hits", []float64{0.0}, check.CriticalSuccess},
		{"second draw hits", []float64{0.4, 0.45}, check.MinorSuccess},
		{"near miss", []float64{0.6, 0.65}, check.MinorFailure},
		{"far miss", []float64{0.9, 0.95}, check.CriticalFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGen{replies: []string{turnReply("Click.")}}
			e := startedEngine(t, gen, tt.vals...)

			res, err := e.Resolve(context.Background(), Decision{OptionID: 3})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.Check == nil || res.Check.Tier != tt.want {
				t.Fatalf("check = %+v, want %v", res.Check, tt.want)
			}
			want := "[Pick the lock <" + tt.want.String() + ">]"
			if res.Choice != want || !strings.Contains(gen.lastPrompt(), want) {
				t.Errorf("choice = %q, want %q in the prompt", res.Choice, want)
			}
		})
	}
}

func TestResolveUnknownOption(t *testing.T) {
	gen := &fakeGen{}
	e := startedEngine(t, gen)
	_, err := e.Resolve(context.Background(), Decision{OptionID: 42})
	if !errors.Is(err, ErrUnknownOption) {
		t.Errorf("err = %v, want ErrUnknownOption", err)
	}
	if len(e.History.Choices) != 0 {
		t.Errorf("choice recorded for an unknown option")
	}
}

func TestResolveBeforeStart(t *testing.T) {
	e := newTestEngine(t, &fakeGen{})
	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestGameOver(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`{"description": "You fall.", "options": [{"id": 1, "text": "..."}], "commands": [{"command": "gameover"}, {"command": "add_item", "value": {"Wings": "too late"}}]}`,
	}}
	e := startedEngine(t, gen)

	res, err := e.Resolve(context.Background(), Decision{OptionID: 1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.GameOver || e.State.Status != models.StatusFailure {
		t.Errorf("game over not reported: %+v", res)
	}
	if e.State.Inventory.Has("Wings") {
		t.Errorf("command after gameover was applied")
	}
	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); !errors.Is(err, ErrGameOver) {
		t.Errorf("err = %v, want ErrGameOver", err)
	}
}

func TestCustomActionClassified(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`{"type": "must", "main_factor": "INT", "difficulty": 99}`,
		turnReply("You try to recall the spell."),
	}}
	e := startedEngine(t, gen)

	res, err := e.Resolve(context.Background(), Decision{Custom: "cast a spell"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Blocked {
		t.Errorf("custom must action was blocked")
	}
	if res.Option.ID != models.CustomOptionID || !res.Option.Custom {
		t.Errorf("option = %+v", res.Option)
	}
	if res.Choice != "[cast a spell <does not meet requirement>]" {
		t.Errorf("choice = %q", res.Choice)
	}
	if len(gen.reqs) != 3 {
		t.Errorf("made %d calls, want opening, classification and turn", len(gen.reqs))
	}
	if e.History.TokenCosts[1] != 30 {
		t.Errorf("turn cost = %d, want both calls", e.History.TokenCosts[1])
	}
}

func TestCustomActionCheck(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`{"type": "check", "main_factor": "DEX", "difficulty": 20, "base_probability": 0.5}`,
		turnReply("You leap."),
	}}
	e := startedEngine(t, gen, 0.0)

	res, err := e.Resolve(context.Background(), Decision{Custom: "jump the gap"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Check == nil || res.Check.Tier != check.CriticalSuccess {
		t.Errorf("check = %+v", res.Check)
	}
}

func TestCustomActionSkipsClassification(t *testing.T) {
	gen := &fakeGen{replies: []string{turnReply("You whistle.")}}
	e := startedEngine(t, gen)
	e.SetSkipActionMode(true)

	res, err := e.Resolve(context.Background(), Decision{Custom: "whistle"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Option.Type != models.OptionNormal || len(gen.reqs) != 2 {
		t.Errorf("type %q after %d calls", res.Option.Type, len(gen.reqs))
	}
}

func TestNoOptionsMode(t *testing.T) {
	gen := &fakeGen{replies: []string{`{"description": "A quiet road.", "summary": "Walked."}`}}
	e := startedEngine(t, gen)
	e.SetNoOptions(true)
	e.SetSkipActionMode(true)

	if _, err := e.Resolve(context.Background(), Decision{Custom: "walk north"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(e.Options) != 1 || e.Options[0].Difficulty != 99999 {
		t.Fatalf("options = %+v, want the placeholder", e.Options)
	}
	res, err := e.Resolve(context.Background(), Decision{OptionID: e.Options[0].ID})
	if err != nil {
		t.Fatalf("Resolve placeholder: %v", err)
	}
	if !res.Blocked {
		t.Errorf("placeholder option was not blocked")
	}
}

func TestRetryRegeneratesUnparsableReply(t *testing.T) {
	gen := &fakeGen{replies: []string{
		"I'd rather not.",
		`{"description": "Half", "commands": [{"command": "add_item", "value": {"Coin": "gold"}}]}`,
		`{"description": "Done.", "options": [{"id": 1, "text": "x"}], "commands": [{"command": "add_item", "value": {"Coin": "gold"}}, {"command": "change_attr", "value": {"LUK": 1}}]}`,
	}}
	e := startedEngine(t, gen)

	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(gen.reqs) != 4 {
		t.Errorf("made %d calls, want 4", len(gen.reqs))
	}
	if got := e.State.Attributes.Get(models.Luck); got != 21 {
		t.Errorf("LUK = %v, want 21 (commands applied once)", got)
	}
	if e.Description != "Done." || e.History.TokenCosts[1] != 45 {
		t.Errorf("description %q, cost %d", e.Description, e.History.TokenCosts[1])
	}
}

func TestEmptyResponseTokensCounted(t *testing.T) {
	calls := 0
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Response, error) {
		calls++
		if calls == 1 {
			resp := llm.Response{Usage: llm.Usage{PromptTokens: 7, TotalTokens: 7}}
			return resp, &llm.ProviderError{Provider: "fake", Err: llm.ErrEmptyResponse}
		}
		return llm.Response{Text: openingReply, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	})
	e, err := New(Options{
		Generator: gen,
		Settings:  config.DefaultSettings(),
		Retry:     RetryPolicy{MaxAttempts: 3},
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.Tokens.Total != 22 || e.Tokens.TotalPrompt != 17 {
		t.Errorf("tokens = %+v, want 22 total including the empty answer", e.Tokens)
	}
	if got := e.History.TokenCosts[0]; got != 22 {
		t.Errorf("turn cost = %d, want 22", got)
	}
}

func TestRetryGivesUp(t *testing.T) {
	gen := &fakeGen{errs: map[int]error{1: llm.ErrTimeout, 2: llm.ErrTimeout, 3: llm.ErrTimeout}}
	e := startedEngine(t, gen)

	_, err := e.Resolve(context.Background(), Decision{OptionID: 1})
	if !errors.Is(err, ErrAborted) || !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("err = %v, want ErrAborted wrapping ErrTimeout", err)
	}
	if len(gen.reqs) != 4 {
		t.Errorf("made %d calls, want 1 + 3 attempts", len(gen.reqs))
	}
	if len(e.History.Choices) != 0 || e.Description != "You wake in a cold hall." {
		t.Errorf("failed turn changed the history")
	}
}

func TestRetryConfirm(t *testing.T) {
	gen := &fakeGen{
		errs:    map[int]error{1: errors.New("boom"), 2: errors.New("boom")},
		replies: []string{openingReply, "", "", turnReply("Finally.")},
	}
	e := newTestEngine(t, gen)
	var asked []int
	e.retry = RetryPolicy{Confirm: func(_ context.Context, err error, attempt int) bool {
		asked = append(asked, attempt)
		return true
	}}
	if _, err := e.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(asked) != 2 || asked[1] != 2 {
		t.Errorf("confirm asked for attempts %v, want [1 2]", asked)
	}

	gen.errs[4] = errors.New("boom")
	e.retry.Confirm = func(context.Context, error, int) bool { return false }
	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); !errors.Is(err, ErrAborted) {
		t.Errorf("err = %v, want ErrAborted", err)
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	gen := &fakeGen{errs: map[int]error{1: context.Canceled}}
	e := startedEngine(t, gen)
	e.retry = RetryPolicy{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Resolve(ctx, Decision{OptionID: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(gen.reqs) != 2 {
		t.Errorf("made %d calls after cancel", len(gen.reqs)-1)
	}
}

func TestAdjustedTarget(t *testing.T) {
	tests := []struct {
		base, attr, diff float64
		sit              int
		want             float64
	}{
		{0.5, 20, 20, 0, 0.5},
		{0.5, 30, 20, 0, 0.515},
		{0.5, 10, 20, 0, 0.485},
		{0.5, 20, 20, 1, 0.522},
		{0.5, 20, 20, 16, 0.5 + 0.022*32},
		{0.5, 20, 20, -3, 0.38},
	}
	for _, tt := range tests {
		got := AdjustedTarget(tt.base, tt.attr, tt.diff, tt.sit)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AdjustedTarget(%v, %v, %v, %d) = %v, want %v", tt.base, tt.attr, tt.diff, tt.sit, got, tt.want)
		}
	}
}

func TestFinalChance(t *testing.T) {
	if _, ok := FinalChance(25, 20); ok {
		t.Errorf("final chance offered at a margin of 5")
	}
	p, ok := FinalChance(30, 20)
	if !ok || math.Abs(p-0.05) > 1e-9 {
		t.Errorf("FinalChance(30, 20) = %v, %v, want 0.05", p, ok)
	}
}

func TestFinalChanceRescuesCheck(t *testing.T) {
	// DEX 40 vs difficulty 20: target 0.53, final chance 0.15.
	gen := &fakeGen{replies: []string{turnReply("Saved.")}}
	e := startedEngine(t, gen, 0.99, 0.99, 0.1, 0.1)
	e.State.Attributes.Set(models.Dexterity, 40)

	res, err := e.Resolve(context.Background(), Decision{OptionID: 3})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Check.Tier != check.MinorSuccess || len(res.Check.Draws) != 4 {
		t.Errorf("check = %+v, want a final chance rescue", res.Check)
	}
}

func TestThinkTarget(t *testing.T) {
	want := 0.2 + 0.6873*math.Atan(0.02345*20)
	if got := ThinkTarget(20); math.Abs(got-want) > 1e-12 {
		t.Errorf("ThinkTarget(20) = %v, want %v", got, want)
	}
	if ThinkTarget(80) <= ThinkTarget(20) {
		t.Errorf("ThinkTarget is not increasing")
	}
}

func TestThink(t *testing.T) {
	gen := &fakeGen{replies: []string{"The runes are a warning."}}
	e := startedEngine(t, gen, 0.0)
	charges := e.ThinkRemaining()

	answer, r, err := e.Think(context.Background(), "what do the runes mean")
	if err != nil {
		t.Fatalf("Think: %v", err)
	}
	if answer != "The runes are a warning." || r.Tier != check.CriticalSuccess {
		t.Errorf("answer %q, tier %v", answer, r.Tier)
	}
	if !strings.Contains(gen.lastPrompt(), "what do the runes mean (critical success)") {
		t.Errorf("think prompt lacks the labeled question")
	}
	want := "You wake in a cold hall.\n[Thinking: what do the runes mean (critical success)] The runes are a warning."
	if e.Description != want || e.History.Descriptions[0] != want {
		t.Errorf("description = %q", e.Description)
	}
	if e.ThinkRemaining() != charges-1 || e.History.TokenCosts[0] != 30 {
		t.Errorf("charges %d, cost %d", e.ThinkRemaining(), e.History.TokenCosts[0])
	}

	e.thinkRemaining = 0
	if _, _, err := e.Think(context.Background(), "again"); !errors.Is(err, ErrNoThinkCharges) {
		t.Errorf("err = %v, want ErrNoThinkCharges", err)
	}
}

func TestValidateItemUse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"valid", `{"is_valid": 1}`, true},
		{"invalid", `{"is_valid": 0}`, false},
		{"empty", "", true},
		{"unreadable", "maybe?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGen{replies: []string{tt.reply}}
			e := startedEngine(t, gen)

			got, err := e.ValidateItemUse(context.Background(), "1", "light the hay", "hay cart")
			if err != nil {
				t.Fatalf("ValidateItemUse: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if p := gen.lastPrompt(); !strings.Contains(p, "Torch (A burning torch)") || !strings.Contains(p, "hay cart") {
				t.Errorf("prompt lacks the item or target:\n%s", p)
			}
		})
	}

	e := startedEngine(t, &fakeGen{})
	if _, err := e.ValidateItemUse(context.Background(), "Sword", "swing", ""); !errors.Is(err, models.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func summaries(n int, long bool) []string {
	out := make([]string, n)
	for i := range out {
		s := fmt.Sprintf("event %d", i)
		if long {
			s += strings.Repeat(".", 400)
		}
		out[i] = s
	}
	return out
}

func TestCompactionDue(t *testing.T) {
	e := startedEngine(t, &fakeGen{})
	e.History.Summaries = summaries(24, false)
	if e.CompactionDue() {
		t.Errorf("due at 24 summaries")
	}
	e.History.Summaries = summaries(25, false)
	if !e.CompactionDue() {
		t.Errorf("not due at 25 summaries")
	}
	e.cooldown = 3
	if e.CompactionDue() {
		t.Errorf("due during cooldown")
	}
}

func TestCompactCompress(t *testing.T) {
	gen := &fakeGen{replies: []string{`{"summary": "Compressed.", "useless_items": ["Torch"], "useless_vars": ["gone"]}`}}
	e := startedEngine(t, gen)
	e.State.Variables.Set("gone", "1")
	long := summaries(3, true)
	e.History.Summaries = append(append(summaries(5, false), long...), "", "latest")

	if err := e.Compact(context.Background()); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	got := e.History.Summaries
	if len(got) != 4 || got[3] != "Compressed." || got[0] != long[0] {
		t.Errorf("summaries = %q", got)
	}
	if gen.reqs[1].MaxTokens != compressionMaxTokens {
		t.Errorf("max tokens = %d", gen.reqs[1].MaxTokens)
	}
	if p := gen.lastPrompt(); !strings.Contains(p, "latest") || strings.Contains(p, long[0]) {
		t.Errorf("compression prompt should hold only the short summaries")
	}
	if e.State.Inventory.Has("Torch") || e.State.Variables.Len() != 0 {
		t.Errorf("stale item or variable kept")
	}
	if e.CompactionCooldown() != 10 || e.History.TokenCosts[0] != 30 {
		t.Errorf("cooldown %d, cost %d", e.CompactionCooldown(), e.History.TokenCosts[0])
	}
}

func TestCompactDilute(t *testing.T) {
	gen := &fakeGen{replies: []string{`{"summary": "Diluted.", "useless_items": [], "useless_vars": []}`}}
	e := startedEngine(t, gen)
	all := append(summaries(25, true), "latest")
	e.History.Summaries = all

	if err := e.Compact(context.Background()); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	got := e.History.Summaries
	if len(got) != 17 || got[0] != "Diluted." || got[1] != all[10] || got[16] != "latest" {
		t.Errorf("got %d summaries starting %q", len(got), got[0])
	}
	if gen.reqs[1].MaxTokens != dilutionMaxTokens {
		t.Errorf("max tokens = %d", gen.reqs[1].MaxTokens)
	}
	if p := gen.lastPrompt(); !strings.Contains(p, "event 9") || strings.Contains(p, "event 10") {
		t.Errorf("dilution prompt should hold the first 10 summaries only")
	}
}

func TestPlayTurnCompactsFirst(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`{"summary": "Compressed.", "useless_items": [], "useless_vars": []}`,
		turnReply("Onward."),
	}}
	e := startedEngine(t, gen)
	e.History.Summaries = summaries(25, false)

	if _, err := e.PlayTurn(context.Background(), Decision{OptionID: 1}); err != nil {
		t.Fatalf("PlayTurn: %v", err)
	}
	if len(gen.reqs) != 3 || gen.reqs[1].MaxTokens != compressionMaxTokens {
		t.Fatalf("compaction did not run before the turn")
	}
	if got := e.History.Summaries; len(got) != 2 || got[0] != "Compressed." || got[1] != "s: Onward." {
		t.Errorf("summaries = %q", got)
	}
	if e.CompactionCooldown() != 9 {
		t.Errorf("cooldown = %d, want 9", e.CompactionCooldown())
	}
}

func TestSnapshotRestore(t *testing.T) {
	gen := &fakeGen{replies: []string{turnReply("Onward.")}}
	e := startedEngine(t, gen)
	if _, err := e.Resolve(context.Background(), Decision{OptionID: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	e.State.Situation.Adjust(3)
	snap := e.Snapshot()

	other := newTestEngine(t, &fakeGen{})
	other.Restore(snap)
	if other.GameID != e.GameID || other.Description != e.Description || other.Turns() != 1 {
		t.Errorf("restored %+v", other.Snapshot())
	}
	if !other.State.Inventory.Has("Torch") || other.State.Situation.Get() != 3 {
		t.Errorf("state not restored")
	}
	if len(other.DrainNotices()) == 0 {
		t.Errorf("pending notices not restored")
	}
	other.History.Summaries[0] = "changed"
	if e.History.Summaries[0] == "changed" {
		t.Errorf("restored history shares memory with the snapshot source")
	}
}
