// Package engine resolves turns: it runs checks, builds prompts, talks to
// the model and applies what comes back to the game state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tatianab/dicetale/internal/check"
	"github.com/tatianab/dicetale/internal/commands"
	"github.com/tatianab/dicetale/internal/config"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

var (
	// ErrUnknownOption is returned when a decision names an option that is
	// not on offer.
	ErrUnknownOption = errors.New("unknown option")
	// ErrGameOver is returned when a turn is requested after the game ended.
	ErrGameOver = errors.New("game is over")
	// ErrNotStarted is returned when a turn is requested before Start.
	ErrNotStarted = errors.New("game not started")
)

// Max token budgets for the maintenance prompts.
const (
	dilutionMaxTokens    = 20480
	compressionMaxTokens = 2048
)

// recentSummaries is how many summaries the action mode prompt sees.
const recentSummaries = 7

// Recorder receives a copy of every model exchange and resolved turn.
type Recorder interface {
	RecordExchange(ctx context.Context, gameID, kind, prompt, response string, tokens int) error
	RecordTurn(ctx context.Context, gameID string, turn int, choice, description string) error
}

// Options configure an Engine. Only Generator is required.
type Options struct {
	Generator   llm.Generator
	Checker     *check.Checker
	Settings    *config.Settings
	Retry       RetryPolicy
	Recorder    Recorder
	Logger      *slog.Logger
	GameID      string
	PlayerName  string
	PlayerStory string
}

// Engine holds one game. It is not safe for concurrent use.
type Engine struct {
	GameID      string
	PlayerName  string
	PlayerStory string

	State       *models.GameState
	History     models.History
	Description string
	Options     []models.Option
	Tokens      models.TokenStats
	Interp      *commands.Interpreter

	gen      llm.Generator
	checker  *check.Checker
	settings *config.Settings
	retry    RetryPolicy
	recorder Recorder
	logger   *slog.Logger
	log      *slog.Logger

	cooldown       int
	turns          int
	thinkRemaining int
	skipActionMode bool
	noOptions      bool
	turnTokens     int
}

// New returns an engine for a fresh game.
func New(opts Options) (*Engine, error) {
	if opts.Generator == nil {
		return nil, errors.New("engine: no generator")
	}
	s := opts.Settings
	if s == nil {
		s = config.DefaultSettings()
	}
	if opts.Checker == nil {
		opts.Checker = check.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GameID == "" {
		opts.GameID = uuid.NewString()
	}
	if opts.PlayerName == "" {
		opts.PlayerName = s.Player.Name
	}
	if opts.PlayerStory == "" {
		opts.PlayerStory = s.Player.Story
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.Confirm == nil {
		opts.Retry = DefaultRetryPolicy()
	}

	interp := commands.NewInterpreter(opts.PlayerName)
	interp.Logger = opts.Logger

	return &Engine{
		GameID:         opts.GameID,
		PlayerName:     opts.PlayerName,
		PlayerStory:    opts.PlayerStory,
		State:          models.NewGameState(s.Player.AttributeValue, s.Game.SituationMin, s.Game.SituationMax),
		Interp:         interp,
		gen:            opts.Generator,
		checker:        opts.Checker,
		settings:       s,
		retry:          opts.Retry,
		recorder:       opts.Recorder,
		logger:         opts.Logger,
		log:            opts.Logger.With("game", opts.GameID),
		thinkRemaining: s.Game.ThinkCharges,
		skipActionMode: s.Game.SkipActionMode,
		noOptions:      s.Game.NoOptions,
	}, nil
}

// Decision is the player's input for a turn: either an option id or the
// text of a custom action.
type Decision struct {
	OptionID int
	Custom   string
}

// TurnResult describes how a decision was resolved.
type TurnResult struct {
	// Blocked is set when a must option's requirement was not met. Nothing
	// else happened.
	Blocked     bool
	Requirement string

	Option   models.Option
	Choice   string
	Check    *check.Result
	Report   commands.Report
	GameOver bool
}

// Start generates the opening scene. A non-empty opening replaces the
// configured player story.
func (e *Engine) Start(ctx context.Context, opening string) (TurnResult, error) {
	if opening != "" {
		e.PlayerStory = opening
	}
	e.turnTokens = 0

	data := e.promptData()
	prompt, err := renderPrompt(promptInitial, data)
	if err != nil {
		return TurnResult{}, fmt.Errorf("render initial prompt: %w", err)
	}
	r, err := e.generateReply(ctx, "start", prompt)
	if err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{Report: e.commit(r)}
	res.GameOver = res.Report.GameOver
	e.record(ctx, "", e.Description)
	e.log.Info("game started", "player", e.PlayerName, "options", len(e.Options))
	return res, nil
}

// PlayTurn compacts the history when due and then resolves d.
func (e *Engine) PlayTurn(ctx context.Context, d Decision) (TurnResult, error) {
	if e.CompactionDue() {
		if err := e.Compact(ctx); err != nil {
			if ctx.Err() != nil {
				return TurnResult{}, ctx.Err()
			}
			e.log.Warn("compaction failed, continuing", "err", err)
		}
	}
	return e.Resolve(ctx, d)
}

// Resolve plays one turn. A must option whose requirement is not met
// returns a blocked result without touching the state or the model.
func (e *Engine) Resolve(ctx context.Context, d Decision) (TurnResult, error) {
	if e.State.Status == models.StatusFailure {
		return TurnResult{}, ErrGameOver
	}
	if len(e.History.Descriptions) == 0 {
		return TurnResult{}, ErrNotStarted
	}
	e.turnTokens = 0

	var (
		opt models.Option
		err error
	)
	if d.Custom != "" {
		opt, err = e.customOption(ctx, d.Custom)
		if err != nil {
			return TurnResult{}, err
		}
	} else {
		var ok bool
		opt, ok = e.option(d.OptionID)
		if !ok {
			return TurnResult{}, fmt.Errorf("option %d: %w", d.OptionID, ErrUnknownOption)
		}
	}

	res := TurnResult{Option: opt}
	choice := opt.Text
	attr := e.State.Attributes.Get(opt.MainFactor)

	switch opt.Type {
	case models.OptionMust:
		meets := attr >= float64(opt.Difficulty)
		if !opt.Custom && !meets {
			res.Blocked = true
			res.Requirement = fmt.Sprintf("requires %s %d or more", opt.MainFactor, opt.Difficulty)
			e.log.Info("option requirement not met", "option", opt.ID, "attr", opt.MainFactor, "have", attr, "need", opt.Difficulty)
			return res, nil
		}
		if opt.Custom {
			if meets {
				choice += " <meets requirement>"
			} else {
				choice += " <does not meet requirement>"
			}
		}

	case models.OptionCheck:
		base := opt.BaseProbability
		if opt.Probability != nil {
			base = *opt.Probability
		}
		target := AdjustedTarget(base, attr, float64(opt.Difficulty), e.State.Situation.Get())
		r := e.checker.Check(target, SkillCheckOptions(attr, float64(opt.Difficulty))...)
		res.Check = &r
		choice += " <" + TierLabel(r.Tier) + ">"
		e.log.Info("check resolved", "option", opt.ID, "target", target, "tier", r.Tier)
	}
	choice = "[" + choice + "]"
	res.Choice = choice

	data := e.promptData()
	data.History = e.storySoFar()
	data.Choice = choice
	data.Preview = opt.NextPreview
	prompt, err := renderPrompt(promptContinuation, data)
	if err != nil {
		return res, fmt.Errorf("render continuation prompt: %w", err)
	}
	r, err := e.generateReply(ctx, "turn", prompt)
	if err != nil {
		return res, err
	}

	e.History.Choices = append(e.History.Choices, choice)
	res.Report = e.commit(r)
	res.GameOver = res.Report.GameOver
	e.turns++
	e.cooldown--
	e.record(ctx, choice, e.Description)
	return res, nil
}

// commit applies a validated reply and appends it to the history.
func (e *Engine) commit(r *reply) commands.Report {
	rep := e.Interp.Apply(e.State, r.Commands)
	if rep.Skipped > 0 {
		e.log.Warn("some commands were skipped", "applied", rep.Applied, "skipped", rep.Skipped)
	}
	e.Description = r.Description
	e.Options = r.Options
	e.History.Descriptions = append(e.History.Descriptions, r.Description)
	e.History.Summaries = append(e.History.Summaries, r.Summary)
	e.History.TokenCosts = append(e.History.TokenCosts, e.turnTokens)
	return rep
}

func (e *Engine) record(ctx context.Context, choice, description string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordTurn(ctx, e.GameID, e.turns, choice, description); err != nil {
		e.log.Warn("record turn", "err", err)
	}
}

func (e *Engine) option(id int) (models.Option, bool) {
	for _, o := range e.Options {
		if o.ID == id {
			return o, true
		}
	}
	return models.Option{}, false
}

// customOption turns free text into an option. Unless action mode is
// skipped the model classifies it first.
func (e *Engine) customOption(ctx context.Context, text string) (models.Option, error) {
	opt := models.Option{
		ID:     models.CustomOptionID,
		Text:   text,
		Type:   models.OptionNormal,
		Custom: true,
	}
	if e.skipActionMode {
		opt.Normalize()
		return opt, nil
	}
	c, err := e.ClassifyAction(ctx, text)
	if err != nil {
		return models.Option{}, err
	}
	opt.Type = c.Type
	opt.MainFactor = c.MainFactor
	opt.Difficulty = c.Difficulty
	opt.BaseProbability = c.BaseProbability
	opt.Normalize()
	return opt, nil
}

// ClassifyAction asks the model how a custom action should be resolved.
func (e *Engine) ClassifyAction(ctx context.Context, text string) (Classification, error) {
	data := e.promptData()
	data.History = e.recentEvents(recentSummaries)
	data.Choice = text
	prompt, err := renderPrompt(promptActionMode, data)
	if err != nil {
		return Classification{}, fmt.Errorf("render action mode prompt: %w", err)
	}
	var c Classification
	err = e.generate(ctx, "classify", prompt, e.settings.AI.MaxTokens, func(raw string) error {
		var perr error
		c, perr = parseClassification(raw)
		return perr
	})
	if err != nil {
		return Classification{}, err
	}
	e.log.Info("classified custom action", "type", c.Type, "attr", c.MainFactor, "difficulty", c.Difficulty)
	return c, nil
}

// generateReply sends a turn prompt and parses the reply, regenerating
// per the retry policy until it validates.
func (e *Engine) generateReply(ctx context.Context, kind, prompt string) (*reply, error) {
	var r *reply
	err := e.generate(ctx, kind, prompt, e.settings.AI.MaxTokens, func(raw string) error {
		var perr error
		r, perr = parseReply(raw, e.noOptions)
		return perr
	})
	return r, err
}

// AdjustedTarget is the success probability of a check option once the
// attribute margin and the situation are accounted for.
func AdjustedTarget(base, attr, difficulty float64, situation int) float64 {
	t := base + (attr-difficulty)*3/2000
	if situation > 0 {
		t += 0.01 * 2.2 * math.Pow(float64(situation), 1.25)
	} else {
		t += 0.04 * float64(situation)
	}
	return t
}

// FinalChance returns the final chance probability for an attribute
// margin. It is only offered when the attribute beats the difficulty by
// more than 5.
func FinalChance(attr, difficulty float64) (float64, bool) {
	margin := attr - difficulty
	if margin <= 5 {
		return 0, false
	}
	return (margin - 5) / 100, true
}

// SkillCheckOptions are the check parameters for an option check.
func SkillCheckOptions(attr, difficulty float64) []check.Option {
	opts := []check.Option{
		check.WithDoubleCheck(),
		check.WithFactors(0.65, 1.0),
		check.WithBaseFirstSuccess(true),
		check.WithBigFailureAddon(0.2),
		check.WithDurations(2*time.Second, 3*time.Second, 2500*time.Millisecond),
	}
	if p, ok := FinalChance(attr, difficulty); ok {
		opts = append(opts, check.WithFinalChance(p, p))
	}
	return opts
}

// TierLabel is the label appended to a checked choice.
func TierLabel(t check.Tier) string {
	return t.String()
}

// Snapshot returns the serializable form of the game.
func (e *Engine) Snapshot() *models.Snapshot {
	s := &models.Snapshot{
		Version:            models.SaveVersion,
		GameID:             e.GameID,
		PlayerName:         e.PlayerName,
		PlayerStory:        e.PlayerStory,
		Description:        e.Description,
		Options:            append([]models.Option(nil), e.Options...),
		History:            cloneHistory(e.History),
		Tokens:             e.Tokens,
		Notices:            e.Interp.Notices.Pending(),
		CompactionCooldown: e.cooldown,
		Turns:              e.turns,
		ThinkRemaining:     e.thinkRemaining,
		SkipActionMode:     e.skipActionMode,
		NoOptions:          e.noOptions,
	}
	e.State.Snapshot(s)
	return s
}

// Restore replaces the game with s.
func (e *Engine) Restore(s *models.Snapshot) {
	e.GameID = s.GameID
	e.PlayerName = s.PlayerName
	e.PlayerStory = s.PlayerStory
	e.State = models.RestoreGameState(s)
	e.Description = s.Description
	e.Options = append([]models.Option(nil), s.Options...)
	for i := range e.Options {
		e.Options[i].Normalize()
	}
	e.History = cloneHistory(s.History)
	e.Tokens = s.Tokens
	e.cooldown = s.CompactionCooldown
	e.turns = s.Turns
	e.thinkRemaining = s.ThinkRemaining
	e.skipActionMode = s.SkipActionMode
	e.noOptions = s.NoOptions
	e.Interp.PlayerName = s.PlayerName
	e.Interp.Notices.Restore(s.Notices)
	e.log = e.logger.With("game", s.GameID)
}

func cloneHistory(h models.History) models.History {
	return models.History{
		Descriptions: append([]string(nil), h.Descriptions...),
		Choices:      append([]string(nil), h.Choices...),
		Summaries:    append([]string(nil), h.Summaries...),
		TokenCosts:   append([]int(nil), h.TokenCosts...),
	}
}

// DrainNotices returns and clears the queued player notices.
func (e *Engine) DrainNotices() []models.Notice {
	return e.Interp.Notices.Drain()
}

// Checker returns the checker so callers can observe draws.
func (e *Engine) Checker() *check.Checker { return e.checker }

// Settings returns the settings the engine was built with.
func (e *Engine) Settings() *config.Settings { return e.settings }

// Turns returns the number of resolved turns.
func (e *Engine) Turns() int { return e.turns }

// ThinkRemaining returns how many think charges are left.
func (e *Engine) ThinkRemaining() int { return e.thinkRemaining }

// CompactionCooldown returns the turns left before compaction may run.
func (e *Engine) CompactionCooldown() int { return e.cooldown }

// Started reports whether the opening scene exists.
func (e *Engine) Started() bool { return len(e.History.Descriptions) > 0 }

// SkipActionMode reports whether custom actions skip classification.
func (e *Engine) SkipActionMode() bool { return e.skipActionMode }

func (e *Engine) SetSkipActionMode(v bool) { e.skipActionMode = v }

// NoOptions reports whether the model is asked for descriptions only.
func (e *Engine) NoOptions() bool { return e.noOptions }

func (e *Engine) SetNoOptions(v bool) { e.noOptions = v }
