package models

import "time"

// Status is the lifecycle state of a game.
type Status string

const (
	StatusOngoing Status = "ongoing"
	StatusFailure Status = "failure"
)

// OptionType decides how choosing an option is resolved.
type OptionType string

const (
	// OptionNormal always proceeds.
	OptionNormal OptionType = "normal"
	// OptionCheck is resolved with a probability check.
	OptionCheck OptionType = "check"
	// OptionMust requires an attribute to meet a threshold.
	OptionMust OptionType = "must"
)

// CustomOptionID is the id given to free-text actions.
const CustomOptionID = 999

// Option is one choice offered to the player for the current turn.
type Option struct {
	ID              int        `yaml:"id"`
	Text            string     `yaml:"text"`
	Type            OptionType `yaml:"type"`
	MainFactor      string     `yaml:"main_factor,omitempty"`
	Difficulty      int        `yaml:"difficulty,omitempty"`
	BaseProbability float64    `yaml:"base_probability,omitempty"`
	// Probability is set only for check options.
	Probability *float64 `yaml:"probability,omitempty"`
	NextPreview string   `yaml:"next_preview,omitempty"`
	// Custom marks options built from the player's own action text.
	Custom bool `yaml:"custom,omitempty"`
}

// Normalize enforces the per-type invariants: only check options carry a
// probability, and must options default to a luck threshold of 0.
func (o *Option) Normalize() {
	if o.Type == "" {
		o.Type = OptionNormal
	}
	switch o.Type {
	case OptionCheck:
		p := o.BaseProbability
		o.Probability = &p
	case OptionMust:
		o.Probability = nil
		if o.MainFactor == "" {
			o.MainFactor = Luck
		}
	default:
		o.Probability = nil
	}
}

// Severity hints how a notice should be presented.
type Severity int

const (
	SeverityNeutral Severity = iota
	SeverityPositive
	SeverityNegative
)

// Notice is a short state-change message for the player.
type Notice struct {
	Text     string   `yaml:"text"`
	Severity Severity `yaml:"severity"`
}

// History is the narrative record of a game.
type History struct {
	Descriptions []string `yaml:"descriptions"`
	Choices      []string `yaml:"choices"`
	Summaries    []string `yaml:"summaries"`
	TokenCosts   []int    `yaml:"token_costs"`
}

// TokenStats tracks token usage reported by the model provider.
type TokenStats struct {
	LastPrompt      int `yaml:"last_prompt"`
	LastCompletion  int `yaml:"last_completion"`
	TotalPrompt     int `yaml:"total_prompt"`
	TotalCompletion int `yaml:"total_completion"`
	Total           int `yaml:"total"`
}

// Last returns the tokens used by the most recent call.
func (t TokenStats) Last() int {
	return t.LastPrompt + t.LastCompletion
}

// GameState aggregates the mutable stores of one game. It is owned by a
// single engine and passed by pointer to whatever mutates it.
type GameState struct {
	Attributes *Attributes
	Inventory  *Inventory
	Situation  *Situation
	Variables  *Variables
	Status     Status
}

// NewGameState returns a fresh state with every attribute at baseAttr and
// the situation clamped to [sitMin, sitMax].
func NewGameState(baseAttr float64, sitMin, sitMax int) *GameState {
	return &GameState{
		Attributes: NewAttributes(baseAttr),
		Inventory:  &Inventory{},
		Situation:  NewSituation(sitMin, sitMax),
		Variables:  &Variables{},
		Status:     StatusOngoing,
	}
}

// SaveVersion is written into every snapshot.
const SaveVersion = "1.0.0"

// Snapshot is the serializable form of a game.
type Snapshot struct {
	Version     string    `yaml:"version"`
	GameID      string    `yaml:"game_id"`
	Slot        string    `yaml:"slot"`
	SavedAt     time.Time `yaml:"saved_at"`
	PlayerName  string    `yaml:"player_name"`
	PlayerStory string    `yaml:"player_story,omitempty"`

	Status     Status             `yaml:"status"`
	Attributes map[string]float64 `yaml:"attributes"`
	Inventory  []Item             `yaml:"inventory"`
	Repository []Item             `yaml:"repository"`
	Situation  Situation          `yaml:"situation"`
	Variables  []Var              `yaml:"variables"`

	Description string     `yaml:"description"`
	Options     []Option   `yaml:"options"`
	History     History    `yaml:"history"`
	Tokens      TokenStats `yaml:"tokens"`
	Notices     []Notice   `yaml:"notices,omitempty"`

	CompactionCooldown int  `yaml:"compaction_cooldown"`
	Turns              int  `yaml:"turns"`
	ThinkRemaining     int  `yaml:"think_remaining"`
	SkipActionMode     bool `yaml:"skip_action_mode"`
	NoOptions          bool `yaml:"no_options"`
}

// Snapshot copies the stores into s.
func (g *GameState) Snapshot(s *Snapshot) {
	s.Status = g.Status
	s.Attributes = g.Attributes.Snapshot()
	s.Inventory = g.Inventory.Items.Items()
	s.Repository = g.Inventory.Repository.Items()
	s.Situation = *g.Situation
	s.Variables = g.Variables.List()
}

// RestoreGameState builds a fresh state from s.
func RestoreGameState(s *Snapshot) *GameState {
	g := NewGameState(DefaultAttributeValue, s.Situation.Min, s.Situation.Max)
	g.Restore(s)
	return g
}

// Restore repopulates the stores from s verbatim.
func (g *GameState) Restore(s *Snapshot) {
	g.Status = s.Status
	if g.Status == "" {
		g.Status = StatusOngoing
	}
	g.Attributes.Restore(s.Attributes)
	g.Inventory.Items.load(s.Inventory)
	g.Inventory.Repository.load(s.Repository)
	g.Situation.Value = s.Situation.Value
	if s.Situation.Min != 0 || s.Situation.Max != 0 {
		g.Situation.Min, g.Situation.Max = s.Situation.Min, s.Situation.Max
	}
	g.Variables.load(s.Variables)
}
