package engine

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.txt"))

// Prompt template names.
const (
	promptInitial      = "initial.txt"
	promptContinuation = "continuation.txt"
	promptActionMode   = "action_mode.txt"
	promptSummary      = "summary.txt"
	promptThink        = "think.txt"
	promptUseItem      = "use_item.txt"
)

type promptData struct {
	PlayerName   string
	Story        string
	CustomPrompt string
	NoOptions    bool
	SituationMin int
	SituationMax int

	Description string
	History     string
	Choice      string
	Preview     string

	Item            string
	ItemDescription string
	Target          string

	Attributes string
	Inventory  string
	Situation  string
	Variables  string
}

func renderPrompt(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// promptData fills the fields every prompt shares from the current state.
func (e *Engine) promptData() promptData {
	return promptData{
		PlayerName:   e.PlayerName,
		Story:        e.PlayerStory,
		CustomPrompt: e.settings.CustomPromptText(),
		NoOptions:    e.noOptions,
		SituationMin: e.State.Situation.Min,
		SituationMax: e.State.Situation.Max,
		Description:  e.Description,
		Attributes:   e.State.Attributes.Render(),
		Inventory:    e.State.Inventory.RenderForPrompt(e.settings.Game.RecentItems),
		Situation:    e.State.Situation.DescribeWithValue(),
		Variables:    e.State.Variables.Render(),
	}
}

// storySoFar joins every summary except the latest, which the current
// description already covers.
func (e *Engine) storySoFar() string {
	s := e.History.Summaries
	if len(s) > 0 {
		s = s[:len(s)-1]
	}
	return joinNonEmpty(s)
}

// recentEvents joins the last n summaries.
func (e *Engine) recentEvents(n int) string {
	s := e.History.Summaries
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return joinNonEmpty(s)
}

func joinNonEmpty(s []string) string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, "\n")
}
