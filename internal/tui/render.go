package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/dicetale/internal/check"
	"github.com/tatianab/dicetale/internal/engine"
	"github.com/tatianab/dicetale/internal/models"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	optionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#87AFFF"))
	lockedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5F5F"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7D787"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
)

func noticeStyle(s models.Severity) lipgloss.Style {
	switch s {
	case models.SeverityPositive:
		return goodStyle
	case models.SeverityNegative:
		return badStyle
	}
	return neutralStyle
}

func renderNotices(ns []models.Notice) string {
	var b strings.Builder
	for _, n := range ns {
		b.WriteString(noticeStyle(n.Severity).Render("* "+n.Text) + "\n")
	}
	return b.String()
}

func tierStyle(t check.Tier) lipgloss.Style {
	switch {
	case t.IsSuccess():
		return goodStyle
	case t.IsFailure():
		return badStyle
	}
	return neutralStyle
}

// optionLine renders one option with what it needs from the player.
func optionLine(o models.Option, attrs *models.Attributes) string {
	text := fmt.Sprintf("%d. %s", o.ID, o.Text)
	switch o.Type {
	case models.OptionCheck:
		p := o.BaseProbability
		if o.Probability != nil {
			p = *o.Probability
		}
		return optionStyle.Render(text) + helpStyle.Render(fmt.Sprintf("  [%s check, difficulty %d, base %.0f%%]", o.MainFactor, o.Difficulty, p*100))
	case models.OptionMust:
		req := fmt.Sprintf("  [needs %s %d]", o.MainFactor, o.Difficulty)
		if attrs.Get(o.MainFactor) < float64(o.Difficulty) {
			return lockedStyle.Render(text + req)
		}
		return optionStyle.Render(text) + helpStyle.Render(req)
	}
	return optionStyle.Render(text)
}

func renderOptions(opts []models.Option, attrs *models.Attributes) string {
	var b strings.Builder
	for _, o := range opts {
		b.WriteString(optionLine(o, attrs) + "\n")
	}
	return b.String()
}

func drawLine(d check.Draw) string {
	verdict := badStyle.Render("miss")
	if d.Hit() {
		verdict = goodStyle.Render("hit")
	}
	return fmt.Sprintf("%s: rolled %.2f against %.2f, %s", d.Stage, d.Value, d.Target, verdict)
}

// renderPanel renders the side panel. It must only be called while no
// engine call is running.
func renderPanel(e *engine.Engine, width, height int) string {
	if e == nil {
		return ""
	}
	st := e.State
	var b strings.Builder

	b.WriteString(titleStyle.Render(strings.ToUpper(e.PlayerName)) + "\n")
	for _, k := range st.Attributes.Keys() {
		fmt.Fprintf(&b, "%s %s\n", k, formatNumber(st.Attributes.Get(k)))
	}
	b.WriteString("\n" + titleStyle.Render("SITUATION") + "\n")
	fmt.Fprintf(&b, "%+d  %s\n\n", st.Situation.Get(), st.Situation.Describe())

	b.WriteString(titleStyle.Render("INVENTORY") + "\n")
	if st.Inventory.Items.Len() == 0 {
		b.WriteString("(empty)\n")
	}
	for i, name := range st.Inventory.Items.Names() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
	}
	if n := st.Inventory.Repository.Len(); n > 0 {
		fmt.Fprintf(&b, "(%d in repository)\n", n)
	}

	if vars := st.Variables.List(); len(vars) > 0 {
		b.WriteString("\n" + titleStyle.Render("VARIABLES") + "\n")
		for _, v := range vars {
			fmt.Fprintf(&b, "%s: %v\n", v.Name, v.Value)
		}
	}

	fmt.Fprintf(&b, "\nturn %d  think %d  tokens %d\n", e.Turns(), e.ThinkRemaining(), e.Tokens.Total)
	return stateStyle.Width(width).Height(height).Render(b.String())
}

func renderItemManager(inv *models.Inventory) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CARRIED") + "\n")
	writeItems(&b, inv.Items.Items())
	b.WriteString("\n" + titleStyle.Render("REPOSITORY") + "\n")
	writeItems(&b, inv.Repository.Items())
	return b.String()
}

func writeItems(b *strings.Builder, items []models.Item) {
	if len(items) == 0 {
		b.WriteString("(empty)\n")
	}
	for i, it := range items {
		fmt.Fprintf(b, "%d. %s", i+1, it.Name)
		if it.Description != "" {
			b.WriteString(helpStyle.Render(" - " + it.Description))
		}
		b.WriteString("\n")
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// typewriter reveals text a few runes at a time.
type typewriter struct {
	text  []rune
	shown int
}

// step reveals n more runes and reports whether the text is complete.
func (t *typewriter) step(n int) bool {
	t.shown = min(t.shown+n, len(t.text))
	return t.done()
}

func (t *typewriter) finish() {
	t.shown = len(t.text)
}

func (t typewriter) done() bool {
	return t.shown >= len(t.text)
}

func (t typewriter) String() string {
	return string(t.text[:t.shown])
}
