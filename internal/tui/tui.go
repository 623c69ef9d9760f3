package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/dicetale/internal/check"
	"github.com/tatianab/dicetale/internal/chronicle"
	"github.com/tatianab/dicetale/internal/config"
	"github.com/tatianab/dicetale/internal/engine"
	"github.com/tatianab/dicetale/internal/llm"
	"github.com/tatianab/dicetale/internal/models"
)

// Deps are the collaborators the UI builds games from.
type Deps struct {
	Settings  *config.Settings
	Generator llm.Generator
	// Chronicle is optional.
	Chronicle *chronicle.Store
	Logger    *slog.Logger
	ExportDir string
}

type sessionState int

const (
	stateSetup sessionState = iota
	stateWaiting
	stateNarrating
	stateChoosing
	stateItems
	stateConfirmRetry
	stateConfirmVersion
	stateGameOver
	stateError
)

// bridge lets engine goroutines reach the running program.
type bridge struct {
	mu   sync.Mutex
	prog *tea.Program
}

func (b *bridge) set(p *tea.Program) {
	b.mu.Lock()
	b.prog = p
	b.mu.Unlock()
}

func (b *bridge) send(msg tea.Msg) bool {
	b.mu.Lock()
	p := b.prog
	b.mu.Unlock()
	if p == nil {
		return false
	}
	p.Send(msg)
	return true
}

// confirm asks the player whether a failed request should be retried and
// blocks until they answer.
func (b *bridge) confirm(ctx context.Context, err error, attempt int) bool {
	reply := make(chan bool, 1)
	if !b.send(confirmRetryMsg{err: err, attempt: attempt, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// observe animates a draw and holds the check until the animation is over.
func (b *bridge) observe(d check.Draw) {
	if b.send(drawMsg{d}) {
		time.Sleep(d.Duration)
	}
}

type (
	turnMsg struct {
		res   engine.TurnResult
		err   error
		start bool
	}
	thinkMsg struct {
		question string
		answer   string
		result   check.Result
		err      error
	}
	compactMsg struct {
		err error
	}
	itemUseMsg struct {
		action string
		valid  bool
		err    error
	}
	loadedMsg struct {
		snap *models.Snapshot
		err  error
	}
	exportMsg struct {
		path string
		err  error
	}
	drawMsg struct {
		draw check.Draw
	}
	confirmRetryMsg struct {
		err     error
		attempt int
		reply   chan bool
	}
	typeTickMsg struct{}
)

// pendingTurn is what is shown once the narration finishes typing.
type pendingTurn struct {
	notices  []models.Notice
	gameOver bool
}

type model struct {
	deps Deps
	br   *bridge
	ctx  context.Context

	state  sessionState
	resume sessionState
	eng    *engine.Engine

	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	bar       progress.Model

	gameLog   string
	panel     string
	waitLabel string
	drawText  string
	itemMsg   string

	typing  typewriter
	pending pendingTurn

	retry       *confirmRetryMsg
	pendingSnap *models.Snapshot
	sessions    []models.SaveInfo

	err    error
	width  int
	height int
}

func newModel(ctx context.Context, deps Deps, br *bridge) model {
	ti := textinput.New()
	ti.Placeholder = "Describe who you are, or leave empty..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	sessions, err := models.ListSessions()
	if err != nil {
		deps.Logger.Warn("list saved games", "err", err)
	}

	return model{
		deps:      deps,
		br:        br,
		ctx:       ctx,
		state:     stateSetup,
		textInput: ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		sessions:  sessions,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.state {
		case stateConfirmRetry:
			return m.answerRetry(msg)
		case stateConfirmVersion:
			return m.answerVersion(msg)
		case stateNarrating:
			m.typing.finish()
			return m.finishNarration()
		case stateWaiting:
			return m, nil
		case stateError:
			if msg.Type == tea.KeyEsc || msg.Type == tea.KeyEnter {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyEsc:
			if m.state == stateItems {
				return m.closeItems(), nil
			}
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			line := m.textInput.Value()
			m.textInput.Reset()
			switch m.state {
			case stateSetup:
				return m.submitSetup(line)
			case stateChoosing, stateGameOver:
				return m.submitChoice(line)
			case stateItems:
				return m.submitItem(line)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = max(msg.Height-8, 1)
		m.bar.Width = max(m.logWidth()/2, 10)
		// The engine owns its state while a call is in flight. The panel
		// is redrawn when the call returns.
		if !m.engineBusy() {
			m.refreshPanel()
		}
		m.viewport.SetContent(m.gameLog)
		return m, nil

	case spinner.TickMsg:
		if !m.engineBusy() {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		var pm tea.Model
		pm, cmd = m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd

	case drawMsg:
		m.drawText = drawLine(msg.draw)
		cmd = m.bar.SetPercent(min(max(msg.draw.Value, 0), 1))
		return m, cmd

	case confirmRetryMsg:
		m.retry = &msg
		m.state = stateConfirmRetry
		return m, nil

	case typeTickMsg:
		if m.state != stateNarrating {
			return m, nil
		}
		if m.typing.step(1) {
			return m.finishNarration()
		}
		m.viewport.SetContent(m.gameLog + gameStyle.Width(m.logWidth()).Render(m.typing.String()))
		m.viewport.GotoBottom()
		return m, m.typeTick()

	case turnMsg:
		return m.handleTurn(msg)

	case thinkMsg:
		m.afterCall()
		if msg.err != nil {
			m.appendLog(errorStyle.Render(describeErr(msg.err)))
			m.state = stateChoosing
			return m, nil
		}
		verdict := tierStyle(msg.result.Tier).Render("(" + engine.TierLabel(msg.result.Tier) + ")")
		m.appendLog(helpStyle.Render("You think: "+msg.question) + " " + verdict)
		m.appendLog(gameStyle.Width(m.logWidth()).Render(msg.answer))
		m.autosave()
		m.state = stateChoosing
		return m, nil

	case compactMsg:
		m.afterCall()
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Compaction failed: " + describeErr(msg.err)))
		} else {
			m.appendLog(helpStyle.Render(fmt.Sprintf("Story compacted to %d summaries.", len(m.eng.History.Summaries))))
			m.autosave()
		}
		m.state = stateChoosing
		return m, nil

	case itemUseMsg:
		m.afterCall()
		switch {
		case msg.err != nil:
			m.itemMsg = errorStyle.Render(describeErr(msg.err))
			m.state = stateItems
			return m, nil
		case !msg.valid:
			m.itemMsg = badStyle.Render("That would not work here.")
			m.state = stateItems
			return m, nil
		}
		m.textInput.Placeholder = "What do you do?"
		m.appendLog(userStyle.Width(m.logWidth()).Render("> " + msg.action))
		return m.wait("The world responds...", turnCmd(m.ctx, m.eng, engine.Decision{Custom: msg.action}))

	case loadedMsg:
		return m.handleLoaded(msg)

	case exportMsg:
		if msg.err != nil {
			m.appendLog(errorStyle.Render("Export failed: " + msg.err.Error()))
		} else {
			m.appendLog(helpStyle.Render("Story exported to " + msg.path))
		}
		m.state = m.resume
		return m, nil
	}

	switch m.state {
	case stateSetup, stateChoosing, stateItems, stateGameOver:
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateSetup:
		s = m.setupView()

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)

	case stateItems:
		body := renderItemManager(m.eng.State.Inventory)
		if m.itemMsg != "" {
			body += "\n" + m.itemMsg + "\n"
		}
		s = lipgloss.JoinVertical(lipgloss.Left,
			body,
			"\n"+m.textInput.View(),
			"\n"+helpStyle.Render("Type help for item commands, exit or Esc to go back."),
		)

	default:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.panel)
		s = lipgloss.JoinVertical(lipgloss.Left, mainView, "\n"+m.footer())
	}

	return "\n" + s + "\n"
}

func (m model) setupView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DICETALE") + "\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(describeErr(m.err)) + "\n\n")
	}
	b.WriteString("Tell the story who you are, or press Enter to use your settings:\n\n")
	b.WriteString(m.textInput.View() + "\n\n")
	if len(m.sessions) > 0 {
		b.WriteString(helpStyle.Render("Saved games, /load <n> to continue, /load for the latest:") + "\n")
		for i, s := range m.sessions[:min(len(m.sessions), 5)] {
			fmt.Fprintf(&b, "%d. %s, turn %d, %s\n", i+1, s.PlayerName, s.Turns, s.SavedAt.Format(time.DateTime))
		}
	}
	return b.String()
}

func (m model) footer() string {
	switch m.state {
	case stateWaiting:
		s := m.spinner.View() + " " + m.waitLabel
		if m.drawText != "" {
			s += "\n" + m.bar.View() + "\n" + m.drawText
		}
		return s
	case stateConfirmRetry:
		return errorStyle.Render(fmt.Sprintf("Attempt %d failed: %s", m.retry.attempt, describeErr(m.retry.err))) +
			"\n" + helpStyle.Render("Retry? (y/n)")
	case stateConfirmVersion:
		return errorStyle.Render("This save comes from a different version and may not load cleanly.") +
			"\n" + helpStyle.Render("Load it anyway? (y/n)")
	case stateNarrating:
		return helpStyle.Render("Press any key to skip.")
	case stateGameOver:
		return errorStyle.Render("The story has ended.") + "\n" + m.textInput.View() +
			"\n" + helpStyle.Render("/export, /restart or /quit")
	}
	return m.textInput.View() + "\n" + helpStyle.Render("Type a number or your own action. /help for commands.")
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.72)
}

func (m model) panelWidth() int {
	return int(float64(m.width) * 0.25)
}

func (m *model) appendLog(s string) {
	m.gameLog += s + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

// refreshPanel re-renders the side panel. It must not run while an engine
// call is in flight.
func (m *model) refreshPanel() {
	m.panel = renderPanel(m.eng, m.panelWidth(), m.viewport.Height)
}

// engineBusy reports whether an engine call is running on another goroutine.
func (m model) engineBusy() bool {
	return m.state == stateWaiting || m.state == stateConfirmRetry
}

func (m model) wait(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.state = stateWaiting
	m.waitLabel = label
	m.drawText = ""
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m *model) afterCall() {
	m.drawText = ""
	m.showNotices(m.eng.DrainNotices())
	m.refreshPanel()
}

func (m *model) showNotices(ns []models.Notice) {
	if len(ns) > 0 {
		m.appendLog(strings.TrimRight(renderNotices(ns), "\n"))
	}
}

func (m *model) autosave() {
	if _, err := models.Save(m.eng.Snapshot(), models.AutosaveSlot, false); err != nil {
		m.deps.Logger.Error("autosave failed", "game", m.eng.GameID, "err", err)
		m.appendLog(errorStyle.Render("Autosave failed: " + err.Error()))
	}
}

func (m model) typeTick() tea.Cmd {
	return tea.Tick(m.deps.Settings.Game.TypewriterDelay, func(time.Time) tea.Msg {
		return typeTickMsg{}
	})
}

func (m model) newEngine() (*engine.Engine, error) {
	opts := engine.Options{
		Generator: m.deps.Generator,
		Checker:   check.New(nil, check.WithObserver(m.br.observe)),
		Settings:  m.deps.Settings,
		Logger:    m.deps.Logger,
		Retry:     engine.RetryPolicy{Backoff: time.Second, Confirm: m.br.confirm},
	}
	if m.deps.Chronicle != nil {
		opts.Recorder = m.deps.Chronicle
	}
	return engine.New(opts)
}

func (m model) submitSetup(line string) (tea.Model, tea.Cmd) {
	in := parseInput(line)
	switch in.kind {
	case inputLoad:
		m.resume = stateSetup
		return m.wait("Loading...", m.loadCmd(in.arg))
	case inputQuit:
		return m, tea.Quit
	case inputOption, inputCustom, inputEmpty:
	default:
		m.err = errors.New("only /load and /quit work before the story starts")
		return m, nil
	}

	eng, err := m.newEngine()
	if err != nil {
		m.err = err
		m.state = stateError
		return m, nil
	}
	m.eng = eng
	m.err = nil
	m.gameLog = ""
	m.textInput.Placeholder = "What do you do?"
	opening := strings.TrimSpace(line)
	return m.wait("The story begins...", func() tea.Msg {
		res, err := eng.Start(m.ctx, opening)
		return turnMsg{res: res, err: err, start: true}
	})
}

func (m model) submitChoice(line string) (tea.Model, tea.Cmd) {
	in := parseInput(line)
	m.resume = m.state
	if m.state == stateGameOver {
		switch in.kind {
		case inputExport, inputRestart, inputQuit, inputHelp, inputStats, inputSummary, inputEmpty:
		default:
			m.appendLog(helpStyle.Render("The story has ended. /export, /restart or /quit."))
			return m, nil
		}
	}

	switch in.kind {
	case inputEmpty:
		return m, nil

	case inputOption:
		m.appendLog(userStyle.Width(m.logWidth()).Render(fmt.Sprintf("> %d", in.optionID)))
		return m.wait("The world responds...", turnCmd(m.ctx, m.eng, engine.Decision{OptionID: in.optionID}))

	case inputCustom:
		m.appendLog(userStyle.Width(m.logWidth()).Render("> " + in.arg))
		return m.wait("The world responds...", turnCmd(m.ctx, m.eng, engine.Decision{Custom: in.arg}))

	case inputThink:
		if in.arg == "" {
			m.appendLog(helpStyle.Render("Usage: /think <question>"))
			return m, nil
		}
		eng, ctx, q := m.eng, m.ctx, in.arg
		return m.wait("Thinking...", func() tea.Msg {
			answer, res, err := eng.Think(ctx, q)
			return thinkMsg{question: q, answer: answer, result: res, err: err}
		})

	case inputItems:
		m.state = stateItems
		m.itemMsg = ""
		m.textInput.Placeholder = "Item command..."
		return m, nil

	case inputSave:
		slot := in.arg
		if slot == "" {
			slot = "quicksave"
		}
		path, err := models.Save(m.eng.Snapshot(), slot, true)
		if err != nil {
			m.appendLog(errorStyle.Render("Save failed: " + err.Error()))
		} else {
			m.appendLog(helpStyle.Render("Saved to " + path))
		}
		return m, nil

	case inputLoad:
		return m.wait("Loading...", m.loadCmd(in.arg))

	case inputCompact:
		eng, ctx := m.eng, m.ctx
		return m.wait("Compacting the story...", func() tea.Msg {
			return compactMsg{err: eng.Compact(ctx)}
		})

	case inputStats:
		m.appendLog(helpStyle.Render(m.stats()))
		return m, nil

	case inputExport:
		if m.deps.Chronicle == nil {
			m.appendLog(errorStyle.Render("Export needs the chronicle database."))
			return m, nil
		}
		store, ctx, id := m.deps.Chronicle, m.ctx, m.eng.GameID
		title := fmt.Sprintf("The tale of %s", m.eng.PlayerName)
		path := filepath.Join(m.deps.ExportDir, id+".pdf")
		return m.wait("Exporting...", func() tea.Msg {
			return exportMsg{path: path, err: store.ExportPDF(ctx, id, title, path)}
		})

	case inputRestart:
		m.eng = nil
		m.gameLog = ""
		m.panel = ""
		m.state = stateSetup
		m.textInput.Placeholder = "Describe who you are, or leave empty..."
		m.sessions, _ = models.ListSessions()
		m.viewport.SetContent("")
		return m, nil

	case inputQuit:
		return m, tea.Quit

	case inputHelp:
		m.appendLog(helpStyle.Render(helpText))
		return m, nil

	case inputNoOptions:
		m.eng.SetNoOptions(!m.eng.NoOptions())
		m.appendLog(helpStyle.Render("No-options mode " + onOff(m.eng.NoOptions()) + "."))
		m.autosave()
		return m, nil

	case inputSkipAction:
		m.eng.SetSkipActionMode(!m.eng.SkipActionMode())
		m.appendLog(helpStyle.Render("Skip-action mode " + onOff(m.eng.SkipActionMode()) + "."))
		m.autosave()
		return m, nil

	case inputSetVar:
		name, raw, _ := strings.Cut(in.arg, " ")
		raw = strings.TrimSpace(raw)
		if name == "" || raw == "" {
			m.appendLog(helpStyle.Render("Usage: /setvar <name> <value>"))
			return m, nil
		}
		m.eng.State.Variables.Set(name, varValue(raw))
		m.refreshPanel()
		m.autosave()
		m.appendLog(helpStyle.Render(fmt.Sprintf("Set %s = %s", name, raw)))
		return m, nil

	case inputDelVar:
		if in.arg == "" {
			m.appendLog(helpStyle.Render("Usage: /delvar <name>"))
			return m, nil
		}
		if !m.eng.State.Variables.Delete(in.arg) {
			m.appendLog(errorStyle.Render("No variable named " + in.arg))
			return m, nil
		}
		m.refreshPanel()
		m.autosave()
		m.appendLog(helpStyle.Render("Deleted " + in.arg))
		return m, nil

	case inputSummary:
		m.appendLog(helpStyle.Render(renderSummaries(m.eng.History.Summaries)))
		return m, nil
	}

	m.appendLog(helpStyle.Render(fmt.Sprintf("Unknown command %s, /help lists them.", in.arg)))
	return m, nil
}

func (m model) submitItem(line string) (tea.Model, tea.Cmd) {
	c, err := parseItemCommand(line)
	if err != nil {
		m.itemMsg = errorStyle.Render(err.Error())
		return m, nil
	}
	switch c.verb {
	case "exit":
		return m.closeItems(), nil
	case "help":
		m.itemMsg = helpStyle.Render(itemHelpText)
		return m, nil
	case "use":
		name, ok := m.eng.State.Inventory.Items.Lookup(c.ref)
		if !ok {
			m.itemMsg = errorStyle.Render(fmt.Sprintf("%q: %s", c.ref, models.ErrItemNotFound))
			return m, nil
		}
		eng, ctx := m.eng, m.ctx
		action := useAction(name, c)
		m.resume = stateItems
		return m.wait("Considering...", func() tea.Msg {
			valid, err := eng.ValidateItemUse(ctx, name, c.text, c.target)
			return itemUseMsg{action: action, valid: valid, err: err}
		})
	}

	text, err := applyItemCommand(m.eng.State.Inventory, c)
	if err != nil {
		m.itemMsg = errorStyle.Render(err.Error())
		return m, nil
	}
	m.itemMsg = goodStyle.Render(text)
	return m, nil
}

func (m model) closeItems() model {
	m.state = stateChoosing
	m.itemMsg = ""
	m.textInput.Placeholder = "What do you do?"
	m.refreshPanel()
	m.autosave()
	return m
}

func (m model) handleTurn(msg turnMsg) (tea.Model, tea.Cmd) {
	m.drawText = ""
	m.refreshPanel()
	if msg.err != nil {
		m.showNotices(m.eng.DrainNotices())
		if msg.start {
			m.deps.Logger.Error("start failed", "err", msg.err)
			m.eng = nil
			m.err = msg.err
			m.state = stateSetup
			return m, nil
		}
		m.appendLog(errorStyle.Render(describeErr(msg.err)))
		m.state = stateChoosing
		return m, nil
	}

	res := msg.res
	if res.Blocked {
		m.appendLog(badStyle.Render("You cannot do that: " + res.Requirement + "."))
		m.state = stateChoosing
		return m, nil
	}
	if res.Check != nil {
		m.appendLog(tierStyle(res.Check.Tier).Render(fmt.Sprintf("%s: %s", res.Option.Text, engine.TierLabel(res.Check.Tier))))
	}
	m.autosave()

	m.pending = pendingTurn{notices: m.eng.DrainNotices(), gameOver: res.GameOver}
	m.typing = typewriter{text: []rune(m.eng.Description)}
	if m.deps.Settings.Game.TypewriterDelay <= 0 {
		m.typing.finish()
		return m.finishNarration()
	}
	m.state = stateNarrating
	return m, m.typeTick()
}

func (m model) finishNarration() (tea.Model, tea.Cmd) {
	m.appendLog(gameStyle.Width(m.logWidth()).Render(m.typing.String()))
	m.showNotices(m.pending.notices)
	over := m.pending.gameOver || m.eng.State.Status == models.StatusFailure
	m.pending = pendingTurn{}
	if over {
		m.state = stateGameOver
		return m, nil
	}
	m.appendLog(strings.TrimRight(renderOptions(m.eng.Options, m.eng.State.Attributes), "\n"))
	m.state = stateChoosing
	return m, nil
}

func (m model) loadCmd(arg string) tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		if arg == "" {
			snap, err := models.LatestSave(models.AutosaveSlot)
			return loadedMsg{snap: snap, err: err}
		}
		id := arg
		if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(sessions) {
			id = sessions[n-1].GameID
		}
		snap, err := models.LoadSave(id, models.AutosaveSlot)
		return loadedMsg{snap: snap, err: err}
	}
}

func (m model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, models.ErrVersionMismatch) && msg.snap != nil:
		m.pendingSnap = msg.snap
		m.state = stateConfirmVersion
		return m, nil
	case msg.err != nil:
		m.state = m.resume
		if m.state == stateSetup {
			m.err = msg.err
		} else {
			m.appendLog(errorStyle.Render("Load failed: " + msg.err.Error()))
		}
		return m, nil
	}
	return m.restore(msg.snap)
}

func (m model) restore(snap *models.Snapshot) (tea.Model, tea.Cmd) {
	eng, err := m.newEngine()
	if err != nil {
		m.err = err
		m.state = stateError
		return m, nil
	}
	eng.Restore(snap)
	m.eng = eng
	m.err = nil
	m.pendingSnap = nil
	m.textInput.Placeholder = "What do you do?"
	m.gameLog = ""
	m.appendLog(helpStyle.Render(fmt.Sprintf("Loaded %s at turn %d.", snap.PlayerName, snap.Turns)))
	m.appendLog(gameStyle.Width(m.logWidth()).Render(eng.Description))
	m.showNotices(eng.DrainNotices())
	m.refreshPanel()
	if eng.State.Status == models.StatusFailure {
		m.state = stateGameOver
		return m, nil
	}
	m.appendLog(strings.TrimRight(renderOptions(eng.Options, eng.State.Attributes), "\n"))
	m.state = stateChoosing
	return m, nil
}

func (m model) answerRetry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var ok bool
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		ok = true
	case "n", "esc":
	default:
		return m, nil
	}
	m.retry.reply <- ok
	m.retry = nil
	m.state = stateWaiting
	return m, nil
}

func (m model) answerVersion(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		return m.restore(m.pendingSnap)
	case "n", "esc":
		m.pendingSnap = nil
		m.state = m.resume
		return m, nil
	}
	return m, nil
}

func (m model) stats() string {
	t := m.eng.Tokens
	s := fmt.Sprintf("Last call: %d prompt + %d completion tokens.\nThis game: %d prompt + %d completion = %d tokens over %d turns.",
		t.LastPrompt, t.LastCompletion, t.TotalPrompt, t.TotalCompletion, t.Total, m.eng.Turns())
	if m.deps.Chronicle != nil {
		if u, err := m.deps.Chronicle.Usage(m.ctx, m.eng.GameID); err == nil {
			s += fmt.Sprintf("\nChronicle: %d exchanges, %d tokens.", u.Exchanges, u.Tokens)
		}
	}
	return s
}

func turnCmd(ctx context.Context, eng *engine.Engine, d engine.Decision) tea.Cmd {
	return func() tea.Msg {
		res, err := eng.PlayTurn(ctx, d)
		return turnMsg{res: res, err: err}
	}
}

// describeErr turns engine errors into a line for the player.
func describeErr(err error) string {
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, engine.ErrUnknownOption):
		return "There is no such option."
	case errors.Is(err, engine.ErrNoThinkCharges):
		return "You are too tired to think any more."
	case errors.Is(err, engine.ErrAborted):
		return "The request was abandoned: " + err.Error()
	case errors.Is(err, llm.ErrTimeout):
		return "The model took too long to answer."
	case errors.Is(err, llm.ErrNoAPIKey):
		return "No API key is configured for the selected provider."
	case errors.As(err, &pe):
		return fmt.Sprintf("%s failed: %v", pe.Provider, pe.Err)
	}
	return err.Error()
}

// Run starts the program and blocks until the player quits.
func Run(deps Deps) error {
	if deps.Settings == nil {
		deps.Settings = config.DefaultSettings()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ExportDir == "" {
		deps.ExportDir = "."
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := &bridge{}
	p := tea.NewProgram(newModel(ctx, deps, br), tea.WithAltScreen())
	br.set(p)
	_, err := p.Run()
	br.set(nil)
	return err
}
