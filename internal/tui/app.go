// internal/tui/app.go
//
// This is the main TUI for fleetnote. It follows The Elm Architecture:
//
// 1. Model: the App, holding the session and the active step
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string
//
// The app shows the workflow as a step list. Choosing a step hands the
// screen to that step until it reports completion or is cancelled.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/fleetnote/internal/clock"
	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/geotab"
	"github.com/kingrea/fleetnote/internal/logbook"
	"github.com/kingrea/fleetnote/internal/logging"
	"github.com/kingrea/fleetnote/internal/m5"
	"github.com/kingrea/fleetnote/internal/routeware"
	"github.com/kingrea/fleetnote/internal/session"
	"github.com/kingrea/fleetnote/internal/steps"
	"github.com/kingrea/fleetnote/internal/transport"
)

// appState represents which "screen" we're on
type appState int

const (
	stateMainMenu appState = iota // step list
	stateStep                     // a workflow step owns the screen
)

const logTailLines = 8

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithClock overrides the clock used for comment tags and work orders.
func WithClock(c clock.Clock) AppOption {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// App is the main application model.
type App struct {
	state   appState
	config  *config.Config
	session *session.Session
	logbook *logbook.Logbook
	clock   clock.Clock
	mapping config.AssetMapping

	entries []steps.Entry
	step    steps.Step
	stepCtx *steps.Context

	mainMenu      list.Model
	statusMsg     string
	lastLogStatus string

	width  int
	height int
}

// menuItem implements list.Item for the step list and the session actions.
type menuItem struct {
	title string
	desc  string
	entry int // index into entries, -1 for actions
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

const (
	actionEndSession = "End session"
	actionExit       = "Exit"
)

// NewApp wires the three service clients to a fresh session for assetID
// (empty means the configured default) and builds the step list.
func NewApp(cfg *config.Config, assetID string, lb *logbook.Logbook, trace *logging.Logger, opts ...AppOption) (*App, error) {
	mapping, err := cfg.Asset(assetID)
	if err != nil {
		return nil, err
	}
	app := &App{
		state:   stateMainMenu,
		config:  cfg,
		logbook: lb,
		clock:   clock.Real(),
		mapping: mapping,
		entries: steps.Workflow(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}

	timeout := cfg.HTTPTimeout()
	app.session = session.New(session.Options{
		M5:        m5.New(cfg.File.M5.BaseURL, cfg.File.M5.Site, transport.New("m5", timeout, trace)),
		Geotab:    geotab.New(cfg.File.Geotab.BaseURL, cfg.File.Geotab.Database, transport.New("geotab", timeout, trace)),
		Routeware: routeware.New(cfg.File.Routeware.BaseURL, transport.New("routeware", timeout, trace)),
		Mapping:   mapping,
		Clock:     app.clock,
		Logbook:   lb,
	})
	app.stepCtx = &steps.Context{Config: cfg, Session: app.session, Logbook: lb}

	mainMenu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "⬡ WORKFLOW"
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)
	app.mainMenu = mainMenu
	app.refreshMenu()
	app.statusMsg = fmt.Sprintf("Asset %s · choose a step", mapping.M5AssetID)
	return app, nil
}

// Session exposes the workflow session, mainly for tests.
func (a *App) Session() *session.Session {
	return a.session
}

func (a *App) buildMenu() []list.Item {
	snap := a.session.Snapshot()
	items := make([]list.Item, 0, len(a.entries)+2)
	for i, entry := range a.entries {
		marker, desc := "·", entry.Description
		switch {
		case entry.Done != nil && entry.Done(snap):
			marker = "✓"
		case entry.Ready(snap.State):
			marker = "•"
		default:
			desc = fmt.Sprintf("%s · needs %s", desc, entry.Requires.FriendlyName())
		}
		items = append(items, menuItem{
			title: fmt.Sprintf("%s %d. %s", marker, i+1, entry.Title),
			desc:  desc,
			entry: i,
		})
	}
	items = append(items,
		menuItem{title: actionEndSession, desc: "Discard tokens, comments and results", entry: -1},
		menuItem{title: actionExit, desc: "Quit fleetnote", entry: -1},
	)
	return items
}

func (a *App) refreshMenu() {
	idx := a.mainMenu.Index()
	a.mainMenu.SetItems(a.buildMenu())
	a.mainMenu.Select(idx)
}

// nextEntry returns the first entry that is ready but not yet done.
func (a *App) nextEntry() int {
	snap := a.session.Snapshot()
	for i, entry := range a.entries {
		if entry.Ready(snap.State) && (entry.Done == nil || !entry.Done(snap)) {
			return i
		}
	}
	return len(a.entries) - 1
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logProgress(status string) {
	status = strings.TrimSpace(status)
	if status == "" || status == a.lastLogStatus {
		return
	}
	a.lastLogStatus = status
	a.logInfo(status)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.SetWindowTitle("fleetnote")
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-12))
		if a.state == stateStep && a.step != nil {
			var cmd tea.Cmd
			a.step, cmd = a.step.Update(msg)
			return a, cmd
		}
		return a, nil

	case steps.StepCompleteMsg:
		a.logInfo("Step · %s complete (%s)", msg.Name, msg.State.FriendlyName())
		a.statusMsg = fmt.Sprintf("✓ %s complete", msg.Name)
		return a.returnToMainMenu(true)

	case steps.StepErrorMsg:
		if msg.Error != nil {
			a.statusMsg = capitalize(msg.Error.Error())
		}
		return a.returnToMainMenu(false)

	case steps.StepProgressMsg:
		a.statusMsg = msg.Status
		a.logProgress(msg.Status)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if a.state == stateMainMenu {
				return a, tea.Quit
			}
		case "enter":
			if a.state == stateMainMenu {
				return a.handleMainMenuSelection()
			}
		}
	}

	switch a.state {
	case stateStep:
		if a.step != nil {
			var cmd tea.Cmd
			a.step, cmd = a.step.Update(msg)
			return a, cmd
		}
	case stateMainMenu:
		var cmd tea.Cmd
		a.mainMenu, cmd = a.mainMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

// handleMainMenuSelection opens the chosen step or runs a session action.
func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	item, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	if item.entry >= 0 {
		return a.openStep(item.entry)
	}
	switch item.title {
	case actionEndSession:
		a.session.End()
		a.refreshMenu()
		a.mainMenu.Select(0)
		a.statusMsg = "Session cleared"
		return a, nil
	case actionExit:
		a.logInfo("Menu · Exit selected")
		return a, tea.Quit
	}
	return a, nil
}

// openStep hands the screen to entry idx unless its prerequisite state has
// not been reached.
func (a *App) openStep(idx int) (tea.Model, tea.Cmd) {
	entry := a.entries[idx]
	state := a.session.State()
	if !entry.Ready(state) {
		a.statusMsg = fmt.Sprintf("⚠ %s needs %s first (now: %s)", entry.Title, entry.Requires.FriendlyName(), state.FriendlyName())
		a.logWarn("Blocked · %s requested at %s", entry.Title, state.FriendlyName())
		return a, nil
	}
	a.logInfo("Menu · %s selected", entry.Title)
	a.state = stateStep
	a.step = entry.New()
	cmds := []tea.Cmd{a.step.Init(a.stepCtx)}
	if a.width > 0 {
		size := tea.WindowSizeMsg{Width: a.width, Height: a.height}
		cmds = append(cmds, func() tea.Msg { return size })
	}
	return a, tea.Batch(cmds...)
}

// returnToMainMenu transitions back to the step list. After a completed
// step the cursor moves to the next step still to do.
func (a *App) returnToMainMenu(advance bool) (tea.Model, tea.Cmd) {
	a.state = stateMainMenu
	a.step = nil
	a.refreshMenu()
	if advance {
		a.mainMenu.Select(a.nextEntry())
	}
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
	}
	if leftWidth < 20 {
		leftWidth = width
		rightWidth = 0
	}
	var content string
	switch a.state {
	case stateMainMenu:
		content = a.mainMenu.View()
	case stateStep:
		if a.step != nil {
			content = a.step.View()
		}
	}
	return a.renderStatusBoard(content, leftWidth, rightWidth)
}

func (a *App) renderStatusBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ FLEETNOTE")
	left := lipgloss.JoinVertical(lipgloss.Left,
		a.renderStatePanel(leftWidth-4),
		"",
		a.renderMainArea(mainContent, leftWidth-4),
	)
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(left)
	var body string
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(a.renderSessionPanel(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	} else {
		body = leftBox
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderStatePanel(width int) string {
	snap := a.session.Snapshot()
	pos, total := statePosition(snap.State)
	lines := []string{
		fmt.Sprintf("State: %s (%d/%d)", snap.State.FriendlyName(), pos+1, total),
	}
	if next := upcomingStates(snap.State); len(next) > 0 {
		var names []string
		for _, s := range next {
			names = append(names, s.FriendlyName())
		}
		lines = append(lines, steps.Truncate(fmt.Sprintf("Next: %s", strings.Join(names, " → ")), max(20, width)))
	}
	lines = append(lines, fmt.Sprintf(
		"Asset %s → device %q · vehicle %d / pickup %d",
		a.mapping.M5AssetID,
		a.mapping.GeotabDevicePrefix,
		a.mapping.VehicleTypeID,
		a.mapping.PickupTypeID,
	))
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) renderMainArea(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		content = "Ready."
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(content)
}

func (a *App) renderSessionPanel(width int) string {
	snap := a.session.Snapshot()
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("Session %s", steps.Truncate(snap.ID, 8)))
	w := max(12, width)
	line := func(label, value string) string {
		if strings.TrimSpace(value) == "" {
			value = "—"
		}
		return steps.Truncate(fmt.Sprintf("%s: %s", label, oneLine(value)), w)
	}
	lines := []string{
		line("M5 user", snap.M5User),
		line("Token", steps.MaskToken(snap.M5Token)),
	}
	if snap.HasAsset {
		lines = append(lines, line("Asset comment", snap.OriginalComment))
	}
	if snap.CommentStaged {
		lines = append(lines, line("Staged", snap.EditedComment))
	}
	if snap.GeotabCredentials.Valid() {
		user := snap.GeotabCredentials.UserName
		if snap.GeotabCredentials.Server != "" {
			user = fmt.Sprintf("%s @ %s", user, snap.GeotabCredentials.Server)
		}
		lines = append(lines, line("Geotab", user))
	}
	if snap.HasDevice {
		lines = append(lines, line("Device", fmt.Sprintf("%s (%s)", snap.Device.Name, snap.Device.ID)))
	}
	if snap.CommentCommitted {
		verified := "unverified"
		if snap.Verified {
			verified = "verified"
		}
		lines = append(lines, line("Committed", verified))
	}
	if snap.JobSubmitted {
		lines = append(lines, line("Job", snap.Job.WorkOrderNumber))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	width := max(40, a.width-6)
	for i, l := range lines {
		lines[i] = steps.Truncate(l, width)
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func statePosition(s session.State) (int, int) {
	for i, state := range session.States {
		if s == state {
			return i, len(session.States)
		}
	}
	return 0, len(session.States)
}

func upcomingStates(s session.State) []session.State {
	pos, total := statePosition(s)
	if pos+1 >= total {
		return nil
	}
	return session.States[pos+1:]
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func capitalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
