// internal/steps/step.go
//
// Defines the Step interface that every workflow screen implements.
// Each step drives one session transition and reports back to the app
// through messages.

package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/logbook"
	"github.com/kingrea/fleetnote/internal/session"
)

const fallbackTimeout = 30 * time.Second

// Context provides shared context for all steps
type Context struct {
	Config  *config.Config
	Session *session.Session
	Logbook *logbook.Logbook
}

// Step defines the interface that all workflow steps must implement
type Step interface {
	// Name returns the step's display name
	Name() string

	// Target returns the session state a successful run reaches
	Target() session.State

	// Init prepares the step and returns a startup command
	Init(ctx *Context) tea.Cmd

	// Update handles messages and returns the updated step plus any commands.
	// A finished step emits StepCompleteMsg.
	Update(msg tea.Msg) (Step, tea.Cmd)

	// View renders the step's current state
	View() string

	// IsComplete returns true once the step's transition has succeeded
	IsComplete() bool
}

// StepCompleteMsg signals that a step finished and the app should return to
// the step list.
type StepCompleteMsg struct {
	Name  string
	State session.State
}

// StepProgressMsg provides status updates while a step runs
type StepProgressMsg struct {
	Status string
}

// StepErrorMsg signals the operator left a step without finishing it
type StepErrorMsg struct {
	Error error
}

// BaseStep provides common functionality for all steps
type BaseStep struct {
	ctx       *Context
	name      string
	target    session.State
	complete  bool
	busy      bool
	statusMsg string
	err       error
	spinner   spinner.Model
}

// NewBaseStep creates a BaseStep with the given name and target state
func NewBaseStep(name string, target session.State) BaseStep {
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	return BaseStep{name: name, target: target, spinner: spin}
}

func (s *BaseStep) Name() string {
	return s.name
}

func (s *BaseStep) Target() session.State {
	return s.target
}

func (s *BaseStep) IsComplete() bool {
	return s.complete
}

func (s *BaseStep) SetComplete(complete bool) {
	s.complete = complete
}

func (s *BaseStep) Context() *Context {
	return s.ctx
}

func (s *BaseStep) SetContext(ctx *Context) {
	s.ctx = ctx
}

func (s *BaseStep) Session() *session.Session {
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Session
}

func (s *BaseStep) StatusMsg() string {
	return s.statusMsg
}

func (s *BaseStep) SetStatusMsg(msg string) {
	s.statusMsg = msg
}

// Err returns the last failure shown by the step.
func (s *BaseStep) Err() error {
	return s.err
}

func (s *BaseStep) SetErr(err error) {
	s.err = err
}

// Busy reports whether a remote call is in flight. Steps ignore submissions
// while busy.
func (s *BaseStep) Busy() bool {
	return s.busy
}

// Remote marks the step busy and runs call off the render loop with the
// configured timeout. The spinner starts alongside.
func (s *BaseStep) Remote(status string, call func(ctx context.Context) tea.Msg) tea.Cmd {
	s.busy = true
	s.err = nil
	s.statusMsg = status
	timeout := fallbackTimeout
	if s.ctx != nil && s.ctx.Config != nil {
		timeout = s.ctx.Config.HTTPTimeout()
	}
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return call(ctx)
	}
	progress := func() tea.Msg { return StepProgressMsg{Status: status} }
	return tea.Batch(s.spinner.Tick, progress, run)
}

// Done clears the busy flag and records err, if any.
func (s *BaseStep) Done(err error) {
	s.busy = false
	s.err = err
}

// UpdateSpinner advances the spinner while busy.
func (s *BaseStep) UpdateSpinner(msg tea.Msg) tea.Cmd {
	tick, ok := msg.(spinner.TickMsg)
	if !ok || !s.busy {
		return nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(tick)
	return cmd
}

func (s *BaseStep) logInfo(format string, args ...any) {
	if s.ctx == nil || s.ctx.Logbook == nil {
		return
	}
	s.ctx.Logbook.Info(format, args...)
}

// Complete marks the step done and returns the command announcing it.
func (s *BaseStep) Complete() tea.Cmd {
	s.complete = true
	name, state := s.name, s.target
	return func() tea.Msg {
		return StepCompleteMsg{Name: name, State: state}
	}
}

// Cancel returns the command that leaves the step unfinished.
func (s *BaseStep) Cancel() tea.Cmd {
	name := s.name
	return func() tea.Msg {
		return StepErrorMsg{Error: fmt.Errorf("%s cancelled", strings.ToLower(name))}
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77")).MarginBottom(1)
	labelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	errorBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#FF6B6B")).Padding(0, 1)
)

// Frame renders the common step layout around body.
func (s *BaseStep) Frame(title, body, hint string) string {
	sections := []string{titleStyle.Render(title), body}
	if s.err != nil {
		sections = append(sections, errorBoxStyle.Render(DescribeError(s.err)))
	}
	if hint != "" {
		sections = append(sections, hintStyle.Render(hint))
	}
	status := s.statusMsg
	if s.busy {
		status = fmt.Sprintf("%s %s", s.spinner.View(), status)
	}
	if status != "" {
		sections = append(sections, statusStyle.Render(status))
	}
	return strings.Join(sections, "\n")
}

// maxBodyWidth bounds raw response bodies shown in error boxes.
const maxBodyWidth = 480

// DescribeError renders err with its failure class, status code and raw
// body so the operator sees what the remote service actually returned.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	switch fault.Classify(err) {
	case fault.KindPrecondition:
		lines = append(lines, fmt.Sprintf("⚠ Blocked: %v", unwrapPrecondition(err)))
	case fault.KindRemote:
		lines = append(lines, fmt.Sprintf("⚠ Remote failure: %v", err))
	case fault.KindShape:
		lines = append(lines, fmt.Sprintf("⚠ Unexpected response: %v", err))
	default:
		lines = append(lines, fmt.Sprintf("⚠ %v", err))
	}
	if code, ok := fault.StatusCode(err); ok {
		lines = append(lines, fmt.Sprintf("Status: %d", code))
	}
	if body := strings.TrimSpace(fault.Body(err)); body != "" {
		lines = append(lines, "Body:", Truncate(body, maxBodyWidth))
	}
	return strings.Join(lines, "\n")
}

func unwrapPrecondition(err error) error {
	var pre *fault.PreconditionError
	if errors.As(err, &pre) {
		return pre
	}
	return err
}

// Truncate shortens s to width terminal cells, marking the cut with an
// ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// MaskToken shows the head of a secret and hides the rest.
func MaskToken(token string) string {
	if token == "" {
		return "—"
	}
	if runewidth.StringWidth(token) <= 8 {
		return strings.Repeat("•", runewidth.StringWidth(token))
	}
	return runewidth.Truncate(token, 6, "") + "…"
}

// field renders a "Label: value" line.
func field(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label+":"), value)
}
