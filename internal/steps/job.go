package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/fleetnote/internal/routeware"
	"github.com/kingrea/fleetnote/internal/session"
)

type jobField int

const (
	fieldAPIKey jobField = iota
	fieldPriority
	fieldReason
	fieldNote
	jobFieldCount
)

// JobStep creates a Routeware dispatch job carrying the note.
type JobStep struct {
	BaseStep
	apiKey   textinput.Model
	note     textarea.Model
	priority int
	reason   int
	focus    jobField
	outcome  session.JobOutcome
}

type jobSubmittedMsg struct {
	outcome session.JobOutcome
	err     error
}

func NewJob() *JobStep {
	return &JobStep{BaseStep: NewBaseStep("Create Routeware job", session.StateJobSubmitted)}
}

func (s *JobStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	s.apiKey = textinput.New()
	s.apiKey.Prompt = "> "
	s.apiKey.Placeholder = "Routeware API key"
	s.apiKey.EchoMode = textinput.EchoPassword
	s.apiKey.EchoCharacter = '•'
	if ctx != nil && ctx.Config != nil {
		s.apiKey.SetValue(ctx.Config.Prefill.RoutewareAPIKey)
	}
	note := ""
	if sess := s.Session(); sess != nil {
		note = sess.DefaultJobNote()
	}
	s.note = newEditor(note)
	s.note.SetHeight(5)
	s.priority = indexOfPriority(routeware.PriorityMedium)
	s.reason = 0
	s.focus = fieldAPIKey
	if strings.TrimSpace(s.apiKey.Value()) != "" {
		s.focus = fieldPriority
	}
	s.SetStatusMsg("Fill in the job, then press Ctrl+S to submit")
	return s.applyFocus()
}

func indexOfPriority(p routeware.Priority) int {
	for i, known := range routeware.Priorities {
		if known == p {
			return i
		}
	}
	return 0
}

func (s *JobStep) applyFocus() tea.Cmd {
	s.apiKey.Blur()
	s.note.Blur()
	switch s.focus {
	case fieldAPIKey:
		return s.apiKey.Focus()
	case fieldNote:
		return s.note.Focus()
	}
	return nil
}

func (s *JobStep) request() session.JobRequest {
	return session.JobRequest{
		APIKey:   s.apiKey.Value(),
		Priority: routeware.Priorities[s.priority],
		Reason:   routeware.Reasons[s.reason],
		Note:     s.note.Value(),
	}
}

func (s *JobStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		resizeEditor(&s.note, msg.Width)
		return s, nil

	case jobSubmittedMsg:
		s.Done(msg.err)
		s.outcome = msg.outcome
		if msg.err != nil {
			s.SetStatusMsg("Job was not created. Adjust and press Ctrl+S to retry.")
			return s, nil
		}
		s.SetComplete(true)
		s.SetStatusMsg(fmt.Sprintf("Job %s created", msg.outcome.Job.WorkOrderNumber))
		return s, nil

	case tea.KeyMsg:
		if s.Busy() {
			return s, nil
		}
		if s.IsComplete() {
			switch msg.String() {
			case "enter":
				return s, s.Complete()
			case "esc":
				return s, s.Cancel()
			}
			return s, nil
		}
		switch msg.String() {
		case "esc":
			return s, s.Cancel()
		case "tab":
			s.focus = (s.focus + 1) % jobFieldCount
			return s, s.applyFocus()
		case "shift+tab":
			s.focus = (s.focus + jobFieldCount - 1) % jobFieldCount
			return s, s.applyFocus()
		case "ctrl+s":
			req := s.request()
			sess := s.Session()
			return s, s.Remote("Submitting job to Routeware...", func(ctx context.Context) tea.Msg {
				outcome, err := sess.SubmitJob(ctx, req)
				return jobSubmittedMsg{outcome: outcome, err: err}
			})
		case "left", "right":
			delta := 1
			if msg.String() == "left" {
				delta = -1
			}
			switch s.focus {
			case fieldPriority:
				s.priority = cycle(s.priority, delta, len(routeware.Priorities))
				return s, nil
			case fieldReason:
				s.reason = cycle(s.reason, delta, len(routeware.Reasons))
				return s, nil
			}
		}
	}

	if cmd := s.UpdateSpinner(msg); cmd != nil {
		return s, cmd
	}
	var cmd tea.Cmd
	switch s.focus {
	case fieldAPIKey:
		s.apiKey, cmd = s.apiKey.Update(msg)
	case fieldNote:
		s.note, cmd = s.note.Update(msg)
	}
	return s, cmd
}

func cycle(idx, delta, n int) int {
	return (idx + delta + n) % n
}

func (s *JobStep) View() string {
	if s.IsComplete() {
		return s.Frame("⬡ ROUTEWARE JOB", s.viewResult(), "Enter → continue")
	}
	focused := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D")).Bold(true)
	label := func(f jobField, text string) string {
		if s.focus == f {
			return focused.Render("▸ " + text)
		}
		return labelStyle.Render("  " + text)
	}
	lines := []string{
		label(fieldAPIKey, "API key"),
		s.apiKey.View(),
		"",
		label(fieldPriority, "Priority"),
		"  ‹ " + routeware.Priorities[s.priority].String() + " ›",
		"",
		label(fieldReason, "Reason"),
		"  ‹ " + routeware.Reasons[s.reason].String() + " ›",
		"",
		label(fieldNote, "Note"),
		s.note.View(),
	}
	if attempted := s.outcome.Job.WorkOrderNumber; attempted != "" && s.Err() != nil {
		lines = append(lines, "", field("Attempted work order", attempted))
	}
	return s.Frame("⬡ ROUTEWARE JOB", strings.Join(lines, "\n"), "Tab → next field    ←/→ → change    Ctrl+S → submit    Esc → back")
}

func (s *JobStep) viewResult() string {
	job := s.outcome.Job
	lines := []string{
		okStyle.Render("✓ Job created"),
		field("Work order", job.WorkOrderNumber),
		field("Job date", job.JobDate),
		field("Priority", job.JobPriorityTypeID.String()),
		field("Reason", job.ReasonCodeTypeID.String()),
		field("Status", fmt.Sprintf("%d", s.outcome.Result.StatusCode)),
	}
	if body := strings.TrimSpace(s.outcome.Result.Body); body != "" {
		lines = append(lines, field("Response", Truncate(body, rawPreviewWidth)))
	}
	return strings.Join(lines, "\n")
}
