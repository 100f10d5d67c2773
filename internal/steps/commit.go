package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/session"
)

type commitPhase int

const (
	phaseChoose commitPhase = iota // pick append or replace
	phaseEdit                      // final edit of the merged draft
	phaseDone                      // written, read-back shown
)

// CommitStep merges the staged comment into the device comment, lets the
// operator make a final edit and writes it to Geotab.
type CommitStep struct {
	BaseStep
	phase      commitPhase
	appendMode bool
	editor     textarea.Model
	result     session.CommitResult
}

type commitDoneMsg struct {
	result session.CommitResult
	err    error
}

func NewCommit() *CommitStep {
	return &CommitStep{
		BaseStep:   NewBaseStep("Update Geotab comment", session.StateCommentCommitted),
		appendMode: true,
	}
}

func (s *CommitStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	s.phase = phaseChoose
	s.editor = newEditor("")
	if sess := s.Session(); sess != nil {
		if snap := sess.Snapshot(); snap.DraftPending {
			s.appendMode = snap.AppendMode
			return s.edit(snap.DraftComment)
		}
	}
	s.SetStatusMsg("Choose how the comment is combined, then press Enter")
	return nil
}

func (s *CommitStep) edit(draft string) tea.Cmd {
	s.phase = phaseEdit
	s.editor.SetValue(draft)
	s.SetStatusMsg("Review the final text. Ctrl+S writes it to Geotab.")
	return s.editor.Focus()
}

func (s *CommitStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		resizeEditor(&s.editor, msg.Width)
		return s, nil

	case commitDoneMsg:
		s.Done(msg.err)
		if msg.err != nil {
			s.SetStatusMsg("Write failed. The draft is kept; Ctrl+S to retry.")
			return s, nil
		}
		s.result = msg.result
		s.phase = phaseDone
		s.editor.Blur()
		s.SetComplete(true)
		s.SetStatusMsg("Comment written to Geotab")
		return s, nil

	case tea.KeyMsg:
		if s.Busy() {
			return s, nil
		}
		switch s.phase {
		case phaseChoose:
			return s.updateChoose(msg)
		case phaseEdit:
			if cmd, handled := s.updateEdit(msg); handled {
				return s, cmd
			}
		case phaseDone:
			switch msg.String() {
			case "enter":
				return s, s.Complete()
			case "esc":
				return s, s.Cancel()
			}
			return s, nil
		}
	}

	if cmd := s.UpdateSpinner(msg); cmd != nil {
		return s, cmd
	}
	if s.phase == phaseEdit {
		var cmd tea.Cmd
		s.editor, cmd = s.editor.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *CommitStep) updateChoose(msg tea.KeyMsg) (Step, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return s, s.Cancel()
	case " ", "a", "left", "right":
		s.appendMode = !s.appendMode
		return s, nil
	case "enter":
		merged, err := s.Session().PrepareComment(s.appendMode)
		if err != nil {
			s.SetErr(err)
			return s, nil
		}
		s.SetErr(nil)
		return s, s.edit(merged)
	}
	return s, nil
}

func (s *CommitStep) updateEdit(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		if err := s.Session().CancelPrepared(); err != nil {
			s.SetErr(err)
			return nil, true
		}
		s.SetErr(nil)
		s.phase = phaseChoose
		s.editor.Blur()
		s.SetStatusMsg("Draft discarded")
		return nil, true
	case "ctrl+s":
		final := s.editor.Value()
		sess := s.Session()
		return s.Remote("Writing comment to Geotab...", func(ctx context.Context) tea.Msg {
			result, err := sess.CommitComment(ctx, final)
			return commitDoneMsg{result: result, err: err}
		}), true
	}
	return nil, false
}

func (s *CommitStep) View() string {
	var body, hint string
	switch s.phase {
	case phaseChoose:
		body, hint = s.viewChoose(), "Space → toggle append    Enter → prepare    Esc → back"
	case phaseEdit:
		body, hint = s.editor.View(), "Ctrl+S → write to Geotab    Esc → discard draft"
	case phaseDone:
		body, hint = s.viewDone(), "Enter → continue"
	}
	return s.Frame("⬡ UPDATE GEOTAB COMMENT", body, hint)
}

func (s *CommitStep) viewChoose() string {
	mark := "[ ]"
	if s.appendMode {
		mark = "[x]"
	}
	lines := []string{fmt.Sprintf("%s Append M5 comment to existing Geotab comment", mark)}
	if sess := s.Session(); sess != nil {
		snap := sess.Snapshot()
		existing := snap.ExistingComment
		if strings.TrimSpace(existing) == "" {
			existing = "(empty)"
		}
		lines = append(lines,
			"",
			field("Device", snap.Device.Name),
			labelStyle.Render("Existing"),
			existing,
			labelStyle.Render("Staged"),
			snap.PreparedComment,
		)
	}
	return strings.Join(lines, "\n")
}

func (s *CommitStep) viewDone() string {
	lines := []string{labelStyle.Render("Written"), s.result.Written, ""}
	switch {
	case s.result.ReadBackErr != nil:
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Read-back skipped: %v", s.result.ReadBackErr)))
	case s.result.ReadBack == s.result.Written:
		lines = append(lines, okStyle.Render("✓ Read-back matches"))
	default:
		lines = append(lines, warnStyle.Render("Read-back differs"), s.result.ReadBack)
	}
	return strings.Join(lines, "\n")
}
