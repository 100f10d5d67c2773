package steps

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/session"
)

// StagingStep lets the operator edit the asset comment before it is carried
// to Geotab and Routeware.
type StagingStep struct {
	BaseStep
	editor textarea.Model
}

func NewStaging() *StagingStep {
	return &StagingStep{BaseStep: NewBaseStep("Edit comment", session.StateCommentStaged)}
}

func (s *StagingStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	text := ""
	if sess := s.Session(); sess != nil {
		snap := sess.Snapshot()
		text = snap.OriginalComment
		if snap.CommentStaged {
			text = snap.EditedComment
		}
	}
	s.editor = newEditor(text)
	s.SetStatusMsg("Edit the comment, then press Ctrl+S to stage it")
	return s.editor.Focus()
}

func (s *StagingStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		resizeEditor(&s.editor, msg.Width)
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, s.Cancel()
		case "ctrl+s":
			text := s.editor.Value()
			if err := s.Session().StageComment(text); err != nil {
				s.SetErr(err)
				return s, nil
			}
			s.SetErr(nil)
			s.SetStatusMsg(fmt.Sprintf("Staged %d characters", len(text)))
			s.logInfo("Staging · comment ready for Geotab and Routeware")
			return s, s.Complete()
		}
	}
	var cmd tea.Cmd
	s.editor, cmd = s.editor.Update(msg)
	return s, cmd
}

func (s *StagingStep) View() string {
	return s.Frame("⬡ STAGE COMMENT", s.editor.View(), "Ctrl+S → stage    Esc → back")
}
