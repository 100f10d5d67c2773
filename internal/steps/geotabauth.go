package steps

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/session"
)

// GeotabAuthStep opens a Geotab session for the configured database.
type GeotabAuthStep struct {
	BaseStep
	form     credentialForm
	database string
}

type geotabAuthDoneMsg struct {
	err error
}

func NewGeotabAuth() *GeotabAuthStep {
	return &GeotabAuthStep{BaseStep: NewBaseStep("Sign in to Geotab", session.StateGeotabAuthenticated)}
}

func (s *GeotabAuthStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	prefill := ""
	if ctx != nil && ctx.Config != nil {
		prefill = ctx.Config.Prefill.GeotabUsername
		s.database = ctx.Config.File.Geotab.Database
	}
	s.form = newCredentialForm("Geotab username", prefill)
	s.SetStatusMsg("Enter your Geotab credentials")
	return s.form.applyFocus()
}

func (s *GeotabAuthStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case geotabAuthDoneMsg:
		s.Done(msg.err)
		if msg.err != nil {
			s.form.clearPassword()
			s.SetStatusMsg("Geotab sign-in failed")
			return s, nil
		}
		s.SetStatusMsg("Geotab session opened")
		return s, s.Complete()

	case tea.KeyMsg:
		if s.Busy() {
			return s, nil
		}
		switch msg.String() {
		case "esc":
			return s, s.Cancel()
		case "tab", "down":
			return s, s.form.next()
		case "shift+tab", "up":
			return s, s.form.prev()
		case "enter":
			if !s.form.onLast() {
				return s, s.form.next()
			}
			user, pass := s.form.values()
			sess := s.Session()
			return s, s.Remote("Signing in to Geotab...", func(ctx context.Context) tea.Msg {
				return geotabAuthDoneMsg{err: sess.AuthenticateGeotab(ctx, user, pass)}
			})
		}
	}

	if cmd := s.UpdateSpinner(msg); cmd != nil {
		return s, cmd
	}
	return s, s.form.update(msg)
}

func (s *GeotabAuthStep) View() string {
	body := s.form.View()
	if s.database != "" {
		body = fmt.Sprintf("%s\n\n%s", field("Database", s.database), body)
	}
	return s.Frame("⬡ GEOTAB SIGN-IN", body, "Tab → next field    Enter → sign in    Esc → back")
}
