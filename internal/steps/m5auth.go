package steps

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/session"
)

// M5AuthStep exchanges the operator's M5 credentials for a bearer token.
type M5AuthStep struct {
	BaseStep
	form credentialForm
}

type m5AuthDoneMsg struct {
	err error
}

func NewM5Auth() *M5AuthStep {
	return &M5AuthStep{BaseStep: NewBaseStep("Sign in to M5", session.StateM5Authenticated)}
}

func (s *M5AuthStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	prefill := ""
	if ctx != nil && ctx.Config != nil {
		prefill = ctx.Config.Prefill.M5Username
	}
	s.form = newCredentialForm("M5 username", prefill)
	s.SetStatusMsg("Enter your M5 credentials")
	return s.form.applyFocus()
}

func (s *M5AuthStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case m5AuthDoneMsg:
		s.Done(msg.err)
		if msg.err != nil {
			s.form.clearPassword()
			s.SetStatusMsg("Sign-in failed. Correct the credentials and retry.")
			return s, nil
		}
		snap := s.Session().Snapshot()
		s.form.clearPassword()
		s.SetComplete(true)
		s.SetStatusMsg("Signed in as " + snap.M5User)
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
		case "tab", "down":
			return s, s.form.next()
		case "shift+tab", "up":
			return s, s.form.prev()
		case "enter":
			if !s.form.onLast() {
				return s, s.form.next()
			}
			return s, s.submit()
		}
	}

	if cmd := s.UpdateSpinner(msg); cmd != nil {
		return s, cmd
	}
	return s, s.form.update(msg)
}

func (s *M5AuthStep) submit() tea.Cmd {
	user, pass := s.form.values()
	sess := s.Session()
	return s.Remote("Signing in to M5...", func(ctx context.Context) tea.Msg {
		return m5AuthDoneMsg{err: sess.AuthenticateM5(ctx, user, pass)}
	})
}

func (s *M5AuthStep) View() string {
	if s.IsComplete() {
		return s.Frame("⬡ M5 SIGN-IN", s.viewResult(), "Enter → continue    Esc → back")
	}
	return s.Frame("⬡ M5 SIGN-IN", s.form.View(), "Tab → next field    Enter → sign in    Esc → back")
}

// viewResult shows the token exchange with the token itself masked.
func (s *M5AuthStep) viewResult() string {
	snap := s.Session().Snapshot()
	raw := strings.TrimSpace(snap.M5AuthResponse)
	if snap.M5Token != "" {
		raw = strings.ReplaceAll(raw, snap.M5Token, MaskToken(snap.M5Token))
	}
	return strings.Join([]string{
		okStyle.Render("✓ M5 authentication successful"),
		field("Status", strconv.Itoa(snap.M5AuthStatus)),
		field("User", snap.M5User),
		field("Token", MaskToken(snap.M5Token)),
		"",
		labelStyle.Render("Raw response"),
		Truncate(raw, rawPreviewWidth),
	}, "\n")
}
