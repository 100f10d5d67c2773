package steps

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// credentialForm is a username/password pair. The password is masked and
// never prefilled.
type credentialForm struct {
	labels []string
	inputs []textinput.Model
	focus  int
}

func newCredentialForm(userLabel, prefill string) credentialForm {
	user := textinput.New()
	user.Prompt = "> "
	user.Placeholder = userLabel
	user.CharLimit = 128
	user.SetValue(prefill)

	pass := textinput.New()
	pass.Prompt = "> "
	pass.Placeholder = "Password"
	pass.CharLimit = 256
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	form := credentialForm{
		labels: []string{userLabel, "Password"},
		inputs: []textinput.Model{user, pass},
	}
	if strings.TrimSpace(prefill) != "" {
		form.focus = 1
	}
	return form
}

func (f *credentialForm) applyFocus() tea.Cmd {
	var cmd tea.Cmd
	for i := range f.inputs {
		if i == f.focus {
			cmd = f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
	return cmd
}

func (f *credentialForm) next() tea.Cmd {
	f.focus = (f.focus + 1) % len(f.inputs)
	return f.applyFocus()
}

func (f *credentialForm) prev() tea.Cmd {
	f.focus = (f.focus + len(f.inputs) - 1) % len(f.inputs)
	return f.applyFocus()
}

func (f *credentialForm) onLast() bool {
	return f.focus == len(f.inputs)-1
}

func (f *credentialForm) values() (string, string) {
	return f.inputs[0].Value(), f.inputs[1].Value()
}

func (f *credentialForm) clearPassword() {
	f.inputs[1].SetValue("")
}

func (f *credentialForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *credentialForm) View() string {
	var b strings.Builder
	for i, input := range f.inputs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(labelStyle.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(input.View())
	}
	return b.String()
}

// newEditor returns a textarea holding value. Comments have no length
// limit, so the textarea's own limits are lifted before the value is set.
func newEditor(value string) textarea.Model {
	editor := textarea.New()
	editor.Prompt = ""
	editor.ShowLineNumbers = false
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.SetWidth(72)
	editor.SetHeight(8)
	editor.SetValue(value)
	return editor
}

func resizeEditor(editor *textarea.Model, width int) {
	if width <= 0 {
		return
	}
	w := width - 8
	if w < 30 {
		w = 30
	}
	editor.SetWidth(w)
}
