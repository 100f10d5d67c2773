package steps

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/geotab"
	"github.com/kingrea/fleetnote/internal/session"
)

// DeviceStep looks up the Geotab device matching the asset's name prefix.
type DeviceStep struct {
	BaseStep
	device geotab.Device
}

type deviceLocatedMsg struct {
	device geotab.Device
	err    error
}

func NewDevice() *DeviceStep {
	return &DeviceStep{BaseStep: NewBaseStep("Locate device", session.StateDeviceLocated)}
}

func (s *DeviceStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	return s.locate()
}

func (s *DeviceStep) locate() tea.Cmd {
	sess := s.Session()
	return s.Remote("Searching Geotab devices...", func(ctx context.Context) tea.Msg {
		device, err := sess.LocateDevice(ctx)
		return deviceLocatedMsg{device: device, err: err}
	})
}

func (s *DeviceStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case deviceLocatedMsg:
		s.Done(msg.err)
		if msg.err != nil {
			s.SetStatusMsg("No device to write to. Press r to search again.")
			return s, nil
		}
		s.device = msg.device
		s.SetComplete(true)
		s.SetStatusMsg(fmt.Sprintf("Found %s", msg.device.Name))
		return s, nil

	case tea.KeyMsg:
		if s.Busy() {
			return s, nil
		}
		switch msg.String() {
		case "esc":
			return s, s.Cancel()
		case "r":
			return s, s.locate()
		case "enter":
			if s.IsComplete() {
				return s, s.Complete()
			}
		}
	}
	return s, s.UpdateSpinner(msg)
}

func (s *DeviceStep) View() string {
	var lines []string
	if sess := s.Session(); sess != nil {
		lines = append(lines, field("Search", sess.Snapshot().DevicePrefix))
	}
	if s.IsComplete() {
		existing := s.device.Comment
		if strings.TrimSpace(existing) == "" {
			existing = warnStyle.Render("(empty)")
		}
		lines = append(lines,
			field("Device", fmt.Sprintf("%s (%s)", s.device.Name, s.device.ID)),
			"",
			labelStyle.Render("Current comment"),
			existing,
		)
	}
	hint := "r → retry    Esc → back"
	if s.IsComplete() {
		hint = "Enter → continue    r → search again    Esc → back"
	}
	return s.Frame("⬡ GEOTAB DEVICE", strings.Join(lines, "\n"), hint)
}
