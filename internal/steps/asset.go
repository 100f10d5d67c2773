package steps

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/m5"
	"github.com/kingrea/fleetnote/internal/session"
)

const rawPreviewWidth = 320

// AssetStep fetches the mapped M5 asset as soon as it opens.
type AssetStep struct {
	BaseStep
	asset m5.Asset
}

type assetFetchedMsg struct {
	asset m5.Asset
	err   error
}

func NewAsset() *AssetStep {
	return &AssetStep{BaseStep: NewBaseStep("Fetch asset", session.StateAssetFetched)}
}

func (s *AssetStep) Init(ctx *Context) tea.Cmd {
	s.SetContext(ctx)
	return s.fetch()
}

func (s *AssetStep) fetch() tea.Cmd {
	sess := s.Session()
	return s.Remote("Fetching asset from M5...", func(ctx context.Context) tea.Msg {
		asset, err := sess.FetchAsset(ctx)
		return assetFetchedMsg{asset: asset, err: err}
	})
}

func (s *AssetStep) Update(msg tea.Msg) (Step, tea.Cmd) {
	switch msg := msg.(type) {
	case assetFetchedMsg:
		s.Done(msg.err)
		if msg.err != nil {
			s.SetStatusMsg("Press r to retry")
			return s, nil
		}
		s.asset = msg.asset
		s.SetComplete(true)
		s.SetStatusMsg(fmt.Sprintf("Asset %s loaded", msg.asset.ID))
		return s, nil

	case tea.KeyMsg:
		if s.Busy() {
			return s, nil
		}
		switch msg.String() {
		case "esc":
			return s, s.Cancel()
		case "r":
			return s, s.fetch()
		case "enter":
			if s.IsComplete() {
				return s, s.Complete()
			}
		}
	}
	return s, s.UpdateSpinner(msg)
}

func (s *AssetStep) View() string {
	var lines []string
	if sess := s.Session(); sess != nil {
		snap := sess.Snapshot()
		lines = append(lines, field("Asset", snap.AssetID), field("Token", MaskToken(snap.M5Token)))
		if s.IsComplete() {
			status := okStyle.Render("comment found")
			if !snap.CommentFound {
				status = warnStyle.Render("no comment on record")
			}
			lines = append(lines,
				field("Status", fmt.Sprint(s.asset.StatusCode)),
				field("Comment", status),
				"",
				snap.OriginalComment,
				"",
				labelStyle.Render("Raw record"),
				Truncate(strings.TrimSpace(string(s.asset.Raw)), rawPreviewWidth),
			)
		}
	}
	hint := "r → retry    Esc → back"
	if s.IsComplete() {
		hint = "Enter → continue    r → fetch again    Esc → back"
	}
	return s.Frame("⬡ M5 ASSET", strings.Join(lines, "\n"), hint)
}
