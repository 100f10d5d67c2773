package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/fleetnote/internal/clock"
	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/logbook"
	"github.com/kingrea/fleetnote/internal/session"
)

// backend fakes M5, Geotab and Routeware behind one test server.
type backend struct {
	mu      sync.Mutex
	devices []map[string]string
	jobs    int
	sets    int
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/m5/api/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":["tok-0123456789"]}`))
	})
	mux.HandleFunc("/m5/api/v1/assets/2140", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-0123456789" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"assetId":"2140","comments":"Check brakes"}]}`))
	})
	mux.HandleFunc("/geotab/apiv1/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Entity map[string]string `json:"entity"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		switch req.Method {
		case "Authenticate":
			_, _ = w.Write([]byte(`{"result":{"credentials":{"database":"city_of_saint_paul","sessionId":"s1","userName":"ops"},"path":"ThisServer"}}`))
		case "Get":
			body, _ := json.Marshal(map[string]any{"result": b.devices})
			_, _ = w.Write(body)
		case "Set":
			b.sets++
			b.devices[0]["comment"] = req.Params.Entity["comment"]
			_, _ = w.Write([]byte(`{"result":null}`))
		}
	})
	mux.HandleFunc("/rw/api/job", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.jobs++
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	return mux
}

func (b *backend) counts() (sets, jobs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sets, b.jobs
}

func newTestApp(t *testing.T, b *backend) (*App, *logbook.Logbook) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvM5BaseURL, srv.URL+"/m5")
	t.Setenv(config.EnvGeotabBaseURL, srv.URL+"/geotab/apiv1/")
	t.Setenv(config.EnvRoutewareBaseURL, srv.URL+"/rw")
	t.Setenv(config.EnvM5Username, "")
	t.Setenv(config.EnvGeotabUsername, "ops")
	t.Setenv(config.EnvRoutewareAPIKey, "rw-key")

	rootDir := t.TempDir()
	if err := config.InitDir(rootDir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	cfg, err := config.NewConfig(rootDir, "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	lb, err := logbook.New(filepath.Join(rootDir, "journey.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	fixed := clock.Fake(time.Date(2024, time.February, 29, 16, 45, 30, 0, time.UTC))
	app, err := NewApp(cfg, "", lb, nil, WithClock(fixed))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 50})
	return app, lb
}

// runCommands executes cmd and feeds the resulting messages back into the
// app. Cursor blinks and spinner ticks are timers and are dropped.
func runCommands(t *testing.T, app *App, cmd tea.Cmd) *App {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg, ok := runWithDeadline(next, 250*time.Millisecond)
		if !ok || msg == nil {
			continue
		}
		switch msg := msg.(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case spinner.TickMsg, cursor.BlinkMsg:
			continue
		}
		model, follow := app.Update(msg)
		var isApp bool
		app, isApp = model.(*App)
		if !isApp {
			t.Fatalf("unexpected model type: %T", model)
		}
		queue = append(queue, follow)
	}
	return app
}

func runWithDeadline(cmd tea.Cmd, d time.Duration) (tea.Msg, bool) {
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg, true
	case <-time.After(d):
		return nil, false
	}
}

func press(t *testing.T, app *App, msg tea.KeyMsg) *App {
	t.Helper()
	model, cmd := app.Update(msg)
	return runCommands(t, model.(*App), cmd)
}

func keyOf(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func selectEntry(t *testing.T, app *App, title string) {
	t.Helper()
	for i, item := range app.mainMenu.Items() {
		if mi, ok := item.(menuItem); ok && strings.Contains(mi.title, title) {
			app.mainMenu.Select(i)
			return
		}
	}
	t.Fatalf("menu has no entry %q", title)
}

func TestMenuListsStepsAndActions(t *testing.T) {
	app, _ := newTestApp(t, &backend{})
	items := app.mainMenu.Items()
	if len(items) != len(app.entries)+2 {
		t.Fatalf("expected %d items, got %d", len(app.entries)+2, len(items))
	}
	first := items[0].(menuItem)
	if !strings.HasPrefix(first.title, "• 1. Sign in to M5") {
		t.Fatalf("first step should be ready, got %q", first.title)
	}
	geotab := items[3].(menuItem)
	if !strings.Contains(geotab.desc, "needs Comment staged") {
		t.Fatalf("locked step should name its requirement, got %q", geotab.desc)
	}
	if !strings.Contains(app.View(), "⬡ FLEETNOTE") {
		t.Fatalf("view missing header")
	}
}

func TestLockedStepIsBlockedWithWarning(t *testing.T) {
	app, lb := newTestApp(t, &backend{})
	selectEntry(t, app, "Locate device")
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.state != stateMainMenu || app.step != nil {
		t.Fatalf("locked step must not open")
	}
	if !strings.Contains(app.statusMsg, "needs Geotab authenticated") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	lines, _ := lb.Tail(20)
	if !strings.Contains(strings.Join(lines, "\n"), "Blocked · Locate device") {
		t.Fatalf("expected blocked entry in logbook: %v", lines)
	}
}

func TestFullWorkflowThroughTheApp(t *testing.T) {
	b := &backend{devices: []map[string]string{{"id": "b9", "name": "2140 Rear Loader", "comment": "Serviced 01/02"}}}
	app, lb := newTestApp(t, b)

	// 1. M5 sign-in
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.state != stateStep {
		t.Fatalf("expected step screen")
	}
	app = press(t, app, runes("jdoe"))
	app = press(t, app, keyOf(tea.KeyTab))
	app = press(t, app, runes("pw"))
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.state != stateMainMenu || app.Session().State() != session.StateM5Authenticated {
		t.Fatalf("sign-in did not complete: state %s, status %q", app.Session().State(), app.statusMsg)
	}
	if app.mainMenu.Index() != 1 {
		t.Fatalf("cursor should move to the next step, at %d", app.mainMenu.Index())
	}

	// 2. asset fetch
	app = press(t, app, keyOf(tea.KeyEnter))
	if !strings.Contains(app.View(), "Check brakes") {
		t.Fatalf("asset view should show the comment:\n%s", app.View())
	}
	app = press(t, app, keyOf(tea.KeyEnter))

	// 3. staging
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, runes(", pads worn"))
	app = press(t, app, keyOf(tea.KeyCtrlS))
	if got := app.Session().Snapshot().EditedComment; got != "Check brakes, pads worn" {
		t.Fatalf("staged %q", got)
	}

	// 4. Geotab sign-in, username prefilled from the environment
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, runes("secret"))
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.Session().State() != session.StateGeotabAuthenticated {
		t.Fatalf("geotab sign-in failed: %q", app.statusMsg)
	}

	// 5. device lookup
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.Session().State() != session.StateDeviceLocated {
		t.Fatalf("device not located: %q", app.statusMsg)
	}

	// 6. prepare, then write
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyEnter))
	want := "Serviced 01/02\n\n[02/29/24: M5 - jdoe] Check brakes, pads worn"
	if got := app.Session().Snapshot().DraftComment; got != want {
		t.Fatalf("draft = %q, want %q", got, want)
	}
	app = press(t, app, keyOf(tea.KeyCtrlS))
	snap := app.Session().Snapshot()
	if !snap.CommentCommitted || !snap.Verified || snap.VerifiedComment != want {
		t.Fatalf("commit not verified: %+v", snap)
	}
	app = press(t, app, keyOf(tea.KeyEnter))

	// 7. Routeware job with the prefilled API key
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyCtrlS))
	snap = app.Session().Snapshot()
	if !snap.JobSubmitted || snap.Job.WorkOrderNumber != "M5-20240229164530" {
		t.Fatalf("job not submitted: %+v (status %q)", snap.Job, app.statusMsg)
	}
	if snap.Job.RouteNote != "Check brakes, pads worn" {
		t.Fatalf("note should default to staged comment, got %q", snap.Job.RouteNote)
	}
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.state != stateMainMenu {
		t.Fatalf("expected menu after the last step")
	}
	if sets, jobs := b.counts(); sets != 1 || jobs != 1 {
		t.Fatalf("expected one write and one job, got %d and %d", sets, jobs)
	}

	lines, _ := lb.Tail(100)
	log := strings.Join(lines, "\n")
	if strings.Contains(log, "tok-0123456789") || strings.Contains(log, "secret") {
		t.Fatalf("secrets leaked into the logbook:\n%s", log)
	}
	if !strings.Contains(log, "job M5-20240229164530 created") {
		t.Fatalf("expected job entry in logbook:\n%s", log)
	}
}

func TestEndSessionClearsState(t *testing.T) {
	app, _ := newTestApp(t, &backend{})
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, runes("jdoe"))
	app = press(t, app, keyOf(tea.KeyTab))
	app = press(t, app, runes("pw"))
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.Session().State() != session.StateM5Authenticated {
		t.Fatalf("sign-in failed: %q", app.statusMsg)
	}
	selectEntry(t, app, actionEndSession)
	app = press(t, app, keyOf(tea.KeyEnter))
	if app.Session().State() != session.StateUnauthenticatedM5 || app.Session().Snapshot().M5Token != "" {
		t.Fatalf("session should be cleared")
	}
	if app.mainMenu.Index() != 0 {
		t.Fatalf("cursor should return to the first step")
	}
}

func TestEscReturnsToMenu(t *testing.T) {
	app, _ := newTestApp(t, &backend{})
	app = press(t, app, keyOf(tea.KeyEnter))
	app = press(t, app, keyOf(tea.KeyEsc))
	if app.state != stateMainMenu {
		t.Fatalf("esc should return to the menu")
	}
	if !strings.Contains(app.statusMsg, "cancelled") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}
