package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kingrea/fleetnote/internal/clock"
	"github.com/kingrea/fleetnote/internal/config"
	"github.com/kingrea/fleetnote/internal/geotab"
	"github.com/kingrea/fleetnote/internal/m5"
	"github.com/kingrea/fleetnote/internal/routeware"
)

type fakeM5 struct {
	token    string
	asset    m5.Asset
	authErr  error
	assetErr error
	tokens   []string
}

func (f *fakeM5) Authenticate(ctx context.Context, username, password string) (m5.Token, error) {
	if f.authErr != nil {
		return m5.Token{}, f.authErr
	}
	return m5.Token{Value: f.token, StatusCode: 200, Raw: []byte(`{"items":["` + f.token + `"]}`)}, nil
}

func (f *fakeM5) GetAsset(ctx context.Context, token, id string) (m5.Asset, error) {
	f.tokens = append(f.tokens, token)
	if f.assetErr != nil {
		return m5.Asset{}, f.assetErr
	}
	return f.asset, nil
}

type fakeGeotab struct {
	mu       sync.Mutex
	devices  []geotab.Device
	findErr  error
	readErr  error
	setErr   error
	sets     []string
	patterns []string
}

func (f *fakeGeotab) Authenticate(ctx context.Context, userName, password string) (geotab.Credentials, error) {
	return geotab.Credentials{Database: "city_of_saint_paul", SessionID: "sess-1", UserName: userName}, nil
}

func (f *fakeGeotab) FindDevicesByName(ctx context.Context, creds geotab.Credentials, pattern string) ([]geotab.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	return f.devices, f.findErr
}

func (f *fakeGeotab) GetDevice(ctx context.Context, creds geotab.Credentials, id string) (geotab.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return geotab.Device{}, f.readErr
	}
	for _, d := range f.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return geotab.Device{}, errors.New("not found")
}

func (f *fakeGeotab) SetDeviceComment(ctx context.Context, creds geotab.Credentials, id, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, comment)
	for i := range f.devices {
		if f.devices[i].ID == id {
			f.devices[i].Comment = comment
		}
	}
	return nil
}

type fakeRouteware struct {
	err  error
	keys []string
	jobs []routeware.Job
}

func (f *fakeRouteware) CreateJob(ctx context.Context, apiKey string, job routeware.Job) (routeware.Result, error) {
	f.keys = append(f.keys, apiKey)
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return routeware.Result{}, f.err
	}
	return routeware.Result{StatusCode: 201, Body: `{"id":77}`}, nil
}

type harness struct {
	session   *Session
	clock     *clock.FakeClock
	m5        *fakeM5
	geotab    *fakeGeotab
	routeware *fakeRouteware
}

var testMapping = config.AssetMapping{
	M5AssetID:          "2140",
	GeotabDevicePrefix: "2140%",
	VehicleTypeID:      9,
	PickupTypeID:       1,
}

func newHarness() *harness {
	h := &harness{
		clock: clock.Fake(time.Date(2024, time.March, 5, 14, 30, 15, 0, time.UTC)),
		m5: &fakeM5{
			token: "tok-123",
			asset: m5.Asset{ID: "2140", Items: []map[string]any{{"comments": "Hydraulic leak"}}},
		},
		geotab: &fakeGeotab{
			devices: []geotab.Device{{ID: "b12", Name: "2140 Packer", Comment: "Prior note"}},
		},
		routeware: &fakeRouteware{},
	}
	h.session = New(Options{
		M5:        h.m5,
		Geotab:    h.geotab,
		Routeware: h.routeware,
		Mapping:   testMapping,
		Clock:     h.clock,
	})
	return h
}

// through runs every step up to target with default inputs.
func (h *harness) through(target State) error {
	ctx := context.Background()
	steps := []struct {
		state State
		run   func() error
	}{
		{StateM5Authenticated, func() error { return h.session.AuthenticateM5(ctx, " jdoe ", "pw") }},
		{StateAssetFetched, func() error { _, err := h.session.FetchAsset(ctx); return err }},
		{StateCommentStaged, func() error { return h.session.StageComment("Hydraulic leak, fixed hose") }},
		{StateGeotabAuthenticated, func() error { return h.session.AuthenticateGeotab(ctx, "ops@example.test", "pw") }},
		{StateDeviceLocated, func() error { _, err := h.session.LocateDevice(ctx); return err }},
		{StateCommentPrepared, func() error { _, err := h.session.PrepareComment(true); return err }},
	}
	for _, step := range steps {
		if step.state > target {
			break
		}
		if err := step.run(); err != nil {
			return err
		}
	}
	return nil
}
