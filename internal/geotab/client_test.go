package geotab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/fleetnote/internal/fault"
	"github.com/kingrea/fleetnote/internal/transport"
)

type recordedCall struct {
	Method  string
	Params  map[string]json.RawMessage
	ID      int64
	JSONRPC string
}

type fakeServer struct {
	mu    sync.Mutex
	calls []recordedCall
	reply func(call recordedCall) (int, string)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method  string                     `json:"method"`
		Params  map[string]json.RawMessage `json:"params"`
		ID      int64                      `json:"id"`
		JSONRPC string                     `json:"jsonrpc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	call := recordedCall{Method: req.Method, Params: req.Params, ID: req.ID, JSONRPC: req.JSONRPC}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	status, body := f.reply(call)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newFake(t *testing.T, reply func(call recordedCall) (int, string)) (*fakeServer, *Client) {
	t.Helper()
	fake := &fakeServer{reply: reply}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, New(srv.URL+"/apiv1/", "city_of_saint_paul", transport.New("geotab", 5*time.Second, nil))
}

func TestAuthenticateSendsEnvelopeAndParsesCredentials(t *testing.T) {
	fake, c := newFake(t, func(call recordedCall) (int, string) {
		return 200, `{"result":{"credentials":{"database":"city_of_saint_paul","sessionId":"sess-1","userName":"ops@example.test"},"path":"ThisServer"},"jsonrpc":"2.0"}`
	})
	creds, err := c.Authenticate(context.Background(), " ops@example.test ", " pw ")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if creds.SessionID != "sess-1" || creds.UserName != "ops@example.test" || creds.Server != "" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	call := fake.calls[0]
	if call.Method != "Authenticate" || call.JSONRPC != "2.0" {
		t.Fatalf("unexpected envelope %+v", call)
	}
	var params authParams
	raw, _ := json.Marshal(call.Params)
	_ = json.Unmarshal(raw, &params)
	if params.UserName != "ops@example.test" || params.Password != "pw" || params.Database != "city_of_saint_paul" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestAuthenticateRecordsRedirectServer(t *testing.T) {
	_, c := newFake(t, func(call recordedCall) (int, string) {
		return 200, `{"result":{"credentials":{"database":"db","sessionId":"s","userName":"u"},"path":"my42.geotab.com"}}`
	})
	creds, err := c.Authenticate(context.Background(), "u", "p")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if creds.Server != "my42.geotab.com" {
		t.Fatalf("Server = %q", creds.Server)
	}
	if got := c.endpointFor(creds); got != "https://my42.geotab.com/apiv1/" {
		t.Fatalf("endpointFor = %q", got)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   fault.Kind
	}{
		{"http error", 500, `oops`, fault.KindRemote},
		{"rpc error", 200, `{"error":{"name":"InvalidUserException","message":"Incorrect login credentials"}}`, fault.KindRemote},
		{"missing result", 200, `{"jsonrpc":"2.0"}`, fault.KindShape},
		{"missing credentials", 200, `{"result":{"path":"ThisServer"}}`, fault.KindShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, c := newFake(t, func(call recordedCall) (int, string) { return tc.status, tc.body })
			_, err := c.Authenticate(context.Background(), "u", "p")
			if got := fault.Classify(err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", err, got, tc.want)
			}
		})
	}
}

func TestRPCErrorMessageIsSurfaced(t *testing.T) {
	_, c := newFake(t, func(call recordedCall) (int, string) {
		return 200, `{"error":{"name":"InvalidUserException","message":"Incorrect login credentials"}}`
	})
	_, err := c.Authenticate(context.Background(), "u", "p")
	if !strings.Contains(err.Error(), "InvalidUserException: Incorrect login credentials") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDeviceRoundTrip(t *testing.T) {
	stored := map[string]Device{"b1": {ID: "b1", Name: "2140 Plow", Comment: "old"}}
	var mu sync.Mutex
	fake, c := newFake(t, func(call recordedCall) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		switch call.Method {
		case "Get":
			var search map[string]string
			_ = json.Unmarshal(call.Params["search"], &search)
			var out []Device
			for _, d := range stored {
				if search["id"] == d.ID || (search["name"] != "" && strings.HasPrefix(d.Name, strings.TrimSuffix(search["name"], "%"))) {
					out = append(out, d)
				}
			}
			data, _ := json.Marshal(map[string]any{"result": out})
			return 200, string(data)
		case "Set":
			var entity Device
			_ = json.Unmarshal(call.Params["entity"], &entity)
			d := stored[entity.ID]
			d.Comment = entity.Comment
			stored[entity.ID] = d
			return 200, `{"result":null}`
		}
		return 400, `{}`
	})
	creds := Credentials{Database: "city_of_saint_paul", SessionID: "s", UserName: "u"}

	devices, err := c.FindDevicesByName(context.Background(), creds, "2140%")
	if err != nil {
		t.Fatalf("FindDevicesByName: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "b1" {
		t.Fatalf("unexpected devices %+v", devices)
	}
	if err := c.SetDeviceComment(context.Background(), creds, "b1", "old\n\nnew"); err != nil {
		t.Fatalf("SetDeviceComment: %v", err)
	}
	got, err := c.GetDevice(context.Background(), creds, "b1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if got.Comment != "old\n\nnew" {
		t.Fatalf("read back %q", got.Comment)
	}

	var creds0 Credentials
	if err := json.Unmarshal(fake.calls[0].Params["credentials"], &creds0); err != nil {
		t.Fatalf("credentials param: %v", err)
	}
	if creds0.SessionID != "s" || creds0.Database != "city_of_saint_paul" {
		t.Fatalf("unexpected credentials param %+v", creds0)
	}
	if fake.calls[0].ID == fake.calls[1].ID {
		t.Fatalf("expected distinct request ids")
	}
}

func TestFindDevicesByNameReturnsEmptyList(t *testing.T) {
	_, c := newFake(t, func(call recordedCall) (int, string) { return 200, `{"result":[]}` })
	devices, err := c.FindDevicesByName(context.Background(), Credentials{SessionID: "s", UserName: "u"}, "9999%")
	if err != nil {
		t.Fatalf("FindDevicesByName: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected no devices, got %+v", devices)
	}
	if _, err := c.GetDevice(context.Background(), Credentials{SessionID: "s", UserName: "u"}, "zz"); fault.Classify(err) != fault.KindShape {
		t.Fatalf("expected shape fault for missing device, got %v", err)
	}
}
