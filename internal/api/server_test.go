package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/db"
	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/ir/irtest"
	"github.com/dokzlo13/irlightd/internal/ledger"
	"github.com/dokzlo13/irlightd/internal/state"
)

type nopTrigger struct{}

func (nopTrigger) Trigger()            {}
func (nopTrigger) TriggerLight(string) {}
func (nopTrigger) Forget()             {}

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(e eventbus.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return 1
}

type staticScenes []string

func (s staticScenes) HasScene(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}
	return false
}

func (s staticScenes) Scenes() []string { return s }

type testServer struct {
	*httptest.Server
	ledger *ledger.Ledger
	bus    *recordingBus
}

func newTestServer(t *testing.T, hueUser string) testServer {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	lights, err := driver.NewRegistry([]config.LightConfig{
		{ID: "bedroom", Name: "Bedroom", Kind: "stepwise", Channel: 1},
		{ID: "desk", Kind: "dualchannel"},
		{ID: "kitchen", Kind: "boxlight"},
	}, irtest.New(), nil)
	require.NoError(t, err)

	store := state.NewTypedStore[driver.Desired](state.NewStore(database.DB), "light")
	bus := &recordingBus{}
	ctrl := control.New(lights, store, nopTrigger{}, nil)
	lg := ledger.New(database.DB)

	s := NewServer(config.APIConfig{HueUser: hueUser}, ctrl, staticScenes{"evening"}, bus, lg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return testServer{Server: srv, ledger: lg, bus: bus}
}

func (ts testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestAPI_Lights(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodPut, "/lights/kitchen/state", `{"on":true,"brightness":0.6,"mireds":250}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st control.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, driver.Desired{On: true, Brightness: 0.6, Mireds: 250}, st.Desired)
	assert.Equal(t, int64(1), st.Version)

	resp, body = ts.do(t, http.MethodPut, "/lights/kitchen/state", `{"brightness":0.2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, driver.Desired{On: true, Brightness: 0.2, Mireds: 250}, st.Desired)

	resp, body = ts.do(t, http.MethodGet, "/lights", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []control.Status
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 3)
	assert.Equal(t, "Bedroom", list[0].Name)
	assert.Equal(t, 154.0, list[0].Traits.MinMireds)

	resp, _ = ts.do(t, http.MethodGet, "/lights/garage", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/lights/kitchen/state", `{"on":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/lights/kitchen/reapply", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/lights/resync", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/lights/resync", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_LightsOff(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodPost, "/lights/off?match=d*", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"off":["desk"]}`, string(body))

	resp, body = ts.do(t, http.MethodPost, "/lights/off", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"off":["bedroom","desk","kitchen"]}`, string(body))
}

func TestAPI_Scenes(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, http.MethodGet, "/scenes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["evening"]`, string(body))

	resp, _ = ts.do(t, http.MethodPost, "/scenes/evening", `{"level":0.3}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/scenes/party", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.bus.mu.Lock()
	defer ts.bus.mu.Unlock()
	require.Len(t, ts.bus.events, 1)
	assert.Equal(t, eventbus.EventTypeScene, ts.bus.events[0].Type)
	assert.Equal(t, "evening", ts.bus.events[0].Data["name"])
	assert.Equal(t, map[string]interface{}{"level": 0.3}, ts.bus.events[0].Data["args"])
}

func TestAPI_Ledger(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	require.NoError(t, ts.ledger.RecordApply(ctx, ledger.NewBatch("desk"), nil))
	require.NoError(t, ts.ledger.RecordApply(ctx, ledger.NewBatch("kitchen"), nil))

	resp, body := ts.do(t, http.MethodGet, "/ledger?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "kitchen", entries[0].LightID)

	resp, body = ts.do(t, http.MethodGet, "/ledger?light=desk", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "desk", entries[0].LightID)

	resp, _ = ts.do(t, http.MethodGet, "/ledger?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Hue(t *testing.T) {
	ts := newTestServer(t, "alice")

	resp, body := ts.do(t, http.MethodPut, "/api/alice/lights/bedroom/state", `{"on":true,"bri":127,"ct":300,"hue":1000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[
		{"success":{"/lights/bedroom/state/on":true}},
		{"success":{"/lights/bedroom/state/bri":127}},
		{"success":{"/lights/bedroom/state/ct":300}}
	]`, string(body))

	resp, body = ts.do(t, http.MethodGet, "/lights/bedroom", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st control.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Desired.On)
	assert.InDelta(t, 0.5, st.Desired.Brightness, 1e-9)
	assert.Equal(t, 300.0, st.Desired.Mireds)

	resp, _ = ts.do(t, http.MethodPut, "/api/alice/lights/bedroom/state", `{"on":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/alice/lights/bedroom", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var light struct {
		Name  string `json:"name"`
		State struct {
			On  bool  `json:"on"`
			Bri uint8 `json:"bri"`
			Ct  int   `json:"ct"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(body, &light))
	assert.Equal(t, "Bedroom", light.Name)
	assert.False(t, light.State.On)
	assert.Equal(t, uint8(127), light.State.Bri)
	assert.Equal(t, 300, light.State.Ct)

	resp, body = ts.do(t, http.MethodGet, "/api/alice/lights", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 3)

	resp, _ = ts.do(t, http.MethodGet, "/api/mallory/lights", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/api/alice/lights/garage/state", `{"on":true}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/api/alice/lights/desk/state", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBriConversion(t *testing.T) {
	tests := []struct {
		brightness float64
		bri        uint8
	}{
		{0, 1},
		{0.5, 127},
		{1, 254},
		{2, 254},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bri, briFromBrightness(tt.brightness))
	}
	assert.Equal(t, 1.0, brightnessFromBri(255))
	assert.InDelta(t, 0.5, brightnessFromBri(127), 0.01)
}
