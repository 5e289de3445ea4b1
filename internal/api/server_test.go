package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/automation"
	"github.com/nerrad567/gray-logic-tasmota/internal/bridges/tasmota"
	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
	"github.com/nerrad567/gray-logic-tasmota/internal/device"
	"github.com/nerrad567/gray-logic-tasmota/internal/discovery"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tasmota/internal/infrastructure/logging"
)

// fakeTransport answers from canned JSON replies keyed by command text;
// anything else times out.
type fakeTransport struct {
	mu      sync.Mutex
	replies map[string]string
	sent    []string
	closed  bool
}

func newFakeTransport(replies map[string]string) *fakeTransport {
	return &fakeTransport{replies: replies}
}

func (f *fakeTransport) Send(_ context.Context, cmd command.Command) (correlator.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd.String())
	body, ok := f.replies[cmd.String()]
	if !ok {
		return correlator.Reply{}, correlator.ErrTimeout
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return correlator.Reply{}, err
	}
	return correlator.Reply{Topics: []string{command.SuffixResult}, Body: obj}, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeManager serves a fixed set of device handles.
type fakeManager struct {
	devices map[string]*device.Device
	topics  map[string]string
}

func (m *fakeManager) Summaries() []tasmota.Summary {
	out := make([]tasmota.Summary, 0, len(m.devices))
	for id := range m.devices {
		s, _ := m.Summary(id) //nolint:errcheck // id comes from the map
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *fakeManager) Summary(id string) (tasmota.Summary, error) {
	dev, err := m.Device(id)
	if err != nil {
		return tasmota.Summary{}, err
	}
	return tasmota.Summary{
		ID:           id,
		Name:         id,
		Transport:    device.TransportMQTT,
		Address:      id,
		Capabilities: dev.Capabilities(),
		State:        dev.State(),
	}, nil
}

func (m *fakeManager) Device(id string) (*device.Device, error) {
	dev, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tasmota.ErrNotManaged, id)
	}
	return dev, nil
}

func (m *fakeManager) ManagesTopic(topic string) (string, bool) {
	id, ok := m.topics[topic]
	return id, ok
}

func (m *fakeManager) Add(_ context.Context, def device.Definition) (tasmota.Summary, error) {
	if def.ID == "" {
		def.ID = device.GenerateSlug(def.Name)
	}
	if err := device.ValidateDefinition(&def); err != nil {
		return tasmota.Summary{}, err
	}
	if _, ok := m.devices[def.ID]; ok {
		return tasmota.Summary{}, fmt.Errorf("%w: %s", device.ErrDeviceExists, def.ID)
	}
	dev, err := device.New(def.ID, newFakeTransport(nil), device.Basic())
	if err != nil {
		return tasmota.Summary{}, err
	}
	m.devices[def.ID] = dev
	return m.Summary(def.ID)
}

func (m *fakeManager) Remove(_ context.Context, id string) error {
	dev, ok := m.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	delete(m.devices, id)
	return dev.Close()
}

// fakeRepo keeps executions in memory.
type fakeRepo struct {
	mu    sync.Mutex
	execs []automation.Execution
}

func (r *fakeRepo) CreateExecution(_ context.Context, exec *automation.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, *exec)
	return nil
}

func (r *fakeRepo) UpdateExecution(_ context.Context, exec *automation.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.execs {
		if r.execs[i].ID == exec.ID {
			r.execs[i] = *exec
			return nil
		}
	}
	return automation.ErrExecutionNotFound
}

func (r *fakeRepo) GetExecution(_ context.Context, id string) (*automation.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.execs {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, automation.ErrExecutionNotFound
}

func (r *fakeRepo) ListExecutions(_ context.Context, deviceID string, limit int) ([]automation.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []automation.Execution
	for _, e := range r.execs {
		if e.DeviceID == deviceID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeDiscoverer struct {
	results []discovery.Result
	err     error
	timeout time.Duration
}

func (d *fakeDiscoverer) Discover(_ context.Context, timeout time.Duration) ([]discovery.Result, error) {
	d.timeout = timeout
	return d.results, d.err
}

type fakeHealth struct{ err error }

func (h fakeHealth) HealthCheck(context.Context) error { return h.err }

// fixture is a server with one plug and one dimmable bulb.
type fixture struct {
	server *Server
	http   *httptest.Server
	plug   *fakeTransport
	bulb   *fakeTransport
	repo   *fakeRepo
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Output: "stderr"}, "test")
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	plug := newFakeTransport(map[string]string{
		"Power1 ON":     `{"POWER":"ON"}`,
		"Power1 OFF":    `{"POWER":"OFF"}`,
		"Power1 TOGGLE": `{"POWER":"OFF"}`,
		"Status 10":     `{"StatusSNS":{"ENERGY":{"Power":42,"Voltage":230,"Total":3.5}}}`,
	})
	bulb := newFakeTransport(map[string]string{
		"Power1 ON": `{"POWER":"ON"}`,
		"Dimmer 40": `{"POWER":"ON","Dimmer":40}`,
	})

	plugDev, err := device.New("plug", plug, device.Capabilities{PowerChannels: 1, Energy: true})
	if err != nil {
		t.Fatalf("device.New(plug) error = %v", err)
	}
	bulbDev, err := device.New("bulb", bulb, device.Capabilities{PowerChannels: 1, Dimmer: true})
	if err != nil {
		t.Fatalf("device.New(bulb) error = %v", err)
	}

	repo := &fakeRepo{}
	deps := Deps{
		Logger: testLogger(),
		Devices: &fakeManager{
			devices: map[string]*device.Device{"plug": plugDev, "bulb": bulbDev},
			topics:  map[string]string{"tasmota_plug": "plug"},
		},
		RoutineRepo: repo,
		Version:     "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(ts.Close)

	return &fixture{server: s, http: ts, plug: plug, bulb: bulb, repo: repo}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: decoding body: %v", method, path, err)
		}
	}
	return resp, out
}

func TestNewRequiresLoggerAndDevices(t *testing.T) {
	if _, err := New(Deps{Devices: &fakeManager{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without device manager should fail")
	}
}

func TestHealth(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{"database": fakeHealth{}}
		})
		resp, body := f.do(t, http.MethodGet, "/api/v1/health", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if body["status"] != "ok" || body["version"] != "test" {
			t.Errorf("body = %v", body)
		}
		if body["devices"] != float64(2) {
			t.Errorf("devices = %v, want 2", body["devices"])
		}
	})

	t.Run("failing check", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) {
			d.Health = map[string]HealthChecker{
				"database": fakeHealth{},
				"mqtt":     fakeHealth{err: errors.New("not connected")},
			}
		})
		resp, body := f.do(t, http.MethodGet, "/api/v1/health", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", resp.StatusCode)
		}
		checks, _ := body["checks"].(map[string]any) //nolint:errcheck // nil map fails below
		if checks["mqtt"] != "not connected" || checks["database"] != "ok" {
			t.Errorf("checks = %v", checks)
		}
	})
}

func TestDevices(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/v1/devices", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/devices/bulb", "")
	if resp.StatusCode != http.StatusOK || body["id"] != "bulb" {
		t.Errorf("get bulb: status = %d body = %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/devices/garage", "")
	if resp.StatusCode != http.StatusNotFound || body["code"] != ErrCodeNotFound {
		t.Errorf("get unknown: status = %d body = %v", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/v2/nothing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", resp.StatusCode)
	}
}

func TestSetPower(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"on", `{"state":"on"}`, http.StatusOK, ""},
		{"toggle explicit channel", `{"channel":1,"state":"toggle"}`, http.StatusOK, ""},
		{"bad state", `{"state":"dim"}`, http.StatusBadRequest, ErrCodeValidation},
		{"index out of range", `{"channel":9,"state":"on"}`, http.StatusBadRequest, ErrCodeValidation},
		{"channel the device lacks", `{"channel":2,"state":"on"}`, http.StatusUnprocessableEntity, ErrCodeUnsupported},
		{"unknown field", `{"state":"on","brightness":3}`, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			resp, body := f.do(t, http.MethodPost, "/api/v1/devices/plug/power", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantCode, body)
			}
			if tt.wantErr != "" && body["code"] != tt.wantErr {
				t.Errorf("code = %v, want %s", body["code"], tt.wantErr)
			}
		})
	}

	f := newFixture(t, nil)
	_, body := f.do(t, http.MethodPost, "/api/v1/devices/plug/power", `{"state":"on"}`)
	if body["state"] != "ON" || body["channel"] != float64(1) {
		t.Errorf("body = %v, want channel 1 ON", body)
	}
}

func TestSetDimmer(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/v1/devices/bulb/dimmer", `{"value":40}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if body["dimmer"] != float64(40) {
		t.Errorf("dimmer = %v, want 40", body["dimmer"])
	}

	// The plug has no dimmer; nothing may reach it.
	resp, body = f.do(t, http.MethodPost, "/api/v1/devices/plug/dimmer", `{"value":40}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("plug status = %d, want 422 (body %v)", resp.StatusCode, body)
	}
	if sent := f.plug.sentCommands(); len(sent) != 0 {
		t.Errorf("plug received %v", sent)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/devices/bulb/dimmer", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing value status = %d, want 400", resp.StatusCode)
	}

	// No canned reply: the correlator times out.
	resp, body = f.do(t, http.MethodPost, "/api/v1/devices/bulb/dimmer", `{"value":41}`)
	if resp.StatusCode != http.StatusGatewayTimeout || body["code"] != ErrCodeTimeout {
		t.Errorf("timeout: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestEnergyAndState(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/v1/devices/plug/energy", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("energy status = %d body = %v", resp.StatusCode, body)
	}
	if body["power"] != float64(42) {
		t.Errorf("energy = %v, want power 42", body)
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/devices/plug/state", "")
	energy, _ := body["energy"].(map[string]any) //nolint:errcheck // nil map fails below
	if energy["voltage"] != float64(230) {
		t.Errorf("state = %v, want the energy reading folded in", body)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/v1/devices/plug/energy/reset", `{"counter":"yesterday"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reset status = %d, want 400", resp.StatusCode)
	}
}

func TestRunRoutine(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"steps":[
		{"action":"power","state":"on","delay_ms":100},
		{"action":"dimmer","value":40}
	]}`
	resp, out := f.do(t, http.MethodPost, "/api/v1/devices/bulb/routine", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, out)
	}
	if out["status"] != string(automation.StatusCompleted) || out["steps_completed"] != float64(2) {
		t.Errorf("execution = %v", out)
	}
	if out["source"] != "api" {
		t.Errorf("source = %v, want api", out["source"])
	}

	want := []string{"Power1 ON", "Dimmer 40"}
	if got := f.bulb.sentCommands(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sent = %v, want %v", got, want)
	}

	resp, list := f.do(t, http.MethodGet, "/api/v1/devices/bulb/routines", "")
	if resp.StatusCode != http.StatusOK || list["count"] != float64(1) {
		t.Errorf("history: status = %d body = %v", resp.StatusCode, list)
	}

	id, _ := out["id"].(string) //nolint:errcheck // empty id fails below
	resp, got := f.do(t, http.MethodGet, "/api/v1/routines/"+id, "")
	if resp.StatusCode != http.StatusOK || got["id"] != id {
		t.Errorf("get execution: status = %d body = %v", resp.StatusCode, got)
	}
}

func TestRunRoutineFailingStep(t *testing.T) {
	f := newFixture(t, nil)

	// Dimmer 70 has no reply, so step 2 times out and step 3 never runs.
	body := `{"source":"test","steps":[
		{"action":"power","state":"on"},
		{"action":"dimmer","value":70,"timeout_ms":50},
		{"action":"dimmer","value":40}
	]}`
	resp, out := f.do(t, http.MethodPost, "/api/v1/devices/bulb/routine", body)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504 (body %v)", resp.StatusCode, out)
	}

	errBody, _ := out["error"].(map[string]any) //nolint:errcheck // nil map fails below
	if errBody["step"] != float64(2) {
		t.Errorf("error = %v, want step 2", errBody)
	}
	exec, _ := out["execution"].(map[string]any) //nolint:errcheck // nil map fails below
	if exec["status"] != string(automation.StatusFailed) || exec["steps_completed"] != float64(1) {
		t.Errorf("execution = %v", exec)
	}
	if got := f.bulb.sentCommands(); len(got) != 2 {
		t.Errorf("sent = %v, want two commands", got)
	}
}

func TestRunRoutineRejected(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		body     string
		wantCode int
	}{
		{"no steps", "bulb", `{"steps":[]}`, http.StatusBadRequest},
		{"unknown action", "bulb", `{"steps":[{"action":"explode"}]}`, http.StatusBadRequest},
		{"value out of range", "bulb", `{"steps":[{"action":"dimmer","value":140}]}`, http.StatusBadRequest},
		{"bad mode", "bulb", `{"mode":"parallel","steps":[{"action":"power","state":"on"}]}`, http.StatusBadRequest},
		{"unsupported in backlog", "plug", `{"mode":"backlog","steps":[{"action":"power","state":"on"},{"action":"dimmer","value":10}]}`, http.StatusUnprocessableEntity},
		{"unknown device", "garage", `{"steps":[{"action":"power","state":"on"}]}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			resp, body := f.do(t, http.MethodPost, "/api/v1/devices/"+tt.device+"/routine", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantCode, body)
			}
			if len(f.plug.sentCommands())+len(f.bulb.sentCommands()) != 0 {
				t.Error("a rejected routine reached a device")
			}
		})
	}
}

func TestBuildRoutineBacklog(t *testing.T) {
	r, err := buildRoutine([]StepRequest{
		{Action: "power", State: "on", DelayMS: 2000},
		{Action: "color_temp", Value: intPtr(300)},
		{Action: "fade", Enabled: boolPtr(true)},
		{Action: "raw", Command: "Backlog", Payload: ""},
	})
	if err != nil {
		t.Fatalf("buildRoutine() error = %v", err)
	}
	cmd, err := r.Backlog()
	if err != nil {
		t.Fatalf("Backlog() error = %v", err)
	}
	want := "Backlog0 Power1 ON; Delay 20; CT 300; Fade ON; Backlog"
	if got := cmd.String(); got != want {
		t.Errorf("Backlog = %q, want %q", got, want)
	}
}

func TestDiscovery(t *testing.T) {
	found := newFakeTransport(nil)
	handle, err := device.New("tasmota_plug", found, device.Basic())
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	on := true
	disc := &fakeDiscoverer{results: []discovery.Result{
		{Topic: "tasmota_plug", Device: handle, State: device.State{Online: &on}},
		{Topic: "tasmota_new", State: device.State{}},
	}}

	f := newFixture(t, func(d *Deps) {
		d.Discovery = disc
		d.DiscoveryTimeout = time.Second
	})

	resp, body := f.do(t, http.MethodPost, "/api/v1/discovery", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if disc.timeout != time.Second {
		t.Errorf("timeout = %v, want the 1s default", disc.timeout)
	}
	devices, _ := body["devices"].([]any) //nolint:errcheck // nil slice fails below
	if len(devices) != 2 {
		t.Fatalf("devices = %v", devices)
	}
	first, _ := devices[0].(map[string]any) //nolint:errcheck // nil map fails below
	if first["managed_id"] != "plug" {
		t.Errorf("first = %v, want managed_id plug", first)
	}
	if !found.isClosed() {
		t.Error("discovered handle was not closed")
	}

	f.do(t, http.MethodPost, "/api/v1/discovery", `{"timeout_ms":120000}`)
	if disc.timeout != maxDiscoveryTimeout {
		t.Errorf("timeout = %v, want it capped at %v", disc.timeout, maxDiscoveryTimeout)
	}

	disc.err = discovery.ErrUnavailable
	resp, _ = f.do(t, http.MethodPost, "/api/v1/discovery", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unavailable status = %d, want 503", resp.StatusCode)
	}
}

func TestDiscoveryDisabled(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/discovery", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/health", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing generated X-Request-ID")
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/health", "", "X-Request-ID", "abc-123")
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want the client's", got)
	}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestCreateAndDeleteDevice(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/v1/devices",
		`{"name":"Desk Lamp","topic":"tasmota_desk","capabilities":{"power_channels":1}}`)
	if resp.StatusCode != http.StatusCreated || body["id"] != "desk-lamp" {
		t.Fatalf("create: status = %d body = %v", resp.StatusCode, body)
	}

	resp, body = f.do(t, http.MethodPost, "/api/v1/devices", `{"name":"Desk Lamp","topic":"tasmota_desk"}`)
	if resp.StatusCode != http.StatusConflict || body["code"] != ErrCodeConflict {
		t.Errorf("duplicate: status = %d body = %v", resp.StatusCode, body)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"mqtt without topic", `{"name":"No Topic"}`, http.StatusBadRequest},
		{"http without host", `{"name":"Web","transport":"http"}`, http.StatusBadRequest},
		{"unknown transport", `{"name":"Odd","transport":"zigbee","topic":"x"}`, http.StatusBadRequest},
		{"unknown field", `{"name":"Odd","colour":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/v1/devices", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d body = %v, want %d", resp.StatusCode, body, tt.want)
			}
		})
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/devices/desk-lamp", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/devices/desk-lamp", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}
