package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jpalmerr/ledsim/internal/broadcast"
	"github.com/jpalmerr/ledsim/internal/progress"
	"github.com/jpalmerr/ledsim/internal/runner"
	"github.com/jpalmerr/ledsim/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner implements Activator with a fixed result.
type fakeRunner struct {
	mu     sync.Mutex
	result runner.Result
	calls  int
}

func (f *fakeRunner) Start() (runner.Result, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, "run-1"
}

func (f *fakeRunner) State() runner.State {
	return runner.Idle
}

type fixture struct {
	srv     *Server
	store   *store.MemoryStore
	channel *broadcast.Latest[store.Snapshot]
	outbox  *progress.Outbox
	runner  *fakeRunner
}

func newFixture(n int) *fixture {
	positions := make([]store.Position, n)
	for i := range positions {
		positions[i] = store.Position{float64(i % 10), float64(i / 10)}
	}

	f := &fixture{
		store:   store.NewMemoryStore(positions),
		channel: broadcast.NewLatest[store.Snapshot](4),
		outbox:  progress.NewOutbox(),
		runner:  &fakeRunner{result: runner.Success},
	}
	f.srv = NewServer(Config{
		Store:        f.store,
		Channel:      f.channel,
		Runner:       f.runner,
		Progress:     f.outbox,
		ChannelStats: f.channel.Stats,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// --- LED control ---

func TestConfigureLEDs_AppliesAndPublishes(t *testing.T) {
	f := newFixture(5)

	rec := f.do(http.MethodPost, "/configure_leds", `{"0": false, "3": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Applied   int  `json:"applied"`
		Published bool `json:"published"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.Applied != 2 || !resp.Published {
		t.Errorf("response = %+v, want applied=2 published=true", resp)
	}

	snap, ok := f.channel.DrainLatest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	want := []bool{false, true, true, false, true}
	for i := range want {
		if snap.Activity[i] != want[i] {
			t.Errorf("Activity[%d] = %v, want %v", i, snap.Activity[i], want[i])
		}
	}
}

func TestConfigureLEDs_OutOfRangeAndBadKeys(t *testing.T) {
	f := newFixture(100)

	rec := f.do(http.MethodPost, "/configure_leds", `{"150": true, "-1": false, "abc": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	for i, on := range f.store.Snapshot().Activity {
		if !on {
			t.Fatalf("Activity[%d] = false, out-of-range changes must be ignored", i)
		}
	}

	// a snapshot is still published
	if _, ok := f.channel.DrainLatest(); !ok {
		t.Error("expected a snapshot even when nothing was applied")
	}
}

func TestConfigureLEDs_ChannelFull(t *testing.T) {
	f := newFixture(3)
	for i := 0; i < f.channel.Cap(); i++ {
		f.channel.TrySend(store.Snapshot{})
	}

	rec := f.do(http.MethodPost, "/configure_leds", `{"1": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"published":false`) {
		t.Errorf("body = %s, want published=false", rec.Body.String())
	}
	if f.store.Snapshot().Activity[1] {
		t.Error("update must apply even when the snapshot is dropped")
	}
	if got := f.channel.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestConfigureLEDs_BadRequest(t *testing.T) {
	f := newFixture(3)

	if rec := f.do(http.MethodPost, "/configure_leds", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/configure_leds", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestConfigureLEDs_SettleDelay(t *testing.T) {
	f := newFixture(3)
	f.srv.cfg.SettleDelay = 50 * time.Millisecond

	start := time.Now()
	rec := f.do(http.MethodPost, "/configure_leds", `{"0": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("handler returned after %v, want at least the settle delay", elapsed)
	}
}

func TestConfigureLEDs_SettleDelayCancelled(t *testing.T) {
	f := newFixture(3)
	f.srv.cfg.SettleDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/configure_leds", strings.NewReader(`{"0": false}`)).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.handleConfigureLEDs(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not give up the settle pause on disconnect")
	}
	if f.store.Snapshot().Activity[0] {
		t.Error("update must be applied before the settle pause")
	}
}

func TestSetPositions(t *testing.T) {
	f := newFixture(3)

	rec := f.do(http.MethodPost, "/set_led_positions", `{"0": [0.5, 1.5], "2": [1, 2, 3], "x": [9, 9]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"received":2`) {
		t.Errorf("body = %s, want received=2", rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/get_reported_led_positions", "")
	var got map[string][]float64
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 2 || got["2"][2] != 3 {
		t.Errorf("reported positions = %v", got)
	}

	// reported positions never touch the simulator layout
	if p := f.store.Positions()[0]; p[0] != 0 || p[1] != 0 {
		t.Errorf("store position 0 = %v, want [0 0]", p)
	}
}

func TestNumLEDs(t *testing.T) {
	f := newFixture(42)

	rec := f.do(http.MethodGet, "/get_num_leds", "")
	if strings.TrimSpace(rec.Body.String()) != `{"num":42}` {
		t.Errorf("body = %s, want {\"num\":42}", rec.Body.String())
	}
}

func TestSavedPositions(t *testing.T) {
	f := newFixture(12)

	rec := f.do(http.MethodGet, "/get_saved_led_positions", "")
	var got map[string][]float64
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("got %d positions, want 12", len(got))
	}
	if p := got["11"]; p[0] != 1 || p[1] != 1 {
		t.Errorf("position 11 = %v, want [1 1]", p)
	}
}

// --- activation ---

func TestStart(t *testing.T) {
	tests := []struct {
		name       string
		result     runner.Result
		wantStatus int
	}{
		{"success", runner.Success, http.StatusOK},
		{"already running", runner.AlreadyRunning, http.StatusOK},
		{"closed", runner.Closed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(1)
			f.runner.result = tt.result

			rec := f.do(http.MethodGet, "/start", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if resp["status"] != string(tt.result) {
				t.Errorf("status field = %q, want %q", resp["status"], tt.result)
			}
		})
	}
}

func TestStart_MethodNotAllowed(t *testing.T) {
	f := newFixture(1)
	if rec := f.do(http.MethodDelete, "/start", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if f.runner.calls != 0 {
		t.Error("runner must not be called on a rejected method")
	}
}

// --- event stream ---

func TestEvents_StreamsUntilDone(t *testing.T) {
	f := newFixture(1)
	for i := 0; i < 5; i++ {
		f.outbox.Publish(progress.Index("r1", i))
	}
	f.outbox.Publish(progress.Done("r1"))
	// events after Done belong to the next stream
	f.outbox.Publish(progress.Index("r2", 0))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.handleEvents(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not close the stream after Done")
	}

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 6: %q", len(frames), rec.Body.String())
	}
	for i := 0; i < 5; i++ {
		var e progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[i], "data: ")), &e); err != nil {
			t.Fatalf("frame %d: Unmarshal() error = %v", i, err)
		}
		if e.Kind != progress.KindIndex || e.Index != i {
			t.Errorf("frame %d = %+v, want Index(%d)", i, e, i)
		}
	}
	if !strings.Contains(frames[5], `"type":"done"`) {
		t.Errorf("last frame = %q, want done", frames[5])
	}
	if f.outbox.Len() != 1 {
		t.Errorf("outbox len = %d, want 1 (next run's event untouched)", f.outbox.Len())
	}
}

func TestEvents_StreamsLiveEvents(t *testing.T) {
	f := newFixture(1)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.handleEvents(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	f.outbox.Publish(progress.Index("r1", 0))
	time.Sleep(20 * time.Millisecond)
	f.outbox.Publish(progress.Done("r1"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after Done")
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"index"`) || !strings.Contains(body, `"type":"done"`) {
		t.Errorf("body = %q, want index and done frames", body)
	}
}

func TestEvents_ClientDisconnect(t *testing.T) {
	f := newFixture(1)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.handleEvents(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
}

func TestEvents_Headers(t *testing.T) {
	f := newFixture(1)
	f.outbox.Publish(progress.Done("r"))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	f.srv.handleEvents(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}
	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

func TestEvents_SSENotSupported(t *testing.T) {
	f := newFixture(1)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := &nonFlushWriter{header: make(http.Header)}

	f.srv.handleEvents(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestEvents_FanoutReaders(t *testing.T) {
	f := newFixture(1)
	fan := progress.NewFanout()
	f.srv.cfg.Progress = fan

	bodies := make([]*httptest.ResponseRecorder, 2)
	var wg sync.WaitGroup
	for i := range bodies {
		bodies[i] = httptest.NewRecorder()
		wg.Add(1)
		go func(rec *httptest.ResponseRecorder) {
			defer wg.Done()
			f.srv.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
		}(bodies[i])
	}

	deadline := time.Now().Add(time.Second)
	for fan.Readers() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	fan.Publish(progress.Index("r", 0))
	fan.Publish(progress.Done("r"))
	wg.Wait()

	for i, rec := range bodies {
		if n := strings.Count(rec.Body.String(), "data: "); n != 2 {
			t.Errorf("reader %d got %d frames, want 2", i, n)
		}
	}
}

func TestEvents_NoGoroutineLeaks(t *testing.T) {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	f := newFixture(1)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
			f.srv.handleEvents(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

// --- inspection ---

func TestState(t *testing.T) {
	f := newFixture(4)
	f.srv.cfg.Frames = func() uint64 { return 7 }
	f.store.Update(map[int]bool{2: false})

	rec := f.do(http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(resp.LEDs) != 4 || resp.Lit != 3 {
		t.Errorf("leds = %d lit = %d, want 4 and 3", len(resp.LEDs), resp.Lit)
	}
	if resp.LEDs[2].On {
		t.Error("LED 2 should be off")
	}
	if resp.Runner != runner.Idle {
		t.Errorf("runner = %q, want idle", resp.Runner)
	}
	if resp.Channel == nil || resp.Frames == nil || *resp.Frames != 7 {
		t.Errorf("channel = %v frames = %v, want both set", resp.Channel, resp.Frames)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(9)

	rec := f.do(http.MethodGet, "/health", "")
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp["status"] != "ok" || resp["leds"] != float64(9) {
		t.Errorf("health = %v", resp)
	}
}

// --- dashboard ---

func TestDashboard(t *testing.T) {
	f := newFixture(1)
	f.srv.cfg.Assets = fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{.Title}}</title>")},
	}
	f.srv.cfg.Title = "<Bench & Co>"

	rec := f.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "<title>&lt;Bench &amp; Co&gt;</title>" {
		t.Errorf("body = %q, want escaped title", got)
	}

	if rec := f.do(http.MethodGet, "/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestDashboard_DefaultTitle(t *testing.T) {
	f := newFixture(1)
	f.srv.cfg.Assets = fstest.MapFS{
		"assets/index.html": {Data: []byte("{{.Title}}")},
	}

	rec := f.do(http.MethodGet, "/", "")
	if rec.Body.String() != defaultTitle {
		t.Errorf("body = %q, want %q", rec.Body.String(), defaultTitle)
	}
}

// --- lifecycle ---

func TestServer_StartAndShutdown(t *testing.T) {
	f := newFixture(3)
	f.srv.cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	url := "http://" + f.srv.Addr().String()
	resp, err := http.Post(url+"/configure_leds", "application/json", bytes.NewBufferString(`{"1": false}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if _, err := http.Get(url + "/health"); err == nil {
		t.Error("server still accepting requests after shutdown")
	}
}
