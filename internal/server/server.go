package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/ledsim/internal/broadcast"
	"github.com/jpalmerr/ledsim/internal/progress"
	"github.com/jpalmerr/ledsim/internal/runner"
	"github.com/jpalmerr/ledsim/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// defaultPollInterval is how often the event stream polls for progress.
	defaultPollInterval = 100 * time.Millisecond

	// maxBodySize caps JSON request bodies.
	maxBodySize = 1 << 20

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "LED Simulator"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Activator starts activation runs. It is satisfied by *runner.Runner.
type Activator interface {
	Start() (runner.Result, string)
	State() runner.State
}

// Config holds the dependencies and settings of a [Server].
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// Store holds LED state.
	Store store.Store

	// Channel receives a snapshot after every LED update.
	Channel broadcast.Channel[store.Snapshot]

	// Runner handles start requests.
	Runner Activator

	// Progress hands out readers for the event stream.
	Progress progress.Source

	// Preview is mounted at /ws when non-nil.
	Preview http.Handler

	// Frames reports how many snapshots the renderer has drawn. Optional.
	Frames func() uint64

	// ChannelStats reports broadcast counters. Optional.
	ChannelStats func() broadcast.Stats

	// Assets is the embedded filesystem holding assets/index.html. Optional.
	Assets fs.FS

	// Title is the dashboard title. Defaults to "LED Simulator".
	Title string

	// PollInterval is the event stream polling interval. Defaults to 100ms.
	PollInterval time.Duration

	// SettleDelay is slept after each LED update before replying. Zero
	// disables the pause.
	SettleDelay time.Duration

	// Logger receives server events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server handles HTTP requests for the simulator.
//
// Server provides these routes:
//   - GET /: Serves the embedded dashboard HTML
//   - POST /configure_leds: Applies LED on/off changes and publishes a snapshot
//   - GET|POST /start: Starts an activation run, or cancels the active one
//   - GET /events: Server-Sent Events stream of activation progress
//   - POST /set_led_positions: Accepts positions reported by a client
//   - GET /get_reported_led_positions: Returns the last reported positions
//   - GET /get_num_leds: Returns the LED count
//   - GET /get_saved_led_positions: Returns the simulator's own LED positions
//   - GET /api/state: Returns LED state, runner state and channel counters
//   - GET /health: Liveness summary
//   - GET /ws: Live preview websocket (when configured)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time

	mu       sync.RWMutex
	reported map[int]store.Position
	addr     net.Addr
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(cfg Config) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// LED control
	mux.HandleFunc("/configure_leds", s.handleConfigureLEDs)
	mux.HandleFunc("/set_led_positions", s.handleSetPositions)
	mux.HandleFunc("/get_reported_led_positions", s.handleReportedPositions)
	mux.HandleFunc("/get_num_leds", s.handleNumLEDs)
	mux.HandleFunc("/get_saved_led_positions", s.handleSavedPositions)

	// activation
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/events", s.handleEvents)

	// inspection
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/health", s.handleHealth)

	if s.cfg.Preview != nil {
		mux.Handle("/ws", s.cfg.Preview)
	}

	if s.cfg.Assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleConfigureLEDs applies {"<id>": bool} changes, publishes the new
// snapshot and pauses for the settle delay before replying.
func (s *Server) handleConfigureLEDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var raw map[string]bool
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&raw); err != nil {
		http.Error(w, "invalid LED configuration: "+err.Error(), http.StatusBadRequest)
		return
	}

	changes := make(map[int]bool, len(raw))
	for key, on := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			// same treatment as an out-of-range id
			continue
		}
		changes[id] = on
	}

	applied := s.cfg.Store.Update(changes)
	published := s.cfg.Channel.TrySend(s.cfg.Store.Snapshot())

	s.logger.Debug("leds configured",
		"requested", len(raw),
		"applied", applied,
		"published", published,
	)
	if !published {
		s.logger.Debug("snapshot dropped, renderer is behind")
	}

	if s.cfg.SettleDelay > 0 {
		timer := time.NewTimer(s.cfg.SettleDelay)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applied":   applied,
		"published": published,
	}, s.logger)
}

// handleStart starts an activation run or cancels the active one.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, runID := s.cfg.Runner.Start()

	status := http.StatusOK
	if result == runner.Closed {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{
		"status": string(result),
		"run_id": runID,
	}, s.logger)
}

// handleEvents streams activation progress via Server-Sent Events.
//
// The handler polls its reader every poll interval and forwards everything
// pending in order. The stream ends after a Done event, on client disconnect
// or on server shutdown.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	reader := s.cfg.Progress.Subscribe()
	defer reader.Close()

	// open the stream so clients see headers before the first event
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return

		case <-ticker.C:
			for {
				event, ok := reader.Poll()
				if !ok {
					break
				}

				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := writeAndFlush(data); err != nil {
					s.logger.Debug("progress client disconnected", "error", err)
					return
				}
				if event.IsDone() {
					return
				}
			}
		}
	}
}

// handleSetPositions records positions reported by a client.
//
// The positions are logged and kept for inspection only; they do not change
// the simulator's own layout.
func (s *Server) handleSetPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var raw map[string][]float64
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&raw); err != nil {
		http.Error(w, "invalid positions: "+err.Error(), http.StatusBadRequest)
		return
	}

	reported := make(map[int]store.Position, len(raw))
	for key, coords := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		reported[id] = store.Position(coords)
	}

	s.mu.Lock()
	s.reported = reported
	s.mu.Unlock()

	s.logger.Info("led positions reported", "count", len(reported))

	writeJSON(w, http.StatusOK, map[string]int{"received": len(reported)}, s.logger)
}

// handleReportedPositions returns the last positions reported by a client.
func (s *Server) handleReportedPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	out := make(map[string]store.Position, len(s.reported))
	for id, p := range s.reported {
		out[strconv.Itoa(id)] = p
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out, s.logger)
}

// handleNumLEDs returns {"num": N}.
func (s *Server) handleNumLEDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"num": s.cfg.Store.Len()}, s.logger)
}

// handleSavedPositions returns the simulator's LED positions keyed by id.
func (s *Server) handleSavedPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	positions := s.cfg.Store.Positions()
	out := make(map[string]store.Position, len(positions))
	for id, p := range positions {
		out[strconv.Itoa(id)] = p
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	LEDs    []store.LED      `json:"leds"`
	Lit     int              `json:"lit"`
	Runner  runner.State     `json:"runner"`
	Channel *broadcast.Stats `json:"channel,omitempty"`
	Frames  *uint64          `json:"frames,omitempty"`
}

// handleState returns the current LED state and runtime counters.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.cfg.Store.Snapshot()
	resp := stateResponse{
		LEDs:   make([]store.LED, snap.Len()),
		Runner: s.cfg.Runner.State(),
	}
	for i, on := range snap.Activity {
		resp.LEDs[i] = store.LED{ID: i, Position: snap.Positions[i], On: on}
		if on {
			resp.Lit++
		}
	}
	if s.cfg.ChannelStats != nil {
		stats := s.cfg.ChannelStats()
		resp.Channel = &stats
	}
	if s.cfg.Frames != nil {
		frames := s.cfg.Frames()
		resp.Frames = &frames
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// handleHealth reports liveness and a few counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"uptime_s": time.Since(s.startedAt).Seconds(),
		"leds":     s.cfg.Store.Len(),
		"runner":   s.cfg.Runner.State(),
	}
	if s.cfg.Frames != nil {
		resp["frames"] = s.cfg.Frames()
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

