package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/ledsim/internal/progress"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a controller talks to a single simulator
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second
	defaultRequestTimeout      = 5 * time.Second
)

// ErrStreamEnded is returned by [Client.Events] when the server closes the
// stream before a Done event.
var ErrStreamEnded = errors.New("event stream ended before done")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// UpdateResult is the reply to [Client.ConfigureLEDs].
type UpdateResult struct {
	Applied   int  `json:"applied"`
	Published bool `json:"published"`
}

// StartResult is the reply to [Client.Start].
type StartResult struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// Client is an HTTP client for a running simulator.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so the long-lived event stream is not cut short. Response bodies are
// limited to 1MB.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a [Client] for the simulator at baseURL, for example
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultRequestTimeout,
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// ConfigureLEDs sends on/off changes keyed by LED id.
//
// The call returns after the server's settle delay.
func (c *Client) ConfigureLEDs(ctx context.Context, changes map[int]bool) (UpdateResult, error) {
	body := make(map[string]bool, len(changes))
	for id, on := range changes {
		body[strconv.Itoa(id)] = on
	}

	var out UpdateResult
	err := c.do(ctx, http.MethodPost, "/configure_leds", body, &out)
	return out, err
}

// SetPositions reports LED positions measured by the client.
func (c *Client) SetPositions(ctx context.Context, positions map[int][]float64) error {
	body := make(map[string][]float64, len(positions))
	for id, p := range positions {
		body[strconv.Itoa(id)] = p
	}
	return c.do(ctx, http.MethodPost, "/set_led_positions", body, nil)
}

// Start starts an activation run, or cancels the active one.
func (c *Client) Start(ctx context.Context) (StartResult, error) {
	var out StartResult
	err := c.do(ctx, http.MethodPost, "/start", nil, &out)
	return out, err
}

// NumLEDs returns the number of LEDs in the simulator.
func (c *Client) NumLEDs(ctx context.Context) (int, error) {
	var out struct {
		Num int `json:"num"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_num_leds", nil, &out); err != nil {
		return 0, err
	}
	return out.Num, nil
}

// Events follows the progress stream, calling fn for every event in order.
//
// Events returns nil after the Done event, the error from fn if it fails,
// ctx.Err() on cancellation, or [ErrStreamEnded] if the server closes the
// stream first.
func (c *Client) Events(ctx context.Context, fn func(progress.Event) error) error {
	return c.Follow(ctx, nil, fn)
}

// Follow is like [Client.Events], but calls connected once the stream is
// open and before any event is read. The server has registered the reader by
// then, so a run started from connected cannot be missed in fan-out mode.
func (c *Client) Follow(ctx context.Context, connected func(context.Context) error, fn func(progress.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if connected != nil {
		if err := connected(ctx); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		event, ok, err := ParseEvent(scanner.Text())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
		if event.IsDone() {
			return nil
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return ErrStreamEnded
}

// ParseEvent decodes one line of a Server-Sent Events stream.
//
// Lines other than "data:" fields (blank separators, comments, other fields)
// report ok=false.
func ParseEvent(line string) (progress.Event, bool, error) {
	data, found := strings.CutPrefix(line, "data:")
	if !found {
		return progress.Event{}, false, nil
	}

	var event progress.Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
		return progress.Event{}, false, fmt.Errorf("invalid event %q: %w", data, err)
	}
	if event.Kind != progress.KindIndex && event.Kind != progress.KindDone {
		return progress.Event{}, false, fmt.Errorf("unknown event type %q", event.Kind)
	}
	return event, true, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// do sends a JSON request and decodes a JSON reply into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
