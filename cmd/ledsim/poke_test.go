package main

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, got:\n%s", want, b.String())
}

func TestPoke_SendsCountUpdates(t *testing.T) {
	f := newFakeSimulator(0)
	client := startFake(t, f)

	var out bytes.Buffer
	rng := rand.New(rand.NewPCG(1, 2))
	if err := poke(context.Background(), client, rng, &out, 4, time.Millisecond); err != nil {
		t.Fatalf("poke() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d updates, want 4:\n%s", len(lines), out.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "led ") || !strings.HasSuffix(line, "(published: true)") {
			t.Errorf("unexpected line %q", line)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.leds {
		if len(id) != 1 || id[0] < '0' || id[0] > '4' {
			t.Errorf("update for LED %q is outside [0, 5)", id)
		}
	}
}

func TestPoke_StopsOnCancel(t *testing.T) {
	client := startFake(t, newFakeSimulator(0))

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- poke(ctx, client, rand.New(rand.NewPCG(3, 4)), &out, 0, time.Hour)
	}()

	waitForOutput(t, &out, "led ")
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("poke() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poke() did not stop after cancellation")
	}
}
