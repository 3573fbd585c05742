package operator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartGateBlocksUntilOpen(t *testing.T) {
	gate := newStartGate()
	released := make(chan error, 1)
	go func() { released <- gate.wait(context.Background()) }()

	select {
	case <-released:
		t.Fatalf("gate released before open")
	case <-time.After(20 * time.Millisecond):
	}

	gate.open()
	if err := <-released; err != nil {
		t.Fatalf("open gate should release cleanly: %v", err)
	}
}

func TestStartGateCarriesFailure(t *testing.T) {
	gate := newStartGate()
	cause := errors.New("dependency failed")
	gate.fail(cause)

	if err := gate.wait(context.Background()); !errors.Is(err, cause) {
		t.Fatalf("expected failure to propagate, got %v", err)
	}
}

func TestStartGateHonorsCancellation(t *testing.T) {
	gate := newStartGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gate.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
