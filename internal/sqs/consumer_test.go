package sqs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testConsumer(run Runner) *TickConsumer {
	return &TickConsumer{
		run:    run,
		cfg:    Config{RunTimeout: time.Second},
		logger: zap.NewNop(),
	}
}

func TestHandle_ValidTick(t *testing.T) {
	var gotChannel string
	c := testConsumer(func(ctx context.Context, channel string) error {
		gotChannel = channel
		return nil
	})

	c.handle(context.Background(), `{"channel":"email"}`)

	if gotChannel != "email" {
		t.Errorf("expected runner called with email, got %q", gotChannel)
	}
}

func TestHandle_InvalidJSON(t *testing.T) {
	called := false
	c := testConsumer(func(ctx context.Context, channel string) error {
		called = true
		return nil
	})

	c.handle(context.Background(), `not json`)

	if called {
		t.Error("malformed tick must not trigger a run")
	}
}

func TestHandle_MissingChannel(t *testing.T) {
	called := false
	c := testConsumer(func(ctx context.Context, channel string) error {
		called = true
		return nil
	})

	c.handle(context.Background(), `{}`)

	if called {
		t.Error("tick without channel must not trigger a run")
	}
}

func TestHandle_RunTimeoutApplied(t *testing.T) {
	c := testConsumer(func(ctx context.Context, channel string) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("run context should carry a deadline")
		} else if time.Until(deadline) > time.Second {
			t.Errorf("deadline too far out: %s", time.Until(deadline))
		}
		return nil
	})

	c.handle(context.Background(), `{"channel":"whatsapp"}`)
}
