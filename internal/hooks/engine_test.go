package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcliao/agent-gateway/internal/model"
)

func namedHook(id string, fn func(ctx context.Context, ev *model.HookEvent) error) Hook {
	return HookFunc{Name: id, Fn: fn}
}

func TestDispatchCollectsMessagesInOrder(t *testing.T) {
	e := NewEngine(nil, 0, nil)

	e.Register(Exact("command"), namedHook("a", func(_ context.Context, ev *model.HookEvent) error {
		ev.AddMessage(model.RoleAssistant, "from a")
		return nil
	}))
	e.Register(Exact("command"), namedHook("b", func(_ context.Context, ev *model.HookEvent) error {
		ev.AddMessage(model.RoleAssistant, "from b")
		return nil
	}))

	messages := e.Dispatch(context.Background(), NewEvent("command", "new", "wa:1", nil))
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "from a" || messages[1].Content != "from b" {
		t.Errorf("messages out of invocation order: %+v", messages)
	}
}

func TestFailingHookDoesNotAbortOthers(t *testing.T) {
	e := NewEngine(nil, 0, nil)

	runs := make(map[string]int)
	e.Register(Exact("session"), namedHook("before", func(context.Context, *model.HookEvent) error {
		runs["before"]++
		return nil
	}))
	e.Register(Exact("session"), namedHook("broken", func(context.Context, *model.HookEvent) error {
		runs["broken"]++
		return errors.New("boom")
	}))
	e.Register(Exact("session"), namedHook("panicky", func(context.Context, *model.HookEvent) error {
		runs["panicky"]++
		panic("hook bug")
	}))
	e.Register(Exact("session"), namedHook("after", func(context.Context, *model.HookEvent) error {
		runs["after"]++
		return nil
	}))

	e.Dispatch(context.Background(), NewEvent("session", "end", "wa:1", nil))

	for _, id := range []string{"before", "broken", "panicky", "after"} {
		if runs[id] != 1 {
			t.Errorf("hook %s ran %d times, want exactly 1", id, runs[id])
		}
	}
}

func TestDisabledHookNeverRuns(t *testing.T) {
	enabled := map[string]bool{"on": true, "off": false}
	e := NewEngine(func(id string) bool { return enabled[id] }, 0, nil)

	runs := make(map[string]int)
	e.Register(Exact("heartbeat"), namedHook("on", func(context.Context, *model.HookEvent) error {
		runs["on"]++
		return nil
	}))
	e.Register(Exact("heartbeat"), namedHook("off", func(context.Context, *model.HookEvent) error {
		runs["off"]++
		return nil
	}))

	e.Dispatch(context.Background(), NewEvent("heartbeat", "", "", nil))
	if runs["on"] != 1 || runs["off"] != 0 {
		t.Fatalf("enablement not respected: %v", runs)
	}

	// Toggling takes effect on the next dispatch, no restart involved.
	enabled["off"] = true
	e.Dispatch(context.Background(), NewEvent("heartbeat", "", "", nil))
	if runs["off"] != 1 {
		t.Fatalf("expected toggled hook to run, got %v", runs)
	}
}

func TestTieredDispatch(t *testing.T) {
	e := NewEngine(nil, 0, nil)

	runs := 0
	e.Register(Tier("cron"), namedHook("cron-any", func(context.Context, *model.HookEvent) error {
		runs++
		return nil
	}))

	e.Dispatch(context.Background(), NewEvent("cron:hourly", "", "", nil))
	e.Dispatch(context.Background(), NewEvent("cron", "", "", nil))
	e.Dispatch(context.Background(), NewEvent("heartbeat", "", "", nil))

	if runs != 2 {
		t.Fatalf("expected tiered hook to run twice, got %d", runs)
	}
}

func TestHookTimeoutIsIsolated(t *testing.T) {
	e := NewEngine(nil, 20*time.Millisecond, nil)

	ran := false
	e.Register(Exact("agent"), namedHook("slow", func(ctx context.Context, ev *model.HookEvent) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		ev.AddMessage(model.RoleAssistant, "too late")
		return nil
	}))
	e.Register(Exact("agent"), namedHook("fast", func(_ context.Context, ev *model.HookEvent) error {
		ran = true
		ev.AddMessage(model.RoleAssistant, "on time")
		return nil
	}))

	messages := e.Dispatch(context.Background(), NewEvent("agent", "", "", nil))
	if !ran {
		t.Fatal("expected the fast hook to run after the slow one timed out")
	}
	if len(messages) != 1 || messages[0].Content != "on time" {
		t.Fatalf("timed-out hook contributions must be dropped, got %+v", messages)
	}
}
