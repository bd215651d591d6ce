// Package hooks implements the typed event dispatch engine. Hooks run
// sequentially in registration order; a failing hook is logged and the
// rest still run.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/agent-gateway/internal/model"
)

// Hook handles one event. Implementations may append follow-up messages
// to the event.
type Hook interface {
	ID() string
	Run(ctx context.Context, event *model.HookEvent) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc struct {
	Name string
	Fn   func(ctx context.Context, event *model.HookEvent) error
}

// ID returns the hook's identity.
func (h HookFunc) ID() string { return h.Name }

// Run invokes the wrapped function.
func (h HookFunc) Run(ctx context.Context, event *model.HookEvent) error { return h.Fn(ctx, event) }

type registration struct {
	matcher Matcher
	hook    Hook
}

// Engine dispatches internal events to registered hooks. Enablement is
// resolved per hook id at dispatch time, so a config toggle takes effect
// on the next event without a restart.
type Engine struct {
	regs    []registration
	enabled func(hookID string) bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine returns an Engine. enabled may be nil (all hooks enabled);
// timeout bounds each hook invocation, expiry counting as hook failure.
func NewEngine(enabled func(hookID string) bool, timeout time.Duration, logger *slog.Logger) *Engine {
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{enabled: enabled, timeout: timeout, logger: logger.With("component", "hooks")}
}

// Register binds a hook to a matcher. Registration order is the
// dispatch order for hooks matching the same event.
func (e *Engine) Register(matcher Matcher, hook Hook) {
	e.regs = append(e.regs, registration{matcher: matcher, hook: hook})
}

// NewEvent builds a HookEvent with a fresh id and timestamp.
func NewEvent(eventType, action, sessionKey string, context map[string]any) *model.HookEvent {
	return &model.HookEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Action:     action,
		SessionKey: sessionKey,
		Context:    context,
		Timestamp:  time.Now().UTC(),
	}
}

// Dispatch runs every enabled hook matching the event type and returns
// the messages they contributed, in invocation order. Hook errors and
// timeouts are logged with hook and event identity and never abort the
// remaining hooks.
func (e *Engine) Dispatch(ctx context.Context, event *model.HookEvent) []model.Message {
	for _, reg := range e.regs {
		if !reg.matcher.Matches(event.Type) {
			continue
		}
		if !e.enabled(reg.hook.ID()) {
			continue
		}
		if err := e.invoke(ctx, reg.hook, event); err != nil {
			e.logger.Error("hook failed",
				"hook", reg.hook.ID(), "event_type", event.Type,
				"event_id", event.ID, "error", err)
		}
	}
	return event.Messages
}

// invoke runs one hook against a shallow copy of the event so that a
// timed-out hook left running in the background cannot mutate messages
// already handed to later hooks. Contributions merge only on success.
func (e *Engine) invoke(ctx context.Context, hook Hook, event *model.HookEvent) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	scoped := *event
	scoped.Messages = nil

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("hook panicked: %v", r)
			}
		}()
		done <- hook.Run(ctx, &scoped)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		event.Messages = append(event.Messages, scoped.Messages...)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hook timed out: %w", ctx.Err())
	}
}
