// Package reconcile clears orphaned gateway processes and stale lock
// files before the listening socket binds.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/rcliao/agent-gateway/internal/procinspect"
)

// Inspector is the slice of procinspect.Inspector the reconciler needs.
type Inspector interface {
	PortListeners(port int) ([]procinspect.Listener, error)
	IsGateway(l procinspect.Listener) bool
	Alive(pid int32) bool
	Terminate(pid int32) error
	Kill(pid int32) error
}

// LockCleaner removes lock files whose recorded owner is dead.
// Satisfied by lockfile.Manager.
type LockCleaner interface {
	RemoveStale(port int) (bool, error)
}

// Options tunes a reconciliation run.
type Options struct {
	// GracePeriod is how long terminated processes get before SIGKILL.
	GracePeriod time.Duration
	// Skip disables process teardown and lock cleanup entirely, for
	// multi-instance setups and tests.
	Skip bool
}

// Result summarizes what a reconciliation run changed.
type Result struct {
	Killed       int
	LocksRemoved int
}

// Reconciler owns the startup teardown sequence.
type Reconciler struct {
	proc   Inspector
	locks  LockCleaner
	logger *slog.Logger
}

// New returns a Reconciler using the given inspector and lock manager.
func New(proc Inspector, locks LockCleaner, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{proc: proc, locks: locks, logger: logger.With("component", "reconcile")}
}

// Startup terminates orphaned gateway listeners on the port and purges
// stale locks. It is idempotent: a port with no live gateway listener
// only gets lock cleanup. Failures to kill are warnings, not errors;
// the caller finds out for real when it tries to bind.
func (r *Reconciler) Startup(ctx context.Context, port int, opts Options) (Result, error) {
	var res Result
	if opts.Skip {
		r.logger.Debug("reconciliation skipped", "port", port)
		return res, nil
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 3 * time.Second
	}

	listeners, err := r.proc.PortListeners(port)
	if err != nil {
		return res, err
	}

	var owned []procinspect.Listener
	for _, l := range listeners {
		if r.proc.IsGateway(l) {
			owned = append(owned, l)
		} else {
			r.logger.Warn("port held by unrelated process, leaving it alone",
				"port", port, "pid", l.PID, "name", l.Name)
		}
	}

	if len(owned) > 0 {
		res.Killed = r.teardown(ctx, port, owned, opts.GracePeriod)
	}

	removed, err := r.locks.RemoveStale(port)
	if err != nil {
		r.logger.Warn("stale lock cleanup failed", "error", err)
	} else if removed {
		res.LocksRemoved++
		r.logger.Info("removed stale lock", "port", port)
	}

	return res, nil
}

func (r *Reconciler) teardown(ctx context.Context, port int, owned []procinspect.Listener, grace time.Duration) int {
	for _, l := range owned {
		r.logger.Info("terminating orphaned gateway process", "port", port, "pid", l.PID, "name", l.Name)
		if err := r.proc.Terminate(l.PID); err != nil {
			r.logger.Warn("terminate failed", "pid", l.PID, "error", err)
		}
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-deadline.C:
			break wait
		case <-tick.C:
			if !r.anyAlive(owned) {
				break wait
			}
		}
	}

	killed := 0
	for _, l := range owned {
		if r.proc.Alive(l.PID) {
			if err := r.proc.Kill(l.PID); err != nil {
				r.logger.Warn("kill failed", "pid", l.PID, "error", err)
				continue
			}
		}
		killed++
	}
	return killed
}

func (r *Reconciler) anyAlive(listeners []procinspect.Listener) bool {
	for _, l := range listeners {
		if r.proc.Alive(l.PID) {
			return true
		}
	}
	return false
}
