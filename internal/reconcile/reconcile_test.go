package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rcliao/agent-gateway/internal/procinspect"
)

// fakeProc simulates processes holding the port. Terminate flips a
// process dead unless it is marked stubborn; Kill always does.
type fakeProc struct {
	listeners  []procinspect.Listener
	gateway    map[int32]bool
	alive      map[int32]bool
	stubborn   map[int32]bool
	terminated []int32
	killed     []int32
}

func (f *fakeProc) PortListeners(port int) ([]procinspect.Listener, error) {
	var live []procinspect.Listener
	for _, l := range f.listeners {
		if f.alive[l.PID] {
			live = append(live, l)
		}
	}
	return live, nil
}

func (f *fakeProc) IsGateway(l procinspect.Listener) bool { return f.gateway[l.PID] }
func (f *fakeProc) Alive(pid int32) bool                  { return f.alive[pid] }

func (f *fakeProc) Terminate(pid int32) error {
	f.terminated = append(f.terminated, pid)
	if !f.stubborn[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeProc) Kill(pid int32) error {
	f.killed = append(f.killed, pid)
	f.alive[pid] = false
	return nil
}

type fakeLocks struct {
	stale   bool
	removed int
}

func (f *fakeLocks) RemoveStale(port int) (bool, error) {
	if !f.stale {
		return false, nil
	}
	f.stale = false
	f.removed++
	return true, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartupKillsOrphanedGateway(t *testing.T) {
	proc := &fakeProc{
		listeners: []procinspect.Listener{{PID: 100, Name: "agent-gateway"}},
		gateway:   map[int32]bool{100: true},
		alive:     map[int32]bool{100: true},
	}
	locks := &fakeLocks{stale: true}

	r := New(proc, locks, discard())
	res, err := r.Startup(context.Background(), 18789, Options{GracePeriod: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	if res.Killed != 1 {
		t.Errorf("killed = %d, want 1", res.Killed)
	}
	if res.LocksRemoved != 1 {
		t.Errorf("locks removed = %d, want 1", res.LocksRemoved)
	}
	if len(proc.terminated) != 1 || proc.terminated[0] != 100 {
		t.Errorf("expected SIGTERM for pid 100, got %v", proc.terminated)
	}
	if len(proc.killed) != 0 {
		t.Errorf("process exited within grace, SIGKILL not expected: %v", proc.killed)
	}
}

func TestStartupIsIdempotent(t *testing.T) {
	proc := &fakeProc{
		listeners: []procinspect.Listener{{PID: 100, Name: "agent-gateway"}},
		gateway:   map[int32]bool{100: true},
		alive:     map[int32]bool{100: true},
	}
	locks := &fakeLocks{stale: true}
	r := New(proc, locks, discard())

	if _, err := r.Startup(context.Background(), 18789, Options{GracePeriod: 200 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}

	res, err := r.Startup(context.Background(), 18789, Options{GracePeriod: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("second startup: %v", err)
	}
	if res.Killed != 0 || res.LocksRemoved != 0 {
		t.Fatalf("second run must be a no-op, got %+v", res)
	}
	if len(proc.terminated) != 1 {
		t.Errorf("no further signals expected, got %v", proc.terminated)
	}
}

func TestStartupEscalatesToKill(t *testing.T) {
	proc := &fakeProc{
		listeners: []procinspect.Listener{{PID: 200, Name: "agent-gateway"}},
		gateway:   map[int32]bool{200: true},
		alive:     map[int32]bool{200: true},
		stubborn:  map[int32]bool{200: true},
	}
	r := New(proc, &fakeLocks{}, discard())

	res, err := r.Startup(context.Background(), 18789, Options{GracePeriod: 150 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if res.Killed != 1 {
		t.Errorf("killed = %d, want 1", res.Killed)
	}
	if len(proc.killed) != 1 || proc.killed[0] != 200 {
		t.Errorf("expected SIGKILL for stubborn pid, got %v", proc.killed)
	}
}

func TestStartupLeavesUnrelatedProcess(t *testing.T) {
	proc := &fakeProc{
		listeners: []procinspect.Listener{{PID: 300, Name: "nginx"}},
		gateway:   map[int32]bool{},
		alive:     map[int32]bool{300: true},
	}
	r := New(proc, &fakeLocks{}, discard())

	res, err := r.Startup(context.Background(), 18789, Options{GracePeriod: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if res.Killed != 0 {
		t.Errorf("unrelated process must not be touched, got %+v", res)
	}
	if len(proc.terminated) != 0 || len(proc.killed) != 0 {
		t.Errorf("no signals expected, got term=%v kill=%v", proc.terminated, proc.killed)
	}
	if !proc.alive[300] {
		t.Error("unrelated process must stay alive")
	}
}

func TestStartupSkip(t *testing.T) {
	proc := &fakeProc{
		listeners: []procinspect.Listener{{PID: 100, Name: "agent-gateway"}},
		gateway:   map[int32]bool{100: true},
		alive:     map[int32]bool{100: true},
	}
	locks := &fakeLocks{stale: true}
	r := New(proc, locks, discard())

	res, err := r.Startup(context.Background(), 18789, Options{Skip: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Killed != 0 || res.LocksRemoved != 0 {
		t.Fatalf("skip must change nothing, got %+v", res)
	}
	if len(proc.terminated) != 0 {
		t.Errorf("skip must not signal, got %v", proc.terminated)
	}
	if !proc.alive[100] {
		t.Error("skip must leave processes alone")
	}
}
