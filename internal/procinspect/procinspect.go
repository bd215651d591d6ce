// Package procinspect answers questions about ports and the processes
// listening on them, and wraps the signals used to tear them down.
package procinspect

import (
	"fmt"
	"strings"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Listener describes one process holding a TCP listening socket.
type Listener struct {
	PID     int32
	Name    string
	Cmdline string
}

// Inspector enumerates port listeners and signals processes.
type Inspector struct {
	// GatewayMarkers classify a listener as gateway-owned when any marker
	// appears in its process name or command line.
	GatewayMarkers []string
}

// New returns an Inspector classifying by the given markers.
func New(markers ...string) *Inspector {
	return &Inspector{GatewayMarkers: markers}
}

// PortListeners returns the processes listening on the TCP port. Sockets
// without a resolvable process are skipped.
func (i *Inspector) PortListeners(port int) ([]Listener, error) {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return nil, fmt.Errorf("list tcp connections: %w", err)
	}

	seen := make(map[int32]bool)
	var listeners []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port || c.Pid <= 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true

		l := Listener{PID: c.Pid}
		if p, err := process.NewProcess(c.Pid); err == nil {
			l.Name, _ = p.Name()
			l.Cmdline, _ = p.Cmdline()
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// PortBound reports whether anything is listening on the port.
func (i *Inspector) PortBound(port int) (bool, error) {
	listeners, err := i.PortListeners(port)
	if err != nil {
		return false, err
	}
	return len(listeners) > 0, nil
}

// IsGateway classifies a listener as gateway-owned by marker heuristic.
func (i *Inspector) IsGateway(l Listener) bool {
	for _, marker := range i.GatewayMarkers {
		if marker == "" {
			continue
		}
		if strings.Contains(l.Name, marker) || strings.Contains(l.Cmdline, marker) {
			return true
		}
	}
	return false
}

// Alive reports whether the pid refers to a running process.
func (i *Inspector) Alive(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

// Terminate sends SIGTERM. Signaling an already-exited pid is swallowed.
func (i *Inspector) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := p.Terminate(); err != nil && i.Alive(pid) {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	return nil
}

// Kill sends SIGKILL. Signaling an already-exited pid is swallowed.
func (i *Inspector) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && i.Alive(pid) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}
