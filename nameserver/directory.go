// Package nameserver is the in-process stand-in for a naming service:
// a registry from logical process name to a send-capable handle. It is
// populated at topology-build time and queried only by the builder and
// the orchestrator, never on the message hot path.
package nameserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/viktor-platform/sample-distributed-algorithms/procnet"
)

var (
	ErrDuplicateName = errors.New("name already registered")
	ErrUnknownName   = errors.New("name not registered")
)

type Directory struct {
	mu   sync.RWMutex
	refs map[string]procnet.Ref
}

func New() *Directory {
	return &Directory{refs: make(map[string]procnet.Ref)}
}

// Register adds a handle under its process name.
func (d *Directory) Register(ref procnet.Ref) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.refs[ref.Name()]; ok {
		return fmt.Errorf("register %s: %w", ref.Name(), ErrDuplicateName)
	}
	d.refs[ref.Name()] = ref
	return nil
}

// Lookup resolves a logical name to a handle.
func (d *Directory) Lookup(name string) (procnet.Ref, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ref, ok := d.refs[name]
	if !ok {
		return procnet.Ref{}, fmt.Errorf("lookup %s: %w", name, ErrUnknownName)
	}
	return ref, nil
}

// Deregister removes a name. Removing an unknown name is a no-op.
func (d *Directory) Deregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.refs, name)
}

// Names returns all registered names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.refs))
	for name := range d.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close drops every registration. The directory is per-run state; no
// entry survives into the next run.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = make(map[string]procnet.Ref)
}
