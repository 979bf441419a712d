// Package ring builds the bidirectional ring the election runs on:
// distinct random election ids, one node per ring position, each node
// wired to exactly its two neighbours.
package ring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/hashicorp/go-multierror"
	"github.com/viktor-platform/sample-distributed-algorithms/hirschberg"
	"github.com/viktor-platform/sample-distributed-algorithms/nameserver"
	"github.com/viktor-platform/sample-distributed-algorithms/procnet"
)

var ErrInvalidTopology = errors.New("invalid ring topology")

const (
	// MinNodes is the smallest meaningful ring: with fewer than three
	// nodes "the other neighbour" is not well defined.
	MinNodes = 3
	MaxNodes = 99
)

// attemptsPerID bounds resampling when a random id collides.
const attemptsPerID = 100

// NodeName returns the logical name for a ring position. Names are
// zero-padded so lexical order matches position order.
func NodeName(pos int) string {
	return fmt.Sprintf("N%02d", pos)
}

// GenerateIDs draws n pairwise-distinct election ids from [1, n^4).
// The range grows with the fourth power of the ring size, keeping the
// collision probability negligible; an actual collision is resampled.
func GenerateIDs(n int, rng *rand.Rand) ([]int64, error) {
	if n < MinNodes || n > MaxNodes {
		return nil, fmt.Errorf("%w: need between %d and %d nodes, got %d", ErrInvalidTopology, MinNodes, MaxNodes, n)
	}
	limit := int64(n) * int64(n) * int64(n) * int64(n)
	return distinctIDs(n, n*attemptsPerID, func() int64 {
		return 1 + rng.Int63n(limit-1)
	})
}

// distinctIDs draws ids until n distinct values are collected or the
// attempt budget runs out.
func distinctIDs(n, attempts int, draw func() int64) ([]int64, error) {
	seen := make(map[int64]struct{}, n)
	ids := make([]int64, 0, n)
	for len(ids) < n {
		if attempts <= 0 {
			return nil, fmt.Errorf("%w: could not draw %d distinct ids", ErrInvalidTopology, n)
		}
		attempts--

		id := draw()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Params configures a topology build.
type Params struct {
	Directory *nameserver.Directory
	IDs       []int64
	Logger    *log.Logger
	// Progress, if set, is told about each node created and wired.
	// Informational only.
	Progress func(message string, percentage float64)
}

// A Topology is the immutable result of a build: the nodes in ring
// order, each registered in the directory and wired to its two
// neighbours. Membership never changes after construction.
type Topology struct {
	Nodes []*hirschberg.Node
	IDs   []int64
}

// Build creates one node per id, registers them all in the directory and
// wires position i to positions (i-1) mod n and (i+1) mod n. Nodes are
// not started; that is the orchestrator's call to make.
func Build(p Params) (*Topology, error) {
	n := len(p.IDs)
	if n < MinNodes || n > MaxNodes {
		return nil, fmt.Errorf("%w: need between %d and %d nodes, got %d", ErrInvalidTopology, MinNodes, MaxNodes, n)
	}
	seen := make(map[int64]struct{}, n)
	for _, id := range p.IDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate election id %d", ErrInvalidTopology, id)
		}
		seen[id] = struct{}{}
	}

	progress := p.Progress
	if progress == nil {
		progress = func(string, float64) {}
	}

	nodes := make([]*hirschberg.Node, n)
	for i, id := range p.IDs {
		progress("Creating processes", float64(i)/float64(n)*100)
		node := hirschberg.NewNode(NodeName(i), id, n, p.Logger)
		if err := p.Directory.Register(node.Process().Ref()); err != nil {
			return nil, fmt.Errorf("register %s: %w", node.Name(), err)
		}
		nodes[i] = node
	}

	// Right neighbour first, then left, matching the build order the
	// rest of the tooling expects.
	for i, node := range nodes {
		progress("Creating network", float64(i)/float64(n)*100)
		right, err := p.Directory.Lookup(NodeName((i - 1 + n) % n))
		if err != nil {
			return nil, err
		}
		left, err := p.Directory.Lookup(NodeName((i + 1) % n))
		if err != nil {
			return nil, err
		}
		node.Process().AddNeighbour(right)
		node.Process().AddNeighbour(left)
	}

	return &Topology{Nodes: nodes, IDs: append([]int64(nil), p.IDs...)}, nil
}

// Start starts every node's process.
func (t *Topology) Start(ctx context.Context) error {
	for _, node := range t.Nodes {
		if err := node.Process().Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every node and waits for all of them to exit. Nodes
// that were never started are skipped, so Shutdown is safe on a
// half-started topology.
func (t *Topology) Shutdown() error {
	var result *multierror.Error
	for _, node := range t.Nodes {
		if err := node.Process().Stop(); err != nil && !errors.Is(err, procnet.ErrNotStarted) {
			result = multierror.Append(result, err)
		}
	}
	for _, node := range t.Nodes {
		if err := node.Process().Join(); err != nil && !errors.Is(err, procnet.ErrNotStarted) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// MaxIDIndex returns the ring position of the node holding the highest
// election id.
func (t *Topology) MaxIDIndex() int {
	best := 0
	for i, id := range t.IDs {
		if id > t.IDs[best] {
			best = i
		}
	}
	return best
}
