// Package election orchestrates a full Hirschberg–Sinclair run: it
// builds the ring, starts every node, waits for a leader, and merges the
// per-node traces into the one time-ordered result set the rendering
// layer consumes.
package election

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/viktor-platform/sample-distributed-algorithms/nameserver"
	"github.com/viktor-platform/sample-distributed-algorithms/ring"
	"github.com/viktor-platform/sample-distributed-algorithms/trace"
)

// ErrElectionTimeout means the termination poll gave up before a leader
// appeared. The poll never loops unboundedly.
var ErrElectionTimeout = errors.New("election timed out")

const (
	DefaultPollInterval = 20 * time.Millisecond
	DefaultTimeout      = 2 * time.Minute
)

// A ProgressFunc receives informational progress reports. A negative
// percentage means no percentage is reported. Progress never affects
// control flow.
type ProgressFunc func(message string, percentage float64)

// Config describes one election run.
type Config struct {
	// Nodes is the ring size, between ring.MinNodes and ring.MaxNodes.
	Nodes int
	// PollInterval is the sleep between checks of the terminal
	// condition. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// Timeout bounds the wait for a leader. Zero means DefaultTimeout.
	Timeout time.Duration
	// Seed seeds id generation; zero means a time-based seed.
	Seed int64

	Logger   *log.Logger
	Progress ProgressFunc
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Progress == nil {
		c.Progress = func(string, float64) {}
	}
	return c
}

// Run executes one election and returns the merged trace, sorted by
// (round, clock, name). On every path, success or failure, all started
// processes are stopped and joined and the directory is torn down
// before Run returns.
func Run(ctx context.Context, cfg Config) ([]trace.Event, error) {
	cfg = cfg.withDefaults()

	rng := rand.New(rand.NewSource(cfg.Seed))
	ids, err := ring.GenerateIDs(cfg.Nodes, rng)
	if err != nil {
		return nil, err
	}
	return run(ctx, cfg, ids)
}

func run(ctx context.Context, cfg Config, ids []int64) ([]trace.Event, error) {
	cfg.Progress("Starting name server", -1)
	dir := nameserver.New()
	defer dir.Close()

	topo, err := ring.Build(ring.Params{
		Directory: dir,
		IDs:       ids,
		Logger:    cfg.Logger,
		Progress:  cfg.Progress,
	})
	if err != nil {
		return nil, err
	}

	cfg.Progress("Running algorithm", -1)
	if err := topo.Start(ctx); err != nil {
		return nil, teardown(topo, fmt.Errorf("start ring: %w", err))
	}

	// Termination is observed from outside the protocol: we poll the one
	// node known to hold the global maximum id. No individual node relies
	// on this; a real deployment would layer a distributed termination
	// detection protocol instead.
	winner := topo.Nodes[topo.MaxIDIndex()]
	if err := waitFor(ctx, winner.Elected, cfg.PollInterval, cfg.Timeout); err != nil {
		return nil, teardown(topo, fmt.Errorf("waiting for leader: %w", err))
	}

	cfg.Progress("Finishing up", -1)
	if err := topo.Shutdown(); err != nil {
		return nil, err
	}

	traces := make([][]trace.Event, 0, len(topo.Nodes))
	for _, node := range topo.Nodes {
		traces = append(traces, node.Trace())
	}
	return trace.Merge(traces...), nil
}

// teardown stops whatever was started and attaches any shutdown errors
// to the failure being propagated.
func teardown(topo *ring.Topology, err error) error {
	if serr := topo.Shutdown(); serr != nil {
		return multierror.Append(err, serr)
	}
	return err
}

// waitFor polls a condition until it holds, the timeout expires or the
// caller's context is cancelled. A last-chance check runs on expiry so a
// condition that became true just before the deadline still counts.
func waitFor(ctx context.Context, cond func() bool, interval, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if cond() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrElectionTimeout
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}
