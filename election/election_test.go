package election

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/viktor-platform/sample-distributed-algorithms/nameserver"
	"github.com/viktor-platform/sample-distributed-algorithms/ring"
	"github.com/viktor-platform/sample-distributed-algorithms/trace"
)

func runWithIDs(t *testing.T, ids []int64) []trace.Event {
	t.Helper()
	cfg := Config{Nodes: len(ids), Timeout: 10 * time.Second}.withDefaults()
	events, err := run(context.Background(), cfg, ids)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return events
}

func selectedEvents(events []trace.Event) []trace.Event {
	var out []trace.Event
	for _, ev := range events {
		if ev.State == trace.StateSelected {
			out = append(out, ev)
		}
	}
	return out
}

func TestThreeNodeScenario(t *testing.T) {
	events := runWithIDs(t, []int64{5, 9, 2})

	selected := selectedEvents(events)
	if len(selected) != 1 {
		t.Fatalf("expected exactly one SELECTED event, got %d", len(selected))
	}
	if selected[0].Name != "N01" || selected[0].ElectionID != 9 {
		t.Errorf("leader = %s (id %d), want N01 (id 9)", selected[0].Name, selected[0].ElectionID)
	}
}

func TestFourNodeScenario(t *testing.T) {
	events := runWithIDs(t, []int64{1, 2, 3, 4})

	selected := selectedEvents(events)
	if len(selected) != 1 {
		t.Fatalf("expected exactly one SELECTED event, got %d", len(selected))
	}
	if selected[0].ElectionID != 4 {
		t.Errorf("leader id = %d, want 4", selected[0].ElectionID)
	}
	if selected[0].Round != 3 {
		t.Errorf("SELECTED round = %d, want 3", selected[0].Round)
	}
}

func TestRoundBound(t *testing.T) {
	ids := make([]int64, 16)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	events := runWithIDs(t, ids)

	selected := selectedEvents(events)
	if len(selected) != 1 {
		t.Fatalf("expected exactly one SELECTED event, got %d", len(selected))
	}

	// The terminal record carries round+1; the electing round is the
	// first where the reach covers the ring.
	final := selected[0].Round - 1
	if 1<<final+1 < len(ids) {
		t.Errorf("elected at round %d, but 2^%d+1 < %d", final, final, len(ids))
	}
	if final > 1 && 1<<(final-1)+1 >= len(ids) {
		t.Errorf("elected at round %d, but round %d would already have covered the ring", final, final-1)
	}
}

func TestRunElectsUniqueLeader(t *testing.T) {
	for _, nodes := range []int{3, 5, 8} {
		for seed := int64(1); seed <= 3; seed++ {
			events, err := Run(context.Background(), Config{
				Nodes:   nodes,
				Seed:    seed,
				Timeout: 10 * time.Second,
			})
			if err != nil {
				t.Fatalf("n=%d seed=%d: %v", nodes, seed, err)
			}

			selected := selectedEvents(events)
			if len(selected) != 1 {
				t.Fatalf("n=%d seed=%d: %d SELECTED events", nodes, seed, len(selected))
			}

			var maxID int64
			for _, ev := range events {
				if ev.ElectionID > maxID {
					maxID = ev.ElectionID
				}
			}
			if selected[0].ElectionID != maxID {
				t.Errorf("n=%d seed=%d: leader id %d, max id %d", nodes, seed, selected[0].ElectionID, maxID)
			}
		}
	}
}

func TestMergedTraceOrdered(t *testing.T) {
	events := runWithIDs(t, []int64{12, 7, 31, 4, 19})

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.Round > cur.Round {
			t.Fatalf("round order violated at %d: %d after %d", i, cur.Round, prev.Round)
		}
		if prev.Round == cur.Round && prev.Clock > cur.Clock {
			t.Fatalf("clock order violated at %d: %d after %d", i, cur.Clock, prev.Clock)
		}
	}
}

func TestInvalidNodeCount(t *testing.T) {
	_, err := Run(context.Background(), Config{Nodes: 2})
	if !errors.Is(err, ring.ErrInvalidTopology) {
		t.Errorf("got %v, want ErrInvalidTopology", err)
	}
}

func TestProgressReported(t *testing.T) {
	var messages []string
	cfg := Config{
		Nodes:   3,
		Timeout: 10 * time.Second,
		Progress: func(msg string, pct float64) {
			messages = append(messages, msg)
		},
	}.withDefaults()

	if _, err := run(context.Background(), cfg, []int64{5, 9, 2}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	joined := strings.Join(messages, "\n")
	for _, phase := range []string{"Starting name server", "Creating processes", "Creating network", "Running algorithm", "Finishing up"} {
		if !strings.Contains(joined, phase) {
			t.Errorf("progress missing phase %q", phase)
		}
	}
}

func TestWaitForTimeout(t *testing.T) {
	err := waitFor(context.Background(), func() bool { return false }, 5*time.Millisecond, 30*time.Millisecond)
	if !errors.Is(err, ErrElectionTimeout) {
		t.Errorf("got %v, want ErrElectionTimeout", err)
	}
}

func TestWaitForCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitFor(ctx, func() bool { return false }, 5*time.Millisecond, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestWaitForLastChance(t *testing.T) {
	// The condition flips during the final interval; the expiry check
	// must still see it.
	flipAt := time.Now().Add(20 * time.Millisecond)
	err := waitFor(context.Background(), func() bool {
		return time.Now().After(flipAt)
	}, 5*time.Millisecond, 25*time.Millisecond)
	if err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestQuiescenceAfterRun(t *testing.T) {
	dir := nameserver.New()
	defer dir.Close()

	topo, err := ring.Build(ring.Params{Directory: dir, IDs: []int64{5, 9, 2, 7, 3}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := topo.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	winner := topo.Nodes[topo.MaxIDIndex()]
	if err := waitFor(ctx, winner.Elected, 5*time.Millisecond, 10*time.Second); err != nil {
		t.Fatalf("waiting for leader: %v", err)
	}
	if err := topo.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	lens := make([]int, len(topo.Nodes))
	for i, node := range topo.Nodes {
		lens[i] = node.TraceLen()
	}

	time.Sleep(50 * time.Millisecond)

	for i, node := range topo.Nodes {
		if got := node.TraceLen(); got != lens[i] {
			t.Errorf("%s appended %d events after teardown", node.Name(), got-lens[i])
		}
	}
}
