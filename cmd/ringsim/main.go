// Command ringsim runs one Hirschberg–Sinclair leader election on a
// simulated ring and emits the merged trace for the visualizer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/viktor-platform/sample-distributed-algorithms/election"
	"github.com/viktor-platform/sample-distributed-algorithms/trace"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	nodes := flag.Int("nodes", envInt("NODES", 9), "number of nodes in the ring (3..99)")
	timeout := flag.Duration("timeout", envDuration("TIMEOUT", election.DefaultTimeout), "bound on the wait for a leader")
	poll := flag.Duration("poll", envDuration("POLL_INTERVAL", election.DefaultPollInterval), "interval between termination checks")
	seed := flag.Int64("seed", envInt64("SEED", 0), "id generation seed (0 = time based)")
	out := flag.String("out", os.Getenv("TRACE_FILE"), "trace output file (JSONL); empty prints a table")
	flag.Parse()

	logger := log.New(os.Stderr, "[ringsim] ", log.LstdFlags)

	events, err := election.Run(context.Background(), election.Config{
		Nodes:        *nodes,
		Timeout:      *timeout,
		PollInterval: *poll,
		Seed:         *seed,
		Logger:       logger,
		Progress: func(msg string, pct float64) {
			if pct < 0 {
				logger.Print(msg)
				return
			}
			logger.Printf("%s (%.0f%%)", msg, pct)
		},
	})
	if err != nil {
		logger.Fatalf("election failed: %v", err)
	}

	for _, ev := range events {
		if ev.State == trace.StateSelected {
			logger.Printf("leader: %s (id %d), elected in round %d", ev.Name, ev.ElectionID, ev.Round-1)
		}
	}

	if *out != "" {
		if err := trace.WriteFile(*out, events); err != nil {
			logger.Fatalf("write trace: %v", err)
		}
		logger.Printf("trace written to %s (%d events)", *out, len(events))
		return
	}

	fmt.Println("name\tid\tround\tclock\tstate")
	for _, ev := range events {
		fmt.Printf("%s\t%d\t%d\t%d\t%s\n", ev.Name, ev.ElectionID, ev.Round, ev.Clock, ev.State)
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
