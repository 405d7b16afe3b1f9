// Package loadtest simulates many contexts writing to one store at once.
//
// Every context keeps its own repository cache and persists the full
// collection on each write, so concurrent writers overwrite each other.
// The report counts how many acknowledged writes survived, which makes the
// last-writer-wins cost visible for a given backend and concurrency level.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/itemstore"
	"github.com/formpal/formpal/internal/repository"
	"github.com/formpal/formpal/internal/store"
)

// Options controls a run.
type Options struct {
	// Contexts is the number of simulated contexts (default 10)
	Contexts int

	// WritesPerContext is how many items each context adds (default 10)
	WritesPerContext int

	// ReloadBeforeWrite makes each context Load right before every Add,
	// narrowing the window in which another write can be lost.
	ReloadBeforeWrite bool

	// Hub, if set, gives every context a broadcast endpoint
	Hub *broadcast.LocalHub
}

func (o Options) withDefaults() Options {
	if o.Contexts <= 0 {
		o.Contexts = 10
	}
	if o.WritesPerContext <= 0 {
		o.WritesPerContext = 10
	}
	return o
}

// LatencyStats captures write latency from a run.
type LatencyStats struct {
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
	P50         time.Duration // Median
	P95         time.Duration
	P99         time.Duration
	TotalWrites int
	Errors      int
}

// Report summarizes a run.
type Report struct {
	Contexts  int
	Attempted int
	Succeeded int
	Persisted int
	Lost      int
	Elapsed   time.Duration
	Latency   *LatencyStats
}

// Run starts opts.Contexts repositories over s and has each add
// opts.WritesPerContext items concurrently.
func Run(ctx context.Context, s store.Store, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	repos := make([]*repository.Repository, opts.Contexts)
	for i := range repos {
		var pub repository.Publisher
		if opts.Hub != nil {
			ep := opts.Hub.Endpoint(fmt.Sprintf("loadtest-%d", i))
			defer ep.Close()
			pub = ep
		}
		repos[i] = repository.New(itemstore.New(s, nil), pub, nil)
		if _, err := repos[i].Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load context %d: %w", i, err)
		}
	}

	baseline := len(repos[0].Items())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var durations []time.Duration
	errorCount := 0

	start := time.Now()
	for i, repo := range repos {
		wg.Add(1)
		go func(contextID int, repo *repository.Repository) {
			defer wg.Done()

			local := make([]time.Duration, 0, opts.WritesPerContext)
			failed := 0
			for j := 0; j < opts.WritesPerContext; j++ {
				if ctx.Err() != nil {
					break
				}
				begin := time.Now()
				if opts.ReloadBeforeWrite {
					if _, err := repo.Load(ctx); err != nil {
						failed++
						continue
					}
				}
				_, err := repo.Add(ctx,
					fmt.Sprintf("Load test question %d.%d", contextID, j),
					fmt.Sprintf("answer from context %d", contextID))
				if err != nil {
					failed++
					continue
				}
				local = append(local, time.Since(begin))
			}

			mu.Lock()
			durations = append(durations, local...)
			errorCount += failed
			mu.Unlock()
		}(i, repo)
	}
	wg.Wait()
	elapsed := time.Since(start)

	final, err := itemstore.New(s, nil).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final collection: %w", err)
	}

	report := &Report{
		Contexts:  opts.Contexts,
		Attempted: opts.Contexts * opts.WritesPerContext,
		Succeeded: len(durations),
		Persisted: len(final) - baseline,
		Elapsed:   elapsed,
		Latency:   computeLatencyStats(durations),
	}
	report.Latency.Errors = errorCount
	report.Lost = report.Succeeded - report.Persisted
	if report.Lost < 0 {
		report.Lost = 0
	}
	return report, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        sum / time.Duration(len(durations)),
		P50:         sorted[len(sorted)*50/100],
		P95:         sorted[len(sorted)*95/100],
		P99:         sorted[len(sorted)*99/100],
		TotalWrites: len(durations),
	}
}

// Print formats the report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Contexts:        %d\n", r.Contexts)
	fmt.Fprintf(w, "Writes:          %d attempted, %d acknowledged\n", r.Attempted, r.Succeeded)
	fmt.Fprintf(w, "Persisted:       %d\n", r.Persisted)
	fmt.Fprintf(w, "Lost updates:    %d\n", r.Lost)
	fmt.Fprintf(w, "Elapsed:         %v\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Write latency:\n")
	fmt.Fprintf(w, "  Errors:        %d\n", r.Latency.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", r.Latency.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Latency.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", r.Latency.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", r.Latency.P95)
	fmt.Fprintf(w, "  P99:           %v\n", r.Latency.P99)
	fmt.Fprintf(w, "  Max:           %v\n", r.Latency.Max)
}
