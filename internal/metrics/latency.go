package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// LatencyTracker tracks latency quantiles per operation using DDSketch.
// A nil tracker is valid and records nothing.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

// NewLatencyTracker creates a new latency tracker with DDSketch.
// relativeAccuracy determines the accuracy of quantile estimates (e.g., 0.01 = 1% accuracy)
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration for the given operation.
func (lt *LatencyTracker) Record(operation string, duration time.Duration) {
	if lt == nil {
		return
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}

	// milliseconds
	_ = sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// Quantile returns the value in milliseconds at quantile q for operation.
func (lt *LatencyTracker) Quantile(operation string, q float64) (float64, error) {
	if lt == nil {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, exists := lt.sketches[operation]
	if !exists {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}
	return sketch.GetValueAtQuantile(q)
}

// Stats summarizes one operation's latency distribution in milliseconds.
type Stats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P90       float64
	P99       float64
	Max       float64
}

func (lt *LatencyTracker) statsLocked(operation string) Stats {
	sketch := lt.sketches[operation]
	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}
	}

	min, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return Stats{
		Operation: operation,
		Count:     int64(count),
		Min:       min,
		P50:       p50,
		P90:       p90,
		P99:       p99,
		Max:       max,
	}
}

// Stats returns statistics for the given operation.
func (lt *LatencyTracker) Stats(operation string) (Stats, error) {
	if lt == nil {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if _, exists := lt.sketches[operation]; !exists {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}
	return lt.statsLocked(operation), nil
}

// AllStats returns statistics for every tracked operation, sorted by name.
func (lt *LatencyTracker) AllStats() []Stats {
	if lt == nil {
		return nil
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	ops := make([]string, 0, len(lt.sketches))
	for op := range lt.sketches {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	stats := make([]Stats, 0, len(ops))
	for _, op := range ops {
		stats = append(stats, lt.statsLocked(op))
	}
	return stats
}

// Summary renders AllStats one operation per line.
func (lt *LatencyTracker) Summary() string {
	var b strings.Builder
	for _, s := range lt.AllStats() {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("  %s: no data", s.Operation)
	}
	return fmt.Sprintf("  %s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}
