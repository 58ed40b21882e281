// Package metrics holds the prometheus collectors for blockwise runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lintrack"

// block outcomes
const (
	OutcomeSolved  = "solved"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

/*
Collector holds the block processing metrics of one run on its own registry,
so runs (and tests) do not share state through the default registry
*/
type Collector struct {
	Registry        *prometheus.Registry
	BlocksProcessed *prometheus.CounterVec
	BlockDuration   *prometheus.HistogramVec
	NodesRead       prometheus.Counter
	EdgesRead       prometheus.Counter
	SelectedEdges   *prometheus.CounterVec
}

// New is the constructor
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		Registry: reg,
		BlocksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocks",
			Name:      "processed_total",
			Help:      "Blocks processed by step and outcome",
		}, []string{"step", "outcome"}),
		BlockDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "blocks",
			Name:      "duration_seconds",
			Help:      "Time to read, solve and write back one block",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"step"}),
		NodesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes_read_total",
			Help:      "Candidate nodes read from the database",
		}),
		EdgesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges_read_total",
			Help:      "Candidate edges read from the database",
		}),
		SelectedEdges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "selected_edges_written_total",
			Help:      "Selected edges written back, by selection key",
		}, []string{"key"}),
	}
}

// ObserveBlock records the outcome and duration of a block, a nil Collector records nothing
func (c *Collector) ObserveBlock(step, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.BlocksProcessed.WithLabelValues(step, outcome).Inc()
	if outcome != OutcomeSkipped {
		c.BlockDuration.WithLabelValues(step).Observe(took.Seconds())
	}
}

// ObserveRead records the size of a graph read for a block
func (c *Collector) ObserveRead(nodes, edges int) {
	if c == nil {
		return
	}
	c.NodesRead.Add(float64(nodes))
	c.EdgesRead.Add(float64(edges))
}

// ObserveSelected records the number of selected edges written under a key
func (c *Collector) ObserveSelected(key string, edges int) {
	if c == nil {
		return
	}
	c.SelectedEdges.WithLabelValues(key).Add(float64(edges))
}

// WriteToTextfile writes the registry in the text exposition format (for the node exporter textfile collector)
func (c *Collector) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Registry)
}
