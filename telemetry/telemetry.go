// Package telemetry exports interpreter heap and collector statistics as
// Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chazu/ferry/vm"
)

const namespace = "ferry"

// Collector is a prometheus.Collector over one interpreter. It only reads
// the heap's atomic counters, so scraping from another goroutine is safe
// while the interpreter runs.
type Collector struct {
	heap *vm.Heap
	gc   *vm.Collector

	liveSlots   *prometheus.Desc
	maxSlots    *prometheus.Desc
	stringBytes *prometheus.Desc
	allocated   *prometheus.Desc
	gcRuns      *prometheus.Desc
	gcFreed     *prometheus.Desc
	gcLastPause *prometheus.Desc
}

// NewCollector returns a collector for mrb. constLabels are attached to
// every metric (for example an interpreter name).
func NewCollector(mrb *vm.Interpreter, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	return &Collector{
		heap:        mrb.Heap(),
		gc:          mrb.Collector(),
		liveSlots:   desc("heap_live_slots", "Number of live heap slots."),
		maxSlots:    desc("heap_max_slots", "Configured heap slot limit (0 = unlimited)."),
		stringBytes: desc("heap_string_bytes", "Bytes of string buffer capacity owned by the heap."),
		allocated:   desc("heap_allocated_slots_total", "Heap slots allocated since the interpreter opened."),
		gcRuns:      desc("gc_runs_total", "Completed garbage collections."),
		gcFreed:     desc("gc_freed_slots_total", "Heap slots reclaimed by the collector."),
		gcLastPause: desc("gc_last_pause_seconds", "Duration of the most recent collection."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.liveSlots
	ch <- c.maxSlots
	ch <- c.stringBytes
	ch <- c.allocated
	ch <- c.gcRuns
	ch <- c.gcFreed
	ch <- c.gcLastPause
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.heap.Stats()
	ch <- prometheus.MustNewConstMetric(c.liveSlots, prometheus.GaugeValue, float64(st.LiveSlots))
	ch <- prometheus.MustNewConstMetric(c.maxSlots, prometheus.GaugeValue, float64(st.MaxSlots))
	ch <- prometheus.MustNewConstMetric(c.stringBytes, prometheus.GaugeValue, float64(st.StringBytes))
	ch <- prometheus.MustNewConstMetric(c.allocated, prometheus.CounterValue, float64(st.Allocated))
	ch <- prometheus.MustNewConstMetric(c.gcRuns, prometheus.CounterValue, float64(c.gc.Runs()))
	ch <- prometheus.MustNewConstMetric(c.gcFreed, prometheus.CounterValue, float64(c.gc.FreedTotal()))

	var pause float64
	if last := c.gc.LastStats(); last != nil {
		pause = last.Duration.Seconds()
	}
	ch <- prometheus.MustNewConstMetric(c.gcLastPause, prometheus.GaugeValue, pause)
}

// NewRegistry returns a registry holding mrb's collector and the standard
// Go runtime and process collectors.
func NewRegistry(mrb *vm.Interpreter, constLabels prometheus.Labels) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewCollector(mrb, constLabels),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WriteTextfile writes reg's metrics to path in the text exposition
// format, for node-exporter style collection.
func WriteTextfile(path string, reg prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, reg)
}
