package obs

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Label is one name/value pair attached to a metric sample. Families in this
// package carry dynamic label sets: the correlation labels are attached to a
// sample only when their value is non-empty, so a sample recorded without
// context stays a coarse aggregate.
type Label struct {
	Name  string
	Value string
}

const labelSep = "\xff"

func sampleKey(labels []Label) string {
	var sb strings.Builder

	for _, l := range labels {
		sb.WriteString(l.Name)
		sb.WriteString(labelSep)
		sb.WriteString(l.Value)
		sb.WriteString(labelSep)
	}

	return sb.String()
}

func splitLabels(labels []Label) ([]string, []string) {
	names := make([]string, len(labels))
	values := make([]string, len(labels))

	for i, l := range labels {
		names[i] = l.Name
		values[i] = l.Value
	}

	return names, values
}

// counterFamily is a counter metric family whose samples may carry different
// label sets. It implements prometheus.Collector as an unchecked collector;
// consistency within the family (one name, one help, one type) is upheld by
// construction.
type counterFamily struct {
	name string
	help string

	mu      sync.Mutex
	samples map[string]*counterSample
}

type counterSample struct {
	labels []Label
	value  float64
}

func newCounterFamily(name, help string) *counterFamily {
	return &counterFamily{
		name:    name,
		help:    help,
		samples: make(map[string]*counterSample),
	}
}

func (f *counterFamily) Inc(labels []Label) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := sampleKey(labels)

	sample, ok := f.samples[key]
	if !ok {
		sample = &counterSample{labels: labels}
		f.samples[key] = sample
	}

	sample.value++
}

func (f *counterFamily) Describe(_ chan<- *prometheus.Desc) {
	// Unchecked collector: label dimensions vary per sample.
}

func (f *counterFamily) Collect(ch chan<- prometheus.Metric) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sample := range f.samples {
		names, values := splitLabels(sample.labels)
		desc := prometheus.NewDesc(f.name, f.help, names, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, sample.value, values...)
	}
}

// histogramFamily is the histogram counterpart of counterFamily. Bucket
// counts are stored cumulatively, matching the exposition format.
type histogramFamily struct {
	name    string
	help    string
	bounds  []float64
	mu      sync.Mutex
	samples map[string]*histogramSample
}

type histogramSample struct {
	labels  []Label
	buckets map[float64]uint64
	sum     float64
	count   uint64
}

func newHistogramFamily(name, help string, bounds []float64) *histogramFamily {
	return &histogramFamily{
		name:    name,
		help:    help,
		bounds:  bounds,
		samples: make(map[string]*histogramSample),
	}
}

func (f *histogramFamily) Observe(labels []Label, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := sampleKey(labels)

	sample, ok := f.samples[key]
	if !ok {
		sample = &histogramSample{
			labels:  labels,
			buckets: make(map[float64]uint64, len(f.bounds)),
		}
		f.samples[key] = sample
	}

	for _, bound := range f.bounds {
		if value <= bound {
			sample.buckets[bound]++
		}
	}

	sample.sum += value
	sample.count++
}

func (f *histogramFamily) Describe(_ chan<- *prometheus.Desc) {
	// Unchecked collector: label dimensions vary per sample.
}

func (f *histogramFamily) Collect(ch chan<- prometheus.Metric) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sample := range f.samples {
		names, values := splitLabels(sample.labels)
		desc := prometheus.NewDesc(f.name, f.help, names, nil)

		buckets := make(map[float64]uint64, len(f.bounds))
		for bound, count := range sample.buckets {
			buckets[bound] = count
		}

		ch <- prometheus.MustNewConstHistogram(desc, sample.count, sample.sum, buckets, values...)
	}
}
