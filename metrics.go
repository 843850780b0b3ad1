// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"sync/atomic"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "directload"

// Metrics holds the process wide counters of every container sharing an
// Options.
type Metrics struct {
	IngestedBlocks           prometheus.Counter
	IngestRetries            *prometheus.CounterVec
	StaleBlocks              prometheus.Counter
	FreezeSubmissions        prometheus.Counter
	FreezeSubmissionFailures prometheus.Counter
	ContainersReleased       prometheus.Counter
	// IngestLatency observes the duration of Ingest calls in seconds.
	IngestLatency prometheus.Histogram
}

// NewMetrics constructs the metrics and registers them with reg, unless reg
// is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingested_blocks_total",
			Help:      "Number of blocks added to a container.",
		}),
		IngestRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_retries_total",
			Help:      "Number of blocks rejected with a retryable error.",
		}, []string{"reason"}),
		StaleBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_blocks_total",
			Help:      "Number of blocks from an older load that were dropped.",
		}),
		FreezeSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "freeze_submissions_total",
			Help:      "Number of freeze requests submitted by containers exceeding their capacity.",
		}),
		FreezeSubmissionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "freeze_submission_failures_total",
			Help:      "Number of freeze or merge requests refused by the scheduler.",
		}),
		ContainersReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "containers_released_total",
			Help:      "Number of containers returned to their pool.",
		}),
		IngestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_latency_seconds",
			Help:      "Latency of Ingest calls.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.IngestedBlocks,
			m.IngestRetries,
			m.StaleBlocks,
			m.FreezeSubmissions,
			m.FreezeSubmissionFailures,
			m.ContainersReleased,
			m.IngestLatency,
		)
	}
	return m
}

// containerCounters are the per container counts behind ContainerMetrics.
type containerCounters struct {
	retries           atomic.Int64
	stale             atomic.Int64
	freezeSubmissions atomic.Int64
	freezeFailures    atomic.Int64
}

func (c *containerCounters) reset() {
	c.retries.Store(0)
	c.stale.Store(0)
	c.freezeSubmissions.Store(0)
	c.freezeFailures.Store(0)
}

// ContainerMetrics is a point in time snapshot of a container.
type ContainerMetrics struct {
	IngestedBlocks    int64
	Memtables         int
	MemoryUsed        int64
	Retries           int64
	StaleBlocks       int64
	FreezeSubmissions int64
	FreezeFailures    int64
	Refs              int64
	Pending           int64
}

func (m ContainerMetrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m ContainerMetrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("blocks: %s in %d memtables (%s)\n",
		crhumanize.Count(m.IngestedBlocks, crhumanize.Compact),
		redact.Safe(m.Memtables),
		crhumanize.Bytes(m.MemoryUsed, crhumanize.Compact, crhumanize.OmitI))
	w.Printf("rejected: %s retryable, %s stale\n",
		crhumanize.Count(m.Retries, crhumanize.Compact),
		crhumanize.Count(m.StaleBlocks, crhumanize.Compact))
	w.Printf("freeze requests: %d (%d failed)\n",
		redact.Safe(m.FreezeSubmissions), redact.Safe(m.FreezeFailures))
	w.Printf("refs: %d pending: %d\n", redact.Safe(m.Refs), redact.Safe(m.Pending))
}
