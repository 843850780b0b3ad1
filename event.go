// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"fmt"

	"github.com/cockroachdb/redact"
)

// ContainerInfo contains the info for a container lifecycle event.
type ContainerInfo struct {
	Key             ContainerKey
	SnapshotVersion int64
	// IngestedBlocks is the number of blocks held by the container.
	IngestedBlocks int64
	MinSCN         SCN
	MaxSCN         SCN
	FreezeSCN      SCN
}

func (i ContainerInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i ContainerInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[%s] snapshot=%d blocks=%d scn=[%s,%s] freeze=%s",
		i.Key, redact.Safe(i.SnapshotVersion), redact.Safe(i.IngestedBlocks),
		i.MinSCN, i.MaxSCN, i.FreezeSCN)
}

// RetryReason is the reason a block was rejected with a retryable error.
type RetryReason uint8

const (
	// RetryNewerEpoch means the block belongs to a newer load than the
	// container.
	RetryNewerEpoch RetryReason = iota
	// RetryBeyondFreeze means the block's SCN is beyond the freeze SCN.
	RetryBeyondFreeze
	// RetryClosed means the container no longer accepts blocks.
	RetryClosed
)

func (r RetryReason) String() string {
	switch r {
	case RetryNewerEpoch:
		return "newer-epoch"
	case RetryBeyondFreeze:
		return "beyond-freeze"
	case RetryClosed:
		return "closed"
	default:
		return fmt.Sprintf("RetryReason(%d)", uint8(r))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (r RetryReason) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(r.String()))
}

// IngestRetryInfo contains the info for a block rejected with a retryable
// error.
type IngestRetryInfo struct {
	Key        ContainerKey
	Reason     RetryReason
	BlockSCN   SCN
	BlockEpoch SCN
	FreezeSCN  SCN
}

func (i IngestRetryInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i IngestRetryInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[%s] block rejected (%s): scn=%s epoch=%s freeze=%s",
		i.Key, i.Reason, i.BlockSCN, i.BlockEpoch, i.FreezeSCN)
}

// FreezeRequestInfo contains the info for a freeze requested by a container
// that exceeded its capacity.
type FreezeRequestInfo struct {
	Key        ContainerKey
	BlockCount int64
	Threshold  int64
	MemoryUsed int64
	// Err is set if the scheduler refused the freeze or the merge.
	Err error
}

func (i FreezeRequestInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i FreezeRequestInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("[%s] freeze request failed: blocks=%d/%d memory=%d: %s",
			i.Key, redact.Safe(i.BlockCount), redact.Safe(i.Threshold), redact.Safe(i.MemoryUsed), i.Err)
		return
	}
	w.Printf("[%s] freeze requested: blocks=%d/%d memory=%d",
		i.Key, redact.Safe(i.BlockCount), redact.Safe(i.Threshold), redact.Safe(i.MemoryUsed))
}

// FreezeInfo contains the info for a container freeze.
type FreezeInfo struct {
	Key       ContainerKey
	FreezeSCN SCN
	// Explicit is true if the caller supplied the freeze SCN.
	Explicit   bool
	BlockCount int64
}

func (i FreezeInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i FreezeInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Explicit {
		w.Printf("[%s] frozen at %s (explicit): blocks=%d", i.Key, i.FreezeSCN, redact.Safe(i.BlockCount))
		return
	}
	w.Printf("[%s] frozen at %s: blocks=%d", i.Key, i.FreezeSCN, redact.Safe(i.BlockCount))
}

// EventListener contains a set of functions that will be invoked when
// various significant container events occur. Note that the functions should
// not run for an excessive amount of time as they are invoked synchronously
// by the container and may block continued operation. The functions are
// never invoked while the container's lock is held.
type EventListener struct {
	// BackgroundError is invoked whenever an error occurs outside of the
	// caller's control, such as a scheduler refusing a freeze request.
	BackgroundError func(error)

	// ContainerCreated is invoked after a container has been initialized.
	ContainerCreated func(ContainerInfo)

	// IngestRetry is invoked whenever a block is rejected with a retryable
	// error.
	IngestRetry func(IngestRetryInfo)

	// FreezeRequested is invoked after a container exceeding its capacity
	// submitted a freeze request, whether or not the submission succeeded.
	FreezeRequested func(FreezeRequestInfo)

	// Frozen is invoked after a container has been frozen.
	Frozen func(FreezeInfo)

	// Closed is invoked after a container has been closed.
	Closed func(ContainerInfo)

	// Released is invoked after the last reference to a container has been
	// dropped, before it is returned to its pool.
	Released func(ContainerInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.BackgroundError == nil {
		if logger != nil {
			l.BackgroundError = func(err error) {
				logger.Errorf("background error: %s", err)
			}
		} else {
			l.BackgroundError = func(error) {}
		}
	}
	if l.ContainerCreated == nil {
		l.ContainerCreated = func(info ContainerInfo) {}
	}
	if l.IngestRetry == nil {
		l.IngestRetry = func(info IngestRetryInfo) {}
	}
	if l.FreezeRequested == nil {
		l.FreezeRequested = func(info FreezeRequestInfo) {}
	}
	if l.Frozen == nil {
		l.Frozen = func(info FreezeInfo) {}
	}
	if l.Closed == nil {
		l.Closed = func(info ContainerInfo) {}
	}
	if l.Released == nil {
		l.Released = func(info ContainerInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger
	}

	return EventListener{
		BackgroundError: func(err error) {
			logger.Errorf("background error: %s", err)
		},
		ContainerCreated: func(info ContainerInfo) {
			logger.Infof("container created %s", info)
		},
		IngestRetry: func(info IngestRetryInfo) {
			logger.Infof("%s", info)
		},
		FreezeRequested: func(info FreezeRequestInfo) {
			if info.Err != nil {
				logger.Errorf("%s", info)
				return
			}
			logger.Infof("%s", info)
		},
		Frozen: func(info FreezeInfo) {
			logger.Infof("%s", info)
		},
		Closed: func(info ContainerInfo) {
			logger.Infof("container closed %s", info)
		},
		Released: func(info ContainerInfo) {
			logger.Infof("container released %s", info)
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		BackgroundError: func(err error) {
			a.BackgroundError(err)
			b.BackgroundError(err)
		},
		ContainerCreated: func(info ContainerInfo) {
			a.ContainerCreated(info)
			b.ContainerCreated(info)
		},
		IngestRetry: func(info IngestRetryInfo) {
			a.IngestRetry(info)
			b.IngestRetry(info)
		},
		FreezeRequested: func(info FreezeRequestInfo) {
			a.FreezeRequested(info)
			b.FreezeRequested(info)
		},
		Frozen: func(info FreezeInfo) {
			a.Frozen(info)
			b.Frozen(info)
		},
		Closed: func(info ContainerInfo) {
			a.Closed(info)
			b.Closed(info)
		},
		Released: func(info ContainerInfo) {
			a.Released(info)
			b.Released(info)
		},
	}
}
