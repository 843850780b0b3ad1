// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"github.com/cockroachdb/directload/internal/arenaskl"
	"github.com/cockroachdb/directload/internal/base"
)

// Comparer defines the ordering of row keys. See base.Comparer.
type Comparer = base.Comparer

// DefaultComparer orders row keys datum by datum.
var DefaultComparer = base.DefaultComparer

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
var DefaultLogger = base.DefaultLogger

// RowKey is an ordered sequence of datums identifying a row.
type RowKey = base.RowKey

const (
	defaultMacroBlockSize  = 2 << 20
	defaultMemoryLimit     = 50 << 20
	defaultLogDiskFraction = 0.2
	defaultMaxBlockBytes   = 10 << 30
)

// Options holds the optional parameters and collaborators shared by the
// containers of a process.
//
// EnsureDefaults writes only fields that are unset, so Options that have been
// defaulted once may be shared between goroutines creating containers.
type Options struct {
	// Comparer orders the row keys of row store tables and of the row key
	// carrying column groups of columnar tables.
	//
	// The default value uses the datum order of base.DefaultComparer.
	Comparer *Comparer

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// EventListener provides hooks to listening to significant container
	// events such as a freeze or the release of a container.
	EventListener *EventListener

	// Metrics receives process wide counters. The default is a set of
	// metrics that is not registered with any registry.
	Metrics *Metrics

	// Scheduler accepts the freeze and merge requests of containers that
	// exceed their capacity. Required.
	Scheduler Scheduler

	// LogStreams reports log stream progress to WaitPending. Required.
	LogStreams LogStreamService

	// TenantConfig bounds the block count of a container by the tenant's log
	// disk. Optional.
	TenantConfig TenantConfig

	// Pool recycles released containers. The default is NewPool().
	Pool Pool

	// MacroBlockSize is the size in bytes of one physical block.
	//
	// The default value is 2 MB.
	MacroBlockSize int64

	// MemoryLimit is the memory footprint at which a container requests its
	// own freeze.
	//
	// The default value is 50 MB.
	MemoryLimit int64

	// LogDiskFraction is the fraction of the tenant's log disk worth of blocks
	// a container may hold before it requests its own freeze.
	//
	// The default value is 0.2.
	LogDiskFraction float64

	// MaxBlockBytes bounds the total size of the blocks a container holds
	// before it requests its own freeze.
	//
	// The default value is 10 GB.
	MaxBlockBytes int64

	// ArenaBlockSize is the size of the blocks tree node memory is carved
	// from.
	ArenaBlockSize uint32

	// Testing holds knobs used only by tests.
	Testing struct {
		// MaxBlockCount, if non-zero, replaces the block count bound derived
		// from MaxBlockBytes.
		MaxBlockCount int64
	}
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.Comparer == nil {
		o.Comparer = DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	if o.Pool == nil {
		o.Pool = NewPool()
	}
	if o.MacroBlockSize <= 0 {
		o.MacroBlockSize = defaultMacroBlockSize
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = defaultMemoryLimit
	}
	if o.LogDiskFraction <= 0 {
		o.LogDiskFraction = defaultLogDiskFraction
	}
	if o.MaxBlockBytes <= 0 {
		o.MaxBlockBytes = defaultMaxBlockBytes
	}
	if o.ArenaBlockSize == 0 {
		o.ArenaBlockSize = arenaskl.DefaultBlockSize
	}
}

// Validate verifies that the options are mutually consistent and that every
// required collaborator is present.
func (o *Options) Validate() error {
	switch {
	case o.Scheduler == nil:
		return base.InvalidArgumentf("directload: Options.Scheduler is required")
	case o.LogStreams == nil:
		return base.InvalidArgumentf("directload: Options.LogStreams is required")
	case o.LogDiskFraction > 1:
		return base.InvalidArgumentf("directload: Options.LogDiskFraction %.2f exceeds 1", o.LogDiskFraction)
	case o.MaxBlockBytes < o.MacroBlockSize:
		return base.InvalidArgumentf("directload: Options.MaxBlockBytes %d is smaller than MacroBlockSize %d",
			o.MaxBlockBytes, o.MacroBlockSize)
	case o.Testing.MaxBlockCount < 0:
		return base.InvalidArgumentf("directload: negative Options.Testing.MaxBlockCount %d", o.Testing.MaxBlockCount)
	}
	return nil
}

// maxBlockCount returns the block count bound that does not depend on the
// tenant.
func (o *Options) maxBlockCount() int64 {
	if o.Testing.MaxBlockCount != 0 {
		return o.Testing.MaxBlockCount
	}
	return o.MaxBlockBytes / o.MacroBlockSize
}
