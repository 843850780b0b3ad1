// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"testing"

	"github.com/cockroachdb/directload/internal/arenaskl"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	var o Options
	o.EnsureDefaults()
	require.Same(t, DefaultComparer, o.Comparer)
	require.Equal(t, DefaultLogger, o.Logger)
	require.NotNil(t, o.EventListener)
	require.NotNil(t, o.EventListener.Frozen)
	require.NotNil(t, o.Metrics)
	require.NotNil(t, o.Pool)
	require.Equal(t, int64(2<<20), o.MacroBlockSize)
	require.Equal(t, int64(50<<20), o.MemoryLimit)
	require.Equal(t, 0.2, o.LogDiskFraction)
	require.Equal(t, int64(10<<30), o.MaxBlockBytes)
	require.Equal(t, uint32(arenaskl.DefaultBlockSize), o.ArenaBlockSize)
	require.Equal(t, int64(5120), o.maxBlockCount())

	// Defaulting twice leaves the options unchanged.
	pool, metrics := o.Pool, o.Metrics
	o.EnsureDefaults()
	require.Same(t, pool, o.Pool)
	require.Same(t, metrics, o.Metrics)

	o.Testing.MaxBlockCount = 7
	require.Equal(t, int64(7), o.maxBlockCount())
}

func TestOptionsValidate(t *testing.T) {
	valid := func() *Options {
		o := &Options{Scheduler: &fakeScheduler{}, LogStreams: &fakeLogStreams{}}
		o.EnsureDefaults()
		return o
	}
	require.NoError(t, valid().Validate())

	for _, fn := range []func(o *Options){
		func(o *Options) { o.Scheduler = nil },
		func(o *Options) { o.LogStreams = nil },
		func(o *Options) { o.LogDiskFraction = 1.5 },
		func(o *Options) { o.MaxBlockBytes = o.MacroBlockSize - 1 },
		func(o *Options) { o.Testing.MaxBlockCount = -1 },
	} {
		o := valid()
		fn(o)
		require.True(t, errors.Is(o.Validate(), ErrInvalidArgument))
	}
}
