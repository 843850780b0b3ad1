// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLoad(t *testing.T) {
	saved, savedConcurrency := loadConfig, concurrency
	defer func() { loadConfig, concurrency = saved, savedConcurrency }()

	for _, groups := range []int{0, 2} {
		loadConfig.blocks = 200
		loadConfig.rate = 0
		loadConfig.maxBlocks = 50
		loadConfig.maxBlockBytes = 10 << 30
		loadConfig.columnGroups = groups
		loadConfig.rowKeyColumns = 2
		concurrency = 4

		var buf bytes.Buffer
		require.NoError(t, runLoad(context.Background(), &buf))
		out := buf.String()
		require.Contains(t, out, "INGESTED")
		require.Contains(t, out, "memtable memory:")
	}
}

func TestRunLoadInvalidFlags(t *testing.T) {
	saved := loadConfig
	defer func() { loadConfig = saved }()

	loadConfig.rowKeyColumns = 0
	require.Error(t, runLoad(context.Background(), &bytes.Buffer{}))
}
