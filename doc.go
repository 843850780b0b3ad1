// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package directload buffers the metadata of blocks produced by a bulk load
// until they are merged into a durable table.
//
// A load writes fully encoded blocks straight to storage and hands their
// metadata to a Container, which indexes it per column group in a Memtable.
// Each Memtable keeps a blockmeta.Tree ordered by the blocks' end row keys,
// or for column groups without a row key, by the blocks' ending row offsets.
//
// A Container moves through a simple lifecycle:
//
//	Active -> Frozen -> Closed
//
// Freezing fixes the SCN beyond which no block may be added. Blocks at or
// below the freeze SCN are still accepted while in-flight writers drain.
// WaitPending reports when the log stream has decided every position up to
// the freeze SCN and no writer is pending, after which Close stamps the SCN
// range on every memtable and rejects all further blocks. A container that
// grows past its block count or memory limit requests its own freeze and a
// merge through the configured Scheduler.
//
// Containers are reference counted. When the last reference is dropped the
// container is handed back to its Pool.
//
// Operations never block waiting for another operation to complete. Outcomes
// that require waiting are reported with an error satisfying IsRetryable and
// the caller polls again.
package directload
