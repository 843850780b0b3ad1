// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import "github.com/cockroachdb/errors"

// freezeThreshold returns the number of blocks at which the container asks
// to be frozen: the smaller of the configured block count bound and the
// number of blocks fitting in the tenant's share of its log disk. A tenant
// bound that cannot be computed is logged and ignored.
func (c *Container) freezeThreshold() int64 {
	threshold := c.opts.maxBlockCount()
	if c.opts.TenantConfig == nil {
		return threshold
	}
	size, err := c.opts.TenantConfig.LogDiskSize()
	if err != nil {
		c.opts.Logger.Errorf("[%s] log disk size unavailable, freezing at %d blocks: %v", c.key, threshold, err)
		return threshold
	}
	allowed := int64(float64(size)*c.opts.LogDiskFraction) / c.opts.MacroBlockSize
	if allowed <= 0 {
		c.opts.Logger.Errorf("[%s] log disk of %d bytes holds no blocks, freezing at %d blocks", c.key, size, threshold)
		return threshold
	}
	return min(threshold, allowed)
}

// capacitySnapshot is the container's size as observed before an ingest.
type capacitySnapshot struct {
	blocks    int64
	mem       int64
	threshold int64
}

// capacityLocked samples the block count and memory usage that the freeze
// decision of the next ingest is based on. c.mu must be held.
func (c *Container) capacityLocked(threshold int64) capacitySnapshot {
	return capacitySnapshot{blocks: c.mu.blocks, mem: c.memoryUsedLocked(), threshold: threshold}
}

// maybeRequestFreeze asks the scheduler to freeze and then merge the
// container if, before the ingest of block, it already held threshold blocks
// or reached its memory limit. The block that fills the container is thus
// accepted without a request; the one after it triggers it. At most one
// request is outstanding at a time; a request the scheduler refuses is
// logged and permits the next ingest to try again.
func (c *Container) maybeRequestFreeze(block *Block, snap capacitySnapshot) {
	if !block.CanFreeze {
		return
	}
	c.mu.RLock()
	frozen := c.mu.frozen
	c.mu.RUnlock()
	blocks, mem, threshold := snap.blocks, snap.mem, snap.threshold
	if frozen || (blocks < threshold && mem < c.opts.MemoryLimit) {
		return
	}
	if !c.freezeRequested.CompareAndSwap(false, true) {
		return
	}

	p := MergeParam{Key: c.key, SnapshotVersion: c.snapshotVersion, FormatVersion: c.formatVersion}
	info := FreezeRequestInfo{Key: c.key, BlockCount: blocks, Threshold: threshold, MemoryUsed: mem}
	if err := c.opts.Scheduler.ScheduleFreeze(p); err != nil {
		info.Err = errors.Wrapf(err, "scheduling freeze of %s", c.key)
	} else if err := c.opts.Scheduler.ScheduleMerge(p); err != nil {
		info.Err = errors.Wrapf(err, "scheduling merge of %s", c.key)
	}
	c.counters.freezeSubmissions.Add(1)
	c.opts.Metrics.FreezeSubmissions.Inc()
	if info.Err != nil {
		c.freezeRequested.Store(false)
		c.counters.freezeFailures.Add(1)
		c.opts.Metrics.FreezeSubmissionFailures.Inc()
		c.opts.Logger.Errorf("%s", info)
	}
	c.opts.EventListener.FreezeRequested(info)
}
