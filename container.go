// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/directload/blockmeta"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/swiss"
)

// State is the lifecycle state of a Container.
type State uint8

const (
	// StateActive accepts blocks at any SCN.
	StateActive State = iota
	// StateFreezing is an active container that has asked the scheduler to
	// freeze it.
	StateFreezing
	// StateFrozen accepts blocks at or below the freeze SCN.
	StateFrozen
	// StateClosed accepts no blocks.
	StateClosed
	// StateDestroyed is a container whose last reference has been dropped.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFreezing:
		return "freezing"
	case StateFrozen:
		return "frozen"
	case StateClosed:
		return "closed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// SafeFormat implements redact.SafeFormatter.
func (s State) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// CreateParams identify a container and the load it buffers.
type CreateParams struct {
	LSID      LSID
	TabletID  TabletID
	LoadEpoch SCN
	// SnapshotVersion is the commit version of the loaded data. Every block
	// must be ingested with the same version.
	SnapshotVersion int64
	// PriorFreezeSCN is the freeze SCN of the container this one succeeds,
	// and the lower end of the SCN range of its memtables.
	PriorFreezeSCN SCN
	// FormatVersion is the data format of the load. Every block must be
	// ingested with the same version.
	FormatVersion uint64
}

// Container buffers the block metadata of one load of one tablet, one
// Memtable per column group, until the load's blocks are merged into a
// durable table.
//
// Ingest, Freeze and Close serialize on an exclusive lock. Reads of the
// memtables' trees take no container lock.
type Container struct {
	opts            *Options
	key             ContainerKey
	snapshotVersion int64
	formatVersion   uint64
	priorFreezeSCN  SCN

	// refs counts the holders of the container. Dropping the last one
	// releases the container to its pool.
	refs atomic.Int64
	// pending counts writers that have reserved a place in the log but not
	// yet ingested their block. WaitPending does not succeed while it is
	// non-zero.
	pending  atomic.Int64
	released atomic.Bool
	// freezeRequested is set while a capacity triggered freeze request is
	// outstanding. A refused request clears it.
	freezeRequested atomic.Bool
	counters        containerCounters

	mu struct {
		sync.RWMutex
		inited bool
		frozen bool
		closed bool
		// freezeSCN is SCNMax until the container is frozen.
		freezeSCN SCN
		// minSCN and maxSCN are SCNMax and SCNMin respectively until the
		// first block is ingested.
		minSCN    SCN
		maxSCN    SCN
		blocks    int64
		memtables swiss.Map[int64, *Memtable]
	}
}

// Create acquires a container from opts.Pool and initializes it. opts must
// outlive the container.
func Create(opts *Options, p CreateParams) (*Container, error) {
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := opts.Pool.Acquire()
	if err := c.Init(opts, p); err != nil {
		opts.Pool.Release(c)
		return nil, err
	}
	return c, nil
}

// Init initializes a container obtained without Create. opts must have been
// defaulted and validated.
func (c *Container) Init(opts *Options, p CreateParams) error {
	c.mu.Lock()
	if c.mu.inited {
		c.mu.Unlock()
		return errors.Mark(errors.Newf("container %s already initialized", c.key), base.ErrAlreadyInitialized)
	}
	key := ContainerKey{LSID: p.LSID, TabletID: p.TabletID, LoadEpoch: p.LoadEpoch}
	if !key.Valid() || p.SnapshotVersion <= 0 || !p.PriorFreezeSCN.IsValidAndNotMin() || p.FormatVersion == 0 {
		c.mu.Unlock()
		return base.InvalidArgumentf("invalid container parameters: %s snapshot=%d prior-freeze=%s format=%d",
			key, p.SnapshotVersion, p.PriorFreezeSCN, p.FormatVersion)
	}
	c.opts = opts
	c.key = key
	c.snapshotVersion = p.SnapshotVersion
	c.formatVersion = p.FormatVersion
	c.priorFreezeSCN = p.PriorFreezeSCN
	c.refs.Store(0)
	c.pending.Store(0)
	c.released.Store(false)
	c.freezeRequested.Store(false)
	c.counters.reset()
	c.mu.frozen = false
	c.mu.closed = false
	c.mu.freezeSCN = SCNMax
	c.mu.minSCN = SCNMax
	c.mu.maxSCN = SCNMin
	c.mu.blocks = 0
	c.mu.memtables.Init(4)
	c.mu.inited = true
	info := c.infoLocked()
	c.mu.Unlock()

	opts.EventListener.ContainerCreated(info)
	return nil
}

// Reset releases every memtable and returns the container to its
// uninitialized state. Pools call it on release. There must be no other
// users of the container.
func (c *Container) Reset() {
	c.reset()
}

func (c *Container) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.inited {
		c.mu.memtables.All(func(_ int64, m *Memtable) bool {
			m.Reset()
			return true
		})
		c.mu.memtables.Close()
	}
	c.mu.inited = false
	c.mu.frozen = false
	c.mu.closed = false
	c.mu.freezeSCN = SCNMax
	c.mu.minSCN = SCNMax
	c.mu.maxSCN = SCNMin
	c.mu.blocks = 0
	c.key = ContainerKey{}
	c.snapshotVersion = 0
	c.formatVersion = 0
	c.priorFreezeSCN = SCNInvalid
	c.pending.Store(0)
	c.freezeRequested.Store(false)
	c.counters.reset()
}

// Ingest adds block to the memtable of its column group, creating the
// memtable on first use from tablet's storage schema. On success the
// container owns block.Handle. Blocks of an older load are dropped: their
// handle is released and nil is returned.
//
// Whether or not the block is accepted, a container that had already reached
// its block count or memory bound before the call asks the scheduler to
// freeze and merge it, if the block permits.
func (c *Container) Ingest(tablet Tablet, block *Block, snapshotVersion int64, formatVersion uint64) error {
	start := crtime.NowMono()
	if !c.initialized() {
		return errors.Mark(errors.New("container not initialized"), base.ErrNotInitialized)
	}
	if tablet == nil || !block.Valid() || snapshotVersion <= 0 || formatVersion == 0 {
		return base.InvalidArgumentf("invalid block for %s: snapshot=%d format=%d", c.key, snapshotVersion, formatVersion)
	}
	threshold := c.freezeThreshold()
	c.mu.RLock()
	snap := c.capacityLocked(threshold)
	c.mu.RUnlock()
	err := c.ingest(tablet, block, snapshotVersion, formatVersion)
	c.maybeRequestFreeze(block, snap)
	c.opts.Metrics.IngestLatency.Observe(start.Elapsed().Seconds())
	return err
}

func (c *Container) ingest(tablet Tablet, block *Block, snapshotVersion int64, formatVersion uint64) error {
	c.mu.Lock()
	if snapshotVersion != c.snapshotVersion || formatVersion != c.formatVersion {
		c.mu.Unlock()
		err := base.Unexpectedf("block version mismatch for %s: snapshot=%d/%d format=%d/%d",
			c.key, snapshotVersion, c.snapshotVersion, formatVersion, c.formatVersion)
		c.opts.Logger.Errorf("%v", err)
		return err
	}
	if block.LoadEpoch != c.key.LoadEpoch {
		if block.LoadEpoch > c.key.LoadEpoch {
			return c.rejectLocked(block, RetryNewerEpoch)
		}
		c.mu.Unlock()
		c.counters.stale.Add(1)
		c.opts.Metrics.StaleBlocks.Inc()
		c.opts.Logger.Infof("[%s] dropping block %s of older load %s", c.key, block.Meta, block.LoadEpoch)
		block.Handle.Release()
		return nil
	}
	if c.mu.closed {
		return c.rejectLocked(block, RetryClosed)
	}
	if block.SCN > c.mu.freezeSCN {
		return c.rejectLocked(block, RetryBeyondFreeze)
	}
	defer c.mu.Unlock()
	if id := tablet.TabletID(); id != c.key.TabletID {
		return base.InvalidArgumentf("block of tablet %d ingested into %s", id, c.key)
	}
	m, created, err := c.memtableLocked(tablet, block.GroupID)
	if err != nil {
		return err
	}
	if err := c.insertLocked(m, block); err != nil {
		// Only groups holding blocks have a memtable. No reader can have
		// seen one created under this lock.
		if created {
			c.mu.memtables.Delete(block.GroupID)
			m.Reset()
		}
		return err
	}
	c.mu.minSCN = base.MinSCN(c.mu.minSCN, block.SCN)
	c.mu.maxSCN = base.MaxSCN(c.mu.maxSCN, block.SCN)
	c.mu.blocks++
	c.opts.Metrics.IngestedBlocks.Inc()
	return nil
}

// rejectLocked unlocks c.mu and returns a retryable error for block.
func (c *Container) rejectLocked(block *Block, reason RetryReason) error {
	info := IngestRetryInfo{
		Key:        c.key,
		Reason:     reason,
		BlockSCN:   block.SCN,
		BlockEpoch: block.LoadEpoch,
		FreezeSCN:  c.mu.freezeSCN,
	}
	c.mu.Unlock()
	c.counters.retries.Add(1)
	c.opts.Metrics.IngestRetries.WithLabelValues(reason.String()).Inc()
	c.opts.EventListener.IngestRetry(info)
	return base.Retryablef("%s", info)
}

// insertLocked derives the key block is ordered by in m and inserts it.
// c.mu must be held exclusively.
func (c *Container) insertLocked(m *Memtable, block *Block) error {
	meta := block.Meta.Clone()
	if meta.EndKey.Len() == 0 {
		return base.Unexpectedf("block %s has an empty end key", meta)
	}
	if m.RowOffsetKeyed() {
		if block.EndRowID < 0 {
			return base.Unexpectedf("block %s of column group %d has no row offset", meta, block.GroupID)
		}
		meta.EndKey = meta.EndKey.WithLeading(base.IntDatum(block.EndRowID))
	}
	if err := m.Insert(block.Handle, meta, block.EndRowID); err != nil {
		return errors.Wrapf(err, "ingesting into %s", c.key)
	}
	return nil
}

// memtableLocked returns the memtable of groupID, creating it if needed, and
// whether it was created. c.mu must be held exclusively.
func (c *Container) memtableLocked(tablet Tablet, groupID int64) (*Memtable, bool, error) {
	if m, ok := c.mu.memtables.Get(groupID); ok {
		return m, false, nil
	}
	schema, err := tablet.StorageSchema()
	if err != nil {
		return nil, false, errors.Wrapf(err, "loading storage schema of %s", c.key)
	}
	m := &Memtable{}
	key := TableKey{TabletID: c.key.TabletID, GroupID: groupID, SnapshotVersion: c.snapshotVersion}
	if err := m.Init(key, c.key.LoadEpoch, c.formatVersion, schema, MemtableOptions{
		Comparer:       c.opts.Comparer,
		ArenaBlockSize: c.opts.ArenaBlockSize,
	}); err != nil {
		return nil, false, err
	}
	c.mu.memtables.Put(groupID, m)
	return m, true, nil
}

// Freeze fixes the freeze SCN of the container. An explicit SCN is used if
// valid and not SCNMin; otherwise the container freezes at the largest SCN
// it has ingested, and a container without data cannot be frozen yet.
// Freezing a frozen container is a no-op.
func (c *Container) Freeze(explicit SCN) error {
	c.mu.Lock()
	if !c.mu.inited {
		c.mu.Unlock()
		return errors.Mark(errors.New("container not initialized"), base.ErrNotInitialized)
	}
	if c.mu.frozen {
		c.mu.Unlock()
		return nil
	}
	info := FreezeInfo{Key: c.key, BlockCount: c.mu.blocks}
	switch {
	case explicit.IsValidAndNotMin():
		if c.mu.blocks > 0 && explicit < c.mu.maxSCN {
			maxSCN := c.mu.maxSCN
			c.mu.Unlock()
			return base.InvalidArgumentf("freeze scn %s of %s is below ingested scn %s", explicit, c.key, maxSCN)
		}
		info.FreezeSCN = explicit
		info.Explicit = true
	case c.mu.maxSCN.IsValidAndNotMin():
		info.FreezeSCN = c.mu.maxSCN
	default:
		c.mu.Unlock()
		return base.Retryablef("container %s holds no data to freeze at", c.key)
	}
	c.mu.freezeSCN = info.FreezeSCN
	c.mu.frozen = true
	c.mu.Unlock()

	c.opts.EventListener.Frozen(info)
	return nil
}

// WaitPending reports whether the frozen container may be closed: the log
// stream must have decided every position up to the freeze SCN and no
// writer may be pending. It never blocks; the caller polls while it returns
// a retryable error.
func (c *Container) WaitPending() error {
	if !c.initialized() {
		return errors.Mark(errors.New("container not initialized"), base.ErrNotInitialized)
	}
	c.mu.RLock()
	frozen, freezeSCN := c.mu.frozen, c.mu.freezeSCN
	c.mu.RUnlock()
	if !frozen {
		return base.StateMismatchf("container %s is not frozen", c.key)
	}
	decided, err := c.opts.LogStreams.MaxDecidedSCN(c.key.LSID)
	if err != nil {
		if errors.Is(err, base.ErrStateMismatch) {
			return errors.Mark(errors.Wrapf(err, "log stream %d of %s", c.key.LSID, c.key), base.ErrRetryable)
		}
		return errors.Wrapf(err, "log stream %d of %s", c.key.LSID, c.key)
	}
	pending := c.pending.Load()
	if decided.Plus(1) >= freezeSCN && pending == 0 {
		return nil
	}
	return base.Retryablef("container %s waiting: decided=%s freeze=%s pending=%d",
		c.key, decided, freezeSCN, pending)
}

// PrepareSSTable stamps every memtable with the SCN range running from the
// prior freeze SCN to this container's freeze SCN. If check is set and the
// container holds data, the container must have drained first.
func (c *Container) PrepareSSTable(check bool) error {
	if !c.initialized() {
		return errors.Mark(errors.New("container not initialized"), base.ErrNotInitialized)
	}
	c.mu.RLock()
	frozen, n := c.mu.frozen, c.mu.memtables.Len()
	c.mu.RUnlock()
	if !frozen {
		return base.StateMismatchf("container %s is not frozen", c.key)
	}
	if n > 0 && check {
		if err := c.WaitPending(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	freezeSCN := c.mu.freezeSCN
	c.mu.memtables.All(func(_ int64, m *Memtable) bool {
		m.SetSCNRange(c.priorFreezeSCN, freezeSCN)
		return true
	})
	return nil
}

// Close seals the frozen, drained container. Closing a closed container is a
// no-op.
func (c *Container) Close() error {
	if !c.initialized() {
		return errors.Mark(errors.New("container not initialized"), base.ErrNotInitialized)
	}
	c.mu.RLock()
	closed := c.mu.closed
	c.mu.RUnlock()
	if closed {
		return nil
	}
	if err := c.PrepareSSTable(true /* check */); err != nil {
		return err
	}
	c.mu.Lock()
	if c.mu.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.closed = true
	info := c.infoLocked()
	c.mu.Unlock()

	c.opts.EventListener.Closed(info)
	return nil
}

// IncPending registers a writer that will ingest a block.
func (c *Container) IncPending() {
	c.pending.Add(1)
}

// DecPending unregisters a writer.
func (c *Container) DecPending() {
	if v := c.pending.Add(-1); v < 0 {
		c.logger().Errorf("%v", base.Unexpectedf("container %s: pending count %d below zero", c.key, v))
	}
}

// IncRef adds a reference and returns the new count.
func (c *Container) IncRef() int64 {
	return c.refs.Add(1)
}

// DecRef drops a reference and returns the new count. Dropping the last
// reference releases the container to its pool, after which it must not be
// used.
func (c *Container) DecRef() int64 {
	v := c.refs.Add(-1)
	switch {
	case v == 0:
		c.release()
	case v < 0:
		c.logger().Errorf("%v", base.Unexpectedf("container %s: reference count %d below zero", c.key, v))
	}
	return v
}

func (c *Container) release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.mu.RLock()
	inited, info := c.mu.inited, c.infoLocked()
	c.mu.RUnlock()
	opts := c.opts
	if opts == nil {
		// Never initialized, so there is no pool to return it to.
		return
	}
	if inited {
		opts.EventListener.Released(info)
		opts.Metrics.ContainersReleased.Inc()
	}
	opts.Pool.Release(c)
}

// logger returns the configured logger, or DefaultLogger before the
// container is first initialized.
func (c *Container) logger() Logger {
	if c.opts == nil {
		return DefaultLogger
	}
	return c.opts.Logger
}

// infoLocked requires c.mu to be held.
func (c *Container) infoLocked() ContainerInfo {
	return ContainerInfo{
		Key:             c.key,
		SnapshotVersion: c.snapshotVersion,
		IngestedBlocks:  c.mu.blocks,
		MinSCN:          c.mu.minSCN,
		MaxSCN:          c.mu.maxSCN,
		FreezeSCN:       c.mu.freezeSCN,
	}
}

func (c *Container) initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.inited
}

// Key returns the identity of the container.
func (c *Container) Key() ContainerKey { return c.key }

// SnapshotVersion returns the commit version of the loaded data.
func (c *Container) SnapshotVersion() int64 { return c.snapshotVersion }

// State returns the lifecycle state of the container.
func (c *Container) State() State {
	if c.released.Load() {
		return StateDestroyed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.mu.closed:
		return StateClosed
	case c.mu.frozen:
		return StateFrozen
	case c.freezeRequested.Load():
		return StateFreezing
	default:
		return StateActive
	}
}

// MinSCN returns the smallest SCN ingested, or SCNMax if none.
func (c *Container) MinSCN() SCN {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.minSCN
}

// MaxSCN returns the largest SCN ingested, or SCNMin if none.
func (c *Container) MaxSCN() SCN {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.maxSCN
}

// FreezeSCN returns the freeze SCN, or SCNMax if the container is not
// frozen.
func (c *Container) FreezeSCN() SCN {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.freezeSCN
}

// PriorFreezeSCN returns the freeze SCN of the preceding container.
func (c *Container) PriorFreezeSCN() SCN { return c.priorFreezeSCN }

// IngestedBlockCount returns the number of blocks held by the container.
func (c *Container) IngestedBlockCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.blocks
}

// MemoryUsed returns the memory retained by the container's memtables.
func (c *Container) MemoryUsed() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryUsedLocked()
}

func (c *Container) memoryUsedLocked() int64 {
	var n int64
	if !c.mu.inited {
		return 0
	}
	c.mu.memtables.All(func(_ int64, m *Memtable) bool {
		n += m.MemoryUsed()
		return true
	})
	return n
}

// Memtables returns the container's memtables ordered by column group.
func (c *Container) Memtables() []*Memtable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.mu.inited {
		return nil
	}
	ms := make([]*Memtable, 0, c.mu.memtables.Len())
	c.mu.memtables.All(func(_ int64, m *Memtable) bool {
		ms = append(ms, m)
		return true
	})
	slices.SortFunc(ms, func(a, b *Memtable) int {
		return cmp.Compare(a.GroupID(), b.GroupID())
	})
	return ms
}

// Memtable returns the memtable of groupID, or nil if no block of the group
// has been ingested.
func (c *Container) Memtable(groupID int64) *Memtable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.mu.inited {
		return nil
	}
	m, _ := c.mu.memtables.Get(groupID)
	return m
}

// DumpSorted returns the metadata of the blocks of groupID in tree order.
func (c *Container) DumpSorted(groupID int64) ([]*blockmeta.Meta, error) {
	m := c.Memtable(groupID)
	if m == nil {
		return nil, nil
	}
	return m.DumpSorted()
}

// Refs returns the number of references to the container.
func (c *Container) Refs() int64 { return c.refs.Load() }

// Pending returns the number of pending writers.
func (c *Container) Pending() int64 { return c.pending.Load() }

// Metrics returns a snapshot of the container's counters.
func (c *Container) Metrics() ContainerMetrics {
	c.mu.RLock()
	m := ContainerMetrics{
		IngestedBlocks: c.mu.blocks,
		MemoryUsed:     c.memoryUsedLocked(),
	}
	if c.mu.inited {
		m.Memtables = c.mu.memtables.Len()
	}
	c.mu.RUnlock()
	m.Retries = c.counters.retries.Load()
	m.StaleBlocks = c.counters.stale.Load()
	m.FreezeSubmissions = c.counters.freezeSubmissions.Load()
	m.FreezeFailures = c.counters.freezeFailures.Load()
	m.Refs = c.refs.Load()
	m.Pending = c.pending.Load()
	return m
}

func (c *Container) String() string {
	return redact.StringWithoutMarkers(c)
}

// SafeFormat implements redact.SafeFormatter.
func (c *Container) SafeFormat(w redact.SafePrinter, _ rune) {
	c.mu.RLock()
	info := c.infoLocked()
	c.mu.RUnlock()
	w.Printf("%s %s", info, c.State())
}
