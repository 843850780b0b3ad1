// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"sync"
	"sync/atomic"
)

// Pool hands out containers and takes back those whose last reference has
// been dropped.
type Pool interface {
	// Acquire returns an uninitialized container.
	Acquire() *Container
	// Release takes back a container. It is called exactly once per
	// container lifetime.
	Release(c *Container)
}

// TrackingPool is a Pool backed by a sync.Pool that resets released
// containers and counts live ones.
type TrackingPool struct {
	pool     sync.Pool
	live     atomic.Int64
	released atomic.Int64
}

var _ Pool = (*TrackingPool)(nil)

// NewPool returns a new TrackingPool.
func NewPool() *TrackingPool {
	p := &TrackingPool{}
	p.pool.New = func() interface{} {
		return &Container{}
	}
	return p
}

// Acquire implements Pool.
func (p *TrackingPool) Acquire() *Container {
	p.live.Add(1)
	return p.pool.Get().(*Container)
}

// Release implements Pool.
func (p *TrackingPool) Release(c *Container) {
	c.reset()
	p.live.Add(-1)
	p.released.Add(1)
	p.pool.Put(c)
}

// Live returns the number of containers acquired and not yet released.
func (p *TrackingPool) Live() int64 { return p.live.Load() }

// Released returns the number of containers released over the pool's
// lifetime.
func (p *TrackingPool) Released() int64 { return p.released.Load() }
