// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package directload

import (
	"strings"
	"testing"

	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestLoggingEventListener(t *testing.T) {
	e := newTestEnv()
	el := MakeLoggingEventListener(e.logger)
	e.opts.EventListener = &el
	c := e.create(t, defaultParams())

	require.NoError(t, c.Ingest(e.tablet, e.block(base.IntRowKey(1), 1, 12), 5, 1))
	require.NoError(t, c.Freeze(SCNInvalid))
	require.True(t, IsRetryable(c.Ingest(e.tablet, e.block(base.IntRowKey(2), 2, 13), 5, 1)))
	e.logs.set(12, nil)
	require.NoError(t, c.Close())
	c.IncRef()
	c.DecRef()

	expected := []string{
		"container created [ls=1 tablet=7 epoch=10] snapshot=5 blocks=0 scn=[max,min] freeze=max",
		"[ls=1 tablet=7 epoch=10] frozen at 12: blocks=1",
		"[ls=1 tablet=7 epoch=10] block rejected (beyond-freeze): scn=13 epoch=10 freeze=12",
		"container closed [ls=1 tablet=7 epoch=10] snapshot=5 blocks=1 scn=[12,12] freeze=12",
		"container released [ls=1 tablet=7 epoch=10] snapshot=5 blocks=1 scn=[12,12] freeze=12",
	}
	require.Equal(t, strings.Join(expected, "\n")+"\n", e.logger.String())
}

func TestTeeEventListener(t *testing.T) {
	var a, b []string
	la := EventListener{
		Frozen: func(info FreezeInfo) { a = append(a, info.String()) },
	}
	lb := EventListener{
		Frozen:   func(info FreezeInfo) { b = append(b, info.String()) },
		Released: func(info ContainerInfo) { b = append(b, "released") },
	}
	tee := TeeEventListener(la, lb)
	tee.Frozen(FreezeInfo{FreezeSCN: 15, Explicit: true, BlockCount: 2})
	tee.Released(ContainerInfo{})
	tee.BackgroundError(errors.New("ignored"))
	tee.IngestRetry(IngestRetryInfo{})

	require.Equal(t, []string{"[ls=0 tablet=0 epoch=invalid] frozen at 15 (explicit): blocks=2"}, a)
	require.Equal(t, []string{"[ls=0 tablet=0 epoch=invalid] frozen at 15 (explicit): blocks=2", "released"}, b)
}

func TestEventInfoRedaction(t *testing.T) {
	info := FreezeRequestInfo{
		Key:        ContainerKey{LSID: 1, TabletID: 7, LoadEpoch: 10},
		BlockCount: 5,
		Threshold:  4,
		MemoryUsed: 1024,
		Err:        errors.Newf("scheduler refused %s", redact.Safe("freeze")),
	}
	require.Equal(t,
		"[ls=1 tablet=7 epoch=10] freeze request failed: blocks=5/4 memory=1024: scheduler refused freeze",
		info.String())
	require.Equal(t, "newer-epoch", RetryNewerEpoch.String())
	require.Equal(t, "RetryReason(9)", RetryReason(9).String())
	require.Equal(t, "frozen", StateFrozen.String())
	require.Equal(t, "ls=1 tablet=7 epoch=10 snapshot=5 format=1",
		MergeParam{Key: info.Key, SnapshotVersion: 5, FormatVersion: 1}.String())
}
