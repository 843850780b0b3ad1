// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/directload"
	"github.com/cockroachdb/directload/blockmeta"
	"github.com/cockroachdb/directload/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tokenbucket"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	minLatency = 100 * time.Nanosecond
	maxLatency = 10 * time.Second

	loadEpoch      directload.SCN = 100
	rowsPerBlock                  = 1000
	blockSizeBytes                = 2 << 20
)

var loadConfig struct {
	blocks        int64
	rate          float64
	maxBlocks     int64
	maxBlockBytes int64
	columnGroups  int
	rowKeyColumns int
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "ingest blocks into a direct-load container, then freeze and close it",
	Long: `
Ingest synthetic blocks from concurrent writers into a single direct-load
container. The container requests its own freeze once it reaches its block
bound; the run then drains the container, closes it and releases it.
`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd.Context(), cmd.OutOrStdout())
	},
}

type blockHandle struct {
	released *atomic.Int64
}

func (h *blockHandle) Valid() bool { return true }

func (h *blockHandle) Release() { h.released.Add(1) }

type loadTablet struct {
	schema *directload.StorageSchema
}

func (t *loadTablet) TabletID() directload.TabletID { return 1 }

func (t *loadTablet) StorageSchema() (*directload.StorageSchema, error) { return t.schema, nil }

// loadLogStreams decides every SCN handed out so far.
type loadLogStreams struct {
	scn *atomic.Uint64
}

func (l *loadLogStreams) MaxDecidedSCN(directload.LSID) (directload.SCN, error) {
	return directload.SCN(l.scn.Load()), nil
}

// loadScheduler freezes the container asynchronously when asked to.
type loadScheduler struct {
	freezes chan directload.MergeParam
	merges  atomic.Int64
}

func (s *loadScheduler) ScheduleFreeze(p directload.MergeParam) error {
	select {
	case s.freezes <- p:
		return nil
	default:
		return errors.Newf("freeze queue full")
	}
}

func (s *loadScheduler) ScheduleMerge(directload.MergeParam) error {
	s.merges.Add(1)
	return nil
}

type latencyHistogram struct {
	mu struct {
		sync.Mutex
		h *hdrhistogram.Histogram
	}
}

func newLatencyHistogram() *latencyHistogram {
	l := &latencyHistogram{}
	l.mu.h = hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)
	return l
}

func (l *latencyHistogram) Record(elapsed time.Duration) {
	elapsed = min(max(elapsed, minLatency), maxLatency)
	l.mu.Lock()
	err := l.mu.h.RecordValue(elapsed.Nanoseconds())
	l.mu.Unlock()
	if err != nil {
		// Values are clamped to the histogram's range.
		panic(fmt.Sprintf("recording value: %s", err))
	}
}

func loadSchema() *directload.StorageSchema {
	s := &directload.StorageSchema{
		RowKeyColumnCount: loadConfig.rowKeyColumns,
		StoredColumnCount: loadConfig.rowKeyColumns + max(loadConfig.columnGroups, 1),
		RowStoreType:      blockmeta.EncodingRowStore,
		Compressor:        blockmeta.ZstdCompression,
		SchemaVersion:     1,
	}
	if loadConfig.columnGroups > 0 {
		s.RowStoreType = blockmeta.CSEncodingRowStore
		s.ColumnGroups = append(s.ColumnGroups, directload.ColumnGroup{
			Type: directload.ColumnGroupRowkey, ColumnCount: loadConfig.rowKeyColumns,
		})
		for i := 0; i < loadConfig.columnGroups; i++ {
			s.ColumnGroups = append(s.ColumnGroups, directload.ColumnGroup{
				Type: directload.ColumnGroupNormal, ColumnCount: 1,
			})
		}
	}
	return s
}

type loadStats struct {
	ingested atomic.Int64
	rejected atomic.Int64
	released atomic.Int64
}

func runLoad(ctx context.Context, stdout io.Writer) error {
	if loadConfig.rowKeyColumns < 1 {
		return errors.Newf("--rowkey-columns must be at least 1, got %d", loadConfig.rowKeyColumns)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var scn atomic.Uint64
	scn.Store(uint64(loadEpoch))
	sched := &loadScheduler{freezes: make(chan directload.MergeParam, 1)}
	reg := prometheus.NewRegistry()
	opts := &directload.Options{
		Scheduler:      sched,
		LogStreams:     &loadLogStreams{scn: &scn},
		Metrics:        directload.NewMetrics(reg),
		MaxBlockBytes:  loadConfig.maxBlockBytes,
		MacroBlockSize: blockSizeBytes,
	}
	opts.Testing.MaxBlockCount = loadConfig.maxBlocks
	if verbose {
		el := directload.MakeLoggingEventListener(base.DefaultLogger)
		opts.EventListener = &el
	}

	c, err := directload.Create(opts, directload.CreateParams{
		LSID:            1,
		TabletID:        1,
		LoadEpoch:       loadEpoch,
		SnapshotVersion: 1,
		PriorFreezeSCN:  loadEpoch - 1,
		FormatVersion:   1,
	})
	if err != nil {
		return err
	}
	c.IncRef()

	tablet := &loadTablet{schema: loadSchema()}
	groups := int64(loadConfig.columnGroups)
	var stats loadStats
	var limiter *tokenbucket.TokenBucket
	if loadConfig.rate > 0 {
		limiter = &tokenbucket.TokenBucket{}
		limiter.Init(tokenbucket.TokensPerSecond(loadConfig.rate), tokenbucket.Tokens(max(loadConfig.rate*0.1, 1)))
	}
	var limiterMu sync.Mutex
	wait := func(ctx context.Context) error {
		if limiter == nil {
			return nil
		}
		limiterMu.Lock()
		defer limiterMu.Unlock()
		return limiter.WaitCtx(ctx, 1)
	}

	var frozen atomic.Bool
	freezerDone := make(chan struct{})
	go func() {
		defer close(freezerDone)
		for range sched.freezes {
			if err := c.Freeze(directload.SCNInvalid); err != nil {
				log.Printf("freeze: %v", err)
				continue
			}
			frozen.Store(true)
		}
	}()

	hist := newLatencyHistogram()
	var next atomic.Int64
	start := crtime.NowMono()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < max(concurrency, 1); w++ {
		g.Go(func() error {
			for !frozen.Load() {
				n := next.Add(1) - 1
				if n >= loadConfig.blocks {
					return nil
				}
				if err := wait(gctx); err != nil {
					return nil
				}
				c.IncPending()
				block := makeBlock(n, groups, &scn, &stats.released)
				opStart := crtime.NowMono()
				err := c.Ingest(tablet, block, 1, 1)
				hist.Record(opStart.Elapsed())
				c.DecPending()
				switch {
				case err == nil:
					stats.ingested.Add(1)
				case directload.IsRetryable(err):
					stats.rejected.Add(1)
					block.Handle.Release()
				default:
					block.Handle.Release()
					return err
				}
			}
			return nil
		})
	}
	err = g.Wait()
	elapsed := start.Elapsed()
	close(sched.freezes)
	<-freezerDone
	if err != nil {
		c.DecRef()
		return err
	}

	// The run's deadline bounds ingestion only.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := drain(drainCtx, c); err != nil {
		c.DecRef()
		return err
	}
	m := c.Metrics()
	c.DecRef()

	printSummary(stdout, m, &stats, hist, sched.merges.Load(), elapsed)
	return nil
}

func makeBlock(n, groups int64, scn *atomic.Uint64, released *atomic.Int64) *directload.Block {
	b := &directload.Block{
		Handle: &blockHandle{released: released},
		Meta: &blockmeta.Meta{
			RowCount:        rowsPerBlock,
			MicroBlockCount: 16,
			DataChecksum:    uint64(n) * 0x9e3779b97f4a7c15,
			OccupySize:      blockSizeBytes / 2,
			OriginalSize:    blockSizeBytes,
			Compressor:      blockmeta.ZstdCompression,
			MacroID:         blockmeta.MacroBlockID(n + 1),
			BlockSize:       blockSizeBytes,
		},
		SCN:       directload.SCN(scn.Add(1)),
		LoadEpoch: loadEpoch,
		GroupID:   directload.RowStoreGroup,
		EndRowID:  -1,
		CanFreeze: true,
	}
	row := n / max(groups+1, 1)
	keys := make([]int64, loadConfig.rowKeyColumns)
	keys[0] = row
	b.Meta.EndKey = base.IntRowKey(keys...)
	if groups > 0 {
		b.GroupID = n % (groups + 1)
		b.EndRowID = (row+1)*rowsPerBlock - 1
	}
	return b
}

// drain freezes the container if no freeze was requested, then polls until
// it may be closed.
func drain(ctx context.Context, c *directload.Container) error {
	if c.IngestedBlockCount() == 0 {
		return errors.New("no blocks ingested")
	}
	if err := c.Freeze(directload.SCNInvalid); err != nil {
		return err
	}
	for {
		err := c.Close()
		if err == nil {
			return nil
		}
		if !directload.IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "draining %s", c.Key())
		case <-time.After(time.Millisecond):
		}
	}
}

func printSummary(
	w io.Writer,
	m directload.ContainerMetrics,
	stats *loadStats,
	hist *latencyHistogram,
	merges int64,
	elapsed time.Duration,
) {
	h := hist.mu.h
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"ingested", "rejected", "released", "freeze-reqs", "merges",
		"blocks/sec", "p50", "p99", "pMax"})
	tbl.Append([]string{
		string(crhumanize.Count(stats.ingested.Load(), crhumanize.Compact)),
		string(crhumanize.Count(stats.rejected.Load(), crhumanize.Compact)),
		string(crhumanize.Count(stats.released.Load(), crhumanize.Compact)),
		fmt.Sprintf("%d (%d failed)", m.FreezeSubmissions, m.FreezeFailures),
		fmt.Sprint(merges),
		fmt.Sprintf("%.1f", float64(stats.ingested.Load())/elapsed.Seconds()),
		time.Duration(h.ValueAtQuantile(50)).String(),
		time.Duration(h.ValueAtQuantile(99)).String(),
		time.Duration(h.Max()).String(),
	})
	tbl.Render()
	fmt.Fprintf(w, "memtable memory: %s in %d memtables\n",
		crhumanize.Bytes(m.MemoryUsed, crhumanize.Compact, crhumanize.OmitI), m.Memtables)
}
