// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Command cached runs one node of the content cache as a standalone
// process: a root node (rank 0) optionally backed by an in-memory
// fastcache store and a set of mapped files. A non-root node needs an
// upstream parent link, which only the in-process transport provides;
// running one standalone is supported but degraded.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/rmtbon/contentcache/common"
	"github.com/rmtbon/contentcache/content"
	"github.com/rmtbon/contentcache/content/backing"
	"github.com/rmtbon/contentcache/content/journal"
	"github.com/rmtbon/contentcache/content/metrics"
	"github.com/rmtbon/contentcache/content/mmap"
	"github.com/rmtbon/contentcache/log"
	"github.com/rmtbon/contentcache/params"
	"github.com/rmtbon/contentcache/transport"
)

var (
	rankFlag = &cli.UintFlag{
		Name:  "rank",
		Usage: "this node's position in the tree-based overlay network; 0 is root",
		Value: 0,
	}
	hashFlag = &cli.StringFlag{
		Name:  "hash",
		Usage: "digest algorithm: sha1 or sha256",
		Value: params.DefaultHash,
	}
	purgeTargetSizeFlag = &cli.Uint64Flag{
		Name:  "purge-target-size",
		Usage: "evict least-recently-used entries once valid bytes exceed this",
		Value: params.DefaultPurgeTargetSize,
	}
	purgeOldEntryFlag = &cli.DurationFlag{
		Name:  "purge-old-entry",
		Usage: "minimum idle time before an over-budget entry is purge-eligible",
		Value: params.DefaultPurgeOldEntry,
	}
	flushBatchLimitFlag = &cli.UintFlag{
		Name:  "flush-batch-limit",
		Usage: "root only: max concurrent in-flight backing stores",
		Value: params.DefaultFlushBatchLimit,
	}
	blobSizeLimitFlag = &cli.Uint64Flag{
		Name:  "blob-size-limit",
		Usage: "reject stores larger than this many bytes",
		Value: params.DefaultBlobSizeLimit,
	}
	heartbeatFlag = &cli.DurationFlag{
		Name:  "heartbeat",
		Usage: "purge/flush tick period; must be within [1s, 10s]",
		Value: params.MinHeartbeat,
	}
	backingMemoryFlag = &cli.IntFlag{
		Name:  "backing-memory-mb",
		Usage: "root only: capacity in MiB of the in-process fastcache backing store; 0 disables it",
		Value: 64,
	}
	journalPathFlag = &cli.StringFlag{
		Name:  "journal",
		Usage: "root only: path to the dirty-entry recovery journal",
	}
	mmapFlag = &cli.StringSliceFlag{
		Name:  "mmap",
		Usage: "root only: path:blob-size of a file to map in at startup, repeatable",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on; empty disables",
		Value: ":6060",
	}
)

func main() {
	app := &cli.App{
		Name:  "cached",
		Usage: "run one node of the hierarchical content-addressed blob cache",
		Flags: []cli.Flag{
			rankFlag, hashFlag, purgeTargetSizeFlag, purgeOldEntryFlag,
			flushBatchLimitFlag, blobSizeLimitFlag, heartbeatFlag,
			backingMemoryFlag, journalPathFlag, mmapFlag, metricsAddrFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Root().Crit("cached exited", "err", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	cfg := params.Config{
		Rank:            uint32(cctx.Uint(rankFlag.Name)),
		Hash:            cctx.String(hashFlag.Name),
		PurgeTargetSize: cctx.Uint64(purgeTargetSizeFlag.Name),
		PurgeOldEntry:   cctx.Duration(purgeOldEntryFlag.Name),
		FlushBatchLimit: uint32(cctx.Uint(flushBatchLimitFlag.Name)),
		BlobSizeLimit:   cctx.Uint64(blobSizeLimitFlag.Name),
		Heartbeat:       cctx.Duration(heartbeatFlag.Name),
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.Root().New("rank", cfg.Rank)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	hasher, err := common.LookupHasher(cfg.Hash)
	if err != nil {
		return err
	}

	var mmapTable *mmap.Table
	opts := []content.Option{
		content.WithLogger(logger),
		content.WithMetrics(collector),
	}

	if cfg.IsRoot() {
		mmapTable = mmap.NewTable(hasher)
		opts = append(opts, content.WithMmapSource(content.NewMmapSource(mmapTable)))
	}

	cache, err := content.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("cached: %w", err)
	}

	journalPath := cctx.String(journalPathFlag.Name)
	if cfg.IsRoot() && journalPath != "" {
		if err := replayJournal(cache, journalPath); err != nil {
			logger.Warn("failed to replay dirty-entry journal", "path", journalPath, "err", err)
		}
	}

	if cfg.IsRoot() {
		if mb := cctx.Int(backingMemoryFlag.Name); mb > 0 {
			mem := backing.NewMemory(hasher, mb*1024*1024)
			if err := cache.RegisterBacking("memory", mem, mem); err != nil {
				return fmt.Errorf("cached: registering in-process backing store: %w", err)
			}
			logger.Info("in-process backing store registered", "capacityMB", mb)
		}
		for _, spec := range cctx.StringSlice(mmapFlag.Name) {
			path, blobSize, err := parseMmapFlag(spec)
			if err != nil {
				return err
			}
			digests, err := mmapTable.Map(path, blobSize)
			if err != nil {
				return fmt.Errorf("cached: mapping %s: %w", path, err)
			}
			logger.Info("mapped file into cache", "path", path, "blobSize", blobSize, "blobs", len(digests))
		}
		collector.SetMmapRegions(uint64(len(mmapTable.MappedPaths())))
	}

	reactor := transport.NewReactor()
	defer reactor.Stop()

	var mmapPathsSrc interface{ MappedPaths() []string }
	if mmapTable != nil {
		mmapPathsSrc = mmapTable
	}
	server := transport.NewServer(cache, reactor, mmapPathsSrc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.RunHeartbeat(ctx, cache.Clock(), cfg.Heartbeat, server)

	if addr := cctx.String(metricsAddrFlag.Name); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "err", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", addr)
	}

	if !cfg.IsRoot() {
		logger.Warn("running non-root with no upstream wired; loads fail and stores cannot drain",
			"rank", cfg.Rank)
	}
	logger.Info("cached running", "root", cfg.IsRoot(), "hash", cfg.Hash)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if cfg.IsRoot() && journalPath != "" {
		if err := saveJournal(cache, journalPath); err != nil {
			logger.Error("failed to persist dirty-entry journal", "err", err)
		}
	}
	return nil
}

func parseMmapFlag(spec string) (path string, blobSize int64, err error) {
	idx := -1
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", 0, fmt.Errorf("cached: --mmap value %q must be path:blob-size", spec)
	}
	path = spec[:idx]
	var size int64
	if _, err := fmt.Sscanf(spec[idx+1:], "%d", &size); err != nil || size <= 0 {
		return "", 0, fmt.Errorf("cached: --mmap value %q has an invalid blob size", spec)
	}
	return path, size, nil
}

func replayJournal(cache *content.Cache, path string) error {
	records, err := journal.Read(path)
	if err != nil {
		return err
	}
	for _, r := range records {
		cache.Restore(common.Digest(r.Hash), r.Payload)
	}
	return nil
}

func saveJournal(cache *content.Cache, path string) error {
	dirty := cache.DirtyEntries()
	records := make([]journal.Record, len(dirty))
	for i, d := range dirty {
		records[i] = journal.Record{Hash: []byte(d.Hash), Payload: d.Payload}
	}
	return journal.Write(path, records)
}
