// Command smallbench drives end-to-end allocator scenarios against a real
// Allocator and reports throughput.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
	"golang.org/x/sync/errgroup"

	"github.com/smalloc/smalloc/bench"
)

const progressBarWidth = 64

var (
	objSizeMinFlag  = cli.IntFlag{Name: "objsize-min", Value: 12, Usage: "minimum object size (min_alloc)"}
	granularityFlag = cli.IntFlag{Name: "granularity", Value: 8, Usage: "size-class granularity, must be a power of two"}
	factorFlag      = cli.Float64Flag{Name: "factor", Value: 1.05, Usage: "requested geometric growth factor, in (1, 2]"}
	baseSizeFlag    = cli.IntFlag{Name: "base-slab-size", Value: 4096, Usage: "smallest slab order's size in bytes"}
	orderMaxFlag    = cli.IntFlag{Name: "order-max", Value: 10, Usage: "largest slab order (base-slab-size << order-max)"}
	quotaFlag       = cli.Int64Flag{Name: "quota", Value: 1 << 30, Usage: "arena quota in bytes"}
	countFlag       = cli.IntFlag{Name: "count", Value: 100000, Usage: "number of objects"}
	sizeFlag        = cli.IntFlag{Name: "size", Value: 1024, Usage: "object size for the same-size scenario"}
	minSizeFlag     = cli.IntFlag{Name: "min-size", Value: 20, Usage: "lower bound for random-size scenarios"}
	maxSizeFlag     = cli.IntFlag{Name: "max-size", Value: 100, Usage: "upper bound for random-size scenarios"}
	workersFlag     = cli.IntFlag{Name: "workers", Value: 8, Usage: "number of concurrent allocators"}
)

func cfgFromCtx(c *cli.Context) bench.Config {
	return bench.Config{
		ObjSizeMin:  c.Int(objSizeMinFlag.Name),
		Granularity: c.Int(granularityFlag.Name),
		AllocFactor: c.Float64(factorFlag.Name),
		BaseSize:    c.Int(baseSizeFlag.Name),
		OrderMax:    c.Int(orderMaxFlag.Name),
		Quota:       c.Int64(quotaFlag.Name),
	}
}

func withProgress(label string, run func() bench.Result) bench.Result {
	progress := mpb.New(mpb.WithWidth(progressBarWidth))
	bar := progress.AddBar(1,
		mpb.PrependDecorators(decor.Name(label, decor.WC{W: len(label) + 2, C: decor.DSyncWidthR})),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
	)
	r := run()
	bar.IncrBy(1)
	progress.Wait()
	return r
}

func sameSizeHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	r := withProgress("same-size", func() bench.Result {
		return bench.SameSizeThroughput(cfg, c.Int(countFlag.Name), c.Int(sizeFlag.Name))
	})
	bench.WriteReport(os.Stdout, r, true)
	return nil
}

func randomChurnHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	r := withProgress("random-churn", func() bench.Result {
		return bench.RandomSizeChurn(cfg, c.Int(countFlag.Name), c.Int(minSizeFlag.Name), c.Int(maxSizeFlag.Name))
	})
	bench.WriteReport(os.Stdout, r, true)
	return nil
}

func delayedFreeHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	r := withProgress("delayed-free", func() bench.Result {
		return bench.DelayedFreeSnapshot(cfg, c.Int(countFlag.Name), c.Int(sizeFlag.Name))
	})
	bench.WriteReport(os.Stdout, r, true)
	return nil
}

func sweepHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	r := withProgress("exponential-sweep", func() bench.Result {
		return bench.ExponentialSweep(cfg, c.Int(countFlag.Name))
	})
	bench.WriteReport(os.Stdout, r, true)
	return nil
}

func concurrentHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	r := withProgress("concurrent-allocators", func() bench.Result {
		return bench.ConcurrentAllocators(cfg, c.Int(workersFlag.Name), c.Int(countFlag.Name), c.Int(sizeFlag.Name))
	})
	bench.WriteReport(os.Stdout, r, true)
	return nil
}

// allHandler runs every single-allocator scenario concurrently -- each
// builds its own Allocator/Arena, so nothing is shared and an errgroup is
// enough to fan them out and collect the first error, if any.
func allHandler(c *cli.Context) error {
	cfg := cfgFromCtx(c)
	results := make([]bench.Result, 4)

	var g errgroup.Group
	g.Go(func() error {
		results[0] = bench.SameSizeThroughput(cfg, c.Int(countFlag.Name), c.Int(sizeFlag.Name))
		return nil
	})
	g.Go(func() error {
		results[1] = bench.RandomSizeChurn(cfg, c.Int(countFlag.Name), c.Int(minSizeFlag.Name), c.Int(maxSizeFlag.Name))
		return nil
	})
	g.Go(func() error {
		results[2] = bench.DelayedFreeSnapshot(cfg, c.Int(countFlag.Name), c.Int(sizeFlag.Name))
		return nil
	})
	g.Go(func() error {
		results[3] = bench.ExponentialSweep(cfg, c.Int(countFlag.Name))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range results {
		bench.WriteReport(os.Stdout, r, i == 0)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "smallbench"
	app.Usage = "benchmark driver for the small-object allocator"
	app.Flags = []cli.Flag{objSizeMinFlag, granularityFlag, factorFlag, baseSizeFlag, orderMaxFlag, quotaFlag}
	app.Commands = []cli.Command{
		{
			Name:   "same-size",
			Usage:  "allocate count objects of one size, then free them all",
			Flags:  []cli.Flag{countFlag, sizeFlag},
			Action: sameSizeHandler,
		},
		{
			Name:   "random-churn",
			Usage:  "pre-allocate count random-sized objects, then churn count alloc/free pairs",
			Flags:  []cli.Flag{countFlag, minSizeFlag, maxSizeFlag},
			Action: randomChurnHandler,
		},
		{
			Name:   "delayed-free",
			Usage:  "delayed-free every other object of count, then drain via COLLECT_GARBAGE",
			Flags:  []cli.Flag{countFlag, sizeFlag},
			Action: delayedFreeHandler,
		},
		{
			Name:   "exponential-sweep",
			Usage:  "allocate one object per size class across count classes, then free in order",
			Flags:  []cli.Flag{countFlag},
			Action: sweepHandler,
		},
		{
			Name:   "concurrent-allocators",
			Usage:  "run workers independent allocators concurrently over one shared quota",
			Flags:  []cli.Flag{workersFlag, countFlag, sizeFlag},
			Action: concurrentHandler,
		},
		{
			Name:   "all",
			Usage:  "run every single-allocator scenario concurrently and print all reports",
			Flags:  []cli.Flag{countFlag, sizeFlag, minSizeFlag, maxSizeFlag},
			Action: allHandler,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
