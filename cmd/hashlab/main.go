// Copyright (c) 2014 Utkan Güngördü <utkan@freeconsole.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command hashlab runs the find-miss/find-hit/find-hit-latency benchmark
// trio against every table variant across a sweep of load factors, mirroring
// original_source/src/main.rs's benchmark_find_miss!/benchmark_find_hit!/
// benchmark_find_latency! macros and its load_factor in [4,5,6,7] sweep.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"hashlab"
	"hashlab/cuckoo/aligned"
	"hashlab/cuckoo/direct"
	"hashlab/cuckoo/localized"
	"hashlab/cuckoo/unaligned"
	"hashlab/quadtable"
)

// config collects the harness's tunables in one place, following the
// teacher's practice (legacy/config.go) of gathering every knob a
// benchmark run needs into a single struct, made runtime-configurable here
// via pflag instead of compile-time constants.
type config struct {
	iters      int
	mebibytes  int
	loadFactor []int
	variant    string
	debug      bool
	verbose    bool
}

func parseFlags() *config {
	cfg := &config{}
	pflag.IntVar(&cfg.iters, "iters", 10_000_000, "number of lookups per benchmark phase")
	pflag.IntVar(&cfg.mebibytes, "mi", 1, "table size base unit, in mebi-elements (1<<20)")
	pflag.IntSliceVar(&cfg.loadFactor, "load-factors", []int{4, 5, 6, 7}, "eighths-of-capacity load factors to sweep")
	pflag.StringVar(&cfg.variant, "variant", "all", "table variant to benchmark: all, quadtable, aligned, unaligned, direct, localized")
	pflag.BoolVar(&cfg.debug, "debug", false, "enable internal coherence assertions (hashlab.Debug)")
	pflag.BoolVar(&cfg.verbose, "verbose", false, "enable debug-level logging")
	pflag.Parse()
	return cfg
}

func setupLogger(cfg *config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// table is the minimal interface every variant's Get/Insert/Len surface
// satisfies, letting the sweep loop below drive all five variants through
// one set of benchmark functions.
type table interface {
	Get(key uint64) (uint64, bool)
	Insert(key uint64, value uint64) bool
	Len() int
}

func newTable(variant string, n int, seed uint64) (table, error) {
	switch variant {
	case "quadtable":
		return quadtable.New[uint64](n, seed), nil
	case "aligned":
		return aligned.New[uint64](n, seed), nil
	case "unaligned":
		return unaligned.New[uint64](n, seed), nil
	case "direct":
		return direct.New[uint64](n, seed), nil
	case "localized":
		return localized.New[uint64](n, seed), nil
	default:
		return nil, errors.Errorf("unknown variant %q", variant)
	}
}

var variants = []string{"quadtable", "aligned", "unaligned", "direct", "localized"}

func main() {
	cfg := parseFlags()
	hashlab.Debug = cfg.debug
	logger := setupLogger(cfg)
	log.Logger = logger

	selected := variants
	if cfg.variant != "all" {
		selected = []string{cfg.variant}
	}

	for _, lf := range cfg.loadFactor {
		n := cfg.mebibytes * (1 << 20) * lf / 8
		logger.Info().Int("load_factor_eighths", lf).Int("n", n).Msg("sweep")

		for _, v := range selected {
			if err := runVariant(logger, v, n, cfg.iters); err != nil {
				logger.Error().Err(err).Str("variant", v).Msg("benchmark failed")
			}
		}
	}
}

func runVariant(logger zerolog.Logger, variant string, n, iters int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(*hashlab.RehashNeededError); ok {
				err = errors.WithStack(rerr)
				return
			}
			panic(r)
		}
	}()

	tbl, err := newTable(variant, n, 0x9e3779b97f4a7c15)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(123))
	for i := 0; i < n; i++ {
		tbl.Insert(rng.Uint64(), uint64(i))
	}

	benchmarkFindMiss(logger, variant, tbl, n, iters)
	benchmarkFindHit(logger, variant, tbl, n, iters)
	benchmarkFindHitLatency(logger, variant, tbl, n, iters)
	return nil
}

// benchmarkFindMiss is the Go analogue of main.rs's benchmark_find_miss!:
// fresh random keys against a pre-populated table, almost all misses.
func benchmarkFindMiss(logger zerolog.Logger, variant string, tbl table, n, iters int) {
	rng := rand.New(rand.NewSource(456))
	start := time.Now()
	found := 0
	for i := 0; i < iters; i++ {
		if _, ok := tbl.Get(rng.Uint64()); ok {
			found++
		}
	}
	nsPerOp := float64(time.Since(start).Nanoseconds()) / float64(iters)
	logger.Info().Str("phase", "find_miss").Str("variant", variant).Int("n", n).
		Float64("ns_op", nsPerOp).Int("found", found).Msg(fmt.Sprintf("find_miss %s/%d: %.2f ns/op", variant, n, nsPerOp))
}

// benchmarkFindHit replays the same key sequence used to populate the
// table, so every lookup is a guaranteed hit.
func benchmarkFindHit(logger zerolog.Logger, variant string, tbl table, n, iters int) {
	if n == 0 {
		return
	}
	outerIters := iters / n
	trueIters := outerIters * n
	start := time.Now()
	found := 0
	for o := 0; o < outerIters; o++ {
		rng := rand.New(rand.NewSource(123))
		for i := 0; i < n; i++ {
			if _, ok := tbl.Get(rng.Uint64()); ok {
				found++
			}
		}
	}
	nsPerOp := float64(time.Since(start).Nanoseconds()) / float64(trueIters)
	logger.Info().Str("phase", "find_hit").Str("variant", variant).Int("n", n).
		Float64("ns_op", nsPerOp).Int("found", found).Msg(fmt.Sprintf("find_hit  %s/%d: %.2f ns/op", variant, n, nsPerOp))
}

// benchmarkFindHitLatency chains each lookup's result into the next key,
// defeating memory-level parallelism to measure pointer-chasing latency
// rather than throughput.
func benchmarkFindHitLatency(logger zerolog.Logger, variant string, tbl table, n, iters int) {
	if n == 0 {
		return
	}
	outerIters := iters / n
	trueIters := outerIters * n
	start := time.Now()
	var prevValue uint64
	for o := 0; o < outerIters; o++ {
		rng := rand.New(rand.NewSource(123))
		for i := 0; i < n; i++ {
			key := rng.Uint64() ^ prevValue
			// A hit returns the fill index i, so prevValue drops back to
			// zero and the next key is again one of the inserted keys.
			if v, ok := tbl.Get(key); ok {
				prevValue = v ^ uint64(i)
			}
		}
	}
	nsPerOp := float64(time.Since(start).Nanoseconds()) / float64(trueIters)
	logger.Info().Str("phase", "find_hit_latency").Str("variant", variant).Int("n", n).
		Float64("ns_op", nsPerOp).Msg(fmt.Sprintf("find_hit_latency  %s/%d: %.2f ns/op", variant, n, nsPerOp))
}
