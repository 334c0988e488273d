// Package main provides kvcache-bench, a load generator for kvcache.
//
// It opens several caches from one budget, drives a skewed read-through
// workload against them and prints how the rebalancer distributed the quota.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvcache"
	"github.com/hupe1980/kvcache/internal/testutil"
	"github.com/hupe1980/kvcache/observability/prom"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	budget      string
	interval    time.Duration
	compression string
	caches      int
	workers     int
	duration    time.Duration
	keys        int
	valueSize   int
	skew        float64
	metricsAddr string
	logLevel    string
	seed        uint64
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options

	fs := flag.NewFlagSet("kvcache-bench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&o.budget, "budget", "", "Total memory budget, e.g. 256MiB (overrides config)")
	fs.DurationVar(&o.interval, "rebalance-interval", 0, "Rebalance interval (overrides config)")
	fs.StringVar(&o.compression, "compression", "", "Value compression: none, lz4 or zstd (overrides config)")
	fs.IntVarP(&o.caches, "caches", "n", 4, "Number of caches")
	fs.IntVarP(&o.workers, "workers", "w", 8, "Number of worker goroutines")
	fs.DurationVarP(&o.duration, "duration", "d", 10*time.Second, "Benchmark duration")
	fs.IntVar(&o.keys, "keys", 100_000, "Distinct keys per cache")
	fs.IntVar(&o.valueSize, "value-size", 512, "Value size in bytes")
	fs.Float64Var(&o.skew, "skew", 1.1, "Zipf exponent of key and cache popularity (> 1)")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.Uint64Var(&o.seed, "seed", 1, "Workload seed")

	fs.Usage = func() {
		fmt.Fprint(stderr, "Usage: kvcache-bench [flags]\n\n")
		fmt.Fprint(stderr, "Drives a skewed read-through workload against several caches sharing one budget.\n\n")
		fmt.Fprint(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.caches <= 0:
		return o, errors.New("--caches must be positive")
	case o.workers <= 0:
		return o, errors.New("--workers must be positive")
	case o.duration <= 0:
		return o, errors.New("--duration must be positive")
	case o.keys <= 0:
		return o, errors.New("--keys must be positive")
	case o.valueSize <= 0:
		return o, errors.New("--value-size must be positive")
	case o.skew <= 1:
		return o, errors.New("--skew must be greater than 1")
	}
	return o, nil
}

func (o options) config() (kvcache.Config, error) {
	cfg := kvcache.DefaultConfig()
	cfg.TotalMemoryBudgetBytes = 64 << 20
	cfg.RebalanceInterval = time.Second

	if o.configPath != "" {
		loaded, err := kvcache.LoadConfig(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if o.budget != "" {
		b, err := kvcache.ParseByteSize(o.budget)
		if err != nil {
			return cfg, err
		}
		cfg.TotalMemoryBudgetBytes = b
	}
	if o.interval > 0 {
		cfg.RebalanceInterval = o.interval
	}
	if o.compression != "" {
		cfg.Compression = o.compression
	}
	return cfg, cfg.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	if err := bench(ctx, o, stdout, stderr); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type counters struct {
	lookups  atomic.Int64
	inserts  atomic.Int64
	rejected atomic.Int64
}

func bench(ctx context.Context, o options, stdout, stderr io.Writer) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}

	level, err := parseLevel(o.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q", o.logLevel)
	}
	logger := kvcache.NewLogger(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	events := prom.NewMetrics("kvcache")
	m, err := kvcache.New(cfg, kvcache.WithLogger(logger), kvcache.WithMetricsCollector(events))
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prom.NewStatsCollector("kvcache", m), events)

		srv := &http.Server{
			Addr:              o.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	caches := make([]*kvcache.Cache, o.caches)
	share := cfg.TotalMemoryBudgetBytes.Bytes() / int64(o.caches)
	for i := range caches {
		c, err := m.Open(fmt.Sprintf("cache-%02d", i), share)
		if err != nil {
			return err
		}
		caches[i] = c
	}

	fmt.Fprintf(stdout, "budget %s, %d caches, %d workers, %s\n",
		cfg.TotalMemoryBudgetBytes, o.caches, o.workers, o.duration)

	runCtx, cancel := context.WithTimeout(ctx, o.duration)
	defer cancel()

	var cnt counters
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for w := range o.workers {
		g.Go(func() error {
			return work(gctx, o, caches, uint64(w), &cnt)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	report(stdout, m.Stats(), &cnt, elapsed)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	return m.Close(closeCtx)
}

// work runs a read-through loop: look up a key and insert it on a miss.
func work(ctx context.Context, o options, caches []*kvcache.Cache, id uint64, cnt *counters) error {
	rng := testutil.NewRNG(o.seed + id)
	keys := testutil.NewZipf(o.keys, o.skew)
	pick := testutil.NewZipf(len(caches), o.skew)
	value := testutil.CompressibleValue(o.valueSize)

	var key []byte
	for ctx.Err() == nil {
		c := caches[pick.Sample(rng)]
		key = testutil.AppendKey(key[:0], keys.Sample(rng))

		_, ok, err := c.Lookup(key)
		if err != nil {
			return err
		}
		cnt.lookups.Add(1)
		if ok {
			continue
		}

		res, err := c.Insert(key, value)
		cnt.inserts.Add(1)
		if res != kvcache.Accepted {
			cnt.rejected.Add(1)
		}
		if err != nil && !errors.Is(err, kvcache.ErrCapacityRejected) {
			return err
		}
	}
	return nil
}

func report(w io.Writer, s kvcache.Stats, cnt *counters, elapsed time.Duration) {
	lookups := cnt.lookups.Load()
	rate := float64(lookups) / elapsed.Seconds()

	fmt.Fprintf(w, "\n%s lookups (%s/s), %s inserts, %s rejected\n\n",
		humanize.Comma(lookups),
		humanize.Comma(int64(rate)),
		humanize.Comma(cnt.inserts.Load()),
		humanize.Comma(cnt.rejected.Load()),
	)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "cache\tused\tallowed\tentries\thit rate\tevictions\tmigrations\tbuckets\t")
	for _, c := range s.Caches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%s\t%d\t%d\t\n",
			c.Name,
			humanize.IBytes(uint64(max(c.UsedBytes, 0))),
			humanize.IBytes(uint64(c.AllowedBytes)),
			humanize.Comma(c.Entries),
			c.HitRate*100,
			humanize.Comma(int64(c.Evictions)),
			c.Migrations,
			c.Buckets,
		)
	}
	fmt.Fprintf(tw, "total\t%s\t%s\t\t\t\t\t\t\n",
		humanize.IBytes(uint64(max(s.TotalUsed, 0))),
		humanize.IBytes(uint64(s.TotalReserved)),
	)
	_ = tw.Flush()

	fmt.Fprintf(w, "\nbudget %s, term %d\n", humanize.IBytes(uint64(s.TotalBudget)), s.Term)
}
