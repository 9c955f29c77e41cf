// bloomsize solves Bloom filter parameters, fills a filter with keys and
// reports on it.
//
//	bloomsize -n 20000 hello xz I love U
//	bloomsize -n 20000 -check hello,nope -json hello xz
//
// With -redis the bit table is kept in the Redis server named by REDIS_URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	bloom "github.com/HoangViet144/saltbloom"
	"github.com/go-redis/redis/v9"
	"github.com/goccy/go-json"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

type report struct {
	Parameters bloom.Parameters `json:"parameters"`
	Stats      bloom.Stats      `json:"stats"`
	Checks     map[string]bool  `json:"checks,omitempty"`
}

type config struct {
	params   bloom.Parameters
	hash     string
	useRedis bool
	redisTTL time.Duration
	asJSON   bool
	checks   []string
	keys     []string
}

func parseFlags(args []string, stderr io.Writer) (config, bool, error) {
	var (
		fs  = flag.NewFlagSet("bloomsize", flag.ContinueOnError)
		c   config
		n   uint64
		p   float64
		chk string
		v   bool
	)
	fs.SetOutput(stderr)
	d := bloom.DefaultParameters()
	fs.Uint64Var(&n, "n", d.ProjectedElementNumber, "projected number of elements")
	fs.Float64Var(&p, "p", 0, "target false positive probability (default 1/n)")
	fs.Uint64Var(&c.params.RandomSeed, "seed", d.RandomSeed, "salt seed")
	fs.Uint64Var(&c.params.MinTableSize, "min-m", d.MinTableSize, "minimum table size in bits")
	fs.Uint64Var(&c.params.MaxTableSize, "max-m", d.MaxTableSize, "maximum table size in bits")
	fs.UintVar(&c.params.MinNumberOfHashes, "min-k", d.MinNumberOfHashes, "minimum number of hashes")
	fs.UintVar(&c.params.MaxNumberOfHashes, "max-k", d.MaxNumberOfHashes, "maximum number of hashes")
	fs.StringVar(&c.hash, "hash", "murmur3", "hash primitive: murmur3, murmur3x64 or xxhash")
	fs.BoolVar(&c.useRedis, "redis", false, "keep the bit table in redis (REDIS_URL)")
	fs.DurationVar(&c.redisTTL, "redis-ttl", time.Hour, "expiration of the redis bit table")
	fs.BoolVar(&c.asJSON, "json", false, "print a json report")
	fs.StringVar(&chk, "check", "", "comma separated keys to query after inserting")
	fs.BoolVar(&v, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return c, false, err
	}

	base := bloom.NewParameters(n)
	c.params.ProjectedElementNumber = n
	c.params.FalsePositiveProbability = base.FalsePositiveProbability
	if p != 0 {
		c.params.FalsePositiveProbability = p
	}
	if chk != "" {
		c.checks = strings.Split(chk, ",")
	}
	c.keys = fs.Args()
	return c, v, nil
}

func hashFunc(name string) (bloom.HashFunc, error) {
	switch name {
	case "murmur3":
		return bloom.Murmur3, nil
	case "murmur3x64":
		return bloom.Murmur3x64, nil
	case "xxhash":
		return bloom.XXHash, nil
	default:
		return nil, fmt.Errorf("unknown hash %q", name)
	}
}

func run(ctx context.Context, c config, stdout io.Writer) error {
	params, err := c.params.ComputeOptimal()
	if err != nil {
		return fmt.Errorf("computing parameters: %w", err)
	}
	slog.DebugContext(ctx, "parameters",
		"n", params.ProjectedElementNumber,
		"p", params.FalsePositiveProbability,
		"m", params.TableSize,
		"k", params.NumberOfHashes,
	)

	h, err := hashFunc(c.hash)
	if err != nil {
		return err
	}
	opts := []bloom.Option{bloom.WithHash(h), bloom.WithLogger(slog.Default())}

	var rb *bloom.RedisBitSet
	if c.useRedis {
		ropts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
		if err != nil {
			return fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		rc := redis.NewClient(ropts)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		rb = bloom.NewRedisBitSet(rc, "", c.redisTTL)
		opts = append(opts, bloom.WithBitSet(rb))
		slog.InfoContext(ctx, "using redis bit table", "key", rb.Key())
	}

	f, err := bloom.New(params, opts...)
	if err != nil {
		return err
	}
	for _, k := range c.keys {
		f.InsertString(k)
	}
	r := report{Parameters: params, Stats: f.Stats()}
	if len(c.checks) > 0 {
		r.Checks = make(map[string]bool, len(c.checks))
		for _, k := range c.checks {
			r.Checks[k] = f.ContainsString(k)
		}
	}
	if rb != nil {
		if err := rb.Err(); err != nil {
			return fmt.Errorf("redis bit table: %w", err)
		}
	}

	if c.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(stdout, "table size:      %d bits\n", r.Stats.TableSize)
	fmt.Fprintf(stdout, "hashes:          %d\n", r.Stats.NumberOfHashes)
	fmt.Fprintf(stdout, "projected:       %d\n", r.Stats.ProjectedElementNumber)
	fmt.Fprintf(stdout, "inserted:        %d\n", r.Stats.ElementNumber)
	fmt.Fprintf(stdout, "set bits:        %d\n", r.Stats.SetBits)
	fmt.Fprintf(stdout, "effective fpp:   %g\n", r.Stats.EffectiveFalsePositiveProbability)
	for _, k := range c.checks {
		fmt.Fprintf(stdout, "contains %q: %t\n", k, r.Checks[k])
	}
	return nil
}

func main() {
	c, verbose, err := parseFlags(os.Args[1:], os.Stderr)
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	check(err)

	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelInfo)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	check(run(context.Background(), c, os.Stdout))
}
