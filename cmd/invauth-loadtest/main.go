// Command invauth-loadtest measures Validate and Refresh latency of an in-process
// engine under concurrent load.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/password"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const seedPassword = "load-test-password"

type account struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate, refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address for the rate limiter; empty uses the memory limiter")
		miniRedis   = flag.Bool("miniredis", false, "run the redis rate limiter against an in-process miniredis")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg := invauth.DefaultConfig()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "invauth-loadtest"
	cfg.JWT.Audience = "inventory"
	cfg.Metrics.EnableLatencyHistograms = true
	// Every worker refreshes from the same (empty) origin; keep the budget out of the way.
	cfg.RateLimit.Policies[invauth.ActionRefresh] = invauth.RatePolicy{MaxAttempts: 1 << 30, Window: time.Minute, BlockDuration: time.Second}

	hasher, err := password.NewVerifier(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		fmt.Fprintf(os.Stderr, "password verifier: %v\n", err)
		os.Exit(1)
	}

	mem := memory.New()
	b := invauth.New().WithConfig(cfg).WithStore(mem).WithPasswordVerifier(hasher)

	addr := *redisAddr
	if addr == "" && *miniRedis {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	}
	if addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = client.Close() }()
		cfg.RateLimit.Backend = invauth.RateLimitRedis
		b = b.WithConfig(cfg).WithRedis(client)
		fmt.Printf("redis rate limiter at %s\n", addr)
	}

	engine, err := b.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}

	accounts := make([]*account, *users)
	fmt.Printf("seeding and logging in %d accounts...\n", *users)
	startSeed := time.Now()
	for i := range accounts {
		u := mem.PutUser(store.User{
			Email:        fmt.Sprintf("user%d@load.test", i),
			PasswordHash: hash,
			Role:         role.Operator.String(),
			Active:       true,
		})
		pair, err := engine.Login(ctx, u.Email, seedPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login %s: %v\n", u.Email, err)
			os.Exit(1)
		}
		accounts[i] = &account{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		a.mu.Lock()
		tok := a.access
		a.mu.Unlock()
		_, err := engine.Validate(ctx, tok)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		a.mu.Lock()
		defer a.mu.Unlock()
		pair, err := engine.Refresh(ctx, a.refresh)
		if err != nil {
			return err
		}
		a.access, a.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("validate latency buckets (<=5ms ... +Inf): %v\n", snap.Histograms[invauth.MetricValidateLatency])
}

// runPhase spreads ops calls of op across concurrency workers and records each
// call's latency.
func runPhase(ops, concurrency int, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
