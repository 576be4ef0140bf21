package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/invauth"
	"github.com/MrEthical07/invauth/password"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "forklift certified"

// cmdCounter is a go-redis hook counting commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// cluster is a set of engines that share one user store and one Redis, the way
// several invauthd replicas would.
type cluster struct {
	mem     *memory.Store
	mr      *miniredis.Miniredis
	hasher  *password.Verifier
	counter *cmdCounter
	cfg     invauth.Config
}

func newCluster(t *testing.T) *cluster {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := invauth.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "invauth-cluster"
	cfg.JWT.Audience = "inventory"
	cfg.RateLimit.Backend = invauth.RateLimitRedis
	cfg.Session.AsyncSignal = false

	hasher, err := password.NewVerifier(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("password verifier: %v", err)
	}

	return &cluster{mem: memory.New(), mr: mr, hasher: hasher, counter: &cmdCounter{}, cfg: cfg}
}

// node builds one engine. The first node's client carries the command counter.
func (c *cluster) node(t *testing.T, counted bool) *invauth.Engine {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: c.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Warm the connection so handshake commands are not counted.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	if counted {
		rdb.AddHook(c.counter)
	}

	engine, err := invauth.New().
		WithConfig(c.cfg).
		WithStore(c.mem).
		WithRedis(rdb).
		WithPasswordVerifier(c.hasher).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func (c *cluster) addUser(t *testing.T, email string, r role.Role, tenantID *int64) store.User {
	t.Helper()
	hash, err := c.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return c.mem.PutUser(store.User{Email: email, PasswordHash: hash, Role: r.String(), TenantID: tenantID, Active: true})
}
