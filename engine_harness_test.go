package invauth

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/invauth/password"
	"github.com/MrEthical07/invauth/role"
	"github.com/MrEthical07/invauth/store"
	"github.com/MrEthical07/invauth/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *Engine
	mem    *memory.Store
	clock  *fakeClock
	hasher *password.Verifier
	audit  *ChannelSink
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

const testPassword = "correct horse battery"

func testKeys(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func testEngineConfig(pub ed25519.PublicKey, priv ed25519.PrivateKey) Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "invauth-test"
	cfg.JWT.Audience = "inventory"
	cfg.Session.AsyncSignal = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newHarness(t testing.TB, mutate func(*Config)) *harness {
	t.Helper()
	pub, priv := testKeys(t)
	cfg := testEngineConfig(pub, priv)
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewVerifier(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("password verifier: %v", err)
	}

	h := &harness{
		mem:    memory.New(),
		clock:  &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		hasher: hasher,
		audit:  NewChannelSink(256),
		priv:   priv,
		pub:    pub,
	}
	eng, err := New().
		WithConfig(cfg).
		WithStore(h.mem).
		WithPasswordVerifier(hasher).
		WithAuditSink(h.audit).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(eng.Close)
	h.engine = eng
	return h
}

func (h *harness) addUser(t testing.TB, email string, r role.Role, tenantID *int64) store.User {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h.mem.PutUser(store.User{
		Email:        email,
		PasswordHash: hash,
		Role:         r.String(),
		TenantID:     tenantID,
		Active:       true,
	})
}

// closeAndDrainAudit closes the engine, which flushes the dispatcher, and returns
// the event types delivered to the sink in order.
func (h *harness) closeAndDrainAudit() []string {
	h.engine.Close()
	var out []string
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev.EventType)
		default:
			return out
		}
	}
}

func int64Ptr(v int64) *int64 { return &v }

func storeTenant(id int64, name string) store.Tenant {
	return store.Tenant{ID: id, Name: name}
}
