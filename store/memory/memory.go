// Package memory is a process-local implementation of the store ports.
//
// It backs the test suites and the development server. Single-row updates are atomic
// under one mutex. Transactions are serialized and undone from an in-context journal on
// failure; plain calls outside a transaction are not isolated from a running one.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/invauth/store"
)

var _ store.Store = (*Store)(nil)

// Store holds every table in maps guarded by mu.
type Store struct {
	mu          sync.Mutex
	refresh     map[string]*store.RefreshCredential
	byHash      map[string]string
	revocations map[string]store.RevocationEntry
	users       map[int64]store.User
	tenants     map[int64]store.Tenant
	nextUserID  int64

	txMu        sync.Mutex
	unavailable atomic.Bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		refresh:     make(map[string]*store.RefreshCredential),
		byHash:      make(map[string]string),
		revocations: make(map[string]store.RevocationEntry),
		users:       make(map[int64]store.User),
		tenants:     make(map[int64]store.Tenant),
	}
}

// SetUnavailable makes every call fail with store.ErrUnavailable, simulating an outage.
func (s *Store) SetUnavailable(down bool) {
	s.unavailable.Store(down)
}

func (s *Store) check(ctx context.Context) error {
	if s.unavailable.Load() {
		return fmt.Errorf("%w: backend down", store.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.check(ctx) }

func (s *Store) Close() {}

/*
====================================
TRANSACTIONS
====================================
*/

type txKey struct{}

type journal struct {
	undo []func()
}

// WithTx serializes fn against other transactions and reverts its writes on error.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// record must be called with mu held.
func record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

/*
====================================
REFRESH CREDENTIALS
====================================
*/

func (s *Store) InsertRefresh(ctx context.Context, cred store.RefreshCredential) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refresh[cred.TokenID]; exists {
		return store.ErrConflict
	}
	if _, exists := s.byHash[cred.SecretHash]; exists {
		return store.ErrConflict
	}
	c := cred
	s.refresh[c.TokenID] = &c
	s.byHash[c.SecretHash] = c.TokenID
	record(ctx, func() {
		delete(s.refresh, c.TokenID)
		delete(s.byHash, c.SecretHash)
	})
	return nil
}

func (s *Store) FindRefreshByHash(ctx context.Context, secretHash string) (store.RefreshCredential, error) {
	if err := s.check(ctx); err != nil {
		return store.RefreshCredential{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[secretHash]
	if !ok {
		return store.RefreshCredential{}, store.ErrNotFound
	}
	return copyCredential(s.refresh[id]), nil
}

func (s *Store) RevokeRefreshIfActive(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.refresh[tokenID]
	if !ok || c.Revoked {
		return false, nil
	}
	s.revokeLocked(ctx, c, at)
	return true, nil
}

func (s *Store) RevokeRefreshForUser(ctx context.Context, userID int64, at time.Time) ([]store.RefreshCredential, error) {
	return s.revokeWhere(ctx, at, func(c *store.RefreshCredential) bool { return c.UserID == userID })
}

func (s *Store) RevokeRefreshForSession(ctx context.Context, sessionID string, at time.Time) ([]store.RefreshCredential, error) {
	return s.revokeWhere(ctx, at, func(c *store.RefreshCredential) bool { return c.SessionID == sessionID })
}

func (s *Store) revokeWhere(ctx context.Context, at time.Time, match func(*store.RefreshCredential) bool) ([]store.RefreshCredential, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.RefreshCredential
	for _, c := range s.refresh {
		if c.Revoked || !match(c) {
			continue
		}
		s.revokeLocked(ctx, c, at)
		out = append(out, copyCredential(c))
	}
	sortByIssued(out)
	return out, nil
}

func (s *Store) revokeLocked(ctx context.Context, c *store.RefreshCredential, at time.Time) {
	revokedAt := at
	c.Revoked = true
	c.RevokedAt = &revokedAt
	record(ctx, func() {
		c.Revoked = false
		c.RevokedAt = nil
	})
}

func (s *Store) ListActiveRefresh(ctx context.Context, userID int64, now time.Time) ([]store.RefreshCredential, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.RefreshCredential
	for _, c := range s.refresh {
		if c.UserID == userID && c.Active(now) {
			out = append(out, copyCredential(c))
		}
	}
	sortByIssued(out)
	return out, nil
}

func (s *Store) DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.refresh {
		if c.ExpiresAt.After(now) {
			continue
		}
		delete(s.refresh, id)
		delete(s.byHash, c.SecretHash)
		n++
	}
	return n, nil
}

func copyCredential(c *store.RefreshCredential) store.RefreshCredential {
	out := *c
	if c.RevokedAt != nil {
		at := *c.RevokedAt
		out.RevokedAt = &at
	}
	return out
}

func sortByIssued(creds []store.RefreshCredential) {
	sort.SliceStable(creds, func(i, j int) bool {
		if creds[i].IssuedAt.Equal(creds[j].IssuedAt) {
			return creds[i].TokenID < creds[j].TokenID
		}
		return creds[i].IssuedAt.Before(creds[j].IssuedAt)
	})
}

/*
====================================
REVOCATIONS
====================================
*/

func (s *Store) UpsertRevocation(ctx context.Context, entry store.RevocationEntry) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.revocations[entry.TokenID]
	if existed && prev.ExpiresAt.After(entry.ExpiresAt) {
		entry.ExpiresAt = prev.ExpiresAt
	}
	s.revocations[entry.TokenID] = entry
	record(ctx, func() {
		if existed {
			s.revocations[entry.TokenID] = prev
			return
		}
		delete(s.revocations, entry.TokenID)
	})
	return nil
}

func (s *Store) GetRevocation(ctx context.Context, tokenID string) (store.RevocationEntry, error) {
	if err := s.check(ctx); err != nil {
		return store.RevocationEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.revocations[tokenID]
	if !ok {
		return store.RevocationEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) DeleteRevocationIfExpired(ctx context.Context, tokenID string, now time.Time) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.revocations[tokenID]; ok && !e.ExpiresAt.After(now) {
		delete(s.revocations, tokenID)
	}
	return nil
}

func (s *Store) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.revocations {
		if !e.ExpiresAt.After(now) {
			delete(s.revocations, id)
			n++
		}
	}
	return n, nil
}

/*
====================================
USERS AND TENANTS
====================================
*/

// PutUser inserts or replaces a user. A zero ID is assigned the next sequence value.
func (s *Store) PutUser(u store.User) store.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		s.nextUserID++
		u.ID = s.nextUserID
	} else if u.ID > s.nextUserID {
		s.nextUserID = u.ID
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.users[u.ID] = u
	return u
}

// SetUserActive toggles the account status.
func (s *Store) SetUserActive(userID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userID]; ok {
		u.Active = active
		s.users[userID] = u
	}
}

// PutTenant inserts or replaces a tenant.
func (s *Store) PutTenant(t store.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// DeleteTenant removes a tenant.
func (s *Store) DeleteTenant(tenantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, tenantID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if err := s.check(ctx); err != nil {
		return store.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (store.User, error) {
	if err := s.check(ctx); err != nil {
		return store.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUserIDsByTenant(ctx context.Context, tenantID int64) ([]int64, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, u := range s.users {
		if u.TenantID != nil && *u.TenantID == tenantID {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID int64) (store.Tenant, error) {
	if err := s.check(ctx); err != nil {
		return store.Tenant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return store.Tenant{}, store.ErrNotFound
	}
	return t, nil
}
