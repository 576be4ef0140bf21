package postgres

import (
	"context"
	"strings"

	"github.com/MrEthical07/invauth/store"
	"github.com/jackc/pgx/v5"
)

const (
	userColumns = `id, email, password_hash, role, tenant_id, active`

	qUserByEmail     = `SELECT ` + userColumns + ` FROM users WHERE email = $1;`
	qUserByID        = `SELECT ` + userColumns + ` FROM users WHERE id = $1;`
	qUserIDsByTenant = `
SELECT id FROM users WHERE tenant_id = $1 ORDER BY id;
`
	qTenantByID = `SELECT id, name FROM tenants WHERE id = $1;`
)

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.getUser(ctx, qUserByEmail, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (store.User, error) {
	return s.getUser(ctx, qUserByID, userID)
}

func (s *Store) getUser(ctx context.Context, sql string, arg any) (store.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.q(ctx).QueryRow(ctx, sql, arg))
	if err != nil {
		return store.User{}, wrapErr("get user", err)
	}
	return u, nil
}

func (s *Store) ListUserIDsByTenant(ctx context.Context, tenantID int64) ([]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q(ctx).Query(ctx, qUserIDsByTenant, tenantID)
	if err != nil {
		return nil, wrapErr("list tenant users", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapErr("list tenant users", err)
	}
	return ids, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID int64) (store.Tenant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t store.Tenant
	if err := s.q(ctx).QueryRow(ctx, qTenantByID, tenantID).Scan(&t.ID, &t.Name); err != nil {
		return store.Tenant{}, wrapErr("get tenant", err)
	}
	return t, nil
}

func scanUser(row pgx.Row) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TenantID, &u.Active)
	return u, err
}
