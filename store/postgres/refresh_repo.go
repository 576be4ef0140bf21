package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/invauth/store"
	"github.com/jackc/pgx/v5"
)

const (
	refreshColumns = `token_id, secret_hash, user_id, session_id, COALESCE(parent_id, ''), issued_at, expires_at, revoked, revoked_at`

	qRefreshInsert = `
INSERT INTO refresh_credentials (token_id, secret_hash, user_id, session_id, parent_id, issued_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, FALSE);
`
	qRefreshFindByHash = `
SELECT ` + refreshColumns + `
FROM refresh_credentials
WHERE secret_hash = $1
LIMIT 1;
`
	qRefreshRevokeIfActive = `
UPDATE refresh_credentials SET revoked = TRUE, revoked_at = $2
WHERE token_id = $1 AND revoked = FALSE;
`
	qRefreshRevokeForUser = `
UPDATE refresh_credentials SET revoked = TRUE, revoked_at = $2
WHERE user_id = $1 AND revoked = FALSE
RETURNING ` + refreshColumns + `;
`
	qRefreshRevokeForSession = `
UPDATE refresh_credentials SET revoked = TRUE, revoked_at = $2
WHERE session_id = $1 AND revoked = FALSE
RETURNING ` + refreshColumns + `;
`
	qRefreshListActive = `
SELECT ` + refreshColumns + `
FROM refresh_credentials
WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
ORDER BY issued_at ASC, token_id ASC;
`
	qRefreshDeleteExpired = `
DELETE FROM refresh_credentials WHERE expires_at <= $1;
`
)

func (s *Store) InsertRefresh(ctx context.Context, c store.RefreshCredential) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q(ctx).Exec(ctx, qRefreshInsert,
		c.TokenID, c.SecretHash, c.UserID, c.SessionID, c.ParentID, c.IssuedAt.UTC(), c.ExpiresAt.UTC())
	return wrapErr("insert refresh", err)
}

func (s *Store) FindRefreshByHash(ctx context.Context, secretHash string) (store.RefreshCredential, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := scanCredential(s.q(ctx).QueryRow(ctx, qRefreshFindByHash, secretHash))
	if err != nil {
		return store.RefreshCredential{}, wrapErr("find refresh", err)
	}
	return c, nil
}

func (s *Store) RevokeRefreshIfActive(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q(ctx).Exec(ctx, qRefreshRevokeIfActive, tokenID, at.UTC())
	if err != nil {
		return false, wrapErr("revoke refresh", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RevokeRefreshForUser(ctx context.Context, userID int64, at time.Time) ([]store.RefreshCredential, error) {
	return s.queryCredentials(ctx, "revoke refresh for user", qRefreshRevokeForUser, userID, at.UTC())
}

func (s *Store) RevokeRefreshForSession(ctx context.Context, sessionID string, at time.Time) ([]store.RefreshCredential, error) {
	return s.queryCredentials(ctx, "revoke refresh for session", qRefreshRevokeForSession, sessionID, at.UTC())
}

func (s *Store) ListActiveRefresh(ctx context.Context, userID int64, now time.Time) ([]store.RefreshCredential, error) {
	return s.queryCredentials(ctx, "list active refresh", qRefreshListActive, userID, now.UTC())
}

func (s *Store) DeleteExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q(ctx).Exec(ctx, qRefreshDeleteExpired, now.UTC())
	if err != nil {
		return 0, wrapErr("delete expired refresh", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryCredentials(ctx context.Context, op, sql string, args ...any) ([]store.RefreshCredential, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []store.RefreshCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}

func scanCredential(row pgx.Row) (store.RefreshCredential, error) {
	var c store.RefreshCredential
	err := row.Scan(&c.TokenID, &c.SecretHash, &c.UserID, &c.SessionID, &c.ParentID,
		&c.IssuedAt, &c.ExpiresAt, &c.Revoked, &c.RevokedAt)
	return c, err
}
