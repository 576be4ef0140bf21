package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/invauth/store"
)

const (
	qRevocationUpsert = `
INSERT INTO revoked_tokens (token_id, user_id, reason, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (token_id) DO UPDATE
SET reason = EXCLUDED.reason,
    expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at);
`
	qRevocationGet = `
SELECT token_id, user_id, reason, expires_at, created_at
FROM revoked_tokens
WHERE token_id = $1;
`
	qRevocationDeleteIfExpired = `
DELETE FROM revoked_tokens WHERE token_id = $1 AND expires_at <= $2;
`
	qRevocationDeleteExpired = `
DELETE FROM revoked_tokens WHERE expires_at <= $1;
`
)

func (s *Store) UpsertRevocation(ctx context.Context, e store.RevocationEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.q(ctx).Exec(ctx, qRevocationUpsert, e.TokenID, e.UserID, e.Reason, e.ExpiresAt.UTC(), created.UTC())
	return wrapErr("upsert revocation", err)
}

func (s *Store) GetRevocation(ctx context.Context, tokenID string) (store.RevocationEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var e store.RevocationEntry
	err := s.q(ctx).QueryRow(ctx, qRevocationGet, tokenID).
		Scan(&e.TokenID, &e.UserID, &e.Reason, &e.ExpiresAt, &e.CreatedAt)
	if err != nil {
		return store.RevocationEntry{}, wrapErr("get revocation", err)
	}
	return e, nil
}

func (s *Store) DeleteRevocationIfExpired(ctx context.Context, tokenID string, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q(ctx).Exec(ctx, qRevocationDeleteIfExpired, tokenID, now.UTC())
	return wrapErr("delete expired revocation", err)
}

func (s *Store) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q(ctx).Exec(ctx, qRevocationDeleteExpired, now.UTC())
	if err != nil {
		return 0, wrapErr("sweep revocations", err)
	}
	return tag.RowsAffected(), nil
}
