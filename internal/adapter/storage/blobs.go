package storage

import (
	"context"
	"fmt"
)

func (s *Store) PutVoucher(ctx context.Context, name, contentType string, body []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vouchers (name, content_type, body) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET content_type = EXCLUDED.content_type, body = EXCLUDED.body`,
		name, contentType, body)
	if err != nil {
		return fmt.Errorf("store voucher %s: %w", name, err)
	}
	return nil
}

func (s *Store) GetVoucher(ctx context.Context, name string) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
	)
	err := s.db.QueryRow(ctx, `SELECT body, content_type FROM vouchers WHERE name = $1`, name).Scan(&body, &contentType)
	if err != nil {
		return nil, "", notFound(err, "voucher "+name)
	}
	return body, contentType, nil
}

// LoadResponse returns the response stored for an idempotency key, or
// domain.ErrNotFound.
func (s *Store) LoadResponse(ctx context.Context, key string) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	err := s.db.QueryRow(ctx, `SELECT status, body FROM idempotency_keys WHERE key = $1`, key).Scan(&status, &body)
	if err != nil {
		return 0, nil, notFound(err, "idempotency key "+key)
	}
	return status, body, nil
}

// ReserveKey inserts a placeholder row (status 0). The primary key lets only
// one concurrent caller win.
func (s *Store) ReserveKey(ctx context.Context, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (key, status, body) VALUES ($1, 0, ''::bytea)
		ON CONFLICT (key) DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseKey removes a placeholder that never received a response.
func (s *Store) ReleaseKey(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status = 0`, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// SaveResponse fills a reservation. The first stored response wins.
func (s *Store) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (key, status, body) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body
		WHERE idempotency_keys.status = 0`, key, status, body)
	if err != nil {
		return fmt.Errorf("save idempotent response: %w", err)
	}
	return nil
}
