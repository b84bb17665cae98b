// Package idempotency remembers Idempotency-Key headers in Redis so a retried
// write request replays the first result instead of executing twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/stockwise/stockwise-backend/pkg/errors"
)

const keyPrefix = "idempotency:"

// record is what a key holds: the request fingerprint and, once completed, the response.
type record struct {
	Fingerprint string `json:"fingerprint"`
	Done        bool   `json:"done"`
	Result      []byte `json:"result,omitempty"`
}

// Store tracks idempotency keys. A nil Store accepts every request.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a store whose keys expire after ttl
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Connect creates a Redis client for addr and verifies it answers
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("idempotency: ping: %w", err)
	}
	return client, nil
}

// Begin claims key for a new request identified by fingerprint.
// When the key was already completed for the same fingerprint the stored result is
// returned with acquired=false. A key still held by an in-flight request yields a
// Conflict error, and a key first used for a different request a Precondition error.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (stored []byte, acquired bool, err error) {
	if s == nil || s.client == nil || key == "" {
		return nil, true, nil
	}

	pending, err := json.Marshal(record{Fingerprint: fingerprint})
	if err != nil {
		return nil, false, apperrors.Internal("failed to encode idempotency record")
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
	if err != nil {
		return nil, false, apperrors.Storage(err, "idempotency store unavailable")
	}
	if ok {
		return nil, true, nil
	}

	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		return s.Begin(ctx, key, fingerprint)
	}
	if err != nil {
		return nil, false, apperrors.Storage(err, "idempotency store unavailable")
	}

	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false, apperrors.Storage(err, "idempotency record is unreadable")
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, apperrors.Precondition("idempotency key was already used for a different request")
	}
	if !rec.Done {
		return nil, false, apperrors.Conflict("a request with this idempotency key is already in progress")
	}
	return rec.Result, false, nil
}

// Complete stores the result for key, keeping the original expiry
func (s *Store) Complete(ctx context.Context, key, fingerprint string, result []byte) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	done, err := json.Marshal(record{Fingerprint: fingerprint, Done: true, Result: result})
	if err != nil {
		return apperrors.Internal("failed to encode idempotency record")
	}
	if err := s.client.SetArgs(ctx, keyPrefix+key, done, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.Storage(err, "idempotency store unavailable")
	}
	return nil
}

// Release forgets key so the client may retry after a failure
func (s *Store) Release(ctx context.Context, key string) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return apperrors.Storage(err, "idempotency store unavailable")
	}
	return nil
}

// Health returns the health status of Redis
func (s *Store) Health(ctx context.Context) map[string]string {
	if s == nil || s.client == nil {
		return map[string]string{"status": "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return map[string]string{"status": "up"}
}
