package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/extension-approver/internal/models"
)

// RedisDedup is the duplicate-submission guard. Form webhooks retry on slow
// responses, so the same submission can arrive more than once; the guard
// claims a fingerprint key with SETNX and lets only the first claim through.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedup constructs the guard. A zero TTL falls back to ten minutes.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisDedup{client: client, ttl: ttl}
}

// Acquire claims the fingerprint. It returns false when another claim
// already holds it, meaning the submission is a duplicate. A nil guard
// (no Redis configured) lets every submission through.
func (d *RedisDedup) Acquire(ctx context.Context, fingerprint string) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, "dedup:"+fingerprint, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	return ok, nil
}

// Fingerprint derives a stable key from the identifying fields of a
// submission. Two retries of the same form post hash identically.
func Fingerprint(sub *models.Submission) string {
	var b strings.Builder
	b.WriteString(sub.Email)
	b.WriteByte('|')
	b.WriteString(sub.PartnerEmail)
	b.WriteByte('|')
	b.WriteString(sub.Timestamp.UTC().Format(time.RFC3339))
	for _, req := range sub.Requests {
		fmt.Fprintf(&b, "|%s=%d", req.AssignmentID, req.Days)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
