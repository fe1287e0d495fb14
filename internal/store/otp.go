package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// OtpKeyPrefix is the Redis key prefix for outstanding codes
	OtpKeyPrefix = "otp:"
	// OtpRetention keeps expired records around long enough to report them as expired.
	OtpRetention = time.Hour

	otpMaxTxRetries = 5
)

// OtpMutation receives the current record (nil when none) and returns the record to
// store (nil deletes it). Its error is returned to the caller after the write commits.
// It may run more than once and must not have side effects.
type OtpMutation func(cur *models.OtpRecord) (*models.OtpRecord, error)

// OtpStore holds at most one outstanding record per email.
type OtpStore interface {
	Mutate(ctx context.Context, email string, fn OtpMutation) error
}

// MemoryOtpStore keeps records in process memory.
type MemoryOtpStore struct {
	mu      sync.Mutex
	records map[string]models.OtpRecord
	now     func() time.Time
}

func NewMemoryOtpStore(now func() time.Time) *MemoryOtpStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryOtpStore{records: make(map[string]models.OtpRecord), now: now}
}

func (s *MemoryOtpStore) Mutate(_ context.Context, email string, fn OtpMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()

	var cur *models.OtpRecord
	if rec, ok := s.records[email]; ok {
		cur = &rec
	}
	next, err := fn(cur)
	if next == nil {
		delete(s.records, email)
	} else {
		s.records[email] = *next
	}
	return err
}

// Len returns the number of stored records.
func (s *MemoryOtpStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// pruneLocked drops records nobody came back for.
func (s *MemoryOtpStore) pruneLocked() {
	cutoff := s.now().Add(-OtpRetention)
	for email, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.records, email)
		}
	}
}

// RedisOtpStore keeps records in Redis so every instance sees the same codes.
// Each Mutate is a WATCH/MULTI transaction retried on conflict.
type RedisOtpStore struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisOtpStore(client *redis.Client, logger *zap.Logger, now func() time.Time) *RedisOtpStore {
	if now == nil {
		now = time.Now
	}
	return &RedisOtpStore{client: client, logger: logger, now: now}
}

func (s *RedisOtpStore) Mutate(ctx context.Context, email string, fn OtpMutation) error {
	key := OtpKeyPrefix + email

	var fnErr error
	txf := func(tx *redis.Tx) error {
		cur, err := loadOtp(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := fn(cur)
		fnErr = err

		var payload []byte
		if next != nil {
			if payload, err = json.Marshal(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			ttl := next.ExpiresAt.Sub(s.now()) + OtpRetention
			if ttl <= 0 {
				ttl = OtpRetention
			}
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < otpMaxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		s.logger.Error("OTP store transaction failed", zap.Error(err))
		return apperr.Transient("OTP store unavailable", err)
	}
	s.logger.Warn("OTP record kept changing, giving up", zap.Int("retries", otpMaxTxRetries))
	return apperr.Concurrency("OTP record changed concurrently", redis.TxFailedErr)
}

func loadOtp(ctx context.Context, tx *redis.Tx, key string) (*models.OtpRecord, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec models.OtpRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// An unreadable record is treated as absent and overwritten.
		return nil, nil
	}
	return &rec, nil
}
