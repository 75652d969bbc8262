// Package natskv implements a cluster-wide lock.Locker on a NATS JetStream
// key-value bucket.
//
// A lock is a key created with Create, which only succeeds when the key is
// absent or deleted. Release deletes the key, guarded by the revision the
// lock was acquired at. The bucket TTL bounds how long a crashed holder can
// keep a key locked.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/poiesic/vellum/lock"
)

const (
	// DefaultBucket is the bucket CreateBucket uses when none is given.
	DefaultBucket = "vellum_locks"
	// DefaultTTL is how long a lock survives its holder.
	DefaultTTL = 30 * time.Second

	defaultRetry    = 10 * time.Millisecond
	defaultMaxRetry = 250 * time.Millisecond
)

// CreateBucket creates or updates the lock bucket with the given TTL.
func CreateBucket(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "vellum document write locks",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create lock bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Locker acquires locks by creating keys in a KeyValue bucket.
type Locker struct {
	kv       jetstream.KeyValue
	owner    string
	retry    time.Duration
	maxRetry time.Duration
	logger   *slog.Logger
}

var _ lock.Locker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithRetry sets the initial and maximum wait between acquisition attempts.
func WithRetry(initial, max time.Duration) Option {
	return func(l *Locker) {
		l.retry = initial
		l.maxRetry = max
	}
}

// WithOwner sets the value written into lock keys. It defaults to a random id.
func WithOwner(owner string) Option {
	return func(l *Locker) {
		l.owner = owner
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// New creates a Locker on kv.
func New(kv jetstream.KeyValue, opts ...Option) *Locker {
	l := &Locker{
		kv:       kv,
		owner:    uuid.NewString(),
		retry:    defaultRetry,
		maxRetry: defaultMaxRetry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until key is created in the bucket or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lock, error) {
	subject := encodeKey(key)
	wait := l.retry
	for {
		rev, err := l.kv.Create(ctx, subject, []byte(l.owner))
		if err == nil {
			return &held{kv: l.kv, key: subject, rev: rev, logger: l.logger}, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		// Jitter keeps contending writers from retrying in lockstep.
		sleep := wait/2 + rand.N(wait/2+1)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, l.maxRetry)
	}
}

type held struct {
	kv     jetstream.KeyValue
	key    string
	rev    uint64
	logger *slog.Logger

	mu       sync.Mutex
	released bool
}

// Release deletes the lock key if it still holds the acquired revision.
func (h *held) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return lock.ErrNotHeld
	}
	h.released = true

	err := h.kv.Delete(ctx, h.key, jetstream.LastRevision(h.rev))
	if err != nil {
		// The lease expired and someone else may hold the key now.
		h.logger.Warn("lock release failed", "key", h.key, "revision", h.rev, "err", err)
		return fmt.Errorf("%w: %s: %w", lock.ErrNotHeld, h.key, err)
	}
	return nil
}

// encodeKey maps an arbitrary resource key onto the KV key alphabet.
// Every byte outside [A-Za-z0-9_-] except '/' becomes "=" plus two hex
// digits, so distinct keys never share an encoding.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		case c == '/':
			b.WriteByte('.')
		default:
			fmt.Fprintf(&b, "=%02x", c)
		}
	}
	return b.String()
}
