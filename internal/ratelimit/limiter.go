// Package ratelimit はクライアントIP単位の固定ウィンドウ方式レート制限を提供します。
//
// カウンタは Redis で共有します。Redis が使えない場合はプロセス内のカウンタで判定を続けます。
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix = "rl"
	// expireSlack はキーを少し長めに残し、ウィンドウ境界の時計ずれを吸収します。
	expireSlack = 5 * time.Second
	// pruneEvery 回の判定ごとにメモリカウンタの古いバケットを捨てます。
	pruneEvery = 256
)

// Rule はルート単位の制限です。Key はルートを区別する名前です。
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Decision は1回の判定結果です。
type Decision struct {
	Allowed bool
	Count   int64
	// RetryAfter は次のウィンドウが始まるまでの時間です。
	RetryAfter time.Duration
	// Fallback は Redis ではなくメモリカウンタで判定した場合に true です。
	Fallback bool
}

// Options は Limiter の設定です。
type Options struct {
	// Timeout は Redis 呼び出し1回あたりの待ち時間上限です。
	Timeout time.Duration
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// Limiter は固定ウィンドウのカウンタです。rdb が nil の場合は常にメモリで判定します。
type Limiter struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time

	lock    sync.Mutex
	memory  map[string]*memoryEntry
	checked int
}

// New は Limiter を作成します。
func New(rdb *redis.Client, opts Options) *Limiter {
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		rdb:     rdb,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		now:     opts.Now,
		memory:  make(map[string]*memoryEntry),
	}
}

// Allow は client のリクエストを1回数え、rule の上限以内かを返します。
func (l *Limiter) Allow(ctx context.Context, rule Rule, client string) Decision {
	if rule.Window <= 0 || rule.Limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	bucket := now.UnixNano() / int64(rule.Window)
	key := fmt.Sprintf("%s:%s:%s:%d", keyPrefix, rule.Key, client, bucket)
	windowEnd := time.Unix(0, (bucket+1)*int64(rule.Window))
	retryAfter := windowEnd.Sub(now)

	var (
		n        int64
		fallback bool
	)
	if l.rdb != nil {
		count, err := l.incrRedis(ctx, key, rule.Window)
		if err != nil {
			l.logger.WithError(err).WithField("rule", rule.Key).Warn("rate limit backend unavailable; using in-process counter")
			fallback = true
		} else {
			n = count
		}
	} else {
		fallback = true
	}
	if fallback {
		n = l.incrMemory(key, now, windowEnd)
	}

	return Decision{
		Allowed:    n <= int64(rule.Limit),
		Count:      n,
		RetryAfter: retryAfter,
		Fallback:   fallback,
	}
}

func (l *Limiter) incrRedis(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// INCR と EXPIRE NX を同じトランザクションで送り、期限の無いキーを残さない
	var incr *redis.IntCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window+expireSlack)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (l *Limiter) incrMemory(key string, now, expiresAt time.Time) int64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.checked++
	if l.checked >= pruneEvery {
		l.checked = 0
		for k, e := range l.memory {
			if !now.Before(e.expiresAt) {
				delete(l.memory, k)
			}
		}
	}

	entry, ok := l.memory[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: expiresAt}
		l.memory[key] = entry
	}
	entry.count++
	return entry.count
}
