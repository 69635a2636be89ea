package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

const (
	opGet = "GET"
	opSet = "SET"

	statusMiss = "MISS"
)

// redisAdapter issues GET and SET commands against a fixed key set. A GET of
// a missing key succeeds with the MISS status.
type redisAdapter struct {
	cfg      config.RedisConfig
	timeout  time.Duration
	poolSize int
	value    string
	rnd      *randSource
}

func newRedisAdapter(cfg *config.Config, rnd *randSource) *redisAdapter {
	r := cfg.Redis
	if r.Command == "" {
		r.Command = config.RedisGet
	}
	poolSize := r.PoolSize
	if poolSize <= 0 {
		poolSize = cfg.Concurrency
	}
	return &redisAdapter{
		cfg:      r,
		timeout:  cfg.Timeout,
		poolSize: poolSize,
		value:    strings.Repeat("x", r.ValueSize),
		rnd:      rnd,
	}
}

func (a *redisAdapter) BuildClient(ctx context.Context) (runner.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         a.cfg.Address,
		Password:     a.cfg.Password,
		DB:           a.cfg.DB,
		PoolSize:     a.poolSize,
		DialTimeout:  a.cfg.DialTimeout,
		ReadTimeout:  a.timeout,
		WriteTimeout: a.timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Address, err)
	}
	return rdb, nil
}

func (a *redisAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	rdb, ok := client.(redis.Cmdable)
	if !ok {
		return metrics.Failed("Invalid client", 0)
	}
	key := a.cfg.Keys[a.rnd.Intn(len(a.cfg.Keys))]
	if a.nextIsRead() {
		return a.get(ctx, rdb, key)
	}
	return a.set(ctx, rdb, key)
}

func (a *redisAdapter) nextIsRead() bool {
	switch a.cfg.Command {
	case config.RedisSet:
		return false
	case config.RedisMixed:
		return a.rnd.Float64() < a.cfg.ReadRatio
	default:
		return true
	}
}

func (a *redisAdapter) get(ctx context.Context, rdb redis.Cmdable, key string) metrics.Outcome {
	start := time.Now()
	val, err := rdb.Get(ctx, key).Result()
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, redis.Nil):
		return metrics.Succeeded(statusMiss, 0, elapsed).WithOperation(opGet)
	case err != nil:
		return metrics.Failed(redisStatus(err), elapsed).WithOperation(opGet)
	}
	return metrics.Succeeded(statusOK, uint64(len(val)), elapsed).WithOperation(opGet)
}

func (a *redisAdapter) set(ctx context.Context, rdb redis.Cmdable, key string) metrics.Outcome {
	start := time.Now()
	err := rdb.Set(ctx, key, a.value, a.cfg.KeyTTL).Err()
	elapsed := time.Since(start)
	if err != nil {
		return metrics.Failed(redisStatus(err), elapsed).WithOperation(opSet)
	}
	return metrics.Succeeded(statusOK, uint64(len(a.value)), elapsed).WithOperation(opSet)
}

// redisStatus uses the error prefix of server replies ("WRONGTYPE", "ERR"),
// the client's pool errors, and the transport class otherwise.
func redisStatus(err error) string {
	switch {
	case errors.Is(err, redis.ErrPoolTimeout):
		return "Pool timeout"
	case errors.Is(err, redis.ErrClosed):
		return "Client closed"
	}
	var re redis.Error
	if errors.As(err, &re) {
		msg := strings.TrimSpace(re.Error())
		if prefix, _, found := strings.Cut(msg, " "); found && prefix == strings.ToUpper(prefix) {
			return prefix
		}
		return msg
	}
	return fallbackStatus(err)
}
