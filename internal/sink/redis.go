// Package sink delivers cycle reports to external systems.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/report"
)

const (
	// LatestKeyPrefix holds the most recent report per asset
	LatestKeyPrefix = "diagnosys:latest:"
	// ReportsKeyPrefix is a capped list of recent reports per asset
	ReportsKeyPrefix = "diagnosys:reports:"
	// AnomaliesKeyPrefix counts anomalous reports per asset
	AnomaliesKeyPrefix = "diagnosys:anomalies:"

	// DefaultTTL applies to the latest report key
	DefaultTTL = time.Hour
	// ReportsKept bounds the per-asset report list
	ReportsKept = 100
)

// RedisOptions configures the Redis sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisSink mirrors reports into Redis for dashboards and other consumers.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, opts RedisOptions, l *zap.SugaredLogger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", opts.Addr)
	}

	return NewRedisSinkWithClient(client, opts.TTL, l), nil
}

// NewRedisSinkWithClient wraps an existing client without pinging it.
func NewRedisSinkWithClient(client *redis.Client, ttl time.Duration, l *zap.SugaredLogger) *RedisSink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisSink{client: client, ttl: ttl, logger: logger.OrNop(l)}
}

// Name implements report.Sink.
func (s *RedisSink) Name() string { return "redis" }

// Publish implements report.Sink.
func (s *RedisSink) Publish(ctx context.Context, r report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, LatestKey(r.Asset), data, s.ttl)
	pipe.LPush(ctx, ReportsKey(r.Asset), data)
	pipe.LTrim(ctx, ReportsKey(r.Asset), 0, ReportsKept-1)
	if r.Anomalous() {
		pipe.Incr(ctx, AnomaliesKey(r.Asset))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "publish report %s to redis", r.CycleID)
	}
	return nil
}

// Latest returns the last report stored for asset, if any.
func (s *RedisSink) Latest(ctx context.Context, asset domain.AssetID) (report.Report, bool, error) {
	var r report.Report
	data, err := s.client.Get(ctx, LatestKey(asset)).Bytes()
	if err == redis.Nil {
		return r, false, nil
	}
	if err != nil {
		return r, false, errors.Wrapf(err, "read latest report for %s", asset)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, false, errors.Wrap(err, "decode latest report")
	}
	return r, true, nil
}

// Close releases the connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func LatestKey(asset domain.AssetID) string    { return LatestKeyPrefix + string(asset) }
func ReportsKey(asset domain.AssetID) string   { return ReportsKeyPrefix + string(asset) }
func AnomaliesKey(asset domain.AssetID) string { return AnomaliesKeyPrefix + string(asset) }
