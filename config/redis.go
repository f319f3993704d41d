package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

type RedisPool struct {
	PoolSize     int           `env:"POOL_SIZE" envDefault:"20"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// redisOptions accepts either a bare host:port or a redis:// / rediss:// URL.
func redisOptions(target string, pool RedisPool) (*redis.Options, error) {
	var opt *redis.Options
	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		parsed, err := redis.ParseURL(target)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: target}
	}

	if pool.PoolSize > 0 {
		opt.PoolSize = pool.PoolSize
	}
	if pool.DialTimeout > 0 {
		opt.DialTimeout = pool.DialTimeout
	}
	if pool.ReadTimeout > 0 {
		opt.ReadTimeout = pool.ReadTimeout
	}
	if pool.WriteTimeout > 0 {
		opt.WriteTimeout = pool.WriteTimeout
	}
	return opt, nil
}

func InitRedis(target string, pool RedisPool) error {
	if target == "" {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) is not set")
	}
	opt, err := redisOptions(target, pool)
	if err != nil {
		return err
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	RedisClient = client
	return nil
}
