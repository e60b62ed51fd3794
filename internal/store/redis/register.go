package redis

import (
	"fmt"

	"github.com/flashdb/titankv/internal/store"
)

func init() {
	store.Register(store.KindRedis, func(cfg store.Config) (store.Backend, error) {
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis: url is required when backend is 'redis'")
		}
		return New(cfg.RedisURL)
	})
}
