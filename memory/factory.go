package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

// NewSessionStore builds the configured store. rdb is required for the
// redis store and ignored otherwise.
func NewSessionStore(cfg config.SessionConfig, rdb redis.UniversalClient) (SessionStore, error) {
	switch strings.ToLower(cfg.Store) {
	case "", "inmemory", "memory":
		return NewInMemorySessionStore(), nil
	case "redis":
		if rdb == nil {
			return nil, &config.ConfigurationError{Field: "session.redis", Err: fmt.Errorf("redis client not configured")}
		}
		return NewRedisSessionStore(rdb, cfg.Redis.Prefix, time.Duration(cfg.TTLSeconds)*time.Second), nil
	case "sqlite":
		store, err := NewSQLiteSessionStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, &config.ConfigurationError{Field: "session.store", Err: fmt.Errorf("unknown store %q", cfg.Store)}
	}
}
