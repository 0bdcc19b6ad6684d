package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the keychain account name of a secret key.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "FEEDCTL_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.token", typ: kString, env: "FEEDCTL_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "api.timeout", typ: kDuration, env: "FEEDCTL_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "feed.page_size", typ: kInt, env: "FEEDCTL_FEED_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Feed.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Feed.PageSize },
	},
	{
		key: "feed.search_debounce", typ: kDuration, env: "FEEDCTL_FEED_SEARCH_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Feed.SearchDebounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Feed.SearchDebounce },
	},
	{
		key: "feed.refresh_after", typ: kDuration, env: "FEEDCTL_FEED_REFRESH_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Feed.RefreshAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Feed.RefreshAfter },
	},
	{
		key: "feed.poll_interval", typ: kDuration, env: "FEEDCTL_FEED_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Feed.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Feed.PollInterval },
	},
	{
		key: "derive.precision", typ: kInt, env: "FEEDCTL_DERIVE_PRECISION",
		apply:   func(cfg *Config, v any) { cfg.Derive.Precision = v.(int) },
		extract: func(cfg Config) any { return cfg.Derive.Precision },
	},
	{
		key: "verify.ttl", typ: kDuration, env: "FEEDCTL_VERIFY_TTL",
		apply:   func(cfg *Config, v any) { cfg.Verify.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Verify.TTL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FEEDCTL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "FEEDCTL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "FEEDCTL_SERVER_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "log.level", typ: kString, env: "FEEDCTL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw text to the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := s.parse(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				continue
			}
			s.apply(cfg, parsed)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
