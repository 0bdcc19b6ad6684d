package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Keychain service name under which secrets are stored.
const secretService = "feedctl"

type Config struct {
	API     APIConfig
	Feed    FeedConfig
	Derive  DeriveConfig
	Verify  VerifyConfig
	Storage StorageConfig
	Server  ServerConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type FeedConfig struct {
	PageSize       int
	SearchDebounce time.Duration
	RefreshAfter   time.Duration
	PollInterval   time.Duration
}

type DeriveConfig struct {
	Precision int
}

type VerifyConfig struct {
	TTL time.Duration
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port  int
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 15 * time.Second,
		},
		Feed: FeedConfig{
			PageSize:       20,
			SearchDebounce: 500 * time.Millisecond,
		},
		Verify: VerifyConfig{
			TTL: 15 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the JSON config file, FEEDCTL_* environment
// variables and, for secrets, the platform secret store.
//
// The file is $XDG_CONFIG_HOME/feedctl/config.json on Linux and
// ~/Library/Application Support/feedctl/config.json on macOS. Secrets come
// from the login keychain on macOS and $XDG_DATA_HOME/feedctl/secrets.json
// elsewhere.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not given via env come from the keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account()); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid config: api.base_url %q must be an absolute URL", c.API.BaseURL)
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("invalid config: feed.page_size must be positive, got %d", c.Feed.PageSize)
	}
	if c.Derive.Precision < 0 || c.Derive.Precision > 6 {
		return fmt.Errorf("invalid config: derive.precision must be between 0 and 6, got %d", c.Derive.Precision)
	}
	if c.Verify.TTL <= 0 {
		return fmt.Errorf("invalid config: verify.ttl must be positive, got %s", c.Verify.TTL)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
