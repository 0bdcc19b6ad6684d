package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if v, ok := m.values[service+"/"+account]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// clearEnv blanks every FEEDCTL_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Feed.PageSize != 20 {
		t.Errorf("Feed.PageSize = %d, want 20", cfg.Feed.PageSize)
	}
	if cfg.Feed.SearchDebounce != 500*time.Millisecond {
		t.Errorf("Feed.SearchDebounce = %v, want 500ms", cfg.Feed.SearchDebounce)
	}
	if cfg.Feed.RefreshAfter != 0 || cfg.Feed.PollInterval != 0 {
		t.Errorf("refresh/poll should be off by default: %+v", cfg.Feed)
	}
	if cfg.Verify.TTL != 15*time.Minute {
		t.Errorf("Verify.TTL = %v, want 15m", cfg.Verify.TTL)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.API.Token != "" {
		t.Error("token should be empty by default")
	}
}

// TestFileValues verifies that all fields are correctly read from the JSON backend.
func TestFileValues(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
		"api.base_url": "https://acb.example",
		"api.timeout": "3s",
		"feed.page_size": 25,
		"feed.search_debounce": "300ms",
		"feed.refresh_after": "2m",
		"feed.poll_interval": "30s",
		"derive.precision": 2,
		"verify.ttl": "5m",
		"storage.data_dir": "/tmp/feedctl-test",
		"server.port": 5000,
		"log.level": "debug"
	}`)

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "https://acb.example" || cfg.API.Timeout != 3*time.Second {
		t.Errorf("API = %+v", cfg.API)
	}
	want := FeedConfig{PageSize: 25, SearchDebounce: 300 * time.Millisecond, RefreshAfter: 2 * time.Minute, PollInterval: 30 * time.Second}
	if cfg.Feed != want {
		t.Errorf("Feed = %+v, want %+v", cfg.Feed, want)
	}
	if cfg.Derive.Precision != 2 || cfg.Verify.TTL != 5*time.Minute {
		t.Errorf("Derive=%+v Verify=%+v", cfg.Derive, cfg.Verify)
	}
	if cfg.Storage.DataDir != "/tmp/feedctl-test" || cfg.Server.Port != 5000 || cfg.Log.Level != "debug" {
		t.Errorf("Storage=%+v Server=%+v Log=%+v", cfg.Storage, cfg.Server, cfg.Log)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"api.base_url": "https://file.example", "feed.page_size": 10}`)
	t.Setenv("FEEDCTL_API_BASE_URL", "https://env.example")
	t.Setenv("FEEDCTL_FEED_SEARCH_DEBOUNCE", "250ms")
	t.Setenv("FEEDCTL_FEED_PAGE_SIZE", "not-a-number")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Feed.SearchDebounce != 250*time.Millisecond {
		t.Errorf("SearchDebounce = %v", cfg.Feed.SearchDebounce)
	}
	if cfg.Feed.PageSize != 10 {
		t.Errorf("unparsable env should keep file value, got %d", cfg.Feed.PageSize)
	}
}

// TestKeychainFallback verifies the keychain is consulted when a secret is not in env.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := mockKeychain{values: map[string]string{
		"feedctl/api_token":    "keychain-secret",
		"feedctl/server_token": "bridge-secret",
	}}

	cfg, err := loadWith(writeTempConfig(t, `{}`), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "keychain-secret" || cfg.Server.Token != "bridge-secret" {
		t.Errorf("tokens = %q, %q", cfg.API.Token, cfg.Server.Token)
	}

	t.Setenv("FEEDCTL_API_TOKEN", "env-secret")
	cfg, _ = loadWith(writeTempConfig(t, `{}`), kc)
	if cfg.API.Token != "env-secret" {
		t.Errorf("env should win over keychain, got %q", cfg.API.Token)
	}
}

// TestSecretsNotReadFromFile verifies secrets in the plain config file are ignored.
func TestSecretsNotReadFromFile(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{"api.token": "leaked"}`), mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.Token != "" {
		t.Errorf("token read from config file: %q", cfg.API.Token)
	}
}

func TestBadDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{"feed.search_debounce": "soon"}`), mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Feed.SearchDebounce != 500*time.Millisecond {
		t.Errorf("SearchDebounce = %v", cfg.Feed.SearchDebounce)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"relative url":   `{"api.base_url": "acb.example"}`,
		"zero page size": `{"feed.page_size": 0}`,
		"precision":      `{"derive.precision": 9}`,
		"ttl":            `{"verify.ttl": "-1m"}`,
		"log level":      `{"log.level": "chatty"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, content), mockKeychain{})
			if err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBadIntInFileIsAnError(t *testing.T) {
	clearEnv(t)
	if _, err := loadWith(writeTempConfig(t, `{"server.port": 1.5}`), mockKeychain{}); err == nil {
		t.Error("expected error for non-integer port")
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "feed.page_size", "40"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "feed.search_debounce", "1s"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "feed.page_size", "lots"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKey(b, "verify.ttl", "forever"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKey(b, "api.token", "x"); err == nil || !strings.Contains(err.Error(), "set-secret") {
		t.Errorf("expected secret refusal, got %v", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected unknown key error")
	}

	cfg, err := loadWith(newFileBackend(b.path), mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Feed.PageSize != 40 || cfg.Feed.SearchDebounce != time.Second {
		t.Errorf("persisted values not loaded: %+v", cfg.Feed)
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "super-secret"

	var sawToken bool
	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "super-secret") {
			t.Errorf("secret value exposed for %s", k.Key)
		}
		if k.Key == "api.token" {
			sawToken = true
			if k.Value != "(set)" {
				t.Errorf("api.token = %q, want (set)", k.Value)
			}
		}
		if k.Key == "server.token" && k.Value != "(unset)" {
			t.Errorf("server.token = %q, want (unset)", k.Value)
		}
	}
	if !sawToken {
		t.Error("api.token missing from ShowAll")
	}
}

func TestValidAndSecretKeysPartition(t *testing.T) {
	valid, secret := ValidKeys(), SecretKeys()
	if len(valid)+len(secret) != len(specs) {
		t.Errorf("keys do not partition specs: %d + %d != %d", len(valid), len(secret), len(specs))
	}
	for _, k := range secret {
		for _, v := range valid {
			if k == v {
				t.Errorf("%s is both valid and secret", k)
			}
		}
	}
}
