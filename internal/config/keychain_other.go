//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Without a system keychain, secrets are kept in a 0600 JSON file next to
// the data directory, grouped by service then account.
type secretsFile map[string]map[string]string

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func readSecretsFile(path string) (secretsFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return secretsFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	sf := secretsFile{}
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return sf, nil
}

func keychainGet(service, account string) ([]byte, error) {
	sf, err := readSecretsFile(secretsFilePath())
	if err != nil {
		return nil, err
	}
	val, ok := sf[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s/%s", service, account)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	path := secretsFilePath()
	sf, err := readSecretsFile(path)
	if err != nil {
		return err
	}
	if sf[service] == nil {
		sf[service] = map[string]string{}
	}
	sf[service][account] = value

	out, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding secrets file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
