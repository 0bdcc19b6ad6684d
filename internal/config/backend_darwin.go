//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

// appSupportDir is ~/Library/Application Support/feedctl, holding both the
// config file and the SQLite data.
func appSupportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feedctl-data"
	}
	return filepath.Join(home, "Library", "Application Support", "feedctl")
}

func defaultDataDir() string { return appSupportDir() }

func configFilePath() string { return filepath.Join(appSupportDir(), "config.json") }
