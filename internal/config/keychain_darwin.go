//go:build darwin

package config

import (
	"fmt"
	"os/exec"
)

// Secrets live in the login keychain as generic passwords.

func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s from keychain: %w", service, account, err)
	}
	return out, nil
}

func keychainSet(service, account, value string) error {
	// -U updates an existing item in place.
	cmd := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("writing %s/%s to keychain: %w: %s", service, account, err, out)
	}
	return nil
}
