package playbook

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// vaultFilePerm restricts the password file to the owner.
const vaultFilePerm = 0o600

// WithVaultFile writes password to a private temp file, calls fn with its
// path, and removes the file before returning, whether fn succeeds, fails
// or panics.
func WithVaultFile(password string, fn func(path string) error) (err error) {
	if password == "" {
		return errors.New("vault password is empty")
	}

	f, err := os.CreateTemp("", "vault_*.txt")
	if err != nil {
		return fmt.Errorf("failed to create vault password file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Printf("[WARN] Failed to remove vault password file %s: %v", path, rmErr)
			if err == nil {
				err = rmErr
			}
		}
	}()

	if err := f.Chmod(vaultFilePerm); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to restrict vault password file: %w", err)
	}
	if _, err := f.WriteString(password); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write vault password file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close vault password file: %w", err)
	}

	return fn(path)
}
