// Package artifacts locates files the provisioning playbooks leave behind,
// such as generated pre-shared keys.
package artifacts

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvDir names the variable that overrides the artifacts directory.
	EnvDir = "DK_ANSIBLE_ARTIFACTS_DIR"
	// DefaultDir is used when EnvDir is unset.
	DefaultDir = "ansible_artifacts"
	// LegacyDir is the pre-rename location still checked as a fallback.
	LegacyDir = "artifacts"

	dirPerm = 0o750
	// String replacement constant.
	replacementChar = "-"
)

// Store reads artifacts from Base, falling back to Legacy.
type Store struct {
	Base   string
	Legacy string
}

// New returns a Store rooted at base with the legacy fallback enabled.
func New(base string) *Store {
	if base == "" {
		base = DefaultDir
	}
	return &Store{Base: base, Legacy: LegacyDir}
}

// Dir returns the artifacts directory from lookup, or DefaultDir.
func Dir(lookup func(string) (string, bool)) string {
	if v, ok := lookup(EnvDir); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return DefaultDir
}

// Ensure creates the psk/ and credentials/ sub-directories.
func (s *Store) Ensure() error {
	for _, sub := range []string{"psk", "credentials"} {
		if err := os.MkdirAll(filepath.Join(s.Base, sub), dirPerm); err != nil {
			return fmt.Errorf("failed to create artifacts directory: %w", err)
		}
	}
	return nil
}

// ProxyPSK returns the proxy key from psk/<name>.psk, or "" if none exists.
func (s *Store) ProxyPSK(name string) (string, error) {
	return s.first(sanitizeName(name) + ".psk")
}

// AgentPSK returns the agent key from psk/<name>-agent.psk, falling back to
// the proxy key for the same name, or "" if neither exists.
func (s *Store) AgentPSK(name string) (string, error) {
	n := sanitizeName(name)
	return s.first(n+"-agent.psk", n+".psk")
}

// first returns the trimmed content of the first file found, checking every
// candidate in Base before Legacy.
func (s *Store) first(files ...string) (string, error) {
	var roots []string
	for _, r := range []string{s.Base, s.Legacy} {
		if r != "" {
			roots = append(roots, r)
		}
	}

	for _, root := range roots {
		for _, f := range files {
			path := filepath.Join(root, "psk", f)
			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return "", fmt.Errorf("failed to read %s: %w", path, err)
			}
			log.Printf("[INFO] Using PSK from %s", path)
			return strings.TrimSpace(string(data)), nil
		}
	}
	return "", nil
}

// sanitizeName keeps a host name from escaping the psk directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", replacementChar)
	name = strings.ReplaceAll(name, "\\", replacementChar)
	name = strings.ReplaceAll(name, "..", replacementChar)
	return name
}
