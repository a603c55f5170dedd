package playbook

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestWithVaultFile(t *testing.T) {
	var seen string
	err := WithVaultFile("s3cret", func(path string) error {
		seen = path
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Vault file missing during callback: %v", err)
		}
		if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
			t.Errorf("Vault file mode = %o, want 600", info.Mode().Perm())
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "s3cret" {
			t.Errorf("Vault file content = %q, %v", data, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithVaultFile failed: %v", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Error("Vault file was not removed after success")
	}
}

func TestWithVaultFileRemovedOnError(t *testing.T) {
	var seen string
	boom := errors.New("boom")
	err := WithVaultFile("s3cret", func(path string) error {
		seen = path
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected callback error, got %v", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Error("Vault file was not removed after failure")
	}
}

func TestWithVaultFileRemovedOnPanic(t *testing.T) {
	var seen string
	func() {
		defer func() { _ = recover() }()
		_ = WithVaultFile("s3cret", func(path string) error {
			seen = path
			panic("interrupted")
		})
	}()
	if seen == "" {
		t.Fatal("Callback was not invoked")
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Error("Vault file was not removed after panic")
	}
}

func TestWithVaultFileEmptyPassword(t *testing.T) {
	called := false
	if err := WithVaultFile("", func(string) error { called = true; return nil }); err == nil {
		t.Error("Expected error for empty password")
	}
	if called {
		t.Error("Callback should not run without a password")
	}
}

// fakeAnsible writes a script that records its arguments and environment.
func fakeAnsible(t *testing.T, exitCode string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ansible-playbook")
	script := `#!/bin/sh
echo "pwd=$(pwd)"
echo "args=$*"
echo "vault=$(cat "$ANSIBLE_VAULT_PASSWORD_FILE")"
echo "vaultfile=$ANSIBLE_VAULT_PASSWORD_FILE"
echo "config=$ANSIBLE_CONFIG"
echo "cache=$ANSIBLE_CACHE_PLUGIN_TIMEOUT"
echo "artifacts=$DK_ANSIBLE_ARTIFACTS_DIR"
exit ` + exitCode + "\n"
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatalf("Failed to write fake ansible: %v", err)
	}
	return path
}

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "ansible", "artifacts", "old"), 0o750); err != nil {
		t.Fatalf("Failed to create ansible dir: %v", err)
	}
	return root
}

func outputValue(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, key+"="); ok {
			return v
		}
	}
	return ""
}

func TestRunnerRun(t *testing.T) {
	root := setupRoot(t)
	var stdout bytes.Buffer
	r := &Runner{Binary: fakeAnsible(t, "0"), Stdout: &stdout, Stderr: &stdout, Env: []string{"PATH=/usr/bin:/bin"}}

	code, err := r.Run(context.Background(), Options{
		Root:          root,
		Limit:         "proxies",
		VaultPassword: "pw",
		CleanCache:    true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if code != 0 {
		t.Errorf("Exit code = %d, want 0", code)
	}

	out := stdout.String()
	ansibleDir := filepath.Join(root, "ansible")
	wantArgs := "-i " + filepath.Join(ansibleDir, "inventory", "hosts.yml") + " playbooks/provision.yml --limit proxies"
	if got := outputValue(out, "args"); got != wantArgs {
		t.Errorf("args = %q, want %q", got, wantArgs)
	}
	if got := outputValue(out, "vault"); got != "pw" {
		t.Errorf("vault password = %q, want pw", got)
	}
	if got := outputValue(out, "config"); got != filepath.Join(ansibleDir, "configs", "ansible.cfg") {
		t.Errorf("ANSIBLE_CONFIG = %q", got)
	}
	if got := outputValue(out, "cache"); got != "0" {
		t.Errorf("ANSIBLE_CACHE_PLUGIN_TIMEOUT = %q", got)
	}
	artifactsDir := filepath.Join(root, "ansible_artifacts")
	if got := outputValue(out, "artifacts"); got != artifactsDir {
		t.Errorf("DK_ANSIBLE_ARTIFACTS_DIR = %q, want %q", got, artifactsDir)
	}
	if _, err := os.Stat(filepath.Join(artifactsDir, "psk")); err != nil {
		t.Error("Artifacts psk directory was not created")
	}
	if _, err := os.Stat(filepath.Join(ansibleDir, "artifacts")); !os.IsNotExist(err) {
		t.Error("Runner cache was not cleaned")
	}
	if vf := outputValue(out, "vaultfile"); vf == "" {
		t.Error("Vault file path not passed")
	} else if _, err := os.Stat(vf); !os.IsNotExist(err) {
		t.Error("Vault file was not removed after run")
	}
}

func TestRunnerPropagatesExitCode(t *testing.T) {
	root := setupRoot(t)
	r := &Runner{Binary: fakeAnsible(t, "4"), Env: []string{}}

	code, err := r.Run(context.Background(), Options{Root: root, Playbook: "agents.yml", VaultPassword: "pw"})
	if err != nil {
		t.Fatalf("Non-zero exit should not be an error: %v", err)
	}
	if code != 4 {
		t.Errorf("Exit code = %d, want 4", code)
	}
	if _, err := os.Stat(filepath.Join(root, "ansible", "artifacts", "old")); err != nil {
		t.Error("Runner cache should be kept without CleanCache")
	}
}

func TestRunnerRequiresPassword(t *testing.T) {
	r := &Runner{Binary: "/nonexistent"}
	if _, err := r.Run(context.Background(), Options{Root: t.TempDir()}); err == nil {
		t.Error("Expected error without vault password")
	}
}

func TestRunnerMissingBinary(t *testing.T) {
	root := setupRoot(t)
	r := &Runner{Binary: filepath.Join(root, "no-such-ansible")}
	code, err := r.Run(context.Background(), Options{Root: root, VaultPassword: "pw"})
	if err == nil {
		t.Error("Expected error for missing binary")
	}
	if code != -1 {
		t.Errorf("Exit code = %d, want -1", code)
	}
}
