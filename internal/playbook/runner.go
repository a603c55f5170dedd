// Package playbook runs Ansible playbooks with a temporary vault password file.
package playbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"zbxprov/internal/artifacts"
)

const (
	// DefaultPlaybook is run when no playbook is given.
	DefaultPlaybook = "provision.yml"
	// defaultBinary is looked up in PATH.
	defaultBinary = "ansible-playbook"
	// How long a playbook gets to exit after an interrupt before it is killed.
	interruptGrace = 10 * time.Second
)

// Options describes one playbook run.
type Options struct {
	// Root is the repository root holding the ansible/ directory.
	Root string
	// Playbook is a file name under ansible/playbooks/.
	Playbook string
	// Inventory defaults to ansible/inventory/hosts.yml.
	Inventory string
	// Limit is passed to --limit when set.
	Limit string
	// ArtifactsDir defaults to <Root>/ansible_artifacts.
	ArtifactsDir  string
	VaultPassword string
	// CleanCache removes ansible/artifacts before the run.
	CleanCache bool
}

// AnsibleDir returns the ansible/ directory under the root.
func (o Options) AnsibleDir() string {
	return filepath.Join(o.Root, "ansible")
}

// Runner executes ansible-playbook.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Binary overrides the ansible-playbook executable.
	Binary string
	// Env is the base environment; nil means os.Environ().
	Env []string
}

// Run executes the playbook and returns its exit code. A non-zero exit
// code from the playbook is not an error; err is set only when the
// playbook could not be run at all.
func (r *Runner) Run(ctx context.Context, opts Options) (int, error) {
	if opts.VaultPassword == "" {
		return -1, errors.New("vault password is required")
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return -1, fmt.Errorf("failed to resolve repository root: %w", err)
	}
	opts.Root = root
	if opts.Playbook == "" {
		opts.Playbook = DefaultPlaybook
	}
	if opts.Inventory == "" {
		opts.Inventory = filepath.Join(opts.AnsibleDir(), "inventory", "hosts.yml")
	}
	if opts.Inventory, err = filepath.Abs(opts.Inventory); err != nil {
		return -1, fmt.Errorf("failed to resolve inventory path: %w", err)
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = filepath.Join(opts.Root, artifacts.DefaultDir)
	}

	if err := artifacts.New(opts.ArtifactsDir).Ensure(); err != nil {
		return -1, err
	}

	if opts.CleanCache {
		cache := filepath.Join(opts.AnsibleDir(), "artifacts")
		log.Printf("[INFO] Removing runner cache %s", cache)
		if err := os.RemoveAll(cache); err != nil {
			return -1, fmt.Errorf("failed to clean runner cache: %w", err)
		}
	}

	code := -1
	err = WithVaultFile(opts.VaultPassword, func(vaultFile string) error {
		var runErr error
		code, runErr = r.exec(ctx, opts, vaultFile)
		return runErr
	})
	return code, err
}

func (r *Runner) exec(ctx context.Context, opts Options, vaultFile string) (int, error) {
	binary := r.Binary
	if binary == "" {
		binary = defaultBinary
	}

	args := []string{"-i", opts.Inventory, filepath.Join("playbooks", opts.Playbook)}
	if opts.Limit != "" {
		args = append(args, "--limit", opts.Limit)
	}

	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(append([]string(nil), env...),
		"ANSIBLE_VAULT_PASSWORD_FILE="+vaultFile,
		"ANSIBLE_CONFIG="+filepath.Join(opts.AnsibleDir(), "configs", "ansible.cfg"),
		"ANSIBLE_CACHE_PLUGIN_TIMEOUT=0",
		artifacts.EnvDir+"="+opts.ArtifactsDir,
	)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = opts.AnsibleDir()
	cmd.Env = env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = interruptGrace

	start := time.Now()
	log.Printf("[INFO] Running %s %v in %s", binary, args, cmd.Dir)
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			log.Printf("[WARN] Playbook %s exited with %d after %v", opts.Playbook, exitErr.ExitCode(), duration)
			return exitErr.ExitCode(), nil
		}
		if ctx.Err() != nil {
			return -1, fmt.Errorf("playbook %s interrupted: %w", opts.Playbook, ctx.Err())
		}
		return -1, fmt.Errorf("failed to run %s: %w", binary, err)
	}

	log.Printf("[INFO] Playbook %s completed in %v", opts.Playbook, duration)
	return 0, nil
}
