// Package main runs an Ansible playbook with the vault password taken from
// the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"

	"zbxprov/internal/artifacts"
	"zbxprov/internal/config"
	"zbxprov/internal/playbook"
)

func main() {
	// Cancel on interrupt so the vault file is removed before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runner := &playbook.Runner{Stdout: os.Stdout, Stderr: os.Stderr}
	code := run(ctx, os.Args[1:], os.LookupEnv, runner)
	stop()
	os.Exit(code)
}

// run returns the process exit code: the playbook's own rc, 1 when it could
// not be started, 2 on a usage error or a missing vault password.
func run(ctx context.Context, args []string, env config.Lookup, runner *playbook.Runner) int {
	var opts playbook.Options
	fs := flag.NewFlagSet("run-playbook", flag.ContinueOnError)
	fs.SetOutput(runner.Stderr)
	fs.StringVar(&opts.Root, "root", ".", "Repository root containing the ansible/ directory")
	fs.StringVar(&opts.Playbook, "playbook", playbook.DefaultPlaybook, "Playbook file under ansible/playbooks/")
	fs.StringVar(&opts.Inventory, "inventory", "", "Inventory path (default <root>/ansible/inventory/hosts.yml)")
	fs.StringVar(&opts.Limit, "limit", "", "Ansible --limit pattern")
	fs.BoolVar(&opts.CleanCache, "clean-cache", false, "Remove ansible/artifacts before running")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	opts.VaultPassword, _ = env("ANSIBLE_VAULT_PASSWORD")
	if opts.VaultPassword == "" {
		fmt.Fprintln(runner.Stderr, "ERROR: ANSIBLE_VAULT_PASSWORD must be set (in CI, from repository secrets)")
		return 2
	}

	if dir, ok := env(artifacts.EnvDir); ok && dir != "" {
		opts.ArtifactsDir = dir
	} else {
		opts.ArtifactsDir = filepath.Join(opts.Root, artifacts.DefaultDir)
	}

	code, err := runner.Run(ctx, opts)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return 1
	}
	if code != 0 {
		log.Printf("[ERROR] Playbook failed (rc=%d)", code)
		if code < 0 {
			// Killed by a signal.
			return 1
		}
		return code
	}
	log.Print("[INFO] Playbook completed successfully")
	return 0
}
