// Package main implements detect-inventory, which compares two inventory
// snapshots and prints the hosts that need provisioning.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"zbxprov/internal/gitsource"
	"zbxprov/internal/inventory"
)

const (
	// Output file permissions.
	outFilePerm = 0o644
	// Overall timeout for reading from git.
	gitReadTimeout = 2 * time.Minute
)

// options holds the parsed command line.
type options struct {
	outFile string
	oldRef  string
	repo    string
	lenient bool
	debug   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code:
// 0 on success, 1 on failure, 2 on a usage error.
func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("detect-inventory", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.outFile, "out", "", "Append matrix=<json> and count=<n> lines to this file (e.g. $GITHUB_OUTPUT)")
	fs.StringVar(&opts.oldRef, "old-ref", "", "Read the old inventory from this git revision; <old> is then a repo-relative path")
	fs.StringVar(&opts.repo, "repo", ".", "Git repository used with --old-ref")
	fs.BoolVar(&opts.lenient, "lenient", false, "Treat a malformed inventory file as empty instead of failing")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprint(stderr, "usage: detect-inventory <old_inventory> <new_inventory> [--out <file>]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}

	policy := inventory.ParseStrict
	if opts.lenient {
		policy = inventory.ParseLenient
	}

	oldHosts, err := loadOld(opts, fs.Arg(0), policy)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return 1
	}
	newHosts, err := inventory.Load(fs.Arg(1), policy)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return 1
	}

	result := inventory.Detect(oldHosts, newHosts)
	if opts.debug {
		log.Printf("[DEBUG] old=%d hosts new=%d hosts added=%d removed=%d changed=%d",
			len(oldHosts), len(newHosts), len(result.Added), len(result.Removed), len(result.Changed))
	}

	if err := printResult(stdout, result); err != nil {
		log.Printf("[ERROR] %v", err)
		return 1
	}

	if opts.outFile != "" {
		if err := appendOutputs(opts.outFile, result); err != nil {
			log.Printf("[ERROR] %v", err)
			return 1
		}
	}
	return 0
}

func loadOld(opts options, path string, policy inventory.ParsePolicy) (inventory.Hosts, error) {
	if opts.oldRef == "" {
		return inventory.Load(path, policy)
	}

	ctx, cancel := context.WithTimeout(context.Background(), gitReadTimeout)
	defer cancel()

	data, found, err := gitsource.New(opts.repo).Show(ctx, opts.oldRef, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, opts.oldRef, err)
	}
	if !found {
		log.Printf("[INFO] Inventory %s not present at %s, treating as empty", path, opts.oldRef)
		return inventory.Hosts{}, nil
	}
	return inventory.Decode(data, opts.oldRef+":"+path, policy)
}

// printResult writes the result as a single JSON line.
func printResult(w io.Writer, result inventory.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func appendOutputs(path string, result inventory.Result) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, outFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return result.WriteOutputs(f)
}
