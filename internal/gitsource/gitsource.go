// Package gitsource reads files as they were at a given git revision.
package gitsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// Retry configuration for git operations.
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	// Git command timeout.
	gitTimeout = 30 * time.Second
)

// errMissing marks a path that does not exist at the requested revision.
var errMissing = errors.New("path not present at revision")

// Reader runs git commands inside a repository checkout.
type Reader struct {
	RepoPath string
	// Delay overrides the initial retry backoff; zero uses the default.
	Delay time.Duration
}

// New returns a Reader for the repository at repoPath.
func New(repoPath string) *Reader {
	return &Reader{RepoPath: repoPath}
}

// Show returns the content of path at rev. found is false when the path
// does not exist at that revision, which is not an error.
func (r *Reader) Show(ctx context.Context, rev, path string) (data []byte, found bool, err error) {
	if rev == "" {
		return nil, false, errors.New("git revision is required")
	}
	spec := rev + ":" + filepath.ToSlash(filepath.Clean(path))

	delay := r.Delay
	if delay == 0 {
		delay = initialBackoff
	}

	var missing bool
	data, err = retry.DoWithData(func() ([]byte, error) {
		out, err := r.show(ctx, spec)
		missing = errors.Is(err, errMissing)
		return out, err
	},
		retry.Attempts(maxRetries),
		retry.Delay(delay),
		retry.MaxDelay(maxBackoff),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, errMissing) }),
	)
	if err != nil {
		if missing {
			log.Printf("[INFO] %s not present in git, treating as empty", spec)
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *Reader) show(ctx context.Context, spec string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "git", "show", spec)
	cmd.Dir = r.RepoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		log.Printf("[DEBUG] Git command failed in %v: git show %s (error: %v, output: %s)", duration, spec, err, msg)
		// git reports a missing path with one of these messages depending on version.
		if strings.Contains(msg, "does not exist in") || strings.Contains(msg, "exists on disk, but not in") {
			return nil, fmt.Errorf("%s: %w", spec, errMissing)
		}
		return nil, fmt.Errorf("git show %s failed: %w\n%s", spec, err, msg)
	}

	log.Printf("[DEBUG] Git command completed in %v: git show %s", duration, spec)
	return stdout.Bytes(), nil
}
