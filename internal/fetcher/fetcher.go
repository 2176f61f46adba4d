// Package fetcher makes shallow working copies of remote repositories.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// DefaultTimeout bounds a single clone.
const DefaultTimeout = 120 * time.Second

// Username go-git sends with a token; GitHub ignores it for token auth.
const tokenUsername = "x-access-token"

const maxDiagnosticBytes = 4096

var (
	ErrCloneFailed  = errors.New("clone failed")
	ErrCloneTimeout = errors.New("clone timed out")
)

// CloneError carries what the transport reported before the clone failed.
// Output never contains the credential.
type CloneError struct {
	URL    string
	Output string
	Err    error
}

func (e *CloneError) Error() string {
	msg := fmt.Sprintf("clone %s: %v", e.URL, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CloneError) Unwrap() error { return e.Err }

// CloneRequest identifies what to clone and the short-lived token to clone it with.
type CloneRequest struct {
	URL   string
	Token string
}

// Fetcher produces a working copy of a repository in dir.
type Fetcher interface {
	Clone(ctx context.Context, req CloneRequest, dir string) error
}

// GitFetcher clones over HTTPS with go-git. Clones are never retried.
type GitFetcher struct {
	timeout time.Duration
	depth   int
}

type Option func(*GitFetcher)

// WithDepth overrides the clone depth. Zero fetches full history.
func WithDepth(depth int) Option {
	return func(f *GitFetcher) { f.depth = depth }
}

func NewGitFetcher(timeout time.Duration, opts ...Option) *GitFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &GitFetcher{timeout: timeout, depth: 1}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *GitFetcher) Clone(ctx context.Context, req CloneRequest, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	safeURL := StripCredentials(req.URL)
	progress := &syncBuffer{}
	opts := &git.CloneOptions{
		URL:          req.URL,
		Depth:        f.depth,
		SingleBranch: true,
		Tags:         git.NoTags,
		Progress:     progress,
	}
	if req.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: tokenUsername, Password: req.Token}
	}

	start := time.Now()
	_, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err == nil {
		slog.Debug("repository cloned", "repo", safeURL, "duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	cause := fmt.Errorf("%w: %s", ErrCloneFailed, scrub(err.Error(), req.Token))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %w after %s", ErrCloneFailed, ErrCloneTimeout, f.timeout)
	}
	return &CloneError{
		URL:    safeURL,
		Output: scrub(progress.String(), req.Token),
		Err:    cause,
	}
}

// RepoURL returns the HTTPS clone URL for an owner/name repository on GitHub.
func RepoURL(fullName string) string {
	return "https://github.com/" + strings.Trim(fullName, "/") + ".git"
}

// StripCredentials removes any userinfo from a URL so it is safe to log.
func StripCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func scrub(s, token string) string {
	if token != "" {
		s = strings.ReplaceAll(s, token, "***")
	}
	return strings.TrimSpace(s)
}

// syncBuffer collects transport progress; go-git writes from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if room := maxDiagnosticBytes - b.buf.Len(); room > 0 {
		if n > room {
			p = p[:room]
		}
		b.buf.Write(p)
	}
	return n, nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
