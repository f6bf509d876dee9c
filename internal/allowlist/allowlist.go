// Package allowlist turns configured domain names into the IPv4 CIDR list
// the container's firewall bootstrap consumes.
package allowlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// githubMetaURL publishes GitHub's IP ranges. When api.github.com is in the
// allowed-domain list, a plain A-record lookup would miss most of GitHub's
// fleet, so the published ranges are included wholesale.
const githubMetaURL = "https://api.github.com/meta"

// githubAPIHost is the domain whose presence triggers the meta fetch.
const githubAPIHost = "api.github.com"

// maxMetaResponseBytes caps the meta endpoint response size (10 MB).
const maxMetaResponseBytes = 10 << 20

// LookupFunc resolves a host to IP addresses. It matches the signature of
// net.Resolver.LookupIP with a fixed "ip4" network.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Resolver resolves domain allowlists into CIDR entries. The zero value is
// not usable; construct with New.
type Resolver struct {
	logger  *log.Logger
	client  *http.Client
	lookup  LookupFunc
	metaURL string
}

// Option customizes a Resolver. Used by tests to fabricate DNS answers and
// point the meta fetch at a local server.
type Option func(*Resolver)

// WithLookup replaces the DNS lookup function.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) { r.lookup = fn }
}

// WithMetaURL replaces the GitHub meta endpoint.
func WithMetaURL(url string) Option {
	return func(r *Resolver) { r.metaURL = url }
}

// WithHTTPClient replaces the HTTP client used for the meta fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// New returns a Resolver using the system DNS resolver.
func New(logger *log.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
		metaURL: githubMetaURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entries resolves the domains to a list of IPv4 CIDR strings. A-record
// results become /32 entries; IPv6 answers are discarded. A domain that
// fails to resolve is logged and skipped so a sandboxed or offline host
// still produces a usable (partial) allowlist. Only the GitHub meta fetch
// is a hard failure, since it was explicitly requested via the domain list.
func (r *Resolver) Entries(ctx context.Context, domains []string) ([]string, error) {
	var entries []string

	for _, d := range domains {
		if d == githubAPIHost {
			ranges, err := r.githubRanges(ctx)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ranges...)
			break
		}
	}

	for _, domain := range domains {
		r.logger.Info("resolving domain", "domain", domain)
		ips, err := r.lookup(ctx, domain)
		if err != nil {
			r.logger.Warn("failed to resolve domain", "domain", domain, "error", err)
			continue
		}
		for _, ip := range ips {
			v4 := ip.To4()
			if v4 == nil {
				continue
			}
			entry := v4.String() + "/32"
			r.logger.Info("adding IP", "entry", entry, "domain", domain)
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// WriteFile resolves the domains and writes the entries, newline-delimited,
// to a temporary file. The file must outlive the container run that mounts
// it; the caller removes it via the returned cleanup function once the run
// has finished.
func (r *Resolver) WriteFile(ctx context.Context, domains []string) (path string, cleanup func(), err error) {
	entries, err := r.Entries(ctx, domains)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "contenant-allowed-ips-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating allowlist file: %w", err)
	}

	for _, entry := range entries {
		if _, err := fmt.Fprintln(f, entry); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", nil, fmt.Errorf("writing allowlist file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("closing allowlist file: %w", err)
	}

	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

// githubMeta is the subset of the meta endpoint response we consume.
type githubMeta struct {
	Web []string `json:"web"`
	API []string `json:"api"`
	Git []string `json:"git"`
}

func (r *Resolver) githubRanges(ctx context.Context) ([]string, error) {
	r.logger.Info("fetching GitHub IP ranges")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.metaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building meta request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching GitHub meta: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching GitHub meta: unexpected status %s", resp.Status)
	}

	var meta githubMeta
	body := io.LimitReader(resp.Body, maxMetaResponseBytes)
	if err := json.NewDecoder(body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding GitHub meta: %w", err)
	}

	var ranges []string
	for _, group := range [][]string{meta.Web, meta.API, meta.Git} {
		for _, cidr := range group {
			// A dotless entry is IPv6 notation; the firewall list is v4 only.
			if !strings.Contains(cidr, ".") {
				continue
			}
			r.logger.Info("adding GitHub range", "cidr", cidr)
			ranges = append(ranges, cidr)
		}
	}
	return ranges, nil
}
