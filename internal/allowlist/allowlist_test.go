package allowlist

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func fakeLookup(answers map[string][]net.IP) LookupFunc {
	return func(_ context.Context, host string) ([]net.IP, error) {
		ips, ok := answers[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		return ips, nil
	}
}

func TestEntriesResolvesDomainsToSlash32(t *testing.T) {
	r := New(testLogger(), WithLookup(fakeLookup(map[string][]net.IP{
		"one.example.com": {net.ParseIP("1.2.3.4"), net.ParseIP("5.6.7.8")},
	})))

	entries, err := r.Entries(context.Background(), []string{"one.example.com"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.2.3.4/32", "5.6.7.8/32"}, entries)
}

func TestEntriesDiscardsIPv6(t *testing.T) {
	r := New(testLogger(), WithLookup(fakeLookup(map[string][]net.IP{
		"mixed.example.com": {net.ParseIP("2606:50c0::1"), net.ParseIP("9.9.9.9")},
	})))

	entries, err := r.Entries(context.Background(), []string{"mixed.example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9.9.9.9/32"}, entries)
}

func TestEntriesSkipsFailedDomains(t *testing.T) {
	r := New(testLogger(), WithLookup(fakeLookup(map[string][]net.IP{
		"good.example.com": {net.ParseIP("1.1.1.1")},
	})))

	entries, err := r.Entries(context.Background(), []string{"bad.example.com", "good.example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1/32"}, entries)
}

func TestEntriesIncludesGitHubRanges(t *testing.T) {
	meta := `{
		"web": ["192.30.252.0/22", "2606:50c0::/32"],
		"api": ["140.82.112.0/20"],
		"git": ["143.55.64.0/20"],
		"packages": ["54.185.253.63/32"]
	}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(meta))
	}))
	defer ts.Close()

	r := New(testLogger(),
		WithMetaURL(ts.URL),
		WithLookup(fakeLookup(map[string][]net.IP{
			"api.github.com": {net.ParseIP("140.82.112.6")},
		})),
	)

	entries, err := r.Entries(context.Background(), []string{"api.github.com"})
	require.NoError(t, err)

	// web/api/git IPv4 ranges plus the A-record /32; IPv6 notation and
	// uncategorized ranges excluded.
	assert.ElementsMatch(t, []string{
		"192.30.252.0/22",
		"140.82.112.0/20",
		"143.55.64.0/20",
		"140.82.112.6/32",
	}, entries)
}

func TestEntriesMetaFetchFailureIsHard(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	r := New(testLogger(),
		WithMetaURL(ts.URL),
		WithLookup(fakeLookup(nil)),
	)

	_, err := r.Entries(context.Background(), []string{"api.github.com"})
	require.Error(t, err)
}

func TestEntriesIdempotentForStableAnswers(t *testing.T) {
	r := New(testLogger(), WithLookup(fakeLookup(map[string][]net.IP{
		"a.example.com": {net.ParseIP("1.2.3.4")},
		"b.example.com": {net.ParseIP("4.3.2.1")},
	})))

	first, err := r.Entries(context.Background(), []string{"a.example.com", "b.example.com"})
	require.NoError(t, err)
	second, err := r.Entries(context.Background(), []string{"a.example.com", "b.example.com"})
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)
}

func TestWriteFileProducesNewlineDelimitedArtifact(t *testing.T) {
	r := New(testLogger(), WithLookup(fakeLookup(map[string][]net.IP{
		"one.example.com": {net.ParseIP("1.2.3.4")},
	})))

	path, cleanup, err := r.WriteFile(context.Background(), []string{"one.example.com"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4/32\n", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
