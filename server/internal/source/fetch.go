package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxDocumentBytes caps how much of a metrics document is read.
const maxDocumentBytes = 8 << 20

// Fetcher retrieves and decodes the metrics document.
type Fetcher interface {
	Fetch(ctx context.Context) (*types.MetricsSnapshot, error)
}

// New returns the Fetcher for cfg.Source. http(s) URLs get an HTTP client
// built once and reused across fetches; anything else is read from disk.
func New(cfg config.DashboardConfig) (Fetcher, error) {
	u, err := url.Parse(cfg.Source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return &httpFetcher{url: cfg.Source, client: buildHTTPClient(cfg.Auth, cfg.TLS, cfg.Timeout)}, nil
	}
	if err == nil && u.Scheme == "file" {
		return &fileFetcher{path: u.Path}, nil
	}
	if strings.Contains(cfg.Source, "://") {
		return nil, fmt.Errorf("source: unsupported location %q", cfg.Source)
	}
	return &fileFetcher{path: cfg.Source}, nil
}

type httpFetcher struct {
	url    string
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context) (*types.MetricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("source: unexpected status %d", resp.StatusCode)
	}
	return decode(resp.Body)
}

type fileFetcher struct {
	path string
}

func (f *fileFetcher) Fetch(ctx context.Context) (*types.MetricsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("source: open: %w", err)
	}
	defer fh.Close()
	return decode(fh)
}

// decode parses a metrics document. Shape is not checked here.
func decode(r io.Reader) (*types.MetricsSnapshot, error) {
	var snap types.MetricsSnapshot
	if err := json.NewDecoder(io.LimitReader(r, maxDocumentBytes)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("source: decode json: %w", err)
	}
	return &snap, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.SourceAuth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(auth config.SourceAuth, tlsOpts config.TLSConfig, timeout time.Duration) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			auth: auth,
		},
		Timeout: timeout,
	}
}
