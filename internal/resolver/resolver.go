// Package resolver turns an agent token URI into its JSON metadata document.
//
// HTTPS URIs are fetched directly. ipfs:// URIs are tried against a fixed,
// ordered list of public gateways and the first success wins. Anything else
// is rejected without touching the network.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mbd888/agentdex/internal/circuitbreaker"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/metrics"
	"github.com/mbd888/agentdex/internal/traces"
)

// ErrAllGatewaysFailed is returned when every gateway failed for an ipfs:// URI.
// It is the only error Resolve returns; callers use it to fall back to cached
// or sample data.
var ErrAllGatewaysFailed = errors.New("resolver: all IPFS gateways failed")

const (
	DefaultTimeout  = 5 * time.Second
	DefaultMaxBytes = 1 << 20

	userAgent = "agentdex-resolver/1.0"
)

// Metadata is an untrusted metadata document. Any key may be missing or
// carry an unexpected type.
type Metadata map[string]any

// Scheme is the transport a token URI maps to.
type Scheme int

const (
	SchemeUnsupported Scheme = iota
	SchemeHTTPS
	SchemeIPFS
)

func (s Scheme) String() string {
	switch s {
	case SchemeHTTPS:
		return "https"
	case SchemeIPFS:
		return "ipfs"
	default:
		return "unsupported"
	}
}

// Classify reports which transport uri would use.
func Classify(uri string) Scheme {
	uri = strings.TrimSpace(uri)
	switch {
	case hasPrefixFold(uri, "https://") && len(uri) > len("https://"):
		return SchemeHTTPS
	case hasPrefixFold(uri, "ipfs://") && contentPath(uri) != "":
		return SchemeIPFS
	default:
		return SchemeUnsupported
	}
}

// contentPath strips the ipfs scheme and an optional redundant "ipfs/" segment.
func contentPath(uri string) string {
	p := strings.TrimSpace(uri)[len("ipfs://"):]
	p = strings.TrimLeft(p, "/")
	if hasPrefixFold(p, "ipfs/") {
		p = p[len("ipfs/"):]
	}
	return strings.TrimLeft(p, "/")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Resolver fetches metadata documents.
type Resolver struct {
	client   *http.Client
	gateways []string
	timeout  time.Duration
	maxBytes int64
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the HTTP client (tests inject a counting transport).
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithTimeout bounds each individual fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxBytes caps the accepted document size.
func WithMaxBytes(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithBreaker skips gateways whose circuit is open.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(r *Resolver) { r.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logging.Component(l, "resolver") }
}

// New creates a resolver over gateways, tried in the order given. Each
// gateway is a URL prefix the content path is appended to.
func New(gateways []string, opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
		logger:   logging.Component(nil, "resolver"),
	}
	for _, g := range gateways {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !strings.HasSuffix(g, "/") {
			g += "/"
		}
		r.gateways = append(r.gateways, g)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gateways returns the gateway prefixes in priority order.
func (r *Resolver) Gateways() []string {
	return append([]string(nil), r.gateways...)
}

// Resolve fetches the document behind uri.
//
// A nil document with a nil error means the URI is unusable: an unsupported
// scheme, or an HTTPS host that failed or returned something that is not a
// JSON object. ErrAllGatewaysFailed means an ipfs:// URI could not be
// fetched from any gateway.
func (r *Resolver) Resolve(ctx context.Context, uri string) (Metadata, error) {
	uri = strings.TrimSpace(uri)
	scheme := Classify(uri)

	ctx, span := traces.StartSpan(ctx, "resolver.resolve")
	span.SetAttributes(traces.Scheme(scheme.String()))
	defer span.End()

	switch scheme {
	case SchemeHTTPS:
		doc, err := r.fetch(ctx, uri)
		metrics.GatewayFetchesTotal.WithLabelValues("https", metrics.Result(err)).Inc()
		if err != nil {
			r.logger.Warn("metadata host failed", "uri", uri, "error", err)
			return nil, nil
		}
		return doc, nil

	case SchemeIPFS:
		return r.resolveIPFS(ctx, contentPath(uri))

	default:
		r.logger.Warn("unsupported token URI scheme", "uri", truncate(uri, 80))
		return nil, nil
	}
}

func (r *Resolver) resolveIPFS(ctx context.Context, cid string) (Metadata, error) {
	var errs []error
	for _, gw := range r.gateways {
		if r.breaker != nil && !r.breaker.Allow(gw) {
			metrics.GatewayFetchesTotal.WithLabelValues(gw, "skipped").Inc()
			errs = append(errs, fmt.Errorf("%s: circuit open", gw))
			continue
		}

		doc, err := r.fetch(ctx, gw+cid)
		metrics.GatewayFetchesTotal.WithLabelValues(gw, metrics.Result(err)).Inc()
		if r.breaker != nil {
			r.breaker.Record(gw, err)
		}
		if err == nil {
			return doc, nil
		}
		trace.SpanFromContext(ctx).AddEvent("gateway_failed", trace.WithAttributes(traces.Gateway(gw)))
		r.logger.Debug("gateway failed, trying next", "gateway", gw, "cid", cid, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", gw, err))
	}
	r.logger.Warn("all gateways failed", "cid", cid, "gateways", len(r.gateways))
	return nil, fmt.Errorf("%w for %s: %w", ErrAllGatewaysFailed, cid, errors.Join(errs...))
}

// fetch GETs url under the per-call timeout and decodes a JSON object.
func (r *Resolver) fetch(ctx context.Context, url string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > r.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", r.maxBytes)
	}

	var doc Metadata
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if doc == nil {
		return nil, errors.New("metadata is not a JSON object")
	}
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
